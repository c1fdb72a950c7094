package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"meetchain-backend/contracts"
	"meetchain-backend/fhe"
	"meetchain-backend/indexer"
	"meetchain-backend/models"
	"meetchain-backend/wallet"
)

// Sign-in attempt states.
const (
	StateIdle          = "IDLE"
	StateBuildingInput = "BUILDING_INPUT"
	StateSubmitting    = "SUBMITTING"
	StateConfirming    = "CONFIRMING"
	StateAccepted      = "ACCEPTED"
	StateFailed        = "FAILED"
)

// attendanceIncrement is the fixed plaintext submitted per sign-in.
const attendanceIncrement = 1

var (
	// ErrSignInPending means a sign-in for the event is already in
	// flight from this client. The second invocation is a no-op.
	ErrSignInPending = errors.New("sign-in already in flight for event")

	// ErrEventNotOngoing rejects sign-in outside the event's time
	// window before any transaction is built.
	ErrEventNotOngoing = errors.New("event is not currently ongoing")

	// ErrNotEligible rejects a badge claim the ledger would refuse.
	ErrNotEligible = errors.New("user is not eligible to claim this event")
)

// Attempt records one sign-in flow for correlation in logs and API
// responses.
type Attempt struct {
	ID      uuid.UUID `json:"id"`
	EventID int64     `json:"event_id"`
	State   string    `json:"state"`
	TxHash  string    `json:"tx_hash,omitempty"`

	// RefreshFailed is set when the sign-in was accepted but the
	// post-acceptance re-read failed, so no fresh event detail is
	// available and the caller should re-fetch.
	RefreshFailed bool `json:"refresh_failed,omitempty"`
}

// Manager sequences the confidential sign-in and decrypt flows: input
// building, transaction submission, confirmation, authorization reuse
// and batched decryption. One Manager is constructed per session and
// torn down with it, together with its authorization store.
type Manager struct {
	ledger  contracts.Ledger
	scanner *indexer.Scanner
	cop     fhe.Coprocessor
	signer  wallet.Signer
	store   fhe.Storage

	mu       sync.Mutex
	inflight map[int64]*Attempt

	now func() time.Time
}

func NewManager(ledger contracts.Ledger, scanner *indexer.Scanner, cop fhe.Coprocessor, signer wallet.Signer, store fhe.Storage) *Manager {
	return &Manager{
		ledger:   ledger,
		scanner:  scanner,
		cop:      cop,
		signer:   signer,
		store:    store,
		inflight: make(map[int64]*Attempt),
		now:      time.Now,
	}
}

// Pending returns the in-flight sign-in attempt for an event, if any.
func (m *Manager) Pending(eventID int64) (Attempt, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.inflight[eventID]; ok {
		return *a, true
	}
	return Attempt{}, false
}

func (m *Manager) setState(a *Attempt, state string) {
	m.mu.Lock()
	a.State = state
	m.mu.Unlock()
}

// SignIn runs the full sign-in flow for an event: ongoing-window and
// reentrancy guards, encrypted-input building bound to (contract,
// user), transaction submission and confirmation, then a re-read of
// the event so the returned detail carries the post-sign-in counter
// handle. Per-event sign-ins are serialized; a second call while one
// is pending returns ErrSignInPending without side effects.
func (m *Manager) SignIn(ctx context.Context, eventID int64) (Attempt, *models.EventDetail, error) {
	if m.cop == nil || m.signer == nil {
		return Attempt{}, nil, fmt.Errorf("sign-in requires a coprocessor and a signer")
	}

	attempt := &Attempt{ID: uuid.New(), EventID: eventID, State: StateIdle}

	m.mu.Lock()
	if pending, ok := m.inflight[eventID]; ok {
		m.mu.Unlock()
		return *pending, nil, ErrSignInPending
	}
	m.inflight[eventID] = attempt
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.inflight, eventID)
		m.mu.Unlock()
	}()

	detail, err := m.scanner.LoadEvent(ctx, eventID)
	if err != nil {
		m.setState(attempt, StateFailed)
		return *attempt, nil, err
	}
	if !detail.IsOngoing(m.now()) {
		m.setState(attempt, StateFailed)
		return *attempt, nil, fmt.Errorf("event %d: %w", eventID, ErrEventNotOngoing)
	}

	m.setState(attempt, StateBuildingInput)
	input, err := m.cop.CreateEncryptedInput(m.ledger.Address(), m.signer.Address()).
		Add32(attendanceIncrement).
		Encrypt(ctx)
	if err != nil {
		m.setState(attempt, StateFailed)
		return *attempt, nil, fmt.Errorf("failed to build encrypted input: %w", err)
	}
	if len(input.Handles) == 0 {
		m.setState(attempt, StateFailed)
		return *attempt, nil, fmt.Errorf("coprocessor returned no input handles")
	}

	m.setState(attempt, StateSubmitting)
	log.Printf("Submitting sign-in for event %d (attempt %s)", eventID, attempt.ID)

	receipt, err := m.ledger.SignIn(ctx, eventID, input.Handles[0], input.Proof)
	if receipt != nil {
		m.mu.Lock()
		attempt.TxHash = receipt.TxHash.Hex()
		m.mu.Unlock()
	}
	if err != nil {
		m.setState(attempt, StateFailed)
		return *attempt, nil, fmt.Errorf("sign-in transaction failed: %w", err)
	}

	m.setState(attempt, StateAccepted)
	log.Printf("Sign-in accepted for event %d (attempt %s, tx %s)", eventID, attempt.ID, attempt.TxHash)

	// The counter handle changed with the accepted sign-in; refresh so
	// a following decrypt sees the new aggregate.
	refreshed, err := m.scanner.LoadEvent(ctx, eventID)
	if err != nil {
		log.Printf("Sign-in accepted but event %d re-read failed: %v", eventID, err)
		m.mu.Lock()
		attempt.RefreshFailed = true
		m.mu.Unlock()
		return *attempt, nil, nil
	}
	return *attempt, refreshed, nil
}

// DecryptCount resolves the event's encrypted attendance counter to a
// plaintext using a cached-or-fresh decryption authorization. The flow
// is independently re-entrant; concurrent calls at worst duplicate a
// signature prompt.
func (m *Manager) DecryptCount(ctx context.Context, eventID int64) (*big.Int, error) {
	detail, err := m.scanner.LoadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	contract := m.ledger.Address()
	sig, err := fhe.LoadOrSign(ctx, m.cop, []common.Address{contract}, m.signer, m.store)
	if err != nil {
		return nil, err
	}

	values, err := m.DecryptHandles(ctx, sig, []fhe.HandleContractPair{
		{Handle: detail.CountHandle, ContractAddress: contract},
	})
	if err != nil {
		return nil, err
	}

	value, ok := values[detail.CountHandle]
	if !ok {
		return nil, fmt.Errorf("coprocessor response missing handle %s", detail.CountHandle)
	}
	return value, nil
}

// DecryptHandles performs one batched user-decrypt call under an
// existing grant. Every handle's contract must be inside the grant's
// set; a mismatch is an authorization failure and no coprocessor call
// is attempted.
func (m *Manager) DecryptHandles(ctx context.Context, sig *fhe.DecryptionSignature, pairs []fhe.HandleContractPair) (map[string]*big.Int, error) {
	for _, pair := range pairs {
		if !sig.Covers(pair.ContractAddress) {
			return nil, fmt.Errorf("contract %s: %w", pair.ContractAddress.Hex(), fhe.ErrNotCovered)
		}
	}

	return m.cop.UserDecrypt(ctx, fhe.DecryptRequest{
		Handles:           pairs,
		PrivateKey:        sig.PrivateKey,
		PublicKey:         sig.PublicKey,
		Signature:         sig.Signature,
		ContractAddresses: sig.ContractAddresses,
		UserAddress:       sig.UserAddress,
		StartTimestamp:    sig.StartTimestamp,
		DurationDays:      sig.DurationDays,
	})
}

// ClaimBadge submits a badge claim after checking eligibility, so an
// ineligible claim never reaches the ledger.
func (m *Manager) ClaimBadge(ctx context.Context, eventID int64) (string, error) {
	if m.signer == nil {
		return "", fmt.Errorf("badge claim requires a signer")
	}

	eligible, err := m.ledger.CanClaim(ctx, eventID, m.signer.Address())
	if err != nil {
		return "", err
	}
	if !eligible {
		return "", fmt.Errorf("event %d: %w", eventID, ErrNotEligible)
	}

	receipt, err := m.ledger.ClaimBadge(ctx, eventID)
	if err != nil {
		return "", fmt.Errorf("badge claim transaction failed: %w", err)
	}
	return receipt.TxHash.Hex(), nil
}
