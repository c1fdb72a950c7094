package fhe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"meetchain-backend/wallet"
)

// SignatureDurationDays is the validity window requested for a fresh
// decryption authorization.
const SignatureDurationDays = 365

var (
	// ErrSignatureRejected is returned when the wallet declines the
	// authorization signature. Recoverable: a later attempt may prompt
	// again.
	ErrSignatureRejected = errors.New("decryption authorization rejected by signer")

	// ErrNotCovered is returned when a decrypt targets a contract
	// outside an authorization's contract set.
	ErrNotCovered = errors.New("contract not covered by decryption authorization")
)

// DecryptionSignature is a signed, time-limited grant letting its key
// pair decrypt ciphertexts for a fixed contract set and user.
type DecryptionSignature struct {
	UserAddress       common.Address   `json:"user_address"`
	ContractAddresses []common.Address `json:"contract_addresses"`
	PublicKey         string           `json:"public_key"`
	PrivateKey        string           `json:"private_key"`
	Signature         hexutil.Bytes    `json:"signature"`
	StartTimestamp    int64            `json:"start_timestamp"`
	DurationDays      int64            `json:"duration_days"`
}

// CacheKey derives the storage key for a (user, contract set) pair. The
// contract set is sorted so ordering does not fragment the cache.
func CacheKey(user common.Address, contracts []common.Address) string {
	sorted := sortedHexSet(contracts)
	return "decryption-signature:" + strings.ToLower(user.Hex()) + ":" + strings.Join(sorted, ",")
}

func sortedHexSet(contracts []common.Address) []string {
	out := make([]string, 0, len(contracts))
	for _, c := range contracts {
		out = append(out, strings.ToLower(c.Hex()))
	}
	sort.Strings(out)
	return out
}

// IsValid reports whether the grant's validity window contains now.
func (s *DecryptionSignature) IsValid(now time.Time) bool {
	ts := now.Unix()
	expiry := s.StartTimestamp + s.DurationDays*24*60*60
	return ts >= s.StartTimestamp && ts < expiry
}

// Matches reports whether the grant was issued for exactly this user
// and contract set. Contract order is irrelevant.
func (s *DecryptionSignature) Matches(user common.Address, contracts []common.Address) bool {
	if s.UserAddress != user {
		return false
	}
	mine := sortedHexSet(s.ContractAddresses)
	theirs := sortedHexSet(contracts)
	if len(mine) != len(theirs) {
		return false
	}
	for i := range mine {
		if mine[i] != theirs[i] {
			return false
		}
	}
	return true
}

// Covers reports whether a single contract is inside the grant's set.
func (s *DecryptionSignature) Covers(contract common.Address) bool {
	for _, c := range s.ContractAddresses {
		if c == contract {
			return true
		}
	}
	return false
}

// LoadOrSign returns a valid decryption authorization for (signer,
// contracts), reusing a cached one when possible. The cached hit path
// performs no wallet or coprocessor interaction. On miss or staleness a
// fresh key pair is generated, the grant message is signed by the
// wallet, and the record overwrites whatever the store held. Store
// writes are last-write-wins; two concurrent misses cost an extra
// signature prompt, nothing worse.
func LoadOrSign(ctx context.Context, cop Coprocessor, contractAddresses []common.Address, signer wallet.Signer, store Storage) (*DecryptionSignature, error) {
	if cop == nil {
		return nil, fmt.Errorf("no coprocessor available")
	}
	if signer == nil {
		return nil, fmt.Errorf("no signer available")
	}
	if store == nil {
		return nil, fmt.Errorf("no authorization store available")
	}

	user := signer.Address()
	key := CacheKey(user, contractAddresses)

	if raw, ok, err := store.Get(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to read authorization store: %w", err)
	} else if ok {
		var cached DecryptionSignature
		if err := json.Unmarshal([]byte(raw), &cached); err != nil {
			log.Printf("Discarding unreadable authorization record for %s: %v", user.Hex(), err)
		} else if cached.Matches(user, contractAddresses) && cached.IsValid(time.Now()) {
			return &cached, nil
		}
	}

	publicKey, privateKey, err := cop.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate decryption keypair: %w", err)
	}

	start := time.Now().Unix()
	typed := decryptionTypedData(signer.ChainID(), publicKey, contractAddresses, start, SignatureDurationDays)

	signature, err := signer.SignTypedData(typed)
	if err != nil {
		if errors.Is(err, wallet.ErrRejected) {
			return nil, fmt.Errorf("%w: %v", ErrSignatureRejected, err)
		}
		return nil, fmt.Errorf("failed to sign decryption authorization: %w", err)
	}

	record := &DecryptionSignature{
		UserAddress:       user,
		ContractAddresses: append([]common.Address(nil), contractAddresses...),
		PublicKey:         publicKey,
		PrivateKey:        privateKey,
		Signature:         signature,
		StartTimestamp:    start,
		DurationDays:      SignatureDurationDays,
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize authorization record: %w", err)
	}
	if err := store.Set(ctx, key, string(raw)); err != nil {
		return nil, fmt.Errorf("failed to persist authorization record: %w", err)
	}

	return record, nil
}

// decryptionTypedData builds the EIP-712 message the wallet signs to
// authorize user decryption for the given key and contract set.
func decryptionTypedData(chainID *big.Int, publicKey string, contracts []common.Address, start, durationDays int64) apitypes.TypedData {
	contractHexes := make([]interface{}, 0, len(contracts))
	for _, c := range contracts {
		contractHexes = append(contractHexes, c.Hex())
	}

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"UserDecryptRequestVerification": []apitypes.Type{
				{Name: "publicKey", Type: "bytes"},
				{Name: "contractAddresses", Type: "address[]"},
				{Name: "startTimestamp", Type: "uint256"},
				{Name: "durationDays", Type: "uint256"},
			},
		},
		PrimaryType: "UserDecryptRequestVerification",
		Domain: apitypes.TypedDataDomain{
			Name:    "Decryption",
			Version: "1",
			ChainId: math.NewHexOrDecimal256(chainID.Int64()),
		},
		Message: apitypes.TypedDataMessage{
			"publicKey":         publicKey,
			"contractAddresses": contractHexes,
			"startTimestamp":    math.NewHexOrDecimal256(start),
			"durationDays":      math.NewHexOrDecimal256(durationDays),
		},
	}
}
