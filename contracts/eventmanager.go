package contracts

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"meetchain-backend/models"
	"meetchain-backend/wallet"
)

// ErrEventNotFound marks reads where the node executed the call and the
// contract reverted (event ID never created). Transport-level failures
// are wrapped separately so callers can tell the two apart.
var ErrEventNotFound = errors.New("event not found")

// ErrReverted marks a mined transaction whose execution failed.
var ErrReverted = errors.New("transaction reverted")

// Ledger is the EventManager read/write surface consumed by the scanner
// and the sign-in orchestrator.
type Ledger interface {
	Address() common.Address
	NextEventID(ctx context.Context) (int64, error)
	GetEventHeader(ctx context.Context, id int64) (*models.EventHeader, error)
	GetEncryptedCount(ctx context.Context, id int64) (string, error)
	HasSigned(ctx context.Context, id int64, user common.Address) (bool, error)
	CanClaim(ctx context.Context, id int64, user common.Address) (bool, error)
	SignIn(ctx context.Context, id int64, handle [32]byte, proof []byte) (*types.Receipt, error)
	ClaimBadge(ctx context.Context, id int64) (*types.Receipt, error)
	CreateEvent(ctx context.Context, cid string, start, end int64, mintPOAP bool) (int64, *types.Receipt, error)
}

// EventManager ABI - only the functions we need
const eventManagerABI = `[
{"inputs":[],"name":"nextEventId","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"uint256","name":"eventId","type":"uint256"}],"name":"getEventHeader","outputs":[{"internalType":"uint256","name":"id","type":"uint256"},{"internalType":"address","name":"organizer","type":"address"},{"internalType":"string","name":"metadataCID","type":"string"},{"internalType":"uint64","name":"startTime","type":"uint64"},{"internalType":"uint64","name":"endTime","type":"uint64"},{"internalType":"bool","name":"mintPOAP","type":"bool"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"uint256","name":"eventId","type":"uint256"}],"name":"getEvent","outputs":[{"internalType":"uint256","name":"id","type":"uint256"},{"internalType":"address","name":"organizer","type":"address"},{"internalType":"string","name":"metadataCID","type":"string"},{"internalType":"uint64","name":"startTime","type":"uint64"},{"internalType":"uint64","name":"endTime","type":"uint64"},{"internalType":"bool","name":"mintPOAP","type":"bool"},{"internalType":"bytes32","name":"count","type":"bytes32"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"uint256","name":"eventId","type":"uint256"}],"name":"getEncryptedCount","outputs":[{"internalType":"bytes32","name":"","type":"bytes32"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"uint256","name":"eventId","type":"uint256"},{"internalType":"address","name":"user","type":"address"}],"name":"hasSigned","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"uint256","name":"eventId","type":"uint256"},{"internalType":"address","name":"user","type":"address"}],"name":"canClaim","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"uint256","name":"eventId","type":"uint256"},{"internalType":"bytes32","name":"countInput","type":"bytes32"},{"internalType":"bytes","name":"inputProof","type":"bytes"}],"name":"signIn","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"uint256","name":"eventId","type":"uint256"}],"name":"claimBadge","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"string","name":"metadataCID","type":"string"},{"internalType":"uint64","name":"startTime","type":"uint64"},{"internalType":"uint64","name":"endTime","type":"uint64"},{"internalType":"bool","name":"mintPOAP","type":"bool"}],"name":"createEvent","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}
]`

// Backend is the subset of ethclient.Client the wrapper needs. It also
// satisfies bind.DeployBackend so receipts can be awaited.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// EventManager wraps the EventManagerFHE smart contract interactions.
type EventManager struct {
	backend Backend
	signer  wallet.Signer
	address common.Address
	abi     abi.ABI
}

// NewEventManager creates a new EventManager instance. The signer may be
// nil for read-only use; write operations then fail with an error.
func NewEventManager(backend Backend, signer wallet.Signer, address string) (*EventManager, error) {
	parsedABI, err := abi.JSON(strings.NewReader(eventManagerABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse EventManager ABI: %w", err)
	}

	return &EventManager{
		backend: backend,
		signer:  signer,
		address: common.HexToAddress(address),
		abi:     parsedABI,
	}, nil
}

func (em *EventManager) Address() common.Address {
	return em.address
}

// callView packs, calls and returns the raw result of a view function.
func (em *EventManager) callView(ctx context.Context, method string, args ...interface{}) ([]byte, error) {
	callData, err := em.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack call data for %s: %w", method, err)
	}

	result, err := em.backend.CallContract(ctx, ethereum.CallMsg{
		To:   &em.address,
		Data: callData,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	if len(result) == 0 {
		// Some nodes report reverts as empty return data instead of an
		// error; treat it the same way.
		return nil, fmt.Errorf("call to %s returned no data: %w", method, ErrEventNotFound)
	}

	return result, nil
}

// isRevert distinguishes "the node executed the call and the contract
// rejected it" from transport failures. JSON-RPC errors carrying revert
// data are recognized structurally; the message match covers nodes that
// report reverts without a data field.
func isRevert(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrEventNotFound) {
		return true
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}

func (em *EventManager) NextEventID(ctx context.Context) (int64, error) {
	result, err := em.callView(ctx, "nextEventId")
	if err != nil {
		return 0, err
	}

	var nextID *big.Int
	if err := em.abi.UnpackIntoInterface(&nextID, "nextEventId", result); err != nil {
		return 0, fmt.Errorf("failed to unpack nextEventId: %w", err)
	}
	return nextID.Int64(), nil
}

// GetEventHeader reads the header-only view for an event. The encrypted
// counter is typed as a ciphertext on-chain, so the header entry point
// is preferred; older deployments without it fall back to the full
// getEvent record. The fallback is attempted exactly once.
func (em *EventManager) GetEventHeader(ctx context.Context, id int64) (*models.EventHeader, error) {
	result, err := em.callView(ctx, "getEventHeader", big.NewInt(id))
	if err != nil {
		if !isRevert(err) {
			return nil, err
		}
		result, err = em.callView(ctx, "getEvent", big.NewInt(id))
		if err != nil {
			if isRevert(err) {
				return nil, fmt.Errorf("event %d: %w", id, ErrEventNotFound)
			}
			return nil, err
		}
		return em.unpackHeader("getEvent", result)
	}
	return em.unpackHeader("getEventHeader", result)
}

func (em *EventManager) unpackHeader(method string, result []byte) (*models.EventHeader, error) {
	values, err := em.abi.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(values) < 6 {
		return nil, fmt.Errorf("unexpected %s result arity: %d", method, len(values))
	}

	id, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s id type %T", method, values[0])
	}
	organizer, ok := values[1].(common.Address)
	if !ok {
		return nil, fmt.Errorf("unexpected %s organizer type %T", method, values[1])
	}
	cid, ok := values[2].(string)
	if !ok {
		return nil, fmt.Errorf("unexpected %s metadataCID type %T", method, values[2])
	}
	startTime, ok := values[3].(uint64)
	if !ok {
		return nil, fmt.Errorf("unexpected %s startTime type %T", method, values[3])
	}
	endTime, ok := values[4].(uint64)
	if !ok {
		return nil, fmt.Errorf("unexpected %s endTime type %T", method, values[4])
	}
	mintPOAP, ok := values[5].(bool)
	if !ok {
		return nil, fmt.Errorf("unexpected %s mintPOAP type %T", method, values[5])
	}

	return &models.EventHeader{
		ID:          id.Int64(),
		Organizer:   organizer,
		MetadataCID: cid,
		StartTime:   int64(startTime),
		EndTime:     int64(endTime),
		MintPOAP:    mintPOAP,
	}, nil
}

// GetEncryptedCount returns the current ciphertext handle for the
// event's attendance counter, hex encoded. The handle changes every
// time the counter is updated.
func (em *EventManager) GetEncryptedCount(ctx context.Context, id int64) (string, error) {
	result, err := em.callView(ctx, "getEncryptedCount", big.NewInt(id))
	if err != nil {
		if isRevert(err) {
			return "", fmt.Errorf("event %d: %w", id, ErrEventNotFound)
		}
		return "", err
	}

	var handle [32]byte
	if err := em.abi.UnpackIntoInterface(&handle, "getEncryptedCount", result); err != nil {
		return "", fmt.Errorf("failed to unpack getEncryptedCount: %w", err)
	}
	return hexutil.Encode(handle[:]), nil
}

func (em *EventManager) HasSigned(ctx context.Context, id int64, user common.Address) (bool, error) {
	return em.callBool(ctx, "hasSigned", big.NewInt(id), user)
}

func (em *EventManager) CanClaim(ctx context.Context, id int64, user common.Address) (bool, error) {
	return em.callBool(ctx, "canClaim", big.NewInt(id), user)
}

func (em *EventManager) callBool(ctx context.Context, method string, args ...interface{}) (bool, error) {
	result, err := em.callView(ctx, method, args...)
	if err != nil {
		return false, err
	}

	var value bool
	if err := em.abi.UnpackIntoInterface(&value, method, result); err != nil {
		return false, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return value, nil
}

// SignIn submits the encrypted attendance increment for an event.
func (em *EventManager) SignIn(ctx context.Context, id int64, handle [32]byte, proof []byte) (*types.Receipt, error) {
	return em.submitTx(ctx, "signIn", big.NewInt(id), handle, proof)
}

// ClaimBadge submits a badge claim for an event the caller signed in to.
func (em *EventManager) ClaimBadge(ctx context.Context, id int64) (*types.Receipt, error) {
	return em.submitTx(ctx, "claimBadge", big.NewInt(id))
}

// CreateEvent registers a new event and returns its assigned ID. The ID
// is read back as nextEventId-1 once the creation is mined.
func (em *EventManager) CreateEvent(ctx context.Context, cid string, start, end int64, mintPOAP bool) (int64, *types.Receipt, error) {
	receipt, err := em.submitTx(ctx, "createEvent", cid, uint64(start), uint64(end), mintPOAP)
	if err != nil {
		return 0, nil, err
	}

	nextID, err := em.NextEventID(ctx)
	if err != nil {
		return 0, receipt, fmt.Errorf("event created but reading nextEventId failed: %w", err)
	}
	return nextID - 1, receipt, nil
}

// submitTx packs a state-changing call, estimates gas, signs with the
// configured signer and waits for the receipt.
func (em *EventManager) submitTx(ctx context.Context, method string, args ...interface{}) (*types.Receipt, error) {
	if em.signer == nil {
		return nil, fmt.Errorf("no signer configured for %s", method)
	}

	input, err := em.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call data: %w", method, err)
	}

	from := em.signer.Address()

	gasPrice, err := em.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas price: %w", err)
	}

	gasLimit, err := em.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:     from,
		To:       &em.address,
		GasPrice: gasPrice,
		Value:    big.NewInt(0),
		Data:     input,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas for %s: %w", method, err)
	}
	gasLimit = uint64(float64(gasLimit) * 1.1)

	nonce, err := em.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve account nonce: %w", err)
	}

	tx := types.NewTransaction(nonce, em.address, big.NewInt(0), gasLimit, gasPrice, input)
	signedTx, err := em.signer.SignTx(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s transaction: %w", method, err)
	}

	if err := em.backend.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("failed to send %s transaction: %w", method, err)
	}

	receipt, err := bind.WaitMined(ctx, em.backend, signedTx)
	if err != nil {
		return nil, fmt.Errorf("failed to await %s receipt: %w", method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%s tx %s: %w", method, receipt.TxHash.Hex(), ErrReverted)
	}

	return receipt, nil
}
