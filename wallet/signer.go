package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ErrRejected is returned when the signing backend refuses a signature
// request. Callers treat it as recoverable: the operation is abandoned
// but a later attempt may prompt again.
var ErrRejected = errors.New("signature request rejected")

// Signer abstracts the connected wallet. Implementations may hold a raw
// key (server-side) or proxy to an external provider.
type Signer interface {
	Address() common.Address
	ChainID() *big.Int

	// SignTypedData signs an EIP-712 typed-data payload and returns the
	// 65-byte signature with the recovery id in Ethereum form (v = 27/28).
	SignTypedData(typed apitypes.TypedData) ([]byte, error)

	// SignTx signs a transaction for this signer's chain.
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}

// PrivateKeySigner signs with a locally held ECDSA key.
type PrivateKeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
}

// NewPrivateKeySigner parses a hex-encoded private key. A 0x prefix is
// accepted.
func NewPrivateKeySigner(hexKey string, chainID *big.Int) (*PrivateKeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return &PrivateKeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
	}, nil
}

func (s *PrivateKeySigner) Address() common.Address {
	return s.address
}

func (s *PrivateKeySigner) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

func (s *PrivateKeySigner) SignTypedData(typed apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign typed data: %w", err)
	}
	// Recovery id to Ethereum convention.
	sig[64] += 27
	return sig, nil
}

func (s *PrivateKeySigner) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}
