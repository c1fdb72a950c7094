package fhe

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EncryptedInput is the result of encrypting caller-side plaintexts:
// one ciphertext handle per added value plus a correctness proof. The
// proof binds the handles to the (contract, user) pair the input was
// created for, so it cannot be replayed elsewhere.
type EncryptedInput struct {
	Handles [][32]byte
	Proof   []byte
}

// InputBuilder accumulates plaintext values for one encrypted input.
type InputBuilder interface {
	Add32(value uint32) InputBuilder
	Encrypt(ctx context.Context) (*EncryptedInput, error)
}

// HandleContractPair names one ciphertext to decrypt and the contract
// it belongs to.
type HandleContractPair struct {
	Handle          string         `json:"handle"`
	ContractAddress common.Address `json:"contractAddress"`
}

// DecryptRequest carries a batched user-decryption call: any number of
// handles from the covered contract set under a single authorization.
type DecryptRequest struct {
	Handles           []HandleContractPair
	PrivateKey        string
	PublicKey         string
	Signature         []byte
	ContractAddresses []common.Address
	UserAddress       common.Address
	StartTimestamp    int64
	DurationDays      int64
}

// Coprocessor is the opaque homomorphic-encryption capability: it can
// produce contract-bound encrypted inputs and decrypt ciphertext
// handles for an authorized user. The scheme itself is out of scope.
type Coprocessor interface {
	// GenerateKeypair produces a fresh ephemeral decryption key pair,
	// hex encoded. The private key never leaves the client.
	GenerateKeypair() (publicKey, privateKey string, err error)

	// CreateEncryptedInput starts an input bound to (contract, user).
	CreateEncryptedInput(contract, user common.Address) InputBuilder

	// UserDecrypt resolves ciphertext handles to plaintexts, keyed by
	// handle, under a valid decryption authorization.
	UserDecrypt(ctx context.Context, req DecryptRequest) (map[string]*big.Int, error)
}
