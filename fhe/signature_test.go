package fhe

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/require"

	"meetchain-backend/wallet"
)

type fakeSigner struct {
	address   common.Address
	signCalls int
	reject    bool
}

func (s *fakeSigner) Address() common.Address { return s.address }
func (s *fakeSigner) ChainID() *big.Int       { return big.NewInt(11155111) }

func (s *fakeSigner) SignTypedData(_ apitypes.TypedData) ([]byte, error) {
	s.signCalls++
	if s.reject {
		return nil, fmt.Errorf("user denied: %w", wallet.ErrRejected)
	}
	sig := make([]byte, 65)
	sig[64] = 27
	return sig, nil
}

func (s *fakeSigner) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	return tx, nil
}

type fakeCoprocessor struct {
	keypairCalls int
	decryptCalls int
	decryptOut   map[string]*big.Int
}

func (c *fakeCoprocessor) GenerateKeypair() (string, string, error) {
	c.keypairCalls++
	return fmt.Sprintf("0xpub%d", c.keypairCalls), fmt.Sprintf("0xpriv%d", c.keypairCalls), nil
}

func (c *fakeCoprocessor) CreateEncryptedInput(contract, user common.Address) InputBuilder {
	return &fakeInput{contract: contract, user: user}
}

func (c *fakeCoprocessor) UserDecrypt(_ context.Context, _ DecryptRequest) (map[string]*big.Int, error) {
	c.decryptCalls++
	return c.decryptOut, nil
}

type fakeInput struct {
	contract common.Address
	user     common.Address
	values   []uint32
}

func (in *fakeInput) Add32(value uint32) InputBuilder {
	in.values = append(in.values, value)
	return in
}

func (in *fakeInput) Encrypt(_ context.Context) (*EncryptedInput, error) {
	// Bind the handle content to (contract, user) so replay against a
	// different contract is detectable.
	var handle [32]byte
	copy(handle[:], in.contract.Bytes())
	copy(handle[20:], in.user.Bytes()[:12])
	return &EncryptedInput{
		Handles: [][32]byte{handle},
		Proof:   append(in.contract.Bytes(), in.user.Bytes()...),
	}, nil
}

var (
	userAddr  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	contractA = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	contractB = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func TestLoadOrSignFreshGrant(t *testing.T) {
	require := require.New(t)

	signer := &fakeSigner{address: userAddr}
	cop := &fakeCoprocessor{}
	store := NewInMemoryStorage()

	sig, err := LoadOrSign(context.Background(), cop, []common.Address{contractA}, signer, store)
	require.NoError(err)
	require.Equal(userAddr, sig.UserAddress)
	require.Equal([]common.Address{contractA}, sig.ContractAddresses)
	require.Equal(int64(SignatureDurationDays), sig.DurationDays)
	require.Equal(1, signer.signCalls)
	require.Equal(1, cop.keypairCalls)

	// The record must have been persisted under the derived key.
	raw, ok, err := store.Get(context.Background(), CacheKey(userAddr, []common.Address{contractA}))
	require.NoError(err)
	require.True(ok)

	var stored DecryptionSignature
	require.NoError(json.Unmarshal([]byte(raw), &stored))
	require.Equal(sig.PublicKey, stored.PublicKey)
}

func TestLoadOrSignCachedHitNoWalletInteraction(t *testing.T) {
	require := require.New(t)

	signer := &fakeSigner{address: userAddr}
	cop := &fakeCoprocessor{}
	store := NewInMemoryStorage()

	first, err := LoadOrSign(context.Background(), cop, []common.Address{contractA}, signer, store)
	require.NoError(err)

	second, err := LoadOrSign(context.Background(), cop, []common.Address{contractA}, signer, store)
	require.NoError(err)

	require.Equal(first, second)
	require.Equal(1, signer.signCalls, "cached hit must not prompt the wallet")
	require.Equal(1, cop.keypairCalls, "cached hit must not regenerate keys")
}

func TestLoadOrSignCachedHitIsOrderInsensitive(t *testing.T) {
	require := require.New(t)

	signer := &fakeSigner{address: userAddr}
	cop := &fakeCoprocessor{}
	store := NewInMemoryStorage()

	_, err := LoadOrSign(context.Background(), cop, []common.Address{contractA, contractB}, signer, store)
	require.NoError(err)

	_, err = LoadOrSign(context.Background(), cop, []common.Address{contractB, contractA}, signer, store)
	require.NoError(err)
	require.Equal(1, signer.signCalls)
}

func TestLoadOrSignExpiredGrantIsReplaced(t *testing.T) {
	require := require.New(t)

	signer := &fakeSigner{address: userAddr}
	cop := &fakeCoprocessor{}
	store := NewInMemoryStorage()

	contracts := []common.Address{contractA}
	key := CacheKey(userAddr, contracts)

	expired := DecryptionSignature{
		UserAddress:       userAddr,
		ContractAddresses: contracts,
		PublicKey:         "0xoldpub",
		PrivateKey:        "0xoldpriv",
		Signature:         make([]byte, 65),
		StartTimestamp:    time.Now().Add(-400 * 24 * time.Hour).Unix(),
		DurationDays:      SignatureDurationDays,
	}
	raw, err := json.Marshal(&expired)
	require.NoError(err)
	require.NoError(store.Set(context.Background(), key, string(raw)))

	fresh, err := LoadOrSign(context.Background(), cop, contracts, signer, store)
	require.NoError(err)
	require.Equal(1, signer.signCalls, "expired grant must trigger exactly one new signature")
	require.NotEqual(expired.PublicKey, fresh.PublicKey)

	stored, ok, err := store.Get(context.Background(), key)
	require.NoError(err)
	require.True(ok)

	var replaced DecryptionSignature
	require.NoError(json.Unmarshal([]byte(stored), &replaced))
	require.Equal(fresh.PublicKey, replaced.PublicKey, "new record must fully replace the old one")
}

func TestLoadOrSignContractSetChangeForcesRegeneration(t *testing.T) {
	require := require.New(t)

	signer := &fakeSigner{address: userAddr}
	cop := &fakeCoprocessor{}
	store := NewInMemoryStorage()

	_, err := LoadOrSign(context.Background(), cop, []common.Address{contractA}, signer, store)
	require.NoError(err)

	_, err = LoadOrSign(context.Background(), cop, []common.Address{contractA, contractB}, signer, store)
	require.NoError(err)
	require.Equal(2, signer.signCalls)
}

func TestLoadOrSignWalletRejection(t *testing.T) {
	require := require.New(t)

	signer := &fakeSigner{address: userAddr, reject: true}
	cop := &fakeCoprocessor{}
	store := NewInMemoryStorage()

	_, err := LoadOrSign(context.Background(), cop, []common.Address{contractA}, signer, store)
	require.ErrorIs(err, ErrSignatureRejected)

	// Nothing may be cached after a rejection.
	_, ok, err := store.Get(context.Background(), CacheKey(userAddr, []common.Address{contractA}))
	require.NoError(err)
	require.False(ok)
}

func TestLoadOrSignMissingDependencies(t *testing.T) {
	require := require.New(t)

	store := NewInMemoryStorage()
	_, err := LoadOrSign(context.Background(), nil, []common.Address{contractA}, &fakeSigner{address: userAddr}, store)
	require.Error(err)

	_, err = LoadOrSign(context.Background(), &fakeCoprocessor{}, []common.Address{contractA}, nil, store)
	require.Error(err)
}

func TestSignatureValidityWindow(t *testing.T) {
	require := require.New(t)

	sig := DecryptionSignature{
		StartTimestamp: 1000,
		DurationDays:   1,
	}
	require.False(sig.IsValid(time.Unix(999, 0)))
	require.True(sig.IsValid(time.Unix(1000, 0)))
	require.True(sig.IsValid(time.Unix(1000+86399, 0)))
	require.False(sig.IsValid(time.Unix(1000+86400, 0)))
}

func TestSignatureCovers(t *testing.T) {
	require := require.New(t)

	sig := DecryptionSignature{ContractAddresses: []common.Address{contractA}}
	require.True(sig.Covers(contractA))
	require.False(sig.Covers(contractB))
}

func TestCacheKeyIgnoresContractOrder(t *testing.T) {
	require := require.New(t)

	a := CacheKey(userAddr, []common.Address{contractA, contractB})
	b := CacheKey(userAddr, []common.Address{contractB, contractA})
	require.Equal(a, b)

	other := CacheKey(contractA, []common.Address{contractA, contractB})
	require.NotEqual(a, other)
}
