package fhe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestRelayerGenerateKeypair(t *testing.T) {
	require := require.New(t)

	cop := NewRelayerCoprocessor("http://unused", 1, nil)
	pub, priv, err := cop.GenerateKeypair()
	require.NoError(err)
	require.NotEmpty(pub)
	require.NotEmpty(priv)

	// The private key must round-trip and match the public half.
	raw, err := hexutil.Decode(priv)
	require.NoError(err)
	key, err := crypto.ToECDSA(raw)
	require.NoError(err)
	require.Equal(pub, hexutil.Encode(crypto.FromECDSAPub(&key.PublicKey)))

	pub2, _, err := cop.GenerateKeypair()
	require.NoError(err)
	require.NotEqual(pub, pub2)
}

func TestRelayerEncryptedInput(t *testing.T) {
	require := require.New(t)

	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal("/v1/input-proof", r.URL.Path)
		require.NoError(json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"handles":    []string{"0x" + "11" + "0000000000000000000000000000000000000000000000000000000000" + "2233"},
			"inputProof": "0xdeadbeef",
		})
	}))
	defer server.Close()

	cop := NewRelayerCoprocessor(server.URL, 31337, nil)
	input, err := cop.CreateEncryptedInput(contractA, userAddr).Add32(1).Encrypt(context.Background())
	require.NoError(err)
	require.Len(input.Handles, 1)
	require.Equal(byte(0x11), input.Handles[0][0])
	require.Equal([]byte{0xde, 0xad, 0xbe, 0xef}, input.Proof)

	// The request binds the ciphertext to (contract, user).
	require.Equal(contractA.Hex(), gotBody["contractAddress"])
	require.Equal(userAddr.Hex(), gotBody["userAddress"])
	require.Equal(float64(31337), gotBody["chainId"])
}

func TestRelayerUserDecrypt(t *testing.T) {
	require := require.New(t)

	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal("/v1/user-decrypt", r.URL.Path)
		require.NoError(json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"clearValues": map[string]string{"0xhandle": "42"},
		})
	}))
	defer server.Close()

	cop := NewRelayerCoprocessor(server.URL, 31337, nil)
	values, err := cop.UserDecrypt(context.Background(), DecryptRequest{
		Handles:           []HandleContractPair{{Handle: "0xhandle", ContractAddress: contractA}},
		PrivateKey:        "0xpriv",
		PublicKey:         "0xpub",
		Signature:         []byte{0x01},
		ContractAddresses: []common.Address{contractA},
		UserAddress:       userAddr,
		StartTimestamp:    1000,
		DurationDays:      365,
	})
	require.NoError(err)
	require.Equal(int64(42), values["0xhandle"].Int64())

	// The private key must never leave the client.
	_, hasPrivate := gotBody["privateKey"]
	require.False(hasPrivate)
	require.Equal("0xpub", gotBody["publicKey"])
}

func TestRelayerSurfacesHTTPFailures(t *testing.T) {
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	cop := NewRelayerCoprocessor(server.URL, 1, nil)
	_, err := cop.CreateEncryptedInput(contractA, userAddr).Add32(1).Encrypt(context.Background())
	require.Error(err)

	_, err = cop.UserDecrypt(context.Background(), DecryptRequest{})
	require.Error(err)
}
