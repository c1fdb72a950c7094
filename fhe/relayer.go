package fhe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// RelayerCoprocessor talks to an FHE relayer over its JSON HTTP API.
// Timeouts and retries are left to the http.Client; failures are
// surfaced as-is.
type RelayerCoprocessor struct {
	baseURL string
	chainID int64
	client  *http.Client
}

func NewRelayerCoprocessor(baseURL string, chainID int64, client *http.Client) *RelayerCoprocessor {
	if client == nil {
		client = http.DefaultClient
	}
	return &RelayerCoprocessor{
		baseURL: strings.TrimRight(baseURL, "/"),
		chainID: chainID,
		client:  client,
	}
}

// GenerateKeypair creates the ephemeral decryption key pair locally.
// The relayer only ever sees the public half.
func (r *RelayerCoprocessor) GenerateKeypair() (string, string, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate decryption keypair: %w", err)
	}
	publicKey := hexutil.Encode(crypto.FromECDSAPub(&key.PublicKey))
	privateKey := hexutil.Encode(crypto.FromECDSA(key))
	return publicKey, privateKey, nil
}

func (r *RelayerCoprocessor) CreateEncryptedInput(contract, user common.Address) InputBuilder {
	return &relayerInput{
		cop:      r,
		contract: contract,
		user:     user,
	}
}

type relayerInput struct {
	cop      *RelayerCoprocessor
	contract common.Address
	user     common.Address
	values   []uint32
}

func (in *relayerInput) Add32(value uint32) InputBuilder {
	in.values = append(in.values, value)
	return in
}

func (in *relayerInput) Encrypt(ctx context.Context) (*EncryptedInput, error) {
	reqBody := struct {
		ContractAddress string   `json:"contractAddress"`
		UserAddress     string   `json:"userAddress"`
		ChainID         int64    `json:"chainId"`
		Values          []uint32 `json:"values"`
	}{
		ContractAddress: in.contract.Hex(),
		UserAddress:     in.user.Hex(),
		ChainID:         in.cop.chainID,
		Values:          in.values,
	}

	var respBody struct {
		Handles    []string `json:"handles"`
		InputProof string   `json:"inputProof"`
	}
	if err := in.cop.post(ctx, "/v1/input-proof", reqBody, &respBody); err != nil {
		return nil, fmt.Errorf("failed to build encrypted input: %w", err)
	}

	out := &EncryptedInput{}
	for _, h := range respBody.Handles {
		raw, err := hexutil.Decode(h)
		if err != nil || len(raw) != 32 {
			return nil, fmt.Errorf("relayer returned malformed handle %q", h)
		}
		var handle [32]byte
		copy(handle[:], raw)
		out.Handles = append(out.Handles, handle)
	}
	proof, err := hexutil.Decode(respBody.InputProof)
	if err != nil {
		return nil, fmt.Errorf("relayer returned malformed input proof: %w", err)
	}
	out.Proof = proof

	return out, nil
}

// UserDecrypt submits the authorization material (public half only; the
// private key never goes over the wire) and returns plaintexts keyed by
// handle.
func (r *RelayerCoprocessor) UserDecrypt(ctx context.Context, req DecryptRequest) (map[string]*big.Int, error) {
	contracts := make([]string, 0, len(req.ContractAddresses))
	for _, c := range req.ContractAddresses {
		contracts = append(contracts, c.Hex())
	}

	reqBody := struct {
		HandleContractPairs []HandleContractPair `json:"handleContractPairs"`
		PublicKey           string               `json:"publicKey"`
		Signature           string               `json:"signature"`
		ContractAddresses   []string             `json:"contractAddresses"`
		UserAddress         string               `json:"userAddress"`
		StartTimestamp      int64                `json:"startTimestamp"`
		DurationDays        int64                `json:"durationDays"`
	}{
		HandleContractPairs: req.Handles,
		PublicKey:           req.PublicKey,
		Signature:           hexutil.Encode(req.Signature),
		ContractAddresses:   contracts,
		UserAddress:         req.UserAddress.Hex(),
		StartTimestamp:      req.StartTimestamp,
		DurationDays:        req.DurationDays,
	}

	var respBody struct {
		ClearValues map[string]string `json:"clearValues"`
	}
	if err := r.post(ctx, "/v1/user-decrypt", reqBody, &respBody); err != nil {
		return nil, fmt.Errorf("failed to decrypt handles: %w", err)
	}

	out := make(map[string]*big.Int, len(respBody.ClearValues))
	for handle, value := range respBody.ClearValues {
		v, ok := new(big.Int).SetString(value, 10)
		if !ok {
			return nil, fmt.Errorf("relayer returned malformed plaintext %q for handle %s", value, handle)
		}
		out[handle] = v
	}
	return out, nil
}

func (r *RelayerCoprocessor) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("relayer %s returned status %d: %s", path, resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode relayer response: %w", err)
	}
	return nil
}
