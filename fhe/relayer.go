package fhe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"

	"github.com/blindbarter/blindbarter/log"
)

// ErrRelayerUnavailable wraps transport-level failures talking to the
// relayer, so callers can distinguish "relayer down" from "proof rejected".
var ErrRelayerUnavailable = errors.New("fhe: relayer unavailable")

// relayerCryptor implements Cryptor against a Zama-style relayer service.
// The engine constructs one per process via NewRelayerFactory; the keyset
// digests bind the instance to the key material it was built with.
type relayerCryptor struct {
	baseURL         string
	chainID         uint64
	serverKeyDigest [32]byte
	crsDigest       [32]byte
	client          *http.Client
	logger          *log.Logger
}

// NewRelayerFactory returns the CryptorFactory used in production: it binds
// a relayer-backed Cryptor to the network configuration and the freshly
// loaded keyset.
func NewRelayerFactory(client *http.Client, logger *log.Logger) CryptorFactory {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = log.Default()
	}
	return func(ctx context.Context, cfg NetworkConfig, ks *Keyset) (Cryptor, error) {
		if ks == nil || len(ks.ServerKey) == 0 {
			return nil, errors.New("fhe: cannot construct instance without key material")
		}
		return &relayerCryptor{
			baseURL:         cfg.RelayerURL,
			chainID:         cfg.ChainID,
			serverKeyDigest: ks.ServerKeyDigest,
			crsDigest:       ks.CRSDigest,
			client:          client,
			logger:          logger.Module("relayer"),
		}, nil
	}
}

// inputProofRequest is the relayer's encryption endpoint payload.
type inputProofRequest struct {
	ContractAddress string   `json:"contractAddress"`
	UserAddress     string   `json:"userAddress"`
	ChainID         uint64   `json:"chainId"`
	ServerKeyDigest string   `json:"serverKeyDigest"`
	Values          []string `json:"values"` // decimal strings; uint64 loses precision in JSON numbers
}

type inputProofResponse struct {
	Handles []hexutil.Bytes `json:"handles"`
	Proof   hexutil.Bytes   `json:"inputProof"`
	Error   string          `json:"error,omitempty"`
}

func (c *relayerCryptor) Encrypt(ctx context.Context, contract, user common.Address, values []uint64) (*CipherResult, error) {
	vals := make([]string, len(values))
	for i, v := range values {
		vals[i] = fmt.Sprintf("%d", v)
	}
	req := inputProofRequest{
		ContractAddress: contract.Hex(),
		UserAddress:     user.Hex(),
		ChainID:         c.chainID,
		ServerKeyDigest: EncodeHex(c.serverKeyDigest[:]),
		Values:          vals,
	}
	var resp inputProofResponse
	if err := c.post(ctx, "/v1/input-proof", req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("fhe: relayer rejected encryption: %s", resp.Error)
	}
	if len(resp.Handles) != len(values) || len(resp.Proof) == 0 {
		return nil, ErrBadCipherResult
	}
	handles := make([][]byte, len(resp.Handles))
	for i, h := range resp.Handles {
		handles[i] = []byte(h)
	}
	return &CipherResult{Handles: handles, Proof: []byte(resp.Proof)}, nil
}

type userDecryptRequest struct {
	Handle          string `json:"handle"`
	ContractAddress string `json:"contractAddress"`
	ChainID         uint64 `json:"chainId"`
}

type userDecryptResponse struct {
	Value bool   `json:"value"`
	Error string `json:"error,omitempty"`
}

func (c *relayerCryptor) DecryptBool(ctx context.Context, handle string, contract common.Address) (bool, error) {
	req := userDecryptRequest{
		Handle:          handle,
		ContractAddress: contract.Hex(),
		ChainID:         c.chainID,
	}
	var resp userDecryptResponse
	if err := c.post(ctx, "/v1/user-decrypt", req, &resp); err != nil {
		return false, err
	}
	if resp.Error != "" {
		return false, fmt.Errorf("fhe: relayer rejected decryption: %s", resp.Error)
	}
	return resp.Value, nil
}

// post sends a JSON request with a fresh request id and decodes the JSON
// response into out. Non-2xx statuses and transport errors are classified
// as relayer unavailability.
func (c *relayerCryptor) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	reqID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", reqID)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRelayerUnavailable, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRelayerUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("relayer call failed", "path", path, "status", resp.StatusCode, "requestId", reqID)
		return fmt.Errorf("%w: %s returned status %d", ErrRelayerUnavailable, path, resp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("fhe: malformed relayer response from %s: %w", path, err)
	}
	return nil
}
