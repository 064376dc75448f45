package fhe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

func newTestCryptor(t *testing.T, handler http.Handler) (Cryptor, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := testNetwork()
	cfg.RelayerURL = srv.URL
	factory := NewRelayerFactory(srv.Client(), nil)
	c, err := factory(context.Background(), cfg, &Keyset{
		ServerKey: []byte("key"), CRS: []byte("crs"),
	})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	return c, srv
}

func TestRelayerEncrypt(t *testing.T) {
	var gotReq inputProofRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/input-proof", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-Id") == "" {
			t.Error("missing X-Request-Id header")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		json.NewEncoder(w).Encode(inputProofResponse{
			Handles: []hexutil.Bytes{make([]byte, 32), make([]byte, 32)},
			Proof:   hexutil.Bytes("proof-bytes"),
		})
	})
	c, _ := newTestCryptor(t, mux)

	res, err := c.Encrypt(context.Background(), testContract, testUser, []uint64{1000, 1040})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if len(res.Handles) != 2 || len(res.Proof) == 0 {
		t.Fatalf("unexpected result: %d handles, %d proof bytes", len(res.Handles), len(res.Proof))
	}
	if gotReq.ContractAddress != testContract.Hex() || gotReq.UserAddress != testUser.Hex() {
		t.Error("encryption request not bound to (contract, user)")
	}
	if gotReq.ChainID != 11155111 {
		t.Errorf("chain id %d, want 11155111", gotReq.ChainID)
	}
	if len(gotReq.Values) != 2 || gotReq.Values[0] != "1000" || gotReq.Values[1] != "1040" {
		t.Errorf("values not transmitted in order: %v", gotReq.Values)
	}
}

func TestRelayerEncryptHandleCountMismatch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/input-proof", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(inputProofResponse{
			Handles: []hexutil.Bytes{make([]byte, 32)}, // one handle for two values
			Proof:   hexutil.Bytes("p"),
		})
	})
	c, _ := newTestCryptor(t, mux)

	if _, err := c.Encrypt(context.Background(), testContract, testUser, []uint64{1, 2}); !errors.Is(err, ErrBadCipherResult) {
		t.Errorf("expected ErrBadCipherResult, got %v", err)
	}
}

func TestRelayerUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/input-proof", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusBadGateway)
	})
	c, _ := newTestCryptor(t, mux)

	_, err := c.Encrypt(context.Background(), testContract, testUser, []uint64{1})
	if !errors.Is(err, ErrRelayerUnavailable) {
		t.Errorf("expected ErrRelayerUnavailable, got %v", err)
	}
}

func TestRelayerDecryptBool(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/user-decrypt", func(w http.ResponseWriter, r *http.Request) {
		var req userDecryptRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(userDecryptResponse{Value: req.Handle == "0x01"})
	})
	c, _ := newTestCryptor(t, mux)

	fair, err := c.DecryptBool(context.Background(), "0x01", testContract)
	if err != nil {
		t.Fatalf("DecryptBool: %v", err)
	}
	if !fair {
		t.Error("expected true for handle 0x01")
	}
	unfair, err := c.DecryptBool(context.Background(), "0x02", testContract)
	if err != nil {
		t.Fatalf("DecryptBool: %v", err)
	}
	if unfair {
		t.Error("expected false for handle 0x02")
	}
}

func TestRelayerDecryptError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/user-decrypt", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(userDecryptResponse{Error: "not authorized for handle"})
	})
	c, _ := newTestCryptor(t, mux)

	if _, err := c.DecryptBool(context.Background(), "0x01", testContract); err == nil {
		t.Error("expected error from relayer rejection")
	}
}

func TestRelayerFactoryRequiresKeyset(t *testing.T) {
	factory := NewRelayerFactory(nil, nil)
	if _, err := factory(context.Background(), testNetwork(), nil); err == nil {
		t.Error("factory should refuse a nil keyset")
	}
	if _, err := factory(context.Background(), testNetwork(), &Keyset{}); err == nil {
		t.Error("factory should refuse empty key material")
	}
}
