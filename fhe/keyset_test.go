package fhe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPKeysetLoaderLoad(t *testing.T) {
	serverKey := []byte("tfhe-server-key-blob")
	crs := []byte("crs-blob")

	mux := http.NewServeMux()
	mux.HandleFunc("/key", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-Id") == "" {
			t.Error("key request missing X-Request-Id")
		}
		w.Write(serverKey)
	})
	mux.HandleFunc("/crs", func(w http.ResponseWriter, r *http.Request) {
		w.Write(crs)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	loader := NewHTTPKeysetLoader(srv.URL+"/key", srv.URL+"/crs", nil)
	ks, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(ks.ServerKey) != string(serverKey) {
		t.Error("server key content mismatch")
	}
	if string(ks.CRS) != string(crs) {
		t.Error("crs content mismatch")
	}
	if ks.ServerKeyDigest == ks.CRSDigest {
		t.Error("distinct blobs must have distinct digests")
	}
	if ks.ServerKeyDigest != keccak256(serverKey) {
		t.Error("server key digest is not keccak256 of the blob")
	}
}

func TestHTTPKeysetLoaderEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 200 with zero bytes.
	}))
	defer srv.Close()

	loader := NewHTTPKeysetLoader(srv.URL, srv.URL, nil)
	if _, err := loader.Load(context.Background()); !errors.Is(err, ErrEmptyKeyset) {
		t.Errorf("expected ErrEmptyKeyset, got %v", err)
	}
}

func TestHTTPKeysetLoaderBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	loader := NewHTTPKeysetLoader(srv.URL, srv.URL, nil)
	if _, err := loader.Load(context.Background()); err == nil {
		t.Error("expected error for 503 response")
	}
}

func TestHTTPKeysetLoaderDigestMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Digest", "0xdeadbeef")
		w.Write([]byte("blob"))
	}))
	defer srv.Close()

	loader := NewHTTPKeysetLoader(srv.URL, srv.URL, nil)
	if _, err := loader.Load(context.Background()); err == nil {
		t.Error("expected digest mismatch error")
	}
}

func TestHTTPKeysetLoaderDigestMatch(t *testing.T) {
	blob := []byte("verified-blob")
	digest := keccak256(blob)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Digest", fmt.Sprintf("0x%x", digest))
		w.Write(blob)
	}))
	defer srv.Close()

	loader := NewHTTPKeysetLoader(srv.URL, srv.URL, nil)
	if _, err := loader.Load(context.Background()); err != nil {
		t.Errorf("matching digest should pass: %v", err)
	}
}

func TestHTTPKeysetLoaderHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	loader := NewHTTPKeysetLoader(srv.URL, srv.URL, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := loader.Load(ctx); err == nil {
		t.Error("expected context deadline error")
	}
}
