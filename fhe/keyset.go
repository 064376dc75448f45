package fhe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"github.com/blindbarter/blindbarter/log"
)

// Keyset is the binary key material phase one of initialization downloads:
// the TFHE server key used to form ciphertexts and the common reference
// string backing the input proofs.
type Keyset struct {
	ServerKey       []byte
	CRS             []byte
	ServerKeyDigest [32]byte
	CRSDigest       [32]byte
}

// KeysetLoader downloads the key material. Implementations must honor
// context cancellation: the engine races the load against its timeouts.
type KeysetLoader interface {
	Load(ctx context.Context) (*Keyset, error)
}

// maxKeysetBytes caps a single key-material download. The server key is a
// few megabytes; anything beyond this is a misbehaving endpoint.
const maxKeysetBytes = 64 << 20

// ErrEmptyKeyset is returned when an endpoint serves zero bytes.
var ErrEmptyKeyset = errors.New("fhe: key material endpoint returned empty body")

// HTTPKeysetLoader fetches the server key and CRS from the key-management
// endpoints over HTTP. Each request carries a fresh request id so failed
// downloads can be correlated with relayer-side logs.
type HTTPKeysetLoader struct {
	KeyURL string
	CRSURL string
	Client *http.Client
	Logger *log.Logger
}

// NewHTTPKeysetLoader creates a loader for the given endpoints using the
// default HTTP client.
func NewHTTPKeysetLoader(keyURL, crsURL string, logger *log.Logger) *HTTPKeysetLoader {
	if logger == nil {
		logger = log.Default()
	}
	return &HTTPKeysetLoader{
		KeyURL: keyURL,
		CRSURL: crsURL,
		Client: http.DefaultClient,
		Logger: logger.Module("fhe"),
	}
}

// Load downloads both blobs sequentially: the server key dominates the
// transfer time, so parallelism buys little and sequential downloads keep
// the error attribution obvious.
func (l *HTTPKeysetLoader) Load(ctx context.Context) (*Keyset, error) {
	serverKey, err := l.fetch(ctx, l.KeyURL)
	if err != nil {
		return nil, fmt.Errorf("server key: %w", err)
	}
	crs, err := l.fetch(ctx, l.CRSURL)
	if err != nil {
		return nil, fmt.Errorf("crs: %w", err)
	}
	ks := &Keyset{
		ServerKey:       serverKey,
		CRS:             crs,
		ServerKeyDigest: keccak256(serverKey),
		CRSDigest:       keccak256(crs),
	}
	l.Logger.Debug("keyset digests",
		"serverKey", fmt.Sprintf("%x", ks.ServerKeyDigest[:8]),
		"crs", fmt.Sprintf("%x", ks.CRSDigest[:8]))
	return ks, nil
}

func (l *HTTPKeysetLoader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fhe: %s returned status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeysetBytes))
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, ErrEmptyKeyset
	}
	// If the endpoint advertises a digest, verify the download against it.
	if want := resp.Header.Get("X-Content-Digest"); want != "" {
		got := fmt.Sprintf("0x%x", keccak256(body))
		if got != want {
			return nil, fmt.Errorf("fhe: digest mismatch for %s: got %s want %s", url, got, want)
		}
	}
	return body, nil
}

func keccak256(data []byte) [32]byte {
	var out [32]byte
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	copy(out[:], h.Sum(nil))
	return out
}
