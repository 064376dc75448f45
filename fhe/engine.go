// Package fhe implements the client side of the homomorphic encryption
// boundary: the engine lifecycle that brings the encryption stack from
// cold-start to ready, the encrypted inputs bound to a contract and user,
// and the payload pipeline that turns plaintext valuations into
// handle/proof pairs the BlindBarter contract accepts.
package fhe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/blindbarter/blindbarter/log"
)

// State represents the lifecycle state of the encryption engine.
type State int

const (
	StateUninitialized State = iota // never initialized
	StateInitializing               // load-and-construct in progress
	StateReady                      // usable for encrypt/decrypt
	StateFailed                     // initialization failed; not self-healing
)

// String returns a human-readable name for the engine state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrNotReady is returned by operations that require a ready engine.
	ErrNotReady = errors.New("fhe: engine not ready")
	// ErrInitFailed wraps the stored failure when Initialize is called on a
	// failed engine. A failed engine stays failed until Reinitialize:
	// partially loaded key material is not safely retried in place.
	ErrInitFailed = errors.New("fhe: engine initialization previously failed")
	// ErrKeysetTimeout reports that the key-material download timed out
	// before the overall initialization deadline.
	ErrKeysetTimeout = errors.New("fhe: key material download timed out")
	// ErrInitTimeout reports that initialization as a whole timed out.
	ErrInitTimeout = errors.New("fhe: initialization timed out")
)

// NetworkConfig selects which key-management and relayer endpoints the
// engine trusts. It is fixed at engine construction and never changes for
// the lifetime of the instance.
type NetworkConfig struct {
	ChainID    uint64
	RelayerURL string
	KMSKeyURL  string
	CRSURL     string
}

// Cryptor is the concrete encryption implementation the engine constructs
// once the key material is loaded. Implementations must be safe for
// concurrent use.
type Cryptor interface {
	// Encrypt encrypts the staged values bound to (contract, user) and
	// returns ciphertext handles plus one shared input proof.
	Encrypt(ctx context.Context, contract, user common.Address, values []uint64) (*CipherResult, error)
	// DecryptBool reveals an encrypted boolean the caller is authorized to
	// view, addressed by its handle under the given contract.
	DecryptBool(ctx context.Context, handle string, contract common.Address) (bool, error)
}

// CryptorFactory builds a Cryptor bound to one network configuration from
// loaded key material. This is phase two of initialization.
type CryptorFactory func(ctx context.Context, cfg NetworkConfig, ks *Keyset) (Cryptor, error)

// EngineOptions tunes the engine lifecycle.
type EngineOptions struct {
	// InitTimeout bounds the whole initialization (default 60s).
	InitTimeout time.Duration
	// KeysetTimeout bounds only the key-material download (default 45s).
	// It must be strictly shorter than InitTimeout so slow downloads
	// surface as a keyset error rather than the generic overall timeout.
	KeysetTimeout time.Duration
	Logger        *log.Logger
}

// Engine owns the cold-start/ready/failed lifecycle of the encryption
// stack. It is a process-wide singleton in practice: created on first need
// and torn down only on process exit. At most one initialization attempt is
// in flight at a time; concurrent Initialize calls share that attempt.
type Engine struct {
	cfg     NetworkConfig
	loader  KeysetLoader
	factory CryptorFactory
	logger  *log.Logger

	initTimeout   time.Duration
	keysetTimeout time.Duration

	mu      sync.Mutex
	state   State
	initErr error
	cryptor Cryptor
	gen     uint64        // bumped on Reinitialize/Close; stale attempts are discarded
	done    chan struct{} // closed when the in-flight attempt reaches a terminal state
}

// NewEngine creates an engine bound to cfg. The loader performs phase one
// (key material download), the factory phase two (instance construction).
func NewEngine(cfg NetworkConfig, loader KeysetLoader, factory CryptorFactory, opts EngineOptions) *Engine {
	if opts.InitTimeout <= 0 {
		opts.InitTimeout = 60 * time.Second
	}
	if opts.KeysetTimeout <= 0 || opts.KeysetTimeout >= opts.InitTimeout {
		opts.KeysetTimeout = 45 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		cfg:           cfg,
		loader:        loader,
		factory:       factory,
		logger:        logger.Module("fhe"),
		initTimeout:   opts.InitTimeout,
		keysetTimeout: opts.KeysetTimeout,
		state:         StateUninitialized,
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Err returns the stored initialization failure, or nil.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initErr
}

// Network returns the configuration the engine is bound to.
func (e *Engine) Network() NetworkConfig {
	return e.cfg
}

// Initialize brings the engine to Ready. It is idempotent and safe against
// concurrent invocation: the first caller becomes the leader and runs the
// two-phase load-and-construct sequence; every other caller blocks until
// that attempt reaches a terminal state and observes the same outcome.
// Calling Initialize on a ready engine returns immediately with no side
// effects; on a failed engine it returns the stored failure without
// retrying (use Reinitialize for an explicit fresh attempt).
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case StateReady:
		e.mu.Unlock()
		return nil
	case StateFailed:
		err := e.initErr
		e.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrInitFailed, err)
	case StateInitializing:
		done := e.done
		e.mu.Unlock()
		return e.wait(ctx, done)
	}

	// Leader path.
	e.state = StateInitializing
	e.initErr = nil
	e.done = make(chan struct{})
	gen := e.gen
	done := e.done
	e.mu.Unlock()

	go e.run(gen, done)
	return e.wait(ctx, done)
}

// Reinitialize discards a failed state and starts a fresh attempt. It is
// the programmatic equivalent of the "refresh the page" recovery path: the
// previous attempt's generation is invalidated so its late completion, if
// any, cannot mutate engine state.
func (e *Engine) Reinitialize(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateInitializing || e.state == StateReady {
		e.mu.Unlock()
		return e.Initialize(ctx)
	}
	e.gen++
	e.state = StateUninitialized
	e.initErr = nil
	e.cryptor = nil
	e.mu.Unlock()
	return e.Initialize(ctx)
}

// Close tears the engine down. Any in-flight initialization attempt is
// abandoned: its eventual completion is discarded rather than applied.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gen++
	if e.state == StateInitializing && e.done != nil {
		close(e.done)
	}
	e.state = StateUninitialized
	e.cryptor = nil
	e.initErr = nil
	e.done = nil
}

// wait blocks until the attempt owning done reaches a terminal state, or
// the caller's context is cancelled. A cancelled waiter does not affect the
// attempt itself.
func (e *Engine) wait(ctx context.Context, done chan struct{}) error {
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.state == StateReady:
		return nil
	case e.initErr != nil:
		return e.initErr
	default:
		// Torn down while we were waiting.
		return errors.New("fhe: initialization abandoned")
	}
}

// run executes the two-phase initialization under the attempt generation
// gen. Two timeout races are in effect: the keyset timeout on phase one and
// the overall timeout on the whole operation. The keyset timeout is
// strictly shorter, so in the common slow-network case the more specific
// error wins.
func (e *Engine) run(gen uint64, done chan struct{}) {
	start := time.Now()
	outer, cancel := context.WithTimeout(context.Background(), e.initTimeout)
	defer cancel()

	cryptor, err := e.loadAndConstruct(outer)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		// The consumer moved on (Reinitialize/Close) while we were
		// loading. Discard the result instead of mutating current state.
		e.logger.Debug("discarding stale initialization attempt", "gen", gen)
		return
	}
	if err != nil {
		e.state = StateFailed
		e.initErr = err
		e.logger.Error("engine initialization failed", "err", err, "elapsed", time.Since(start))
	} else {
		e.state = StateReady
		e.cryptor = cryptor
		e.logger.Info("engine ready", "chainId", e.cfg.ChainID, "elapsed", time.Since(start))
	}
	close(done)
}

func (e *Engine) loadAndConstruct(outer context.Context) (Cryptor, error) {
	// Phase one: download the binary key material (the slow part; several
	// megabytes on first load).
	e.logger.Info("loading key material", "keyURL", e.cfg.KMSKeyURL, "crsURL", e.cfg.CRSURL)
	phase1, cancel := context.WithTimeout(outer, e.keysetTimeout)
	defer cancel()

	ks, err := e.loader.Load(phase1)
	if err != nil {
		if phase1.Err() != nil && outer.Err() == nil {
			return nil, fmt.Errorf("%w after %v: %v", ErrKeysetTimeout, e.keysetTimeout, err)
		}
		if outer.Err() != nil {
			return nil, fmt.Errorf("%w after %v", ErrInitTimeout, e.initTimeout)
		}
		return nil, fmt.Errorf("fhe: key material load failed: %w", err)
	}
	e.logger.Info("key material loaded",
		"serverKeyBytes", len(ks.ServerKey), "crsBytes", len(ks.CRS))

	// Phase two: construct the instance bound to the network config.
	cryptor, err := e.factory(outer, e.cfg, ks)
	if err != nil {
		if outer.Err() != nil {
			return nil, fmt.Errorf("%w after %v", ErrInitTimeout, e.initTimeout)
		}
		return nil, fmt.Errorf("fhe: instance construction failed: %w", err)
	}
	return cryptor, nil
}

// CreateEncryptedInput returns a fresh input bound to (contract, user).
// It fails with ErrNotReady instead of panicking when the engine has not
// reached Ready; callers gate submissions on this.
func (e *Engine) CreateEncryptedInput(contract, user common.Address) (*EncryptedInput, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateReady || e.cryptor == nil {
		return nil, fmt.Errorf("%w (state %s)", ErrNotReady, e.state)
	}
	return newEncryptedInput(e.cryptor, contract, user), nil
}

// DecryptBool reveals the boolean behind handle for the given contract.
// Requires a ready engine.
func (e *Engine) DecryptBool(ctx context.Context, handle string, contract common.Address) (bool, error) {
	e.mu.Lock()
	cryptor := e.cryptor
	ready := e.state == StateReady
	e.mu.Unlock()
	if !ready || cryptor == nil {
		return false, fmt.Errorf("%w (state %s)", ErrNotReady, e.State())
	}
	return cryptor.DecryptBool(ctx, handle, contract)
}
