package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/blindbarter/blindbarter/log"
)

// Status represents the session connection state.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// ErrConnectInProgress is returned when Connect is called while another
// connect attempt is running.
var ErrConnectInProgress = errors.New("wallet: connect already in progress")

// ContractHandle is the session's read/write handle to the remote program.
// It is rebuilt on every account or network change; the session only needs
// the version read, the coordinator uses the concrete binding.
type ContractHandle interface {
	Version(ctx context.Context) (string, error)
}

// HandleBinder builds a contract handle for the given signing account. It
// is invoked only once the account is authorized and the network matches.
type HandleBinder func(account common.Address) (ContractHandle, error)

// opTimeout bounds the wallet/provider calls a session makes on its own
// behalf (change-reaction reconnects, silent reconnect).
const opTimeout = 30 * time.Second

// Snapshot is a consistent view of the session for display.
type Snapshot struct {
	Status         Status
	Account        common.Address
	HasAccount     bool
	CorrectNetwork bool
	Version        string
}

// Session is the wallet session state machine over {Disconnected,
// Connecting, Connected(correctNetwork)}. It reacts to account and chain
// change notifications for its whole lifetime; Start registers the
// subscriptions exactly once and Stop removes them, so repeated
// start/stop cycles never accumulate duplicate handlers.
type Session struct {
	provider Provider
	store    ConnectionStore
	binder   HandleBinder
	chainID  uint64
	logger   *log.Logger

	mu             sync.Mutex
	status         Status
	account        common.Address
	hasAccount     bool
	correctNetwork bool
	handle         ContractHandle
	version        string

	started     bool
	subAccounts *Subscription
	subChain    *Subscription
	loopDone    chan struct{}
}

// NewSession creates a session requiring the given chain id. binder builds
// the contract handle once account and network are valid.
func NewSession(provider Provider, store ConnectionStore, binder HandleBinder, chainID uint64, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Default()
	}
	return &Session{
		provider: provider,
		store:    store,
		binder:   binder,
		chainID:  chainID,
		logger:   logger.Module("wallet"),
	}
}

// Snapshot returns the current session view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Status:         s.status,
		Account:        s.account,
		HasAccount:     s.hasAccount,
		CorrectNetwork: s.correctNetwork,
		Version:        s.version,
	}
}

// Status returns the current connection status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Account returns the signing account, if any.
func (s *Session) Account() (common.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account, s.hasAccount
}

// CorrectNetwork reports whether the connected chain matches the supported
// one.
func (s *Session) CorrectNetwork() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.correctNetwork
}

// Handle returns the bound contract handle, or nil when the session is not
// connected on the correct network.
func (s *Session) Handle() ContractHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Connect requests account authorization, checks the network (attempting
// exactly one programmatic switch on mismatch), binds the contract handle,
// persists the connected flag, and best-effort fetches the contract
// version. A declined switch leaves the session Connected with
// correctNetwork false rather than failing the whole connect.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.status == StatusConnecting {
		s.mu.Unlock()
		return ErrConnectInProgress
	}
	s.status = StatusConnecting
	s.mu.Unlock()

	accounts, err := s.provider.RequestAccounts(ctx)
	if err != nil {
		s.setDisconnected(false)
		return fmt.Errorf("wallet: account authorization failed: %w", err)
	}
	if len(accounts) == 0 {
		s.setDisconnected(false)
		return ErrNoAccounts
	}
	account := accounts[0]

	match, err := s.networkMatches(ctx)
	if err != nil {
		s.setDisconnected(false)
		return fmt.Errorf("wallet: chain query failed: %w", err)
	}
	if !match {
		// Exactly one switch attempt. Rejection is tolerated: the session
		// stays connected on the wrong network and the UI gates actions.
		if serr := s.provider.SwitchChain(ctx, s.chainID); serr != nil {
			s.logger.Warn("chain switch declined", "err", serr, "wantChain", s.chainID)
		} else if match, err = s.networkMatches(ctx); err != nil {
			s.setDisconnected(false)
			return fmt.Errorf("wallet: chain query failed after switch: %w", err)
		}
	}

	var handle ContractHandle
	if match {
		handle, err = s.binder(account)
		if err != nil {
			s.setDisconnected(false)
			return fmt.Errorf("wallet: contract binding failed: %w", err)
		}
	}

	s.mu.Lock()
	s.status = StatusConnected
	s.account = account
	s.hasAccount = true
	s.correctNetwork = match
	s.handle = handle
	s.version = ""
	s.mu.Unlock()

	if err := s.store.SetConnected(); err != nil {
		s.logger.Warn("could not persist connected flag", "err", err)
	}
	s.fetchVersion(ctx, handle)

	s.logger.Info("wallet connected", "account", account, "correctNetwork", match)
	return nil
}

// SilentReconnect restores a previous session without prompting. It only
// proceeds when the persisted flag is set; a stale flag (no authorized
// accounts anymore) is cleared. On a network mismatch no switch is
// attempted: switching without an explicit user action is avoided here.
func (s *Session) SilentReconnect(ctx context.Context) error {
	if !s.store.WasConnected() {
		return nil
	}

	accounts, err := s.provider.Accounts(ctx)
	if err != nil {
		s.logger.Warn("silent reconnect failed", "err", err)
		s.store.Clear()
		return nil
	}
	if len(accounts) == 0 {
		// The flag was stale; the wallet no longer authorizes us.
		s.logger.Debug("clearing stale connected flag")
		s.store.Clear()
		return nil
	}
	account := accounts[0]

	match, err := s.networkMatches(ctx)
	if err != nil {
		s.logger.Warn("silent reconnect chain query failed", "err", err)
		s.store.Clear()
		return nil
	}

	var handle ContractHandle
	if match {
		handle, err = s.binder(account)
		if err != nil {
			s.logger.Warn("silent reconnect binding failed", "err", err)
			s.store.Clear()
			return nil
		}
	}

	s.mu.Lock()
	s.status = StatusConnected
	s.account = account
	s.hasAccount = true
	s.correctNetwork = match
	s.handle = handle
	s.version = ""
	s.mu.Unlock()

	s.fetchVersion(ctx, handle)
	s.logger.Info("wallet silently reconnected", "account", account, "correctNetwork", match)
	return nil
}

// Disconnect clears all session fields and the persisted flag. It is safe
// to call from any state.
func (s *Session) Disconnect() {
	s.setDisconnected(true)
	s.logger.Info("wallet disconnected")
}

func (s *Session) setDisconnected(clearFlag bool) {
	s.mu.Lock()
	s.status = StatusDisconnected
	s.account = common.Address{}
	s.hasAccount = false
	s.correctNetwork = false
	s.handle = nil
	s.version = ""
	s.mu.Unlock()
	if clearFlag {
		if err := s.store.Clear(); err != nil {
			s.logger.Warn("could not clear connected flag", "err", err)
		}
	}
}

// Version returns the remote program version fetched at connect time, or
// empty when the fetch failed (a tolerated failure).
func (s *Session) Version() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// fetchVersion eagerly reads the contract version for display. Failure
// must not abort the connection.
func (s *Session) fetchVersion(ctx context.Context, handle ContractHandle) {
	if handle == nil {
		return
	}
	v, err := handle.Version(ctx)
	if err != nil {
		s.logger.Warn("version fetch failed", "err", err)
		return
	}
	s.mu.Lock()
	s.version = v
	s.mu.Unlock()
}

func (s *Session) networkMatches(ctx context.Context) (bool, error) {
	chain, err := s.provider.ChainID(ctx)
	if err != nil {
		return false, err
	}
	return chain == s.chainID, nil
}

// Start registers the account and chain change subscriptions and begins
// reacting to them. It is idempotent: a started session does not subscribe
// again.
func (s *Session) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	bus := s.provider.Changes()
	s.subAccounts = bus.Subscribe(AccountsChanged)
	s.subChain = bus.Subscribe(ChainChanged)
	s.loopDone = make(chan struct{})
	accCh := s.subAccounts.Chan()
	chnCh := s.subChain.Chan()
	done := s.loopDone
	s.mu.Unlock()

	go s.loop(accCh, chnCh, done)
}

// Stop deregisters the change subscriptions and waits for the reaction
// loop to exit. Safe to call on a stopped session.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	subA, subC, done := s.subAccounts, s.subChain, s.loopDone
	s.subAccounts, s.subChain, s.loopDone = nil, nil, nil
	s.mu.Unlock()

	subA.Unsubscribe()
	subC.Unsubscribe()
	<-done
}

func (s *Session) loop(acc, chn <-chan Change, done chan struct{}) {
	defer close(done)
	for acc != nil || chn != nil {
		select {
		case c, ok := <-acc:
			if !ok {
				acc = nil
				continue
			}
			s.onAccountsChanged(c.Accounts)
		case c, ok := <-chn:
			if !ok {
				chn = nil
				continue
			}
			s.onChainChanged(c.ChainID)
		}
	}
}

// onAccountsChanged reacts to a changed account list: empty means access
// was revoked; otherwise the first account is adopted by re-running the
// connect flow.
func (s *Session) onAccountsChanged(accounts []common.Address) {
	if len(accounts) == 0 {
		s.Disconnect()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := s.Connect(ctx); err != nil {
		s.logger.Warn("reconnect after account change failed", "err", err)
	}
}

// onChainChanged is the client-side analog of a full page reload: a changed
// chain invalidates every cached contract binding, so the session is torn
// down (keeping the persisted flag) and silently re-established.
func (s *Session) onChainChanged(chainID uint64) {
	s.logger.Info("chain changed, resetting session", "chainId", chainID)
	s.setDisconnected(false)
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := s.SilentReconnect(ctx); err != nil {
		s.logger.Warn("reconnect after chain change failed", "err", err)
	}
}
