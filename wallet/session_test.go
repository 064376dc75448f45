package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const testChainID uint64 = 11155111

var (
	acctA = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	acctB = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

type fakeProvider struct {
	mu           sync.Mutex
	accounts     []common.Address
	requestErr   error
	chainID      uint64
	switchErr    error
	switchCalls  int
	requestCalls int
	queryCalls   int
	bus          *ChangeBus
}

func newFakeProvider(chainID uint64, accounts ...common.Address) *fakeProvider {
	return &fakeProvider{
		accounts: accounts,
		chainID:  chainID,
		bus:      NewChangeBus(8),
	}
}

func (p *fakeProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requestCalls++
	if p.requestErr != nil {
		return nil, p.requestErr
	}
	return append([]common.Address(nil), p.accounts...), nil
}

func (p *fakeProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queryCalls++
	return append([]common.Address(nil), p.accounts...), nil
}

func (p *fakeProvider) ChainID(ctx context.Context) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chainID, nil
}

func (p *fakeProvider) SwitchChain(ctx context.Context, chainID uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.switchCalls++
	if p.switchErr != nil {
		return p.switchErr
	}
	p.chainID = chainID
	return nil
}

func (p *fakeProvider) Changes() *ChangeBus { return p.bus }

type fakeHandle struct {
	version    string
	versionErr error
	account    common.Address
}

func (h *fakeHandle) Version(ctx context.Context) (string, error) {
	return h.version, h.versionErr
}

func newTestSession(p *fakeProvider) (*Session, *MemoryStore, *int) {
	store := &MemoryStore{}
	calls := new(int)
	binder := func(account common.Address) (ContractHandle, error) {
		*calls++
		return &fakeHandle{version: "BlindBarter v1.0", account: account}, nil
	}
	return NewSession(p, store, binder, testChainID, nil), store, calls
}

func TestConnectHappyPath(t *testing.T) {
	p := newFakeProvider(testChainID, acctA)
	s, store, binds := newTestSession(p)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	snap := s.Snapshot()
	if snap.Status != StatusConnected {
		t.Errorf("status = %s, want connected", snap.Status)
	}
	if !snap.CorrectNetwork {
		t.Error("expected correct network")
	}
	if snap.Account != acctA {
		t.Errorf("account = %s, want %s", snap.Account, acctA)
	}
	if snap.Version != "BlindBarter v1.0" {
		t.Errorf("version = %q", snap.Version)
	}
	if !store.WasConnected() {
		t.Error("connected flag not persisted")
	}
	if *binds != 1 {
		t.Errorf("binder ran %d times, want 1", *binds)
	}
	if p.switchCalls != 0 {
		t.Errorf("no switch should be attempted on a matching network, got %d", p.switchCalls)
	}
}

func TestConnectSwitchesWrongNetwork(t *testing.T) {
	p := newFakeProvider(1, acctA) // mainnet, needs switch
	s, _, _ := newTestSession(p)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if p.switchCalls != 1 {
		t.Errorf("switch attempts = %d, want 1", p.switchCalls)
	}
	if !s.CorrectNetwork() {
		t.Error("expected correct network after successful switch")
	}
}

func TestConnectSwitchDeclinedStaysConnected(t *testing.T) {
	p := newFakeProvider(1, acctA)
	p.switchErr = errors.New("user rejected the request")
	s, store, binds := newTestSession(p)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("a declined switch must not fail the connect: %v", err)
	}
	snap := s.Snapshot()
	if snap.Status != StatusConnected {
		t.Errorf("status = %s, want connected", snap.Status)
	}
	if snap.CorrectNetwork {
		t.Error("network should be marked wrong")
	}
	if s.Handle() != nil {
		t.Error("no contract handle should be bound on the wrong network")
	}
	if *binds != 0 {
		t.Errorf("binder should not run on wrong network, ran %d times", *binds)
	}
	if p.switchCalls != 1 {
		t.Errorf("exactly one switch attempt expected, got %d", p.switchCalls)
	}
	if !store.WasConnected() {
		t.Error("flag should still be persisted")
	}
}

func TestConnectNoAccounts(t *testing.T) {
	p := newFakeProvider(testChainID)
	s, store, _ := newTestSession(p)

	if err := s.Connect(context.Background()); !errors.Is(err, ErrNoAccounts) {
		t.Fatalf("expected ErrNoAccounts, got %v", err)
	}
	if s.Status() != StatusDisconnected {
		t.Errorf("status = %s, want disconnected", s.Status())
	}
	if store.WasConnected() {
		t.Error("flag must not be set on failed connect")
	}
}

func TestConnectVersionFetchFailureTolerated(t *testing.T) {
	p := newFakeProvider(testChainID, acctA)
	store := &MemoryStore{}
	calls := 0
	binder := func(account common.Address) (ContractHandle, error) {
		calls++
		return &fakeHandle{versionErr: errors.New("rpc hiccup")}, nil
	}
	s := NewSession(p, store, binder, testChainID, nil)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("version failure must not abort connect: %v", err)
	}
	if s.Status() != StatusConnected {
		t.Error("expected connected despite version fetch failure")
	}
	if s.Version() != "" {
		t.Errorf("version = %q, want empty", s.Version())
	}
}

func TestSilentReconnectWithoutFlagDoesNothing(t *testing.T) {
	p := newFakeProvider(testChainID, acctA)
	s, _, _ := newTestSession(p)

	if err := s.SilentReconnect(context.Background()); err != nil {
		t.Fatalf("SilentReconnect: %v", err)
	}
	if s.Status() != StatusDisconnected {
		t.Error("session should stay disconnected without the flag")
	}
	if p.queryCalls != 0 {
		t.Errorf("no account query expected without the flag, got %d", p.queryCalls)
	}
}

func TestSilentReconnectClearsStaleFlag(t *testing.T) {
	p := newFakeProvider(testChainID) // zero accounts
	s, store, _ := newTestSession(p)
	store.SetConnected()

	if err := s.SilentReconnect(context.Background()); err != nil {
		t.Fatalf("SilentReconnect: %v", err)
	}
	if store.WasConnected() {
		t.Error("stale flag should be cleared")
	}
	if s.Status() != StatusDisconnected {
		t.Errorf("status = %s, want disconnected", s.Status())
	}
	if p.requestCalls != 0 {
		t.Error("silent reconnect must never prompt")
	}
}

func TestSilentReconnectWrongNetworkNoSwitch(t *testing.T) {
	p := newFakeProvider(1, acctA)
	s, store, binds := newTestSession(p)
	store.SetConnected()

	if err := s.SilentReconnect(context.Background()); err != nil {
		t.Fatalf("SilentReconnect: %v", err)
	}
	if p.switchCalls != 0 {
		t.Errorf("silent reconnect attempted %d switches, want 0", p.switchCalls)
	}
	snap := s.Snapshot()
	if snap.Status != StatusConnected || snap.CorrectNetwork {
		t.Errorf("want Connected(correctNetwork=false), got %s correct=%v", snap.Status, snap.CorrectNetwork)
	}
	if *binds != 0 {
		t.Error("binder should not run on wrong network")
	}
}

func TestSilentReconnectHappyPath(t *testing.T) {
	p := newFakeProvider(testChainID, acctA)
	s, store, _ := newTestSession(p)
	store.SetConnected()

	if err := s.SilentReconnect(context.Background()); err != nil {
		t.Fatalf("SilentReconnect: %v", err)
	}
	snap := s.Snapshot()
	if snap.Status != StatusConnected || !snap.CorrectNetwork || snap.Account != acctA {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.Version != "BlindBarter v1.0" {
		t.Errorf("version = %q", snap.Version)
	}
}

func TestDisconnectClearsEverything(t *testing.T) {
	p := newFakeProvider(testChainID, acctA)
	s, store, _ := newTestSession(p)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	s.Disconnect()

	snap := s.Snapshot()
	if snap.Status != StatusDisconnected || snap.HasAccount || snap.CorrectNetwork || snap.Version != "" {
		t.Errorf("fields not cleared: %+v", snap)
	}
	if s.Handle() != nil {
		t.Error("handle not cleared")
	}
	if store.WasConnected() {
		t.Error("flag not cleared")
	}

	// Safe from any state, including already disconnected.
	s.Disconnect()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestAccountsChangedEmptyDisconnects(t *testing.T) {
	p := newFakeProvider(testChainID, acctA)
	s, store, _ := newTestSession(p)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	s.Start()
	defer s.Stop()

	p.bus.Publish(Change{Kind: AccountsChanged, Accounts: nil})

	waitFor(t, func() bool { return s.Status() == StatusDisconnected })
	if store.WasConnected() {
		t.Error("flag should be cleared on revoked access")
	}
}

func TestAccountsChangedAdoptsFirstAccount(t *testing.T) {
	p := newFakeProvider(testChainID, acctA)
	s, _, _ := newTestSession(p)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	s.Start()
	defer s.Stop()

	p.mu.Lock()
	p.accounts = []common.Address{acctB}
	p.mu.Unlock()
	p.bus.Publish(Change{Kind: AccountsChanged, Accounts: []common.Address{acctB}})

	waitFor(t, func() bool {
		a, ok := s.Account()
		return ok && a == acctB
	})
}

func TestChainChangedResetsSession(t *testing.T) {
	p := newFakeProvider(testChainID, acctA)
	s, store, _ := newTestSession(p)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	s.Start()
	defer s.Stop()

	// Wallet hops to mainnet: binding invalid, session re-established on
	// the wrong network without prompting.
	p.mu.Lock()
	p.chainID = 1
	p.mu.Unlock()
	p.bus.Publish(Change{Kind: ChainChanged, ChainID: 1})

	waitFor(t, func() bool {
		snap := s.Snapshot()
		return snap.Status == StatusConnected && !snap.CorrectNetwork
	})
	if !store.WasConnected() {
		t.Error("chain change must keep the persisted flag")
	}
	if p.switchCalls != 0 {
		t.Error("reset after chain change must not auto-switch")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	p := newFakeProvider(testChainID, acctA)
	s, _, _ := newTestSession(p)

	s.Start()
	s.Start()
	if n := p.bus.SubscriberCount(AccountsChanged); n != 1 {
		t.Errorf("accountsChanged subscribers = %d, want 1", n)
	}
	if n := p.bus.SubscriberCount(ChainChanged); n != 1 {
		t.Errorf("chainChanged subscribers = %d, want 1", n)
	}

	s.Stop()
	if n := p.bus.SubscriberCount(AccountsChanged); n != 0 {
		t.Errorf("subscribers after Stop = %d, want 0", n)
	}

	// Repeated mount/unmount cycles never accumulate handlers.
	s.Start()
	s.Stop()
	s.Start()
	defer s.Stop()
	if n := p.bus.SubscriberCount(AccountsChanged); n != 1 {
		t.Errorf("subscribers after restart = %d, want 1", n)
	}
}
