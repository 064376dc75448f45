// Package wallet owns the connection to the signing account: connect and
// silent-reconnect flows, the network-match check, the persisted
// "was connected" flag, and the reaction to account and chain change
// notifications from the wallet boundary.
package wallet

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ChangeKind identifies the kind of wallet change notification.
type ChangeKind string

const (
	// AccountsChanged fires when the authorized account list changes.
	// Data is []common.Address; an empty list means access was revoked.
	AccountsChanged ChangeKind = "wallet.accountsChanged"
	// ChainChanged fires when the connected chain changes. Data is the new
	// chain id as uint64. All cached contract bindings are invalid after it.
	ChainChanged ChangeKind = "wallet.chainChanged"
)

// Change is one notification delivered to subscribers.
type Change struct {
	Kind      ChangeKind
	Accounts  []common.Address // set for AccountsChanged
	ChainID   uint64           // set for ChainChanged
	Timestamp time.Time
}

// Subscription is a handle to a registration on the ChangeBus. It must be
// unsubscribed on teardown: the bus is a process-wide singleton and
// re-registering without deregistering leaks duplicate handlers.
type Subscription struct {
	id     uint64
	kinds  map[ChangeKind]struct{}
	ch     chan Change
	bus    *ChangeBus
	closed atomic.Bool
}

// Chan returns a read-only channel delivering matching changes.
func (s *Subscription) Chan() <-chan Change {
	return s.ch
}

// Unsubscribe removes this subscription from the bus and closes the
// underlying channel. Safe to call multiple times.
func (s *Subscription) Unsubscribe() {
	if s.bus != nil {
		s.bus.Unsubscribe(s)
	}
}

// ChangeBus fans wallet change notifications out to subscribers. Providers
// publish into it; sessions subscribe. All methods are safe for concurrent
// use.
type ChangeBus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
}

// NewChangeBus creates a bus whose subscription channels carry the given
// buffer (0 for unbuffered).
func NewChangeBus(buffer int) *ChangeBus {
	if buffer < 0 {
		buffer = 0
	}
	return &ChangeBus{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
	}
}

// Subscribe registers for the given change kinds.
func (b *ChangeBus) Subscribe(kinds ...ChangeKind) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	kindSet := make(map[ChangeKind]struct{}, len(kinds))
	for _, k := range kinds {
		kindSet[k] = struct{}{}
	}
	sub := &Subscription{
		id:    b.nextID,
		kinds: kindSet,
		ch:    make(chan Change, b.buffer),
		bus:   b,
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes sub from the bus and closes its channel. Safe to call
// multiple times or with nil.
func (b *ChangeBus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	// Close-once guard: concurrent Unsubscribe calls race on the channel.
	if !sub.closed.CompareAndSwap(false, true) {
		return
	}
	b.mu.Lock()
	delete(b.subs, sub.id)
	b.mu.Unlock()
	close(sub.ch)
}

// Publish delivers a change to every matching subscriber, dropping it for
// subscribers whose buffer is full (a stalled consumer must not wedge the
// provider's notification callback).
func (b *ChangeBus) Publish(c Change) {
	c.Timestamp = time.Now()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.closed.Load() {
			continue
		}
		if _, ok := sub.kinds[c.Kind]; ok {
			select {
			case sub.ch <- c:
			default:
			}
		}
	}
}

// SubscriberCount returns the number of live subscriptions for kind.
func (b *ChangeBus) SubscriberCount(kind ChangeKind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, sub := range b.subs {
		if sub.closed.Load() {
			continue
		}
		if _, ok := sub.kinds[kind]; ok {
			n++
		}
	}
	return n
}
