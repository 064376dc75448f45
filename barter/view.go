package barter

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/blindbarter/blindbarter/contract"
)

// View is a read-through snapshot of one barter. The remote program is the
// source of truth; a View is rebuilt on every refresh and never mutated in
// place. Result is the revealed fairness outcome, nil until the viewer has
// successfully decrypted it.
type View struct {
	ID     *big.Int
	Info   contract.BarterInfo
	Result *bool
}

// IsPartyA reports whether addr created the barter.
func (v *View) IsPartyA(addr common.Address) bool { return v.Info.PartyA == addr }

// IsPartyB reports whether addr is the counterparty.
func (v *View) IsPartyB(addr common.Address) bool { return v.Info.PartyB == addr }

// Participates reports whether addr is one of the two parties.
func (v *View) Participates(addr common.Address) bool {
	return v.IsPartyA(addr) || v.IsPartyB(addr)
}

// HasSubmitted reports whether addr's valuation is already in. Each party
// submits at most once.
func (v *View) HasSubmitted(addr common.Address) bool {
	return (v.IsPartyA(addr) && v.Info.HasA) || (v.IsPartyB(addr) && v.Info.HasB)
}

// CanSubmit reports whether the barter still accepts valuations.
func (v *View) CanSubmit() bool {
	return !v.Info.Canceled && !v.Info.HasResult
}

// CanCompute reports whether the fairness comparison can be triggered: both
// valuations in, no result yet.
func (v *View) CanCompute() bool {
	return v.Info.HasA && v.Info.HasB && !v.Info.HasResult && !v.Info.Canceled
}

// CanCancel reports whether the barter can still be canceled. Computed and
// Canceled are terminal.
func (v *View) CanCancel() bool {
	return !v.Info.HasResult && !v.Info.Canceled
}

// Status renders the lifecycle phase for display.
func (v *View) Status() string {
	switch {
	case v.Info.Canceled:
		return "canceled"
	case v.Info.HasResult:
		return "computed"
	case v.Info.HasA && v.Info.HasB:
		return "ready to compute"
	default:
		return "awaiting valuations"
	}
}

// FairWithin is the published fairness predicate the remote program
// evaluates homomorphically: |a-b| * 10000 <= tolBps * min(a, b). It exists
// only as a local preview over plaintext values the caller already knows;
// the authoritative result always comes from the chain. The products exceed
// 64 bits for large valuations, so the comparison runs over 256-bit words.
func FairWithin(a, b uint64, tolBps uint16) bool {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	diff := uint256.NewInt(hi - lo)
	diff.Mul(diff, uint256.NewInt(10000))
	bound := uint256.NewInt(lo)
	bound.Mul(bound, uint256.NewInt(uint64(tolBps)))
	return diff.Cmp(bound) <= 0
}
