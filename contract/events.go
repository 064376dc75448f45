package contract

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// CreatedEvent is the decoded BarterCreated event.
type CreatedEvent struct {
	ID     *big.Int
	PartyA common.Address
	PartyB common.Address
}

// SubmittedEvent is the decoded ValuationSubmitted event.
type SubmittedEvent struct {
	ID    *big.Int
	Party common.Address
}

// ParseBarterCreated scans receipt logs for the BarterCreated event emitted
// by the bound contract and returns the decoded event. A confirmed create
// transaction without this event is a remote inconsistency the caller must
// surface, so absence is reported explicitly via ok=false rather than a
// default id.
func (b *Binding) ParseBarterCreated(logs []*types.Log) (*CreatedEvent, bool) {
	topic := parsedABI.Events["BarterCreated"].ID
	for _, lg := range logs {
		if lg.Address != b.address || len(lg.Topics) < 4 || lg.Topics[0] != topic {
			continue
		}
		return &CreatedEvent{
			ID:     new(big.Int).SetBytes(lg.Topics[1].Bytes()),
			PartyA: common.BytesToAddress(lg.Topics[2].Bytes()),
			PartyB: common.BytesToAddress(lg.Topics[3].Bytes()),
		}, true
	}
	return nil, false
}

// ParseValuationSubmitted scans logs for ValuationSubmitted events emitted
// by the bound contract.
func (b *Binding) ParseValuationSubmitted(logs []*types.Log) []SubmittedEvent {
	topic := parsedABI.Events["ValuationSubmitted"].ID
	var out []SubmittedEvent
	for _, lg := range logs {
		if lg.Address != b.address || len(lg.Topics) < 3 || lg.Topics[0] != topic {
			continue
		}
		out = append(out, SubmittedEvent{
			ID:    new(big.Int).SetBytes(lg.Topics[1].Bytes()),
			Party: common.BytesToAddress(lg.Topics[2].Bytes()),
		})
	}
	return out
}
