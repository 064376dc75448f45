package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/blindbarter/blindbarter/log"
)

var (
	// ErrReverted is returned when a confirmed transaction's receipt
	// carries a failure status.
	ErrReverted = errors.New("contract: transaction reverted")
	// ErrBadHandle is returned for handle strings that are not exactly 32
	// bytes of hex.
	ErrBadHandle = errors.New("contract: handle is not 32 bytes")
)

// Backend is the narrow chain interface the binding needs: read-only calls,
// raw transaction submission, and confirmation waits. The CLI implements it
// over ethclient; tests implement it in memory.
type Backend interface {
	// CallContract executes a read-only call against current state.
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	// SendTransaction signs and submits a call with the given payload to
	// the given address, returning the transaction hash.
	SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
	// WaitMined blocks until the transaction is confirmed.
	WaitMined(ctx context.Context, tx common.Hash) (*types.Receipt, error)
}

// BarterInfo is the authoritative remote state of one barter, as returned
// by getBarterInfo.
type BarterInfo struct {
	PartyA    common.Address
	PartyB    common.Address
	TolBps    uint16
	HasA      bool
	HasB      bool
	HasResult bool
	Canceled  bool
}

// Binding is a read/write handle to one deployed BlindBarter contract,
// acting for one sender address. It is rebuilt whenever the account or
// network changes.
type Binding struct {
	address common.Address
	sender  common.Address
	backend Backend
	logger  *log.Logger
}

// NewBinding creates a handle to the contract at address, issuing calls
// from sender.
func NewBinding(address, sender common.Address, backend Backend, logger *log.Logger) *Binding {
	if logger == nil {
		logger = log.Default()
	}
	return &Binding{
		address: address,
		sender:  sender,
		backend: backend,
		logger:  logger.Module("contract"),
	}
}

// Address returns the bound contract address.
func (b *Binding) Address() common.Address { return b.address }

// Sender returns the account the binding acts for.
func (b *Binding) Sender() common.Address { return b.sender }

// call packs a read-only method call, executes it, and unpacks the outputs.
func (b *Binding) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := parsedABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("contract: pack %s: %w", method, err)
	}
	out, err := b.backend.CallContract(ctx, ethereum.CallMsg{
		From: b.sender,
		To:   &b.address,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("contract: call %s: %w", method, err)
	}
	vals, err := parsedABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("contract: unpack %s: %w", method, err)
	}
	return vals, nil
}

// transact packs a state-changing call, submits it, and waits for the
// receipt, failing on a reverted status.
func (b *Binding) transact(ctx context.Context, method string, args ...any) (*types.Receipt, error) {
	data, err := parsedABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("contract: pack %s: %w", method, err)
	}
	txHash, err := b.backend.SendTransaction(ctx, b.address, data)
	if err != nil {
		return nil, fmt.Errorf("contract: send %s: %w", method, err)
	}
	b.logger.Info("transaction sent", "method", method, "tx", txHash)
	receipt, err := b.backend.WaitMined(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("contract: wait %s: %w", method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s (tx %s)", ErrReverted, method, txHash)
	}
	return receipt, nil
}

// Version returns the contract's version string.
func (b *Binding) Version(ctx context.Context) (string, error) {
	vals, err := b.call(ctx, "version")
	if err != nil {
		return "", err
	}
	v, ok := vals[0].(string)
	if !ok {
		return "", fmt.Errorf("contract: version returned %T", vals[0])
	}
	return v, nil
}

// BarterCount returns the total number of barters ever created.
func (b *Binding) BarterCount(ctx context.Context) (*big.Int, error) {
	vals, err := b.call(ctx, "barterCount")
	if err != nil {
		return nil, err
	}
	n, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("contract: barterCount returned %T", vals[0])
	}
	return n, nil
}

// MaxTolBps returns the contract's tolerance ceiling.
func (b *Binding) MaxTolBps(ctx context.Context) (uint16, error) {
	vals, err := b.call(ctx, "MAX_TOL_BPS")
	if err != nil {
		return 0, err
	}
	v, ok := vals[0].(uint16)
	if !ok {
		return 0, fmt.Errorf("contract: MAX_TOL_BPS returned %T", vals[0])
	}
	return v, nil
}

// OneBps returns the contract's basis-point unit constant.
func (b *Binding) OneBps(ctx context.Context) (uint64, error) {
	vals, err := b.call(ctx, "ONE_BPS")
	if err != nil {
		return 0, err
	}
	v, ok := vals[0].(uint64)
	if !ok {
		return 0, fmt.Errorf("contract: ONE_BPS returned %T", vals[0])
	}
	return v, nil
}

// GetBarterInfo reads the authoritative state of barter id.
func (b *Binding) GetBarterInfo(ctx context.Context, id *big.Int) (*BarterInfo, error) {
	vals, err := b.call(ctx, "getBarterInfo", id)
	if err != nil {
		return nil, err
	}
	if len(vals) != 7 {
		return nil, fmt.Errorf("contract: getBarterInfo returned %d values", len(vals))
	}
	info := &BarterInfo{}
	var ok bool
	if info.PartyA, ok = vals[0].(common.Address); !ok {
		return nil, fmt.Errorf("contract: partyA has type %T", vals[0])
	}
	if info.PartyB, ok = vals[1].(common.Address); !ok {
		return nil, fmt.Errorf("contract: partyB has type %T", vals[1])
	}
	if info.TolBps, ok = vals[2].(uint16); !ok {
		return nil, fmt.Errorf("contract: tolBps has type %T", vals[2])
	}
	for i, dst := range []*bool{&info.HasA, &info.HasB, &info.HasResult, &info.Canceled} {
		v, ok := vals[3+i].(bool)
		if !ok {
			return nil, fmt.Errorf("contract: flag %d has type %T", i, vals[3+i])
		}
		*dst = v
	}
	return info, nil
}

// GetResultHandle reads the encrypted fairness result handle for barter id.
func (b *Binding) GetResultHandle(ctx context.Context, id *big.Int) ([32]byte, error) {
	vals, err := b.call(ctx, "getResultHandle", id)
	if err != nil {
		return [32]byte{}, err
	}
	h, ok := vals[0].([32]byte)
	if !ok {
		return [32]byte{}, fmt.Errorf("contract: getResultHandle returned %T", vals[0])
	}
	return h, nil
}

// CreateBarter creates a barter against counterparty with the given
// tolerance and returns the confirmed receipt; the assigned id is carried
// by the BarterCreated event in the receipt's logs.
func (b *Binding) CreateBarter(ctx context.Context, counterparty common.Address, tolBps uint16) (*types.Receipt, error) {
	return b.transact(ctx, "createBarter", counterparty, tolBps)
}

// SubmitValuation submits an encrypted valuation for barter id.
func (b *Binding) SubmitValuation(ctx context.Context, id *big.Int, valExt [32]byte, proof []byte) (*types.Receipt, error) {
	return b.transact(ctx, "submitValuation", id, valExt, proof)
}

// DryRunSubmitValuation simulates submitValuation against current state
// without spending gas. Proof and ciphertext binding failures surface here
// as call errors instead of on-chain reverts.
func (b *Binding) DryRunSubmitValuation(ctx context.Context, id *big.Int, valExt [32]byte, proof []byte) error {
	return b.dryRun(ctx, "submitValuation", id, valExt, proof)
}

// SubmitAndCompute submits a valuation and, when it is the second one,
// triggers the fairness computation in the same transaction.
func (b *Binding) SubmitAndCompute(ctx context.Context, id *big.Int, valExt [32]byte, proof []byte) (*types.Receipt, error) {
	return b.transact(ctx, "submitAndCompute", id, valExt, proof)
}

// DryRunSubmitAndCompute simulates submitAndCompute without spending gas.
func (b *Binding) DryRunSubmitAndCompute(ctx context.Context, id *big.Int, valExt [32]byte, proof []byte) error {
	return b.dryRun(ctx, "submitAndCompute", id, valExt, proof)
}

func (b *Binding) dryRun(ctx context.Context, method string, args ...any) error {
	data, err := parsedABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("contract: pack %s: %w", method, err)
	}
	_, err = b.backend.CallContract(ctx, ethereum.CallMsg{
		From: b.sender,
		To:   &b.address,
		Data: data,
	}, nil)
	return err
}

// ComputeFairness triggers the homomorphic comparison for barter id. The
// remote program decides the result; the client only triggers it.
func (b *Binding) ComputeFairness(ctx context.Context, id *big.Int) (*types.Receipt, error) {
	return b.transact(ctx, "computeFairness", id)
}

// Cancel cancels barter id.
func (b *Binding) Cancel(ctx context.Context, id *big.Int) (*types.Receipt, error) {
	return b.transact(ctx, "cancel", id)
}

// Bytes32FromHex converts a 0x-prefixed 32-byte hex handle to its wire
// form.
func Bytes32FromHex(s string) ([32]byte, error) {
	var out [32]byte
	raw := common.FromHex(s)
	if len(raw) != 32 {
		return out, fmt.Errorf("%w: %q decodes to %d bytes", ErrBadHandle, s, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
