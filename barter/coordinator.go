// Package barter orchestrates the per-barter protocol end to end: create,
// submit an encrypted valuation, trigger the fairness computation, cancel,
// and reconcile the local view against the authoritative on-chain state.
// It owns the error taxonomy the UI surfaces and the dry-run gate that
// keeps rejected proofs from costing gas.
package barter

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/blindbarter/blindbarter/contract"
	"github.com/blindbarter/blindbarter/fhe"
	"github.com/blindbarter/blindbarter/log"
)

// Contract is the slice of the BlindBarter binding the coordinator drives.
// *contract.Binding satisfies it; tests substitute an in-memory fake.
type Contract interface {
	Address() common.Address
	Sender() common.Address
	BarterCount(ctx context.Context) (*big.Int, error)
	GetBarterInfo(ctx context.Context, id *big.Int) (*contract.BarterInfo, error)
	GetResultHandle(ctx context.Context, id *big.Int) ([32]byte, error)
	CreateBarter(ctx context.Context, counterparty common.Address, tolBps uint16) (*types.Receipt, error)
	ParseBarterCreated(logs []*types.Log) (*contract.CreatedEvent, bool)
	SubmitValuation(ctx context.Context, id *big.Int, valExt [32]byte, proof []byte) (*types.Receipt, error)
	DryRunSubmitValuation(ctx context.Context, id *big.Int, valExt [32]byte, proof []byte) error
	SubmitAndCompute(ctx context.Context, id *big.Int, valExt [32]byte, proof []byte) (*types.Receipt, error)
	DryRunSubmitAndCompute(ctx context.Context, id *big.Int, valExt [32]byte, proof []byte) error
	ComputeFairness(ctx context.Context, id *big.Int) (*types.Receipt, error)
	Cancel(ctx context.Context, id *big.Int) (*types.Receipt, error)
}

// Engine is the encryption surface the coordinator needs: fresh bound
// inputs for submissions and boolean decryption for revealed results.
// *fhe.Engine satisfies it.
type Engine interface {
	CreateEncryptedInput(contract, user common.Address) (*fhe.EncryptedInput, error)
	DecryptBool(ctx context.Context, handle string, contract common.Address) (bool, error)
}

// Coordinator drives the barter lifecycle for one account against one
// deployed contract. It holds no barter state of its own: every decision is
// made against a fresh read of the chain.
type Coordinator struct {
	contract Contract
	engine   Engine
	logger   *log.Logger
}

// NewCoordinator creates a coordinator over the given contract binding and
// encryption engine.
func NewCoordinator(c Contract, e Engine, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	return &Coordinator{
		contract: c,
		engine:   e,
		logger:   logger.Module("barter"),
	}
}

// Create opens a new barter against counterparty with the given tolerance
// and returns the id the contract assigned. Self-barters and out-of-range
// tolerances are rejected locally before any transaction is sent. A
// confirmed creation whose receipt lacks the creation event is surfaced as
// ErrCreationEventMissing rather than resolved to a guessed id.
func (c *Coordinator) Create(ctx context.Context, counterparty common.Address, tolBps int) (*big.Int, error) {
	if counterparty == (common.Address{}) {
		return nil, ErrBadCounterparty
	}
	if counterparty == c.contract.Sender() {
		return nil, ErrSelfBarter
	}
	if !fhe.IsValidToleranceBps(tolBps) {
		return nil, fmt.Errorf("%w: got %d", ErrToleranceRange, tolBps)
	}

	receipt, err := c.contract.CreateBarter(ctx, counterparty, uint16(tolBps))
	if err != nil {
		return nil, classifySend(err)
	}
	ev, ok := c.contract.ParseBarterCreated(receipt.Logs)
	if !ok {
		return nil, fmt.Errorf("%w (tx %s)", ErrCreationEventMissing, receipt.TxHash)
	}
	c.logger.Info("barter created",
		"id", ev.ID, "counterparty", counterparty, "tolBps", tolBps)
	return ev.ID, nil
}

// Submit runs the full valuation pipeline for barter id: parse the text
// amount, encrypt it bound to (contract, caller), dry-run the submission
// against current chain state, and only then send the real transaction.
// Parse and engine failures never reach the network.
func (c *Coordinator) Submit(ctx context.Context, id *big.Int, text string) error {
	return c.submit(ctx, id, text, false)
}

// SubmitAndCompute is Submit through the combined entrypoint: when this is
// the second valuation, the fairness computation triggers in the same
// transaction, saving the separate compute call.
func (c *Coordinator) SubmitAndCompute(ctx context.Context, id *big.Int, text string) error {
	return c.submit(ctx, id, text, true)
}

func (c *Coordinator) submit(ctx context.Context, id *big.Int, text string, andCompute bool) error {
	amount, err := fhe.ParseValuation(text)
	if err != nil {
		return err
	}

	input, err := c.engine.CreateEncryptedInput(c.contract.Address(), c.contract.Sender())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	val, err := fhe.EncryptOne(ctx, input, amount)
	if err != nil {
		return fmt.Errorf("barter: encrypt valuation: %w", err)
	}
	valExt, err := contract.Bytes32FromHex(val.Handle)
	if err != nil {
		return fmt.Errorf("barter: encrypt produced unusable handle: %w", err)
	}
	proof := common.FromHex(val.Proof)

	dryRun := c.contract.DryRunSubmitValuation
	send := c.contract.SubmitValuation
	if andCompute {
		dryRun = c.contract.DryRunSubmitAndCompute
		send = c.contract.SubmitAndCompute
	}
	if err := dryRun(ctx, id, valExt, proof); err != nil {
		c.logger.Warn("submission rejected in simulation", "id", id, "err", err)
		return classifyDryRun(err)
	}
	if _, err := send(ctx, id, valExt, proof); err != nil {
		return classifySend(err)
	}
	c.logger.Info("valuation submitted", "id", id, "andCompute", andCompute)
	return nil
}

// Compute triggers the homomorphic fairness comparison for barter id. It is
// gated on both valuations being in and no result existing yet; the remote
// program decides the outcome autonomously.
func (c *Coordinator) Compute(ctx context.Context, id *big.Int) error {
	view, err := c.view(ctx, id)
	if err != nil {
		return err
	}
	if !view.CanCompute() {
		return fmt.Errorf("%w (status %s, hasA=%t hasB=%t)",
			ErrNotComputable, view.Status(), view.Info.HasA, view.Info.HasB)
	}
	if _, err := c.contract.ComputeFairness(ctx, id); err != nil {
		return classifySend(err)
	}
	c.logger.Info("fairness computation triggered", "id", id)
	return nil
}

// Cancel cancels barter id. Computed and already-canceled barters are
// rejected locally; if a race slips past the gate the contract rejects the
// call and the revert propagates.
func (c *Coordinator) Cancel(ctx context.Context, id *big.Int) error {
	view, err := c.view(ctx, id)
	if err != nil {
		return err
	}
	if !view.CanCancel() {
		return fmt.Errorf("%w (status %s)", ErrNotCancelable, view.Status())
	}
	if _, err := c.contract.Cancel(ctx, id); err != nil {
		return classifySend(err)
	}
	c.logger.Info("barter canceled", "id", id)
	return nil
}

// Refresh re-reads barter id from the chain. When a result exists and the
// caller is a participant, it attempts to decrypt the result handle; a
// decrypt failure is logged and leaves Result nil (the result stays "not
// yet viewable"), it never fails the refresh itself.
func (c *Coordinator) Refresh(ctx context.Context, id *big.Int) (*View, error) {
	view, err := c.view(ctx, id)
	if err != nil {
		return nil, err
	}
	if !view.Info.HasResult || !view.Participates(c.contract.Sender()) {
		return view, nil
	}

	handle, err := c.contract.GetResultHandle(ctx, id)
	if err != nil {
		c.logger.Warn("result handle unavailable", "id", id, "err", err)
		return view, nil
	}
	fair, err := c.engine.DecryptBool(ctx, fhe.EncodeHex(handle[:]), c.contract.Address())
	if err != nil {
		c.logger.Warn("result not yet viewable", "id", id, "err", err)
		return view, nil
	}
	view.Result = &fair
	return view, nil
}

// List returns the barters the caller participates in, scanning ids
// 1..barterCount. Ids are assigned sequentially and never reused, so the
// scan is exhaustive. Results are not decrypted here; use Refresh on a
// specific barter for that.
func (c *Coordinator) List(ctx context.Context) ([]*View, error) {
	count, err := c.contract.BarterCount(ctx)
	if err != nil {
		return nil, err
	}
	me := c.contract.Sender()
	var out []*View
	one := big.NewInt(1)
	for id := big.NewInt(1); id.Cmp(count) <= 0; id = new(big.Int).Add(id, one) {
		view, err := c.view(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("barter: reading barter %s: %w", id, err)
		}
		if view.Participates(me) {
			out = append(out, view)
		}
	}
	return out, nil
}

func (c *Coordinator) view(ctx context.Context, id *big.Int) (*View, error) {
	info, err := c.contract.GetBarterInfo(ctx, id)
	if err != nil {
		return nil, err
	}
	return &View{ID: new(big.Int).Set(id), Info: *info}, nil
}
