package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/blindbarter/blindbarter/log"
)

// receiptPollInterval is how often WaitMined re-queries for a receipt.
// Sepolia block time is 12s; polling faster only loads the RPC.
const receiptPollInterval = 3 * time.Second

// rpcBackend implements contract.Backend over a JSON-RPC client with a
// local key-file signer. Transactions are signed here and submitted raw;
// gas is estimated per call with headroom for state drift between the
// estimate and inclusion.
type rpcBackend struct {
	client  *ethclient.Client
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	logger  *log.Logger
}

func newRPCBackend(client *ethclient.Client, key *ecdsa.PrivateKey, chainID *big.Int, logger *log.Logger) *rpcBackend {
	if logger == nil {
		logger = log.Default()
	}
	return &rpcBackend{
		client:  client,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		logger:  logger.Module("rpc"),
	}
}

func (b *rpcBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return b.client.CallContract(ctx, call, blockNumber)
}

func (b *rpcBackend) SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	nonce, err := b.client.PendingNonceAt(ctx, b.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce query: %w", err)
	}
	gasPrice, err := b.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas price query: %w", err)
	}
	gas, err := b.client.EstimateGas(ctx, ethereum.CallMsg{
		From: b.from,
		To:   &to,
		Data: data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas estimate: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      gas + gas/5,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(b.chainID), b.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign: %w", err)
	}
	if err := b.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	b.logger.Debug("transaction submitted",
		"hash", signed.Hash(), "nonce", nonce, "gas", signed.Gas())
	return signed.Hash(), nil
}

// WaitMined polls for the receipt until the transaction is included or ctx
// expires. Submitted transactions cannot be canceled locally; cancellation
// only abandons the wait.
func (b *rpcBackend) WaitMined(ctx context.Context, tx common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()
	for {
		receipt, err := b.client.TransactionReceipt(ctx, tx)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("receipt query for %s: %w", tx, err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("abandoned wait for %s: %w", tx, ctx.Err())
		}
	}
}
