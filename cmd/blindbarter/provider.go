package main

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/blindbarter/blindbarter/wallet"
)

// keyProvider adapts a key-file signer to the wallet.Provider boundary. A
// local key authorizes exactly one account and never prompts; chain identity
// comes from the RPC endpoint and cannot be switched from here. No change
// notifications ever fire: the account and endpoint are fixed for the
// process lifetime.
type keyProvider struct {
	client  *ethclient.Client
	account common.Address
	bus     *wallet.ChangeBus
}

func newKeyProvider(client *ethclient.Client, account common.Address) *keyProvider {
	return &keyProvider{
		client:  client,
		account: account,
		bus:     wallet.NewChangeBus(1),
	}
}

func (p *keyProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	return []common.Address{p.account}, nil
}

func (p *keyProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	return []common.Address{p.account}, nil
}

func (p *keyProvider) ChainID(ctx context.Context) (uint64, error) {
	id, err := p.client.ChainID(ctx)
	if err != nil {
		return 0, err
	}
	return id.Uint64(), nil
}

func (p *keyProvider) SwitchChain(ctx context.Context, chainID uint64) error {
	return errors.New("a key-file signer cannot switch chains; point --rpc at the right network")
}

func (p *keyProvider) Changes() *wallet.ChangeBus {
	return p.bus
}
