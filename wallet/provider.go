package wallet

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// Provider is the wallet boundary: account authorization, chain queries,
// the chain-switch request, and the change notification bus. A browser
// wallet, a hardware signer shim, or a test fake all sit behind it.
type Provider interface {
	// RequestAccounts prompts the user for account authorization and
	// returns the authorized accounts.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// Accounts returns the currently authorized accounts without
	// prompting. Silent reconnection relies on this never raising a UI.
	Accounts(ctx context.Context) ([]common.Address, error)
	// ChainID returns the chain the wallet is currently connected to.
	ChainID(ctx context.Context) (uint64, error)
	// SwitchChain asks the wallet to switch to the given chain. The user
	// may decline; callers must treat failure as non-fatal.
	SwitchChain(ctx context.Context, chainID uint64) error
	// Changes returns the bus carrying account and chain change
	// notifications for this provider's lifetime.
	Changes() *ChangeBus
}

// ErrNoAccounts is returned when authorization yields an empty account list.
var ErrNoAccounts = errors.New("wallet: no accounts authorized")
