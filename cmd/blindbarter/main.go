// Command blindbarter is the command-line client for the BlindBarter
// contract: it creates barters, submits encrypted valuations, triggers the
// fairness computation, and reveals results the caller is entitled to see.
//
// Usage:
//
//	blindbarter [flags] <command> [args]
//
// Commands:
//
//	create <counterparty> <tolBps>   open a barter against counterparty
//	submit <id> <amount>             submit an encrypted valuation
//	submit-compute <id> <amount>     submit and, if second, compute fairness
//	compute <id>                     trigger the fairness computation
//	cancel <id>                      cancel a barter without a result
//	show <id>                        show a barter, revealing the result if possible
//	list                             list barters you participate in
//	version                          print client and contract versions
//
// Flags:
//
//	--datadir    Data directory path (default: ~/.blindbarter)
//	--contract   BlindBarter contract address (or BLINDBARTER_CONTRACT)
//	--rpc        JSON-RPC endpoint (default: Sepolia public RPC)
//	--relayer    Encryption relayer base URL
//	--key        Path to the hex-encoded signing key file
//	--verbosity  Log level: debug, info, warn, error (default: info)
package main

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/blindbarter/blindbarter/barter"
	"github.com/blindbarter/blindbarter/config"
	"github.com/blindbarter/blindbarter/contract"
	"github.com/blindbarter/blindbarter/fhe"
	"github.com/blindbarter/blindbarter/log"
	"github.com/blindbarter/blindbarter/wallet"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. Accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	opts, rest, exit, code := parseFlags(args)
	if exit {
		return code
	}
	if len(rest) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no command given (try --help)")
		return 2
	}
	command, cmdArgs := rest[0], rest[1:]

	logger := log.NewText(os.Stderr, log.LevelFromString(opts.cfg.LogLevel))
	log.SetDefault(logger)

	if err := opts.cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		return 1
	}

	// Commands are bounded by process lifetime; SIGINT abandons the local
	// wait, not any transaction already submitted.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := newApp(ctx, opts, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		return 1
	}
	defer app.close()

	if err := app.dispatch(ctx, command, cmdArgs); err != nil {
		logger.Error("command failed", "command", command, "err", err)
		return 1
	}
	return 0
}

// app wires the client stack for one invocation: RPC backend, contract
// binding, wallet session, encryption engine, and the coordinator on top.
type app struct {
	cfg     config.Config
	logger  *log.Logger
	client  *ethclient.Client
	binding *contract.Binding
	session *wallet.Session
	engine  *fhe.Engine
	coord   *barter.Coordinator
}

func newApp(ctx context.Context, opts cliOptions, logger *log.Logger) (*app, error) {
	client, err := ethclient.DialContext(ctx, opts.cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.cfg.RPCURL, err)
	}

	key, err := crypto.LoadECDSA(opts.keyPath)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("load signing key %s: %w", opts.keyPath, err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	backend := newRPCBackend(client, key, new(big.Int).SetUint64(opts.cfg.ChainID), logger)
	binding := contract.NewBinding(opts.cfg.ContractAddress, from, backend, logger)

	provider := newKeyProvider(client, from)
	store := wallet.NewFileStore(opts.cfg.DataDir)
	session := wallet.NewSession(provider, store,
		func(common.Address) (wallet.ContractHandle, error) { return binding, nil },
		opts.cfg.ChainID, logger)

	if err := session.Connect(ctx); err != nil {
		client.Close()
		return nil, err
	}
	if !session.CorrectNetwork() {
		client.Close()
		return nil, fmt.Errorf("rpc endpoint is on the wrong chain (need %d); a key-file signer cannot switch, point --rpc at the right network", opts.cfg.ChainID)
	}

	initTimeout, keysetTimeout := opts.cfg.EngineTimeouts()
	engine := fhe.NewEngine(
		fhe.NetworkConfig{
			ChainID:    opts.cfg.ChainID,
			RelayerURL: opts.cfg.RelayerURL,
			KMSKeyURL:  opts.cfg.KMSKeyURL,
			CRSURL:     opts.cfg.CRSURL,
		},
		fhe.NewHTTPKeysetLoader(opts.cfg.KMSKeyURL, opts.cfg.CRSURL, logger),
		fhe.NewRelayerFactory(http.DefaultClient, logger),
		fhe.EngineOptions{
			InitTimeout:   initTimeout,
			KeysetTimeout: keysetTimeout,
			Logger:        logger,
		},
	)

	return &app{
		cfg:     opts.cfg,
		logger:  logger,
		client:  client,
		binding: binding,
		session: session,
		engine:  engine,
		coord:   barter.NewCoordinator(binding, engine, logger),
	}, nil
}

func (a *app) close() {
	a.engine.Close()
	a.client.Close()
}

func (a *app) dispatch(ctx context.Context, command string, args []string) error {
	switch command {
	case "create":
		return a.cmdCreate(ctx, args)
	case "submit":
		return a.cmdSubmit(ctx, args, false)
	case "submit-compute":
		return a.cmdSubmit(ctx, args, true)
	case "compute":
		return a.cmdCompute(ctx, args)
	case "cancel":
		return a.cmdCancel(ctx, args)
	case "show":
		return a.cmdShow(ctx, args)
	case "list":
		return a.cmdList(ctx, args)
	case "version":
		return a.cmdVersion(ctx)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) cmdCreate(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: create <counterparty> <tolBps>")
	}
	if !fhe.IsValidAddress(args[0]) {
		return fmt.Errorf("counterparty %q is not a hex address", args[0])
	}
	tolBps, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("tolBps %q is not an integer", args[1])
	}
	id, err := a.coord.Create(ctx, common.HexToAddress(args[0]), tolBps)
	if err != nil {
		return err
	}
	fmt.Printf("barter %s created (tolerance %s)\n", id, fhe.BpsToPercentage(uint16(tolBps)))
	return nil
}

func (a *app) cmdSubmit(ctx context.Context, args []string, andCompute bool) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: submit <id> <amount>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	// Validate before the engine cold-start so typos fail in milliseconds.
	if _, err := fhe.ParseValuation(args[1]); err != nil {
		return err
	}
	if err := a.initEngine(ctx); err != nil {
		return err
	}
	if andCompute {
		err = a.coord.SubmitAndCompute(ctx, id, args[1])
	} else {
		err = a.coord.Submit(ctx, id, args[1])
	}
	if err != nil {
		return err
	}
	fmt.Printf("valuation submitted for barter %s\n", id)
	return nil
}

func (a *app) cmdCompute(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: compute <id>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := a.coord.Compute(ctx, id); err != nil {
		return err
	}
	fmt.Printf("fairness computation triggered for barter %s\n", id)
	return nil
}

func (a *app) cmdCancel(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: cancel <id>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := a.coord.Cancel(ctx, id); err != nil {
		return err
	}
	fmt.Printf("barter %s canceled\n", id)
	return nil
}

func (a *app) cmdShow(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: show <id>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	// The engine is only needed to reveal a computed result; a failed
	// cold-start degrades to showing the barter without it.
	if err := a.initEngine(ctx); err != nil {
		a.logger.Warn("engine unavailable, result will stay unrevealed", "err", err)
	}
	view, err := a.coord.Refresh(ctx, id)
	if err != nil {
		return err
	}
	printView(view)
	return nil
}

func (a *app) cmdList(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: list")
	}
	views, err := a.coord.List(ctx)
	if err != nil {
		return err
	}
	if len(views) == 0 {
		fmt.Println("no barters")
		return nil
	}
	for _, v := range views {
		fmt.Printf("barter %s: %s vs %s, tolerance %s, %s\n",
			v.ID, v.Info.PartyA, v.Info.PartyB,
			fhe.BpsToPercentage(v.Info.TolBps), v.Status())
	}
	return nil
}

func (a *app) cmdVersion(ctx context.Context) error {
	fmt.Printf("blindbarter %s (%s)\n", version, commit)
	if v := a.session.Version(); v != "" {
		fmt.Printf("contract: %s\n", v)
	} else if v, err := a.binding.Version(ctx); err == nil {
		fmt.Printf("contract: %s\n", v)
	}
	return nil
}

// initEngine runs the engine cold-start: key material download plus
// instance construction, bounded by the configured timeouts.
func (a *app) initEngine(ctx context.Context) error {
	a.logger.Info("initializing encryption engine")
	return a.engine.Initialize(ctx)
}

func parseID(s string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(s, 10)
	if !ok || id.Sign() <= 0 {
		return nil, fmt.Errorf("barter id %q is not a positive integer", s)
	}
	return id, nil
}

func printView(v *barter.View) {
	fmt.Printf("barter %s\n", v.ID)
	fmt.Printf("  party A:    %s (submitted: %t)\n", v.Info.PartyA, v.Info.HasA)
	fmt.Printf("  party B:    %s (submitted: %t)\n", v.Info.PartyB, v.Info.HasB)
	fmt.Printf("  tolerance:  %s\n", fhe.BpsToPercentage(v.Info.TolBps))
	fmt.Printf("  status:     %s\n", v.Status())
	if v.Result != nil {
		outcome := "NOT FAIR"
		if *v.Result {
			outcome = "FAIR"
		}
		fmt.Printf("  result:     %s\n", outcome)
	} else if v.Info.HasResult {
		fmt.Printf("  result:     computed, not yet viewable\n")
	}
}
