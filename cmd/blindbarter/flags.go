package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"

	"github.com/blindbarter/blindbarter/config"
)

// cliOptions is the resolved global configuration for one invocation:
// environment (including .env) first, flags override.
type cliOptions struct {
	cfg     config.Config
	keyPath string
}

// parseFlags parses the global flags ahead of the subcommand. Returns the
// options, the remaining arguments (subcommand + args), whether the caller
// should exit immediately, and the exit code.
func parseFlags(args []string) (cliOptions, []string, bool, int) {
	var opts cliOptions

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return opts, nil, true, 2
	}

	fs := flag.NewFlagSet("blindbarter", flag.ContinueOnError)
	fs.StringVar(&cfg.DataDir, "datadir", cfg.DataDir, "data directory path")
	contractAddr := fs.String("contract", "", "BlindBarter contract address")
	fs.StringVar(&cfg.RPCURL, "rpc", cfg.RPCURL, "JSON-RPC endpoint")
	fs.StringVar(&cfg.RelayerURL, "relayer", cfg.RelayerURL, "encryption relayer base URL")
	fs.StringVar(&opts.keyPath, "key", "", "path to the hex-encoded signing key file")
	fs.StringVar(&cfg.LogLevel, "verbosity", cfg.LogLevel, "log level: debug, info, warn, error")
	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return opts, nil, true, 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return opts, nil, true, 2
	}
	if *showVersion {
		fmt.Printf("blindbarter %s (%s)\n", version, commit)
		return opts, nil, true, 0
	}

	if *contractAddr != "" {
		if !common.IsHexAddress(*contractAddr) {
			fmt.Fprintf(os.Stderr, "Error: --contract %q is not a hex address\n", *contractAddr)
			return opts, nil, true, 2
		}
		cfg.ContractAddress = common.HexToAddress(*contractAddr)
	}
	if opts.keyPath == "" {
		opts.keyPath = filepath.Join(cfg.DataDir, "signer.key")
	}

	opts.cfg = cfg
	return opts, fs.Args(), false, 0
}
