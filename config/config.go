// Package config holds all configuration for the blindbarter client: the
// supported chain, the deployed contract, and the key-management/relayer
// endpoints the encryption engine trusts.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SepoliaChainID is the only chain identifier the client accepts.
const SepoliaChainID uint64 = 11155111

// Config holds all configuration for a blindbarter client instance.
type Config struct {
	// DataDir is the root directory for local state (connection flag).
	DataDir string

	// ChainID is the chain identifier the client requires. Connections to
	// any other chain are reported as a network mismatch.
	ChainID uint64

	// ContractAddress is the deployed BlindBarter contract.
	ContractAddress common.Address

	// RPCURL is the JSON-RPC endpoint used by the CLI backend.
	RPCURL string

	// RelayerURL is the encryption relayer (input proofs, user decryption).
	RelayerURL string

	// KMSKeyURL and CRSURL serve the binary key material the engine loads
	// during phase one of initialization.
	KMSKeyURL string
	CRSURL    string

	// InitTimeout bounds the whole engine initialization. KeysetTimeout
	// bounds only the key-material download and must be strictly shorter
	// so a slow network surfaces as a keyset error, not a generic timeout.
	InitTimeout   time.Duration
	KeysetTimeout time.Duration

	// LogLevel controls log verbosity (debug, info, warn, error).
	LogLevel string
}

// DefaultConfig returns a Config with sensible defaults for Sepolia.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		DataDir:       filepath.Join(home, ".blindbarter"),
		ChainID:       SepoliaChainID,
		RPCURL:        "https://rpc.sepolia.org",
		RelayerURL:    "https://relayer.testnet.zama.cloud",
		KMSKeyURL:     "https://relayer.testnet.zama.cloud/keys/server-key",
		CRSURL:        "https://relayer.testnet.zama.cloud/keys/crs",
		InitTimeout:   60 * time.Second,
		KeysetTimeout: 45 * time.Second,
		LogLevel:      "info",
	}
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("config: datadir must not be empty")
	}
	if c.ChainID == 0 {
		return errors.New("config: chain id must not be zero")
	}
	if c.ContractAddress == (common.Address{}) {
		return errors.New("config: contract address not set")
	}
	for _, ep := range []struct {
		name, raw string
	}{
		{"rpc url", c.RPCURL},
		{"relayer url", c.RelayerURL},
		{"kms key url", c.KMSKeyURL},
		{"crs url", c.CRSURL},
	} {
		u, err := url.Parse(ep.raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: invalid %s %q", ep.name, ep.raw)
		}
	}
	if c.InitTimeout <= 0 {
		return fmt.Errorf("config: invalid init timeout %v", c.InitTimeout)
	}
	if c.KeysetTimeout <= 0 || c.KeysetTimeout >= c.InitTimeout {
		return fmt.Errorf("config: keyset timeout %v must be shorter than init timeout %v",
			c.KeysetTimeout, c.InitTimeout)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	return nil
}

// ChainIDHex returns the chain id in the 0x-prefixed form wallets use for
// switch requests (Sepolia is 0xaa36a7).
func (c *Config) ChainIDHex() string {
	return fmt.Sprintf("0x%x", c.ChainID)
}
