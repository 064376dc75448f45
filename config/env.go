package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Environment variable names recognised by FromEnv. BLINDBARTER_CONTRACT is
// the only one without a usable default.
const (
	EnvContract   = "BLINDBARTER_CONTRACT"
	EnvRPCURL     = "BLINDBARTER_RPC_URL"
	EnvRelayerURL = "BLINDBARTER_RELAYER_URL"
	EnvKMSKeyURL  = "BLINDBARTER_KMS_KEY_URL"
	EnvCRSURL     = "BLINDBARTER_CRS_URL"
	EnvChainID    = "BLINDBARTER_CHAIN_ID"
	EnvDataDir    = "BLINDBARTER_DATA_DIR"
	EnvLogLevel   = "BLINDBARTER_LOG_LEVEL"
)

// FromEnv returns DefaultConfig overlaid with values from the process
// environment. A .env file in the working directory is loaded first if
// present; real environment variables win over the file.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if v := os.Getenv(EnvContract); v != "" {
		if !common.IsHexAddress(v) {
			return cfg, fmt.Errorf("config: %s is not a hex address: %q", EnvContract, v)
		}
		cfg.ContractAddress = common.HexToAddress(v)
	}
	cfg.RPCURL = envOrDefault(EnvRPCURL, cfg.RPCURL)
	cfg.RelayerURL = envOrDefault(EnvRelayerURL, cfg.RelayerURL)
	cfg.KMSKeyURL = envOrDefault(EnvKMSKeyURL, cfg.KMSKeyURL)
	cfg.CRSURL = envOrDefault(EnvCRSURL, cfg.CRSURL)
	cfg.DataDir = envOrDefault(EnvDataDir, cfg.DataDir)
	cfg.LogLevel = envOrDefault(EnvLogLevel, cfg.LogLevel)
	if v := os.Getenv(EnvChainID); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("config: invalid %s %q: %w", EnvChainID, v, err)
		}
		cfg.ChainID = id
	}
	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// EngineTimeouts returns the configured (outer, keyset) timeout pair.
func (c *Config) EngineTimeouts() (time.Duration, time.Duration) {
	return c.InitTimeout, c.KeysetTimeout
}
