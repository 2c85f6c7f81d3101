// Package config defines all configuration for the solver.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via RAINSOLVER_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	MaxConcurrency        uint32            `mapstructure:"max_concurrency"`
	GasCoveragePercentage string            `mapstructure:"gas_coverage_percentage"`
	GasLimitMultiplier    uint16            `mapstructure:"gas_limit_multiplier"`
	OwnerLimits           map[string]uint32 `mapstructure:"owner_limits"`
	NativeToken           string            `mapstructure:"native_token"`
	ExplorerBaseURL       string            `mapstructure:"explorer_base_url"`
	RouterFeedURL         string            `mapstructure:"router_feed_url"`
	Contracts             ContractsConfig   `mapstructure:"contracts"`
	Wallet                WalletConfig      `mapstructure:"wallet"`
	RPC                   RPCConfig         `mapstructure:"rpc"`
	Indexer               IndexerConfig     `mapstructure:"indexer"`
	Dryrun                DryrunConfig      `mapstructure:"dryrun"`
	Logging               LoggingConfig     `mapstructure:"logging"`
	Telemetry             TelemetryConfig   `mapstructure:"telemetry"`
}

// ContractSet holds the dispair triple and the per-trade-type arb contract
// addresses for one order version generation.
type ContractSet struct {
	Dispair     DispairConfig `mapstructure:"dispair"`
	SushiArb    string        `mapstructure:"sushi_arb"`
	GenericArb  string        `mapstructure:"generic_arb"`
	BalancerArb string        `mapstructure:"balancer_arb"`
	StabullArb  string        `mapstructure:"stabull_arb"`
}

// DispairConfig is the (deployer, interpreter, store) address triple.
type DispairConfig struct {
	Deployer    string `mapstructure:"deployer"`
	Interpreter string `mapstructure:"interpreter"`
	Store       string `mapstructure:"store"`
}

// ContractsConfig holds the v4 and v5 contract sets, selected per order
// version (V3 orders resolve against v4, V4 orders against v5).
type ContractsConfig struct {
	V4 ContractSet `mapstructure:"v4"`
	V5 ContractSet `mapstructure:"v5"`
}

// WalletConfig holds the signing keys the wallet pool draws from.
type WalletConfig struct {
	PrivateKeys []string `mapstructure:"private_keys"`
	ChainID     int64    `mapstructure:"chain_id"`
}

// RPCConfig holds the JSON-RPC endpoints the Client collaborator reads from.
type RPCConfig struct {
	URLs []string `mapstructure:"urls"`
}

// IndexerConfig holds the subgraph/orderbook-indexer endpoints.
type IndexerConfig struct {
	URLs []string `mapstructure:"urls"`
}

// DryrunConfig holds the external gas-estimator endpoint.
type DryrunConfig struct {
	SimulatorURL string `mapstructure:"simulator_url"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig controls the metrics/health HTTP surface.
type TelemetryConfig struct {
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: RAINSOLVER_PRIVATE_KEYS, RAINSOLVER_RPC_URLS.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("RAINSOLVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if keys := os.Getenv("RAINSOLVER_PRIVATE_KEYS"); keys != "" {
		cfg.Wallet.PrivateKeys = strings.Split(keys, ",")
	}
	if urls := os.Getenv("RAINSOLVER_RPC_URLS"); urls != "" {
		cfg.RPC.URLs = strings.Split(urls, ",")
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.MaxConcurrency == 0 {
		return fmt.Errorf("max_concurrency must be > 0")
	}
	if _, err := c.GasCoveragePercentageValue(); err != nil {
		return fmt.Errorf("gas_coverage_percentage: %w", err)
	}
	if c.GasLimitMultiplier == 0 {
		return fmt.Errorf("gas_limit_multiplier must be > 0")
	}
	if len(c.Wallet.PrivateKeys) == 0 {
		return fmt.Errorf("wallet.private_keys is required (set RAINSOLVER_PRIVATE_KEYS)")
	}
	if c.Wallet.ChainID == 0 {
		return fmt.Errorf("wallet.chain_id is required")
	}
	if len(c.RPC.URLs) == 0 {
		return fmt.Errorf("rpc.urls is required")
	}
	if len(c.Indexer.URLs) == 0 {
		return fmt.Errorf("indexer.urls is required")
	}
	return nil
}

// GasCoveragePercentageValue parses the text-encoded percentage. "0"
// disables the minimum-bounty second dryrun pass.
func (c *Config) GasCoveragePercentageValue() (uint64, error) {
	v, err := strconv.ParseUint(c.GasCoveragePercentage, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("must be an integer percent encoded as text: %w", err)
	}
	return v, nil
}
