// Package config loads simulator settings from YAML and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/VanDung-dev/HieraChain-Simulator/engine"
)

// Environment variables read by FromEnv.
const (
	EnvConfigPath    = "HIE_SIM_CONFIG"
	EnvLogLevel      = "HIE_SIM_LOG_LEVEL"
	EnvLogFormat     = "HIE_SIM_LOG_FORMAT"
	EnvSeed          = "HIE_SIM_SEED"
	EnvFixture       = "HIE_SIM_FIXTURE"
	EnvIngestionPath = "HIE_SIM_INGESTION_PATH"
	EnvAuthEnabled   = "HIE_SIM_AUTH_ENABLED"
	EnvAuthToken     = "HIE_SIM_AUTH_TOKEN"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the full simulator configuration file.
// Every section must be listed so strict parsing rejects typos.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Fixture   FixtureConfig   `yaml:"fixture"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// SimulatorConfig maps onto engine.Config.
type SimulatorConfig struct {
	Seed               int64  `yaml:"seed"`
	CommitteeSize      int    `yaml:"committee_size"`
	GenesisTimestampMs uint64 `yaml:"genesis_timestamp_ms"`
	FaucetBalance      uint64 `yaml:"faucet_balance"`
	TransferAmount     uint64 `yaml:"transfer_amount"`
	ReferenceGasPrice  uint64 `yaml:"reference_gas_price"`
	GasBudget          uint64 `yaml:"gas_budget"`
	MempoolSize        int    `yaml:"mempool_size"`
}

// FixtureConfig controls the bootstrap run on create.
type FixtureConfig struct {
	Enabled bool  `yaml:"enabled"`
	Seed    int64 `yaml:"seed"`
}

// BridgeConfig tunes the dispatch layer.
type BridgeConfig struct {
	FaucetAmount uint64        `yaml:"faucet_amount"`
	CacheSize    int           `yaml:"cache_size"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

// IngestionConfig enables the SQLite checkpoint store when Path is set.
type IngestionConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig holds listen addresses for the serve command.
type ServerConfig struct {
	RPCAddr     string `yaml:"rpc_addr"`
	FaucetAddr  string `yaml:"faucet_addr"`
	ControlAddr string `yaml:"control_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	FeedAddr    string `yaml:"feed_addr"`
	Workers     int    `yaml:"workers"`
}

// AuthConfig configures the framed RPC token handshake.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	ec := engine.DefaultConfig()
	return Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Simulator: SimulatorConfig{
			Seed:               ec.Seed,
			CommitteeSize:      ec.CommitteeSize,
			GenesisTimestampMs: ec.GenesisTimestampMs,
			FaucetBalance:      ec.FaucetBalance,
			TransferAmount:     ec.TransferAmount,
			ReferenceGasPrice:  ec.ReferenceGasPrice,
			GasBudget:          ec.GasBudget,
			MempoolSize:        ec.MempoolSize,
		},
		Fixture: FixtureConfig{Enabled: true, Seed: 7},
		Bridge: BridgeConfig{
			FaucetAmount: 20_000_000_000,
			CacheSize:    1024,
			CacheTTL:     0,
		},
		Server: ServerConfig{
			RPCAddr:     "127.0.0.1:30001",
			FaucetAddr:  "127.0.0.1:30002",
			ControlAddr: "127.0.0.1:30003",
			MetricsAddr: "127.0.0.1:30004",
			FeedAddr:    "tcp://127.0.0.1:30005",
			Workers:     4,
		},
	}
}

// EngineConfig converts the simulator section.
func (s SimulatorConfig) EngineConfig() engine.Config {
	return engine.Config{
		Seed:               s.Seed,
		CommitteeSize:      s.CommitteeSize,
		GenesisTimestampMs: s.GenesisTimestampMs,
		FaucetBalance:      s.FaucetBalance,
		TransferAmount:     s.TransferAmount,
		ReferenceGasPrice:  s.ReferenceGasPrice,
		GasBudget:          s.GasBudget,
		MempoolSize:        s.MempoolSize,
	}
}

// Parse decodes YAML on top of Default. Unknown keys are an error.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// FromEnv loads the file named by HIE_SIM_CONFIG (if any), applies the
// remaining HIE_SIM_* overrides and validates the result.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

// FromFile is FromEnv with path taking precedence over HIE_SIM_CONFIG.
// An empty path behaves like FromEnv.
func FromFile(path string) (Config, error) {
	return fromLookup(func(k string) (string, bool) {
		if k == EnvConfigPath && path != "" {
			return path, true
		}
		return os.LookupEnv(k)
	})
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path, ok := lookup(EnvConfigPath); ok && path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v, ok := lookup(EnvLogFormat); ok && v != "" {
		c.Log.Format = strings.ToLower(v)
	}
	if v, ok := lookup(EnvSeed); ok && v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, EnvSeed, v, err)
		}
		c.Simulator.Seed = seed
	}
	if v, ok := lookup(EnvFixture); ok && v != "" {
		c.Fixture.Enabled = parseBool(v)
	}
	if v, ok := lookup(EnvIngestionPath); ok {
		c.Ingestion.Path = v
	}
	if v, ok := lookup(EnvAuthEnabled); ok && v != "" {
		c.Auth.Enabled = parseBool(v)
	}
	if v, ok := lookup(EnvAuthToken); ok && v != "" {
		c.Auth.Token = v
	}
	return nil
}

// parseBool accepts strconv.ParseBool spellings; anything else is false.
func parseBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

// Validate rejects values the simulator cannot run with.
func (c Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log.level %q", ErrInvalidConfig, c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalidConfig, c.Log.Format)
	}
	if c.Simulator.CommitteeSize <= 0 {
		return fmt.Errorf("%w: simulator.committee_size must be positive", ErrInvalidConfig)
	}
	if c.Simulator.MempoolSize <= 0 {
		return fmt.Errorf("%w: simulator.mempool_size must be positive", ErrInvalidConfig)
	}
	if c.Simulator.ReferenceGasPrice == 0 {
		return fmt.Errorf("%w: simulator.reference_gas_price must be positive", ErrInvalidConfig)
	}
	if c.Bridge.FaucetAmount == 0 {
		return fmt.Errorf("%w: bridge.faucet_amount must be positive", ErrInvalidConfig)
	}
	if c.Bridge.CacheSize < 0 || c.Bridge.CacheTTL < 0 {
		return fmt.Errorf("%w: bridge cache settings must not be negative", ErrInvalidConfig)
	}
	if c.Server.Workers <= 0 {
		return fmt.Errorf("%w: server.workers must be positive", ErrInvalidConfig)
	}
	return nil
}
