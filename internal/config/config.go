// Copyright 2025 Certen Protocol
//
// Node configuration: environment-variable loading grounded directly on
// pkg/config/config.go's getEnv/getEnvInt/getEnvBool helpers, plus a YAML
// settings-file overlay (gopkg.in/yaml.v3) for the static fields this
// node needs: keys_dir, batch_size, the two settlement thresholds,
// enable_triangular_netting, is_bootstrap, the listen Multiaddr, and the
// HTTP port.

package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/certen/sp-cdr-settlement/internal/sperr"
)

// Config holds every setting a sp-validator process needs at startup.
type Config struct {
	// Identity.
	OperatorName string `yaml:"operator_name"`
	OperatorMCC string `yaml:"operator_mcc"`
	OperatorMNC string `yaml:"operator_mnc"`
	ChainID string `yaml:"chain_id"`

	// ZK keys.
	KeysDir string `yaml:"keys_dir"`

	// Pipeline.
	BatchSize int `yaml:"batch_size"`

	// Settlement protocol.
	SettlementThresholdCents int64 `yaml:"settlement_threshold_cents"`
	AutoAcceptThresholdCents int64 `yaml:"auto_accept_threshold_cents"`
	EnableTriangularNetting bool `yaml:"enable_triangular_netting"`
	ProposalExpiryBlocks uint64 `yaml:"proposal_expiry_blocks"`

	// Network.
	ListenMultiaddr string `yaml:"listen_multiaddr"`
	BootstrapPeers []string `yaml:"bootstrap_peers"`
	IsBootstrap bool `yaml:"is_bootstrap"`

	// HTTP ingestion.
	HTTPPort int `yaml:"http_port"`

	// Storage.
	DatabaseURL string `yaml:"database_url"`

	// Logging.
	LogLevel string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads environment-variable overrides on top of sensible defaults,
// the same getEnv-with-default pattern used elsewhere in this package. Call
// LoadYAML afterward to overlay a static settings file, and Validate
// before starting the node.
func Load() (*Config, error) {
	cfg := &Config{
		OperatorName: getEnv("SP_OPERATOR_NAME", ""),
		OperatorMCC: getEnv("SP_OPERATOR_MCC", ""),
		OperatorMNC: getEnv("SP_OPERATOR_MNC", ""),
		ChainID: getEnv("SP_CHAIN_ID", "sp-cdr-settlement"),
		KeysDir: getEnv("SP_KEYS_DIR", "./keys"),
		BatchSize: getEnvInt("SP_BATCH_SIZE", 1000),
		SettlementThresholdCents: getEnvInt64("SP_SETTLEMENT_THRESHOLD_CENTS", 0),
		AutoAcceptThresholdCents: getEnvInt64("SP_AUTO_ACCEPT_THRESHOLD_CENTS", 50000),
		EnableTriangularNetting: getEnvBool("SP_ENABLE_TRIANGULAR_NETTING", true),
		ProposalExpiryBlocks: uint64(getEnvInt("SP_PROPOSAL_EXPIRY_BLOCKS", 256)),
		ListenMultiaddr: getEnv("SP_LISTEN_MULTIADDR", "/ip4/0.0.0.0/tcp/4001"),
		IsBootstrap: getEnvBool("SP_IS_BOOTSTRAP", false),
		HTTPPort: getEnvInt("SP_HTTP_PORT", 8080),
		DatabaseURL: getEnv("SP_DATABASE_URL", ""),
		LogLevel: getEnv("SP_LOG_LEVEL", "info"),
		LogFormat: getEnv("SP_LOG_FORMAT", "json"),
	}
	return cfg, nil
}

// LoadYAML overlays the settings file at path onto cfg, leaving fields the
// file doesn't mention untouched.
func (c *Config) LoadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return sperr.New(sperr.KindIO, "config.LoadYAML", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return sperr.New(sperr.KindConfiguration, "config.LoadYAML", path, err)
	}
	return nil
}

// Validate checks the invariants a node cannot start without: a PLMN
// identity, a non-empty keys directory path, a positive batch size, and an
// auto-accept threshold no lower than the settlement threshold.
func (c *Config) Validate() error {
	if c.OperatorMCC == "" || c.OperatorMNC == "" {
		return sperr.New(sperr.KindConfiguration, "config.Validate", "", fmt.Errorf("operator mcc/mnc must be set"))
	}
	if c.KeysDir == "" {
		return sperr.New(sperr.KindConfiguration, "config.Validate", "", fmt.Errorf("keys_dir must be set"))
	}
	if c.BatchSize <= 0 {
		return sperr.New(sperr.KindConfiguration, "config.Validate", "", fmt.Errorf("batch_size must be positive"))
	}
	if c.AutoAcceptThresholdCents < c.SettlementThresholdCents {
		return sperr.New(sperr.KindConfiguration, "config.Validate", "", fmt.Errorf("auto_accept_threshold_cents must be >= settlement_threshold_cents"))
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
