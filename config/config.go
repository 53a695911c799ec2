package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Config is the construction-time configuration surface. There is no runtime
// reconfiguration: the node reads it once at startup.
type Config struct {
	Server struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`

	Log struct {
		AppLogFile string `mapstructure:"app_log_file"`
		Level      string `mapstructure:"level"`
	} `mapstructure:"log"`

	Network struct {
		ListenAddr     string   `mapstructure:"listen_addr"`
		BootstrapNodes []string `mapstructure:"bootstrap_nodes"`
		MaxPeers       int      `mapstructure:"max_peers"`
	} `mapstructure:"network"`

	Consensus struct {
		BlockTimeMs    int    `mapstructure:"block_time_ms"`
		ValidatorCount int    `mapstructure:"validator_count"`
		PrimeModulus   uint64 `mapstructure:"prime_modulus"`
	} `mapstructure:"consensus"`

	Security struct {
		QuantumResistanceLevel   int    `mapstructure:"quantum_resistance_level"`
		SignatureScheme          string `mapstructure:"signature_scheme"`
		KeyRotationIntervalHours int    `mapstructure:"key_rotation_interval_hours"`
	} `mapstructure:"security"`

	Database struct {
		Path        string `mapstructure:"path"`
		CacheSizeMb int    `mapstructure:"cache_size_mb"`
	} `mapstructure:"database"`
}

// Load reads the config file at path and unmarshals it over the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("network.listen_addr", "0.0.0.0:9000")
	v.SetDefault("network.max_peers", 32)
	v.SetDefault("consensus.block_time_ms", 3000)
	v.SetDefault("consensus.validator_count", 3)
	v.SetDefault("consensus.prime_modulus", uint64(2147483647))
	v.SetDefault("security.quantum_resistance_level", 70)
	v.SetDefault("security.signature_scheme", "ed25519")
	v.SetDefault("security.key_rotation_interval_hours", 24)
	v.SetDefault("database.path", "data/ledger")
	v.SetDefault("database.cache_size_mb", 64)
}

func (c *Config) validate() error {
	if c.Consensus.BlockTimeMs <= 0 {
		return errors.New("config: consensus.block_time_ms must be positive")
	}
	if c.Consensus.ValidatorCount < 1 {
		return errors.New("config: consensus.validator_count must be at least 1")
	}
	if c.Consensus.PrimeModulus < 2 {
		return errors.New("config: consensus.prime_modulus must be at least 2")
	}
	if c.Security.QuantumResistanceLevel < 0 || c.Security.QuantumResistanceLevel > 100 {
		return errors.New("config: security.quantum_resistance_level must be in [0,100]")
	}
	if c.Database.Path == "" {
		return errors.New("config: database.path is required")
	}
	return nil
}
