// Package config handles configuration loading and validation for the node.
package config

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config holds all configuration for the node.
type Config struct {
	Node      NodeConfig      `mapstructure:"node"`
	Mining    MiningConfig    `mapstructure:"mining"`
	Pool      PoolConfig      `mapstructure:"pool"`
	Store     StoreConfig     `mapstructure:"store"`
	Gossip    GossipConfig    `mapstructure:"gossip"`
	API       APIConfig       `mapstructure:"api"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

// NodeConfig defines node identity and join behavior.
type NodeConfig struct {
	ID       string `mapstructure:"id"`
	DataDir  string `mapstructure:"data_dir"`
	Automine bool   `mapstructure:"automine"`
}

// MiningConfig defines miner-related inputs.
type MiningConfig struct {
	InitialDiff uint64        `mapstructure:"initial_diff"`
	RewardAddr  string        `mapstructure:"reward_addr"`
	Tags        []string      `mapstructure:"tags"`
	MiningDelay time.Duration `mapstructure:"mining_delay"`
}

// PoolConfig defines tx-pool propagation and admission settings.
type PoolConfig struct {
	FixedDelay           time.Duration `mapstructure:"fixed_delay"`
	UseFixedDelay        bool          `mapstructure:"use_fixed_delay"`
	MemoryHeadroomFactor int           `mapstructure:"memory_headroom_factor"`
}

// StoreConfig defines the on-disk Store backend.
type StoreConfig struct {
	Dir          string `mapstructure:"dir"`
	CacheEntries int    `mapstructure:"cache_entries"`
}

// GossipConfig defines the peer-to-peer gossip transport.
type GossipConfig struct {
	Bind            string        `mapstructure:"bind"`
	Peers           []string      `mapstructure:"peers"`
	LossProbability float64       `mapstructure:"loss_probability"`
	Delay           time.Duration `mapstructure:"delay"`
	XferSpeedBps    int64         `mapstructure:"xfer_speed_bps"`
}

// APIConfig defines the read-only operator status endpoint.
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bind    string `mapstructure:"bind"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// TelemetryConfig defines optional New Relic APM reporting for the node worker.
type TelemetryConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	AppName    string `mapstructure:"app_name"`
	LicenseKey string `mapstructure:"license_key"`
}

// RedisConfig defines the optional Redis-backed tx pool diagnostics sink. When Addr is empty
// the node falls back to an in-process diagnostics recorder.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Load reads configuration from file and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/arnode")
	}

	v.SetEnvPrefix("ARNODE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.Node.ID == "" {
		cfg.Node.ID = uuid.NewString()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("node.data_dir", "./data")
	v.SetDefault("node.automine", false)

	v.SetDefault("mining.initial_diff", 1000)
	v.SetDefault("mining.mining_delay", "0s")

	v.SetDefault("pool.fixed_delay", "30s")
	v.SetDefault("pool.use_fixed_delay", false)
	v.SetDefault("pool.memory_headroom_factor", 4)

	v.SetDefault("store.dir", "./data/chain")
	v.SetDefault("store.cache_entries", 2048)

	v.SetDefault("gossip.bind", "0.0.0.0:1984")
	v.SetDefault("gossip.loss_probability", 0.0)
	v.SetDefault("gossip.delay", "0s")
	v.SetDefault("gossip.xfer_speed_bps", 0)

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.bind", "127.0.0.1:1985")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.app_name", "arnode")
}

// Validate checks configuration for consistency.
func (c *Config) Validate() error {
	if c.Pool.MemoryHeadroomFactor <= 0 {
		return fmt.Errorf("pool.memory_headroom_factor must be positive")
	}
	if c.Mining.InitialDiff == 0 {
		return fmt.Errorf("mining.initial_diff must be > 0")
	}
	if c.Store.Dir == "" {
		return fmt.Errorf("store.dir is required")
	}
	return nil
}
