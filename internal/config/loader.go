package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper for env vars
	v.SetEnvPrefix("SOLBATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Determine config file path
	if configPath == "" {
		configPath = os.Getenv("SOLBATCH_CONFIG")
	}
	if configPath == "" {
		// Try default locations
		defaultPaths := []string{"config.yaml", "config.yml", "/app/config.yaml"}
		for _, p := range defaultPaths {
			if _, err := os.Stat(p); err == nil {
				configPath = p
				break
			}
		}
	}

	// Read config file if found
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}
	// If no file found, continue with defaults and env vars

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for all configuration options
func setDefaults(v *viper.Viper) {
	// General defaults
	v.SetDefault("general.log_level", "info")

	// Ledger defaults
	v.SetDefault("ledger.rpc_url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("ledger.request_timeout", 30*time.Second)
	v.SetDefault("ledger.confirm_timeout", 60*time.Second)
	v.SetDefault("ledger.confirm_poll_interval", 500*time.Millisecond)
	v.SetDefault("ledger.skip_tls_verify", false)

	// Job registry defaults
	v.SetDefault("jobs.max_jobs", 1000)

	// Operation defaults
	v.SetDefault("ops.max_operands", 200)
	v.SetDefault("ops.transfer_chunk_size", 10)
	v.SetDefault("ops.close_chunk_size", 5)
	v.SetDefault("ops.transfer_delay", 200*time.Millisecond)
	v.SetDefault("ops.distribute_delay", 500*time.Millisecond)
	v.SetDefault("ops.close_delay", 300*time.Millisecond)
	v.SetDefault("ops.min_reserve", 5_000) // lamports kept for rent
	v.SetDefault("ops.fee_buffer", 5_000)  // lamports kept for the tx fee

	// Long-polling defaults
	v.SetDefault("polling.timeout", 30*time.Second)
	v.SetDefault("polling.interval", 500*time.Millisecond)
	v.SetDefault("polling.max_concurrent", 5)

	// Server defaults
	v.SetDefault("server.listen", ":8080")
}
