package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.General.LogLevel)
	assert.Equal(t, "https://api.mainnet-beta.solana.com", cfg.Ledger.RPCURL)
	assert.Equal(t, 1000, cfg.Jobs.MaxJobs)

	assert.Equal(t, 200, cfg.Ops.MaxOperands)
	assert.Equal(t, 10, cfg.Ops.TransferChunkSize)
	assert.Equal(t, 5, cfg.Ops.CloseChunkSize)
	assert.Equal(t, 200*time.Millisecond, cfg.Ops.TransferDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Ops.DistributeDelay)
	assert.Equal(t, 300*time.Millisecond, cfg.Ops.CloseDelay)
	assert.Equal(t, uint64(5_000), cfg.Ops.MinReserve)
	assert.Equal(t, uint64(5_000), cfg.Ops.FeeBuffer)

	assert.Equal(t, 30*time.Second, cfg.Polling.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Polling.Interval)
	assert.Equal(t, 5, cfg.Polling.MaxConcurrent)
	assert.Equal(t, ":8080", cfg.Server.Listen)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
general:
  log_level: debug
ledger:
  rpc_url: https://rpc.example.test
ops:
  max_operands: 50
  transfer_chunk_size: 4
server:
  listen: ":9999"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.General.LogLevel)
	assert.Equal(t, "https://rpc.example.test", cfg.Ledger.RPCURL)
	assert.Equal(t, 50, cfg.Ops.MaxOperands)
	assert.Equal(t, 4, cfg.Ops.TransferChunkSize)
	assert.Equal(t, ":9999", cfg.Server.Listen)

	// Unset keys keep their defaults
	assert.Equal(t, 5, cfg.Ops.CloseChunkSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.General.LogLevel = "verbose" },
			wantErr: "log_level",
		},
		{
			name:    "missing rpc url",
			mutate:  func(c *Config) { c.Ledger.RPCURL = "" },
			wantErr: "rpc_url",
		},
		{
			name:    "rpc url without scheme",
			mutate:  func(c *Config) { c.Ledger.RPCURL = "rpc.example.test" },
			wantErr: "rpc_url",
		},
		{
			name:    "zero max jobs",
			mutate:  func(c *Config) { c.Jobs.MaxJobs = 0 },
			wantErr: "max_jobs",
		},
		{
			name:    "zero chunk size",
			mutate:  func(c *Config) { c.Ops.TransferChunkSize = 0 },
			wantErr: "transfer_chunk_size",
		},
		{
			name:    "negative delay",
			mutate:  func(c *Config) { c.Ops.CloseDelay = -time.Second },
			wantErr: "delays",
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Polling.Interval = 0 },
			wantErr: "interval",
		},
		{
			name:    "empty listen address",
			mutate:  func(c *Config) { c.Server.Listen = "" },
			wantErr: "listen",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
