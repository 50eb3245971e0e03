package config

import "time"

// Config represents the complete application configuration
type Config struct {
	General GeneralConfig `mapstructure:"general"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Jobs    JobsConfig    `mapstructure:"jobs"`
	Ops     OpsConfig     `mapstructure:"ops"`
	Polling PollingConfig `mapstructure:"polling"`
	Server  ServerConfig  `mapstructure:"server"`
}

// GeneralConfig contains global application settings
type GeneralConfig struct {
	LogLevel string `mapstructure:"log_level"`
}

// LedgerConfig contains settings for the remote ledger RPC endpoint
type LedgerConfig struct {
	RPCURL              string        `mapstructure:"rpc_url"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	ConfirmTimeout      time.Duration `mapstructure:"confirm_timeout"`
	ConfirmPollInterval time.Duration `mapstructure:"confirm_poll_interval"`
	SkipTLSVerify       bool          `mapstructure:"skip_tls_verify"`
}

// JobsConfig controls the in-memory job registry
type JobsConfig struct {
	// MaxJobs caps the registry size; oldest terminal jobs are evicted
	// once the cap is exceeded. Live jobs are never evicted.
	MaxJobs int `mapstructure:"max_jobs"`
}

// OpsConfig contains tuning for the bulk wallet operations
type OpsConfig struct {
	// MaxOperands is the hard cap on wallets/mints accepted per request
	MaxOperands int `mapstructure:"max_operands"`

	// TransferChunkSize is the number of transfer instructions packed
	// into one transaction; CloseChunkSize likewise for close/burn
	// instructions, which take more transaction space.
	TransferChunkSize int `mapstructure:"transfer_chunk_size"`
	CloseChunkSize    int `mapstructure:"close_chunk_size"`

	// Inter-chunk delays keep the upstream RPC rate limiter happy
	TransferDelay   time.Duration `mapstructure:"transfer_delay"`
	DistributeDelay time.Duration `mapstructure:"distribute_delay"`
	CloseDelay      time.Duration `mapstructure:"close_delay"`

	// MinReserve is the lamport balance every wallet must retain after
	// an operation; FeeBuffer covers the transaction fee on top of it.
	MinReserve uint64 `mapstructure:"min_reserve"`
	FeeBuffer  uint64 `mapstructure:"fee_buffer"`
}

// PollingConfig contains defaults for the long-polling service
type PollingConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	Interval      time.Duration `mapstructure:"interval"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}
