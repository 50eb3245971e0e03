package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for errors and inconsistencies
func (c *Config) Validate() error {
	if err := c.validateGeneral(); err != nil {
		return fmt.Errorf("general config: %w", err)
	}
	if err := c.validateLedger(); err != nil {
		return fmt.Errorf("ledger config: %w", err)
	}
	if err := c.validateJobs(); err != nil {
		return fmt.Errorf("jobs config: %w", err)
	}
	if err := c.validateOps(); err != nil {
		return fmt.Errorf("ops config: %w", err)
	}
	if err := c.validatePolling(); err != nil {
		return fmt.Errorf("polling config: %w", err)
	}
	if c.Server.Listen == "" {
		return fmt.Errorf("server config: listen address is required")
	}
	return nil
}

func (c *Config) validateGeneral() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	logLevel := strings.ToLower(c.General.LogLevel)
	for _, level := range validLogLevels {
		if logLevel == level {
			return nil
		}
	}
	return fmt.Errorf("log_level must be one of: %s", strings.Join(validLogLevels, ", "))
}

func (c *Config) validateLedger() error {
	if c.Ledger.RPCURL == "" {
		return fmt.Errorf("rpc_url is required")
	}
	if !strings.HasPrefix(c.Ledger.RPCURL, "http://") && !strings.HasPrefix(c.Ledger.RPCURL, "https://") {
		return fmt.Errorf("rpc_url must start with http:// or https://")
	}
	if c.Ledger.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if c.Ledger.ConfirmTimeout <= 0 {
		return fmt.Errorf("confirm_timeout must be positive")
	}
	if c.Ledger.ConfirmPollInterval <= 0 {
		return fmt.Errorf("confirm_poll_interval must be positive")
	}
	return nil
}

func (c *Config) validateJobs() error {
	if c.Jobs.MaxJobs < 1 {
		return fmt.Errorf("max_jobs must be at least 1")
	}
	return nil
}

func (c *Config) validateOps() error {
	if c.Ops.MaxOperands < 1 {
		return fmt.Errorf("max_operands must be at least 1")
	}
	if c.Ops.TransferChunkSize < 1 {
		return fmt.Errorf("transfer_chunk_size must be at least 1")
	}
	if c.Ops.CloseChunkSize < 1 {
		return fmt.Errorf("close_chunk_size must be at least 1")
	}
	if c.Ops.TransferDelay < 0 || c.Ops.DistributeDelay < 0 || c.Ops.CloseDelay < 0 {
		return fmt.Errorf("inter-chunk delays must not be negative")
	}
	return nil
}

func (c *Config) validatePolling() error {
	if c.Polling.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Polling.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if c.Polling.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1")
	}
	return nil
}
