// Package ops implements the bulk wallet operation strategies: fund
// redistribution, account cleanup, and token destruction. Every strategy
// validates its request synchronously, runs a balance-aware pre-flight
// pass, and hands the eligible operands to the batch pipeline.
package ops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/dustin/go-humanize"

	"github.com/mgaillard/solbatch/internal/config"
	"github.com/mgaillard/solbatch/internal/jobs"
	"github.com/mgaillard/solbatch/internal/ledger"
	"github.com/mgaillard/solbatch/internal/metrics"
)

// LedgerClient is the subset of the ledger adapter the strategies consume
type LedgerClient interface {
	GetBalance(ctx context.Context, address string) (uint64, error)
	GetTokenAccountsByOwner(ctx context.Context, owner string) ([]ledger.TokenAccount, error)
	GetLatestBlockhash(ctx context.Context) (ledger.Blockhash, error)
	SendAndConfirmTransaction(ctx context.Context, tx *ledger.Transaction) (string, error)
}

// Service executes bulk wallet operations. It holds no per-job state:
// everything mutable lives in the job registry.
type Service struct {
	ledger   LedgerClient
	registry *jobs.Registry
	cfg      config.OpsConfig
	collect  *metrics.Collector
	logger   *slog.Logger
}

// NewService creates the strategy service
func NewService(client LedgerClient, registry *jobs.Registry, cfg config.OpsConfig, collect *metrics.Collector, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		ledger:   client,
		registry: registry,
		cfg:      cfg,
		collect:  collect,
		logger:   logger.With("component", "ops"),
	}
}

// Outcome is the per-operand result. Every operand of a run yields
// exactly one outcome: success, explicit failure, or skipped.
type Outcome struct {
	Operand   string `json:"operand"`
	Success   bool   `json:"success"`
	Skipped   bool   `json:"skipped,omitempty"`
	Signature string `json:"signature,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BulkResult aggregates one strategy run
type BulkResult struct {
	Kind       string    `json:"kind"`
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Signatures []string  `json:"signatures,omitempty"`
	Outcomes   []Outcome `json:"outcomes"`
	Summary    string    `json:"summary"`
}

// validateOperandCount enforces the non-empty and hard-cap rules shared by
// every strategy, before any network call
func (s *Service) validateOperandCount(n int, what string) error {
	if n == 0 {
		return fmt.Errorf("no %s provided", what)
	}
	if n > s.cfg.MaxOperands {
		return fmt.Errorf("too many %s provided: %d (max: %d)", what, n, s.cfg.MaxOperands)
	}
	return nil
}

// finalize stores the result on the job and maps the aggregate to the
// closure error the registry expects: nil for full success (or nothing
// attempted), ErrPartialFailure when outcomes are mixed, a plain error
// when every attempted operand failed.
func (s *Service) finalize(jobID string, result *BulkResult) error {
	if s.collect != nil && result.Skipped > 0 {
		s.collect.OperandOutcome("skipped", result.Skipped)
	}
	if jobID != "" {
		if err := s.registry.SetResult(jobID, result); err != nil {
			return err
		}
	}

	switch {
	case result.Failed == 0:
		return nil
	case result.Succeeded > 0:
		return fmt.Errorf("%w: %d succeeded, %d failed of %d",
			jobs.ErrPartialFailure, result.Succeeded, result.Failed, result.Total)
	default:
		return fmt.Errorf("all %d attempted operations failed: %s",
			result.Failed, firstError(result.Outcomes))
	}
}

func firstError(outcomes []Outcome) string {
	for _, o := range outcomes {
		if !o.Success && !o.Skipped && o.Error != "" {
			return o.Error
		}
	}
	return "unknown error"
}

// progress reports item counters for a live job; reporting is advisory
// and never aborts the operation
func (s *Service) progress(jobID string, completed, total int, step string) {
	if jobID == "" {
		return
	}
	s.registry.UpdateProgressItems(jobID, uint32(completed), uint32(total), step)
}

// solToLamports converts a human SOL amount to base units
func solToLamports(sol float64) uint64 {
	return uint64(sol * ledger.LamportsPerSol)
}

// lamportsToSol converts base units to a human SOL amount
func lamportsToSol(lamports uint64) float64 {
	return float64(lamports) / ledger.LamportsPerSol
}

// burnAmount computes the raw units to destroy for a percentage of a
// holding. The computation floors, so 100% of any balance burns exactly
// the full raw amount with no rounding loss.
func burnAmount(raw uint64, percentage float64) uint64 {
	if percentage >= 100 {
		return raw
	}
	return uint64(math.Floor(float64(raw) * percentage / 100.0))
}

// cancelErr normalizes a context cancellation observed mid-run so the
// registry records the job as cancelled
func cancelErr(err error) error {
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	return err
}

// countSignatures renders "3 transactions" style fragments for summaries
func countSignatures(sigs []string) string {
	return fmt.Sprintf("%s transaction(s)", humanize.Comma(int64(len(sigs))))
}
