// Package pipeline implements the batched transaction pipeline: chunking
// an ordered operand list into ledger-transaction-sized groups, submitting
// one signed transaction per chunk, and aggregating per-operand outcomes
// without letting a failing chunk abort the run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mgaillard/solbatch/internal/metrics"
)

// OperandOutcome is the result attributed to a single operand. Outcomes
// within one chunk are correlated, not independent: the chunk's
// transaction either confirmed for all of them or failed for all of them.
type OperandOutcome[T any] struct {
	Operand   T
	Success   bool
	Signature string
	Error     string
}

// ChunkOutcome records one submission attempt
type ChunkOutcome struct {
	Index     int
	Size      int
	Signature string
	Error     string
}

// Result aggregates a full pipeline run. Succeeded+Failed always equals
// the number of operands passed in; no operand is dropped silently.
type Result[T any] struct {
	Chunks    []ChunkOutcome
	Outcomes  []OperandOutcome[T]
	Succeeded int
	Failed    int
}

// Signatures returns the signatures of every confirmed chunk, in order
func (r *Result[T]) Signatures() []string {
	sigs := make([]string, 0, len(r.Chunks))
	for _, c := range r.Chunks {
		if c.Error == "" {
			sigs = append(sigs, c.Signature)
		}
	}
	return sigs
}

// Options tunes a pipeline run
type Options struct {
	// ChunkSize is the maximum operands per transaction
	ChunkSize int

	// Delay is inserted between chunks to respect upstream rate limits.
	// It is on the critical path: a run of N operands waits through
	// ceil(N/ChunkSize)-1 delays.
	Delay time.Duration

	// OnProgress, if set, is called after every chunk with the running
	// completed count
	OnProgress func(completed, total int, step string)

	Collector *metrics.Collector
	Logger    *slog.Logger
}

// SubmitFunc builds and submits one transaction covering every operand in
// chunk, returning the confirmed signature. Implementations fetch a fresh
// blockhash per call; hashes expire and must not be reused across chunks.
type SubmitFunc[T any] func(ctx context.Context, chunk []T) (string, error)

// Run partitions operands into consecutive chunks of at most
// opts.ChunkSize and submits them strictly in order. A failed chunk marks
// its operands failed and the run continues; cancellation is honored at
// chunk boundaries only, so an in-flight transaction always completes.
//
// The returned error is non-nil only for cancellation; submission
// failures are reported through the result.
func Run[T any](ctx context.Context, operands []T, submit SubmitFunc[T], opts Options) (*Result[T], error) {
	// Always return a usable result, even on a bad option: callers merge
	// outcomes before inspecting the error.
	if opts.ChunkSize < 1 {
		return &Result[T]{}, fmt.Errorf("chunk size must be at least 1")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "pipeline")

	total := len(operands)
	numChunks := (total + opts.ChunkSize - 1) / opts.ChunkSize
	result := &Result[T]{
		Chunks:   make([]ChunkOutcome, 0, numChunks),
		Outcomes: make([]OperandOutcome[T], 0, total),
	}

	completed := 0
	for chunkIdx := 0; completed < total; chunkIdx++ {
		if err := ctx.Err(); err != nil {
			// Cancelled between chunks; everything processed so far
			// stays in the result.
			logger.Info("pipeline cancelled",
				"chunks_done", chunkIdx, "operands_done", completed, "total", total)
			return result, err
		}

		end := completed + opts.ChunkSize
		if end > total {
			end = total
		}
		chunk := operands[completed:end]

		sig, err := submit(ctx, chunk)
		if opts.Collector != nil {
			opts.Collector.ChunkSubmitted(err != nil)
		}

		outcome := ChunkOutcome{Index: chunkIdx, Size: len(chunk)}
		if err != nil {
			outcome.Error = err.Error()
			result.Failed += len(chunk)
			for _, op := range chunk {
				result.Outcomes = append(result.Outcomes, OperandOutcome[T]{
					Operand: op,
					Error:   err.Error(),
				})
			}
			logger.Warn("chunk submission failed, continuing",
				"chunk", chunkIdx+1, "of", numChunks, "size", len(chunk), "error", err)
		} else {
			outcome.Signature = sig
			result.Succeeded += len(chunk)
			for _, op := range chunk {
				result.Outcomes = append(result.Outcomes, OperandOutcome[T]{
					Operand:   op,
					Success:   true,
					Signature: sig,
				})
			}
			logger.Debug("chunk confirmed",
				"chunk", chunkIdx+1, "of", numChunks, "size", len(chunk), "signature", sig)
		}
		result.Chunks = append(result.Chunks, outcome)

		completed = end
		if opts.OnProgress != nil {
			opts.OnProgress(completed, total,
				fmt.Sprintf("Completed batch %d of %d (%d/%d)", chunkIdx+1, numChunks, completed, total))
		}

		if completed < total && opts.Delay > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(opts.Delay):
			}
		}
	}

	if opts.Collector != nil {
		opts.Collector.OperandOutcome("success", result.Succeeded)
		opts.Collector.OperandOutcome("failure", result.Failed)
	}
	return result, nil
}
