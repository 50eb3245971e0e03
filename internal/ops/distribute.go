package ops

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/mgaillard/solbatch/internal/ledger"
	"github.com/mgaillard/solbatch/internal/pipeline"
)

// DistributeRequest splits a total SOL amount evenly from one funded
// source wallet across many destination addresses
type DistributeRequest struct {
	SourceKey    string   `json:"source_key" binding:"required"`
	Destinations []string `json:"destinations" binding:"required"`
	TotalSol     float64  `json:"total_sol" binding:"required"`
}

// distributeTarget is one destination with its resolved raw address
type distributeTarget struct {
	address string
	key     [32]byte
}

// DistributeSol sends total/len(destinations) lamports to each destination.
// Unlike the refund strategies there is no per-operand skipping: if the
// source balance cannot cover the full total the run fails before any
// transaction is built, so a partially funded fan-out never happens.
func (s *Service) DistributeSol(ctx context.Context, jobID string, req DistributeRequest) (*BulkResult, error) {
	if err := s.validateOperandCount(len(req.Destinations), "destinations"); err != nil {
		return nil, err
	}
	if req.TotalSol <= 0 {
		return nil, fmt.Errorf("total amount must be positive: %f", req.TotalSol)
	}

	source, err := ledger.ParseKeypair(req.SourceKey)
	if err != nil {
		return nil, fmt.Errorf("invalid source key: %w", err)
	}

	targets := make([]distributeTarget, 0, len(req.Destinations))
	for i, addr := range req.Destinations {
		key, err := ledger.DecodeAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("destination %d: %w", i, err)
		}
		targets = append(targets, distributeTarget{address: addr, key: key})
	}

	totalLamports := solToLamports(req.TotalSol)
	perTarget := totalLamports / uint64(len(targets))
	if perTarget == 0 {
		return nil, fmt.Errorf("total %f SOL is too small to split across %d destinations", req.TotalSol, len(targets))
	}

	balance, err := s.ledger.GetBalance(ctx, source.Address())
	if err != nil {
		return nil, fmt.Errorf("source balance lookup failed: %w", err)
	}
	if balance < totalLamports {
		return nil, fmt.Errorf("insufficient source balance: have %d lamports, need %d", balance, totalLamports)
	}

	total := len(targets)
	result := &BulkResult{Kind: "distribute_sol", Total: total, Outcomes: make([]Outcome, 0, total)}
	if jobID != "" {
		s.registry.SetTotalItems(jobID, uint32(total))
	}

	s.logger.Info("distribution starting",
		"source", source.Address(), "destinations", total, "per_target_lamports", perTarget)

	submit := func(ctx context.Context, chunk []distributeTarget) (string, error) {
		return s.submitDistributeChunk(ctx, source, chunk, perTarget)
	}
	run, runErr := pipeline.Run(ctx, targets, submit, pipeline.Options{
		ChunkSize: s.cfg.TransferChunkSize,
		Delay:     s.cfg.DistributeDelay,
		Collector: s.collect,
		Logger:    s.logger,
		OnProgress: func(completed, pipelineTotal int, step string) {
			s.progress(jobID, completed, total, step)
		},
	})
	for _, o := range run.Outcomes {
		result.Outcomes = append(result.Outcomes, Outcome{
			Operand:   o.Operand.address,
			Success:   o.Success,
			Signature: o.Signature,
			Error:     o.Error,
		})
	}
	result.Succeeded = run.Succeeded
	result.Failed = run.Failed
	result.Signatures = run.Signatures()
	if runErr != nil {
		s.finalize(jobID, result)
		return result, cancelErr(runErr)
	}

	result.Summary = fmt.Sprintf("Distributed %s SOL to %d of %d destination(s) in %s; %d failed",
		humanize.CommafWithDigits(lamportsToSol(perTarget*uint64(result.Succeeded)), 9),
		result.Succeeded, total, countSignatures(result.Signatures), result.Failed)

	s.logger.Info("distribution finished",
		"succeeded", result.Succeeded, "failed", result.Failed)
	return result, s.finalize(jobID, result)
}

// submitDistributeChunk packs one transfer per destination into a single
// transaction signed only by the source wallet
func (s *Service) submitDistributeChunk(ctx context.Context, source *ledger.Keypair, chunk []distributeTarget, lamports uint64) (string, error) {
	blockhash, err := s.ledger.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("blockhash fetch failed: %w", err)
	}

	instructions := make([]ledger.Instruction, 0, len(chunk))
	for _, target := range chunk {
		instructions = append(instructions,
			ledger.NewTransferInstruction(source.PublicKey(), target.key, lamports))
	}

	tx, err := ledger.NewTransaction(instructions, source, []*ledger.Keypair{source}, blockhash)
	if err != nil {
		return "", fmt.Errorf("transaction build failed: %w", err)
	}
	return s.ledger.SendAndConfirmTransaction(ctx, tx)
}
