package ops

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/mgaillard/solbatch/internal/ledger"
	"github.com/mgaillard/solbatch/internal/pipeline"
)

// RefundRequest sweeps the full transferable balance of every wallet to a
// single destination
type RefundRequest struct {
	WalletKeys  []string `json:"wallet_keys" binding:"required"`
	Destination string   `json:"destination" binding:"required"`
}

// RefundAmountRequest moves a fixed SOL amount from every wallet to a
// single destination
type RefundAmountRequest struct {
	WalletKeys  []string `json:"wallet_keys" binding:"required"`
	Destination string   `json:"destination" binding:"required"`
	AmountSol   float64  `json:"amount_sol" binding:"required"`
}

// transferItem is one eligible wallet with its resolved transfer amount
type transferItem struct {
	index    int
	keypair  *ledger.Keypair
	lamports uint64
}

// RefundAll sweeps each wallet down to the minimum reserve, sending the
// remainder to the destination. Wallets whose balance cannot cover the
// reserve plus the fee buffer are skipped, not failed.
func (s *Service) RefundAll(ctx context.Context, jobID string, req RefundRequest) (*BulkResult, error) {
	return s.runTransfers(ctx, jobID, "refund_all", req.WalletKeys, req.Destination,
		func(balance uint64) (uint64, bool) {
			floor := s.cfg.MinReserve + s.cfg.FeeBuffer
			if balance <= floor {
				return 0, false
			}
			return balance - floor, true
		})
}

// RefundAmount moves a fixed amount from each wallet to the destination.
// A wallet is eligible only when its balance covers the amount plus the
// reserve plus the fee buffer; anything less is skipped.
func (s *Service) RefundAmount(ctx context.Context, jobID string, req RefundAmountRequest) (*BulkResult, error) {
	if req.AmountSol <= 0 {
		return nil, fmt.Errorf("amount must be positive: %f", req.AmountSol)
	}
	lamports := solToLamports(req.AmountSol)

	return s.runTransfers(ctx, jobID, "refund_amount", req.WalletKeys, req.Destination,
		func(balance uint64) (uint64, bool) {
			if balance < lamports+s.cfg.MinReserve+s.cfg.FeeBuffer {
				return 0, false
			}
			return lamports, true
		})
}

// runTransfers is the shared engine behind both refund strategies: parse
// operands, pre-flight balances through the eligibility rule, then feed the
// eligible transfers to the pipeline in wallet order.
func (s *Service) runTransfers(ctx context.Context, jobID, kind string, walletKeys []string, destination string, eligible func(balance uint64) (uint64, bool)) (*BulkResult, error) {
	if err := s.validateOperandCount(len(walletKeys), "wallets"); err != nil {
		return nil, err
	}
	destKey, err := ledger.DecodeAddress(destination)
	if err != nil {
		return nil, fmt.Errorf("invalid destination: %w", err)
	}

	total := len(walletKeys)
	result := &BulkResult{Kind: kind, Total: total, Outcomes: make([]Outcome, total)}
	if jobID != "" {
		s.registry.SetTotalItems(jobID, uint32(total))
	}

	s.logger.Info("transfer run starting", "kind", kind, "wallets", total)

	// Pre-flight: decode keys and read balances. Each ineligible or broken
	// operand gets its outcome here and never reaches the pipeline.
	var items []transferItem
	preflightDone := 0
	for i, key := range walletKeys {
		if err := ctx.Err(); err != nil {
			return result, cancelErr(err)
		}

		kp, err := ledger.ParseKeypair(key)
		if err != nil {
			result.Outcomes[i] = Outcome{Operand: fmt.Sprintf("wallet %d", i), Error: err.Error()}
			result.Failed++
			preflightDone++
			continue
		}
		addr := kp.Address()
		s.progress(jobID, preflightDone, total, fmt.Sprintf("Processing wallet %d of %d (%s)", i+1, total, addr))

		balance, err := s.ledger.GetBalance(ctx, addr)
		if err != nil {
			result.Outcomes[i] = Outcome{Operand: addr, Error: fmt.Sprintf("balance lookup failed: %v", err)}
			result.Failed++
			preflightDone++
			continue
		}

		lamports, ok := eligible(balance)
		if !ok {
			s.logger.Debug("wallet skipped, balance below threshold",
				"wallet", addr, "balance", balance)
			result.Outcomes[i] = Outcome{
				Operand: addr,
				Skipped: true,
				Error:   fmt.Sprintf("insufficient balance: %d lamports", balance),
			}
			result.Skipped++
			preflightDone++
			continue
		}

		items = append(items, transferItem{index: i, keypair: kp, lamports: lamports})
	}
	s.progress(jobID, preflightDone, total, "Balance check complete")

	var transferred uint64
	if len(items) > 0 {
		submit := func(ctx context.Context, chunk []transferItem) (string, error) {
			return s.submitTransferChunk(ctx, chunk, destKey)
		}
		run, runErr := pipeline.Run(ctx, items, submit, pipeline.Options{
			ChunkSize: s.cfg.TransferChunkSize,
			Delay:     s.cfg.TransferDelay,
			Collector: s.collect,
			Logger:    s.logger,
			OnProgress: func(completed, pipelineTotal int, step string) {
				s.progress(jobID, preflightDone+completed, total, step)
			},
		})
		transferred += mergeTransferOutcomes(result, run)
		if runErr != nil {
			s.finalize(jobID, result)
			return result, cancelErr(runErr)
		}
	}

	result.Summary = fmt.Sprintf("Transferred %s SOL from %d of %d wallet(s) in %s; %d skipped, %d failed",
		humanize.CommafWithDigits(lamportsToSol(transferred), 9),
		result.Succeeded, total, countSignatures(result.Signatures), result.Skipped, result.Failed)

	s.logger.Info("transfer run finished",
		"kind", kind, "succeeded", result.Succeeded, "failed", result.Failed, "skipped", result.Skipped)
	return result, s.finalize(jobID, result)
}

// submitTransferChunk packs one transfer instruction per wallet into a
// single transaction. The first wallet in the chunk pays the fee; every
// wallet in the chunk signs.
func (s *Service) submitTransferChunk(ctx context.Context, chunk []transferItem, destination [32]byte) (string, error) {
	blockhash, err := s.ledger.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("blockhash fetch failed: %w", err)
	}

	instructions := make([]ledger.Instruction, 0, len(chunk))
	signers := make([]*ledger.Keypair, 0, len(chunk))
	for _, item := range chunk {
		instructions = append(instructions,
			ledger.NewTransferInstruction(item.keypair.PublicKey(), destination, item.lamports))
		signers = append(signers, item.keypair)
	}

	tx, err := ledger.NewTransaction(instructions, chunk[0].keypair, signers, blockhash)
	if err != nil {
		return "", fmt.Errorf("transaction build failed: %w", err)
	}
	return s.ledger.SendAndConfirmTransaction(ctx, tx)
}

// mergeTransferOutcomes copies pipeline outcomes back to their original
// operand positions, updates the aggregate counters, and returns the total
// lamports actually moved
func mergeTransferOutcomes(result *BulkResult, run *pipeline.Result[transferItem]) uint64 {
	var transferred uint64
	for _, o := range run.Outcomes {
		result.Outcomes[o.Operand.index] = Outcome{
			Operand:   o.Operand.keypair.Address(),
			Success:   o.Success,
			Signature: o.Signature,
			Error:     o.Error,
		}
		if o.Success {
			transferred += o.Operand.lamports
		}
	}
	result.Succeeded += run.Succeeded
	result.Failed += run.Failed
	result.Signatures = append(result.Signatures, run.Signatures()...)
	return transferred
}
