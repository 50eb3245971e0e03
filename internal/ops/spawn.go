package ops

import (
	"context"
	"fmt"
)

// Kind identifies one bulk operation strategy. The set is closed: every
// kind maps to exactly one request type and one strategy.
type Kind string

const (
	KindRefundAll          Kind = "refund_all"
	KindRefundAmount       Kind = "refund_amount"
	KindDistributeSol      Kind = "distribute_sol"
	KindCloseAccounts      Kind = "close_accounts"
	KindCloseTokenAccount  Kind = "close_token_account"
	KindCloseTokenAccounts Kind = "close_token_accounts"
	KindBurnTokens         Kind = "burn_tokens"
	KindBurnEach           Kind = "burn_each"
)

// Request is the sealed set of operation request types. Each request
// knows its kind; Spawn dispatches on the concrete type.
type Request interface {
	Kind() Kind
}

func (RefundRequest) Kind() Kind                  { return KindRefundAll }
func (RefundAmountRequest) Kind() Kind            { return KindRefundAmount }
func (DistributeRequest) Kind() Kind              { return KindDistributeSol }
func (CloseAccountsRequest) Kind() Kind           { return KindCloseAccounts }
func (CloseTokenAccountRequest) Kind() Kind       { return KindCloseTokenAccount }
func (CloseTokenAccountsBatchRequest) Kind() Kind { return KindCloseTokenAccounts }
func (BurnRequest) Kind() Kind                    { return KindBurnTokens }
func (BurnBatchRequest) Kind() Kind               { return KindBurnEach }

// Validate checks a request synchronously, before any job exists
func (s *Service) Validate(req Request) error {
	switch r := req.(type) {
	case RefundRequest:
		return s.ValidateRefund(r)
	case RefundAmountRequest:
		return s.ValidateRefundAmount(r)
	case DistributeRequest:
		return s.ValidateDistribute(r)
	case CloseAccountsRequest:
		return s.ValidateCloseAccounts(r)
	case CloseTokenAccountRequest:
		return s.ValidateCloseTokenAccount(r)
	case CloseTokenAccountsBatchRequest:
		return s.ValidateCloseTokenAccountsBatch(r)
	case BurnRequest:
		return s.ValidateBurn(r)
	case BurnBatchRequest:
		return s.ValidateBurnBatch(r)
	default:
		return fmt.Errorf("unknown request type %T", req)
	}
}

// Spawn runs the strategy for req on a background job and returns the job
// id immediately. The id is created before the work starts, so the
// strategy can report progress against it from its first line.
func (s *Service) Spawn(req Request) string {
	id := s.registry.Create(string(req.Kind()))
	s.registry.Start(id, func(ctx context.Context) error {
		return s.run(ctx, id, req)
	})
	return id
}

// run is the single dispatch point from job kind to strategy
func (s *Service) run(ctx context.Context, jobID string, req Request) error {
	var err error
	switch r := req.(type) {
	case RefundRequest:
		_, err = s.RefundAll(ctx, jobID, r)
	case RefundAmountRequest:
		_, err = s.RefundAmount(ctx, jobID, r)
	case DistributeRequest:
		_, err = s.DistributeSol(ctx, jobID, r)
	case CloseAccountsRequest:
		_, err = s.CloseEmptyAccounts(ctx, jobID, r)
	case CloseTokenAccountRequest:
		_, err = s.CloseTokenAccount(ctx, jobID, r)
	case CloseTokenAccountsBatchRequest:
		_, err = s.CloseTokenAccountsBatch(ctx, jobID, r)
	case BurnRequest:
		_, err = s.BurnTokens(ctx, jobID, r)
	case BurnBatchRequest:
		_, err = s.BurnEachTokens(ctx, jobID, r)
	default:
		err = fmt.Errorf("unknown request type %T", req)
	}
	return err
}
