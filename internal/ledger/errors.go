package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrConfirmationTimeout is returned when a submitted transaction does
	// not reach confirmed status within the configured window.
	ErrConfirmationTimeout = errors.New("transaction confirmation timed out")

	// ErrTransactionFailed is returned when the ledger reports an on-chain
	// error for a submitted transaction.
	ErrTransactionFailed = errors.New("transaction failed on-chain")
)

// RPCError wraps a failure talking to the ledger RPC endpoint.
// Transient errors (network failures, HTTP 429/5xx, timeouts) are worth
// retrying at the job level; application-level RPC errors are not.
type RPCError struct {
	Method    string
	Transient bool
	Err       error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: %v", e.Method, e.Err)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a ledger error a caller could
// reasonably retry the whole job for.
func IsTransient(err error) bool {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Transient
	}
	return errors.Is(err, ErrConfirmationTimeout)
}
