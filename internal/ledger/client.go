package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mr-tron/base58"

	"github.com/mgaillard/solbatch/pkg/httpclient"
)

// Client talks JSON-RPC 2.0 to a ledger node. It is a blocking,
// rate-limited dependency; callers run it from job goroutines, never from
// request handlers directly.
type Client struct {
	rpcURL              string
	http                *httpclient.Client
	logger              *slog.Logger
	confirmTimeout      time.Duration
	confirmPollInterval time.Duration
}

// ClientConfig holds configuration for creating a Client
type ClientConfig struct {
	RPCURL              string
	RequestTimeout      time.Duration
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration
	SkipTLS             bool
	Logger              *slog.Logger
}

// NewClient creates a new ledger RPC client
func NewClient(cfg ClientConfig) *Client {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.ConfirmTimeout == 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if cfg.ConfirmPollInterval == 0 {
		cfg.ConfirmPollInterval = 500 * time.Millisecond
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		rpcURL: cfg.RPCURL,
		http: httpclient.New(httpclient.Config{
			Timeout:         cfg.RequestTimeout,
			MaxIdleConns:    10,
			IdleConnTimeout: 90 * time.Second,
			SkipTLSVerify:   cfg.SkipTLS,
		}),
		logger:              logger.With("component", "ledger"),
		confirmTimeout:      cfg.ConfirmTimeout,
		confirmPollInterval: cfg.ConfirmPollInterval,
	}
}

// Close releases idle connections
func (c *Client) Close() {
	c.http.Close()
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// call sends one JSON-RPC request and returns the raw result.
// Transport failures, non-2xx statuses, and undecodable responses are
// classified transient; JSON-RPC application errors are not.
func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	resp, err := c.http.PostJSON(ctx, c.rpcURL, rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, &RPCError{Method: method, Transient: true, Err: err}
	}

	var rpcResp rpcResponse
	if err := c.http.DecodeJSON(resp, &rpcResp); err != nil {
		return nil, &RPCError{Method: method, Transient: true, Err: err}
	}
	if rpcResp.Error != nil {
		return nil, &RPCError{
			Method: method,
			Err:    fmt.Errorf("RPC error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message),
		}
	}

	return rpcResp.Result, nil
}

// GetBalance fetches the lamport balance for an address
func (c *Client) GetBalance(ctx context.Context, address string) (uint64, error) {
	result, err := c.call(ctx, "getBalance", []interface{}{
		address,
		map[string]string{"commitment": "confirmed"},
	})
	if err != nil {
		return 0, err
	}

	var parsed struct {
		Value uint64 `json:"value"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return 0, &RPCError{Method: "getBalance", Err: fmt.Errorf("parse result: %w", err)}
	}

	c.logger.Debug("balance fetched", "address", address, "lamports", parsed.Value)
	return parsed.Value, nil
}

// tokenAccountEnvelope matches the jsonParsed account layout returned by
// getTokenAccountsByOwner
type tokenAccountEnvelope struct {
	Pubkey  string `json:"pubkey"`
	Account struct {
		Data struct {
			Parsed struct {
				Info struct {
					Mint        string `json:"mint"`
					TokenAmount struct {
						Amount   string  `json:"amount"`
						UIAmount float64 `json:"uiAmount"`
						Decimals uint8   `json:"decimals"`
					} `json:"tokenAmount"`
				} `json:"info"`
			} `json:"parsed"`
		} `json:"data"`
	} `json:"account"`
}

// GetTokenAccountsByOwner enumerates every token account owned by owner
func (c *Client) GetTokenAccountsByOwner(ctx context.Context, owner string) ([]TokenAccount, error) {
	result, err := c.call(ctx, "getTokenAccountsByOwner", []interface{}{
		owner,
		map[string]string{"programId": base58.Encode(TokenProgramID[:])},
		map[string]string{"encoding": "jsonParsed"},
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Value []tokenAccountEnvelope `json:"value"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, &RPCError{Method: "getTokenAccountsByOwner", Err: fmt.Errorf("parse result: %w", err)}
	}

	accounts := make([]TokenAccount, 0, len(parsed.Value))
	for _, env := range parsed.Value {
		info := env.Account.Data.Parsed.Info
		raw, err := strconv.ParseUint(info.TokenAmount.Amount, 10, 64)
		if err != nil {
			c.logger.Warn("could not parse token account amount",
				"account", env.Pubkey, "amount", info.TokenAmount.Amount)
			continue
		}
		accounts = append(accounts, TokenAccount{
			Address: env.Pubkey,
			Mint:    info.Mint,
			Amount: TokenAmount{
				RawAmount: raw,
				UIAmount:  info.TokenAmount.UIAmount,
				Decimals:  info.TokenAmount.Decimals,
			},
		})
	}

	c.logger.Debug("token accounts fetched", "owner", owner, "count", len(accounts))
	return accounts, nil
}

// GetTokenAccountBalance fetches the balance of a single token account
func (c *Client) GetTokenAccountBalance(ctx context.Context, address string) (TokenAmount, error) {
	result, err := c.call(ctx, "getTokenAccountBalance", []interface{}{
		address,
		map[string]string{"commitment": "confirmed"},
	})
	if err != nil {
		return TokenAmount{}, err
	}

	var parsed struct {
		Value struct {
			Amount   string  `json:"amount"`
			UIAmount float64 `json:"uiAmount"`
			Decimals uint8   `json:"decimals"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return TokenAmount{}, &RPCError{Method: "getTokenAccountBalance", Err: fmt.Errorf("parse result: %w", err)}
	}

	raw, err := strconv.ParseUint(parsed.Value.Amount, 10, 64)
	if err != nil {
		return TokenAmount{}, &RPCError{Method: "getTokenAccountBalance", Err: fmt.Errorf("parse amount: %w", err)}
	}

	return TokenAmount{
		RawAmount: raw,
		UIAmount:  parsed.Value.UIAmount,
		Decimals:  parsed.Value.Decimals,
	}, nil
}

// GetLatestBlockhash fetches a fresh transaction-ordering token. Hashes
// expire quickly, so this is called immediately before every submission.
func (c *Client) GetLatestBlockhash(ctx context.Context) (Blockhash, error) {
	result, err := c.call(ctx, "getLatestBlockhash", []interface{}{
		map[string]string{"commitment": "confirmed"},
	})
	if err != nil {
		return Blockhash{}, err
	}

	var parsed struct {
		Value struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return Blockhash{}, &RPCError{Method: "getLatestBlockhash", Err: fmt.Errorf("parse result: %w", err)}
	}

	hashBytes, err := base58.Decode(parsed.Value.Blockhash)
	if err != nil || len(hashBytes) != 32 {
		return Blockhash{}, &RPCError{Method: "getLatestBlockhash", Err: fmt.Errorf("invalid blockhash %q", parsed.Value.Blockhash)}
	}

	var bh Blockhash
	copy(bh.Hash[:], hashBytes)
	bh.LastValidBlockHeight = parsed.Value.LastValidBlockHeight
	return bh, nil
}

// SendTransaction broadcasts a signed transaction without waiting for
// confirmation
func (c *Client) SendTransaction(ctx context.Context, tx *Transaction) (string, error) {
	result, err := c.call(ctx, "sendTransaction", []interface{}{
		tx.Base64(),
		map[string]interface{}{
			"encoding":            "base64",
			"preflightCommitment": "confirmed",
		},
	})
	if err != nil {
		return "", err
	}

	var signature string
	if err := json.Unmarshal(result, &signature); err != nil {
		return "", &RPCError{Method: "sendTransaction", Err: fmt.Errorf("parse result: %w", err)}
	}

	c.logger.Debug("transaction sent", "signature", signature)
	return signature, nil
}

// GetSignatureStatuses fetches the confirmation state of submitted
// transactions
func (c *Client) GetSignatureStatuses(ctx context.Context, signatures []string) ([]SignatureStatus, error) {
	result, err := c.call(ctx, "getSignatureStatuses", []interface{}{
		signatures,
		map[string]bool{"searchTransactionHistory": true},
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Value []*SignatureStatus `json:"value"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, &RPCError{Method: "getSignatureStatuses", Err: fmt.Errorf("parse result: %w", err)}
	}

	statuses := make([]SignatureStatus, len(parsed.Value))
	for i, s := range parsed.Value {
		if s != nil {
			statuses[i] = *s
		}
	}
	return statuses, nil
}

// SendAndConfirmTransaction submits a signed transaction and polls until
// it is confirmed, fails on-chain, or the confirmation window elapses
func (c *Client) SendAndConfirmTransaction(ctx context.Context, tx *Transaction) (string, error) {
	signature, err := c.SendTransaction(ctx, tx)
	if err != nil {
		return "", err
	}

	pollCtx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	for {
		statuses, err := c.GetSignatureStatuses(pollCtx, []string{signature})
		if err != nil {
			// Transient poll errors are retried until the window closes
			c.logger.Warn("confirmation poll error", "signature", signature, "error", err)
		} else if len(statuses) > 0 {
			status := statuses[0]
			if status.Err != nil {
				return signature, fmt.Errorf("%w: %v", ErrTransactionFailed, status.Err)
			}
			if status.ConfirmationStatus != nil {
				cs := *status.ConfirmationStatus
				if cs == "confirmed" || cs == "finalized" {
					c.logger.Debug("transaction confirmed",
						"signature", signature, "slot", status.Slot, "status", cs)
					return signature, nil
				}
			}
		}

		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return signature, ctx.Err()
			}
			return signature, fmt.Errorf("%w: signature %s", ErrConfirmationTimeout, signature)
		case <-time.After(c.confirmPollInterval):
		}
	}
}
