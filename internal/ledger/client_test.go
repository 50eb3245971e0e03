package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcHandler routes JSON-RPC methods to canned responders
type rpcHandler struct {
	t        *testing.T
	handlers map[string]func(params []interface{}) (interface{}, *rpcTestError)
	calls    map[string]int
}

type rpcTestError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func newRPCHandler(t *testing.T) *rpcHandler {
	return &rpcHandler{
		t:        t,
		handlers: map[string]func(params []interface{}) (interface{}, *rpcTestError){},
		calls:    map[string]int{},
	}
}

func (h *rpcHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string        `json:"method"`
		Params []interface{} `json:"params"`
		ID     int           `json:"id"`
	}
	require.NoError(h.t, json.NewDecoder(r.Body).Decode(&req))
	h.calls[req.Method]++

	handler, ok := h.handlers[req.Method]
	if !ok {
		h.t.Errorf("unexpected RPC method %s", req.Method)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	result, rpcErr := handler(req.Params)
	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	require.NoError(h.t, json.NewEncoder(w).Encode(resp))
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(ClientConfig{
		RPCURL:              server.URL,
		RequestTimeout:      2 * time.Second,
		ConfirmTimeout:      500 * time.Millisecond,
		ConfirmPollInterval: 10 * time.Millisecond,
	})
}

func TestGetBalance(t *testing.T) {
	h := newRPCHandler(t)
	h.handlers["getBalance"] = func(params []interface{}) (interface{}, *rpcTestError) {
		require.NotEmpty(t, params)
		assert.Equal(t, "SomeAddress", params[0])
		return map[string]interface{}{"context": map[string]int{"slot": 1}, "value": 123456}, nil
	}

	client := newTestClient(t, h)
	balance, err := client.GetBalance(context.Background(), "SomeAddress")
	require.NoError(t, err)
	assert.Equal(t, uint64(123456), balance)
}

func TestGetBalanceRPCErrorIsFatal(t *testing.T) {
	h := newRPCHandler(t)
	h.handlers["getBalance"] = func(params []interface{}) (interface{}, *rpcTestError) {
		return nil, &rpcTestError{Code: -32602, Message: "invalid params"}
	}

	client := newTestClient(t, h)
	_, err := client.GetBalance(context.Background(), "bad")
	require.Error(t, err)
	assert.False(t, IsTransient(err), "application-level RPC errors are not transient")
	assert.Contains(t, err.Error(), "invalid params")
}

func TestHTTPErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	client := NewClient(ClientConfig{RPCURL: server.URL, RequestTimeout: time.Second})
	_, err := client.GetBalance(context.Background(), "addr")
	require.Error(t, err)
	assert.True(t, IsTransient(err), "HTTP 5xx must be classified transient")
}

func TestGetTokenAccountsByOwner(t *testing.T) {
	h := newRPCHandler(t)
	h.handlers["getTokenAccountsByOwner"] = func(params []interface{}) (interface{}, *rpcTestError) {
		return map[string]interface{}{
			"value": []map[string]interface{}{
				{
					"pubkey": "TokenAcc1",
					"account": map[string]interface{}{
						"data": map[string]interface{}{
							"parsed": map[string]interface{}{
								"info": map[string]interface{}{
									"mint": "Mint1",
									"tokenAmount": map[string]interface{}{
										"amount":   "1000000",
										"uiAmount": 1.0,
										"decimals": 6,
									},
								},
							},
						},
					},
				},
				{
					"pubkey": "TokenAcc2",
					"account": map[string]interface{}{
						"data": map[string]interface{}{
							"parsed": map[string]interface{}{
								"info": map[string]interface{}{
									"mint": "Mint2",
									"tokenAmount": map[string]interface{}{
										"amount":   "0",
										"uiAmount": 0.0,
										"decimals": 9,
									},
								},
							},
						},
					},
				},
			},
		}, nil
	}

	client := newTestClient(t, h)
	accounts, err := client.GetTokenAccountsByOwner(context.Background(), "Owner")
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	assert.Equal(t, "TokenAcc1", accounts[0].Address)
	assert.Equal(t, "Mint1", accounts[0].Mint)
	assert.Equal(t, uint64(1_000_000), accounts[0].Amount.RawAmount)
	assert.Equal(t, uint8(6), accounts[0].Amount.Decimals)

	assert.Zero(t, accounts[1].Amount.RawAmount)
	assert.Zero(t, accounts[1].Amount.UIAmount)
}

func TestGetTokenAccountBalance(t *testing.T) {
	h := newRPCHandler(t)
	h.handlers["getTokenAccountBalance"] = func(params []interface{}) (interface{}, *rpcTestError) {
		require.NotEmpty(t, params)
		assert.Equal(t, "TokenAcc1", params[0])
		return map[string]interface{}{
			"value": map[string]interface{}{
				"amount":   "2500000",
				"uiAmount": 2.5,
				"decimals": 6,
			},
		}, nil
	}

	client := newTestClient(t, h)
	amount, err := client.GetTokenAccountBalance(context.Background(), "TokenAcc1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2_500_000), amount.RawAmount)
	assert.Equal(t, 2.5, amount.UIAmount)
	assert.Equal(t, uint8(6), amount.Decimals)
}

func TestGetLatestBlockhash(t *testing.T) {
	hash := make([]byte, 32)
	hash[0] = 0xab

	h := newRPCHandler(t)
	h.handlers["getLatestBlockhash"] = func(params []interface{}) (interface{}, *rpcTestError) {
		return map[string]interface{}{
			"value": map[string]interface{}{
				"blockhash":            base58.Encode(hash),
				"lastValidBlockHeight": 4242,
			},
		}, nil
	}

	client := newTestClient(t, h)
	bh, err := client.GetLatestBlockhash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(0xab), bh.Hash[0])
	assert.Equal(t, uint64(4242), bh.LastValidBlockHeight)
}

func signedTestTransaction(t *testing.T) *Transaction {
	t.Helper()
	payer := generateKeypair(t)
	var dest [32]byte
	dest[0] = 1
	tx, err := NewTransaction(
		[]Instruction{NewTransferInstruction(payer.PublicKey(), dest, 1)},
		payer, []*Keypair{payer}, Blockhash{})
	require.NoError(t, err)
	return tx
}

func TestSendAndConfirmTransaction(t *testing.T) {
	confirmed := "confirmed"
	polls := 0

	h := newRPCHandler(t)
	h.handlers["sendTransaction"] = func(params []interface{}) (interface{}, *rpcTestError) {
		require.NotEmpty(t, params)
		// The wire payload must be base64
		_, ok := params[0].(string)
		assert.True(t, ok)
		return "TestSignature", nil
	}
	h.handlers["getSignatureStatuses"] = func(params []interface{}) (interface{}, *rpcTestError) {
		polls++
		if polls < 2 {
			// Not yet visible
			return map[string]interface{}{"value": []interface{}{nil}}, nil
		}
		return map[string]interface{}{
			"value": []interface{}{
				map[string]interface{}{
					"slot":               100,
					"confirmationStatus": confirmed,
					"err":                nil,
				},
			},
		}, nil
	}

	client := newTestClient(t, h)
	sig, err := client.SendAndConfirmTransaction(context.Background(), signedTestTransaction(t))
	require.NoError(t, err)
	assert.Equal(t, "TestSignature", sig)
	assert.GreaterOrEqual(t, polls, 2)
}

func TestSendAndConfirmTransactionOnChainFailure(t *testing.T) {
	h := newRPCHandler(t)
	h.handlers["sendTransaction"] = func(params []interface{}) (interface{}, *rpcTestError) {
		return "FailedSig", nil
	}
	h.handlers["getSignatureStatuses"] = func(params []interface{}) (interface{}, *rpcTestError) {
		return map[string]interface{}{
			"value": []interface{}{
				map[string]interface{}{
					"slot": 100,
					"err":  map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
				},
			},
		}, nil
	}

	client := newTestClient(t, h)
	_, err := client.SendAndConfirmTransaction(context.Background(), signedTestTransaction(t))
	require.ErrorIs(t, err, ErrTransactionFailed)
}

func TestSendAndConfirmTransactionTimeout(t *testing.T) {
	h := newRPCHandler(t)
	h.handlers["sendTransaction"] = func(params []interface{}) (interface{}, *rpcTestError) {
		return "SlowSig", nil
	}
	h.handlers["getSignatureStatuses"] = func(params []interface{}) (interface{}, *rpcTestError) {
		// Never confirms
		return map[string]interface{}{"value": []interface{}{nil}}, nil
	}

	client := newTestClient(t, h)
	_, err := client.SendAndConfirmTransaction(context.Background(), signedTestTransaction(t))
	require.ErrorIs(t, err, ErrConfirmationTimeout)
}

func TestRPCErrorFormatting(t *testing.T) {
	err := &RPCError{Method: "getBalance", Transient: true, Err: fmt.Errorf("connection refused")}
	assert.Contains(t, err.Error(), "getBalance")
	assert.Contains(t, err.Error(), "connection refused")
	assert.True(t, IsTransient(err))
	assert.False(t, IsTransient(fmt.Errorf("plain error")))
}
