package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	cfg := DefaultConfig()
	client := New(cfg)

	if client == nil {
		t.Fatal("expected non-nil client")
	}
	if client.timeout != cfg.Timeout {
		t.Errorf("expected timeout %v, got %v", cfg.Timeout, client.timeout)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Timeout != 30*time.Second {
		t.Errorf("expected timeout 30s, got %v", cfg.Timeout)
	}
	if cfg.MaxIdleConns != 10 {
		t.Errorf("expected MaxIdleConns 10, got %d", cfg.MaxIdleConns)
	}
	if cfg.SkipTLSVerify {
		t.Error("expected SkipTLSVerify false")
	}
}

func TestClientPostJSON(t *testing.T) {
	type payload struct {
		Method string `json:"method"`
		ID     int    `json:"id"`
	}
	want := payload{Method: "getBalance", ID: 1}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", ct)
		}

		var got payload
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		if got != want {
			t.Errorf("expected %+v, got %+v", want, got)
		}

		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	client := New(DefaultConfig())
	resp, err := client.PostJSON(context.Background(), server.URL, want)
	if err != nil {
		t.Fatalf("PostJSON failed: %v", err)
	}

	var decoded map[string]string
	if err := client.DecodeJSON(resp, &decoded); err != nil {
		t.Fatalf("DecodeJSON failed: %v", err)
	}
	if decoded["status"] != "ok" {
		t.Errorf("expected status ok, got %s", decoded["status"])
	}
}

func TestDecodeJSONNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("rate limited"))
	}))
	defer server.Close()

	client := New(DefaultConfig())
	resp, err := client.PostJSON(context.Background(), server.URL, map[string]int{"id": 1})
	if err != nil {
		t.Fatalf("PostJSON failed: %v", err)
	}

	var target map[string]string
	err = client.DecodeJSON(resp, &target)
	if err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}

func TestClientContextCancellation(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	client := New(DefaultConfig())
	if _, err := client.PostJSON(ctx, server.URL, map[string]int{"id": 1}); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
