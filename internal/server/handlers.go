package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mgaillard/solbatch/internal/jobs/poll"
	"github.com/mgaillard/solbatch/internal/ledger"
	"github.com/mgaillard/solbatch/internal/ops"
	"github.com/mgaillard/solbatch/internal/version"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "solbatch"})
}

func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get())
}

func (s *Server) handleListJobs(c *gin.Context) {
	list := s.registry.List()
	c.JSON(http.StatusOK, gin.H{"jobs": list, "count": len(list)})
}

func (s *Server) handleGetJob(c *gin.Context) {
	info, ok := s.registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleCancelJob(c *gin.Context) {
	id := c.Param("id")
	if !s.registry.Cancel(id) {
		if _, ok := s.registry.Get(id); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": "job already finished"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": id, "cancelling": true})
}

// pollRequest carries optional per-request overrides of the polling
// defaults
type pollRequest struct {
	TimeoutSeconds  float64  `json:"timeout_seconds"`
	IntervalSeconds float64  `json:"interval_seconds"`
	JobIDs          []string `json:"job_ids"`
}

func (r pollRequest) config(defaults poll.Config) poll.Config {
	cfg := defaults
	if r.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(r.TimeoutSeconds * float64(time.Second))
	}
	if r.IntervalSeconds > 0 {
		cfg.Interval = time.Duration(r.IntervalSeconds * float64(time.Second))
	}
	return cfg
}

func (s *Server) pollDefaults() poll.Config {
	return poll.Config{
		Timeout:  s.pollCfg.Timeout,
		Interval: s.pollCfg.Interval,
	}
}

func (s *Server) handlePollJob(c *gin.Context) {
	var req pollRequest
	// Body is optional; an empty body means the configured defaults
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info, err := s.poller.PollJob(c.Request.Context(), c.Param("id"), req.config(s.pollDefaults()))
	if err != nil {
		if errors.Is(err, poll.ErrTimeout) {
			c.JSON(http.StatusOK, gin.H{"timed_out": true, "job": info})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"timed_out": false, "job": info})
}

func (s *Server) handlePollBatch(c *gin.Context) {
	var req pollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.JobIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no job ids provided"})
		return
	}

	result, err := s.poller.PollBatch(c.Request.Context(), req.JobIDs, req.config(s.pollDefaults()))
	if err != nil && !errors.Is(err, poll.ErrTimeout) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"timed_out": errors.Is(err, poll.ErrTimeout), "result": result})
}

// Operation endpoints share one shape: bind, validate synchronously, spawn
// a job, answer 202 with the job id. Validation failures never create a
// job.

// acceptOp validates an operation request and spawns its job
func (s *Server) acceptOp(c *gin.Context, req ops.Request) {
	if err := s.ops.Validate(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": s.ops.Spawn(req)})
}

func (s *Server) handleRefund(c *gin.Context) {
	var req ops.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.acceptOp(c, req)
}

func (s *Server) handleRefundAmount(c *gin.Context) {
	var req ops.RefundAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.acceptOp(c, req)
}

func (s *Server) handleDistribute(c *gin.Context) {
	var req ops.DistributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.acceptOp(c, req)
}

func (s *Server) handleCloseAccounts(c *gin.Context) {
	var req ops.CloseAccountsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.acceptOp(c, req)
}

// closeTokenAccountRequest accepts either a single mint or a mint list;
// exactly one of the two must be set
type closeTokenAccountRequest struct {
	WalletKey string   `json:"wallet_key" binding:"required"`
	Mint      string   `json:"mint"`
	Mints     []string `json:"mints"`
}

func (s *Server) handleCloseTokenAccount(c *gin.Context) {
	var req closeTokenAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch {
	case req.Mint != "" && len(req.Mints) > 0:
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide either mint or mints, not both"})
	case len(req.Mints) > 0:
		s.acceptOp(c, ops.CloseTokenAccountsBatchRequest{WalletKey: req.WalletKey, Mints: req.Mints})
	case req.Mint != "":
		s.acceptOp(c, ops.CloseTokenAccountRequest{WalletKey: req.WalletKey, Mint: req.Mint})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mint or mints required"})
	}
}

// burnHTTPRequest accepts either a single mint or a mint list
type burnHTTPRequest struct {
	WalletKey  string   `json:"wallet_key" binding:"required"`
	Mint       string   `json:"mint"`
	Mints      []string `json:"mints"`
	Percentage float64  `json:"percentage" binding:"required"`
}

func (s *Server) handleBurn(c *gin.Context) {
	var req burnHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch {
	case req.Mint != "" && len(req.Mints) > 0:
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide either mint or mints, not both"})
	case len(req.Mints) > 0:
		s.acceptOp(c, ops.BurnBatchRequest{WalletKey: req.WalletKey, Mints: req.Mints, Percentage: req.Percentage})
	case req.Mint != "":
		s.acceptOp(c, ops.BurnRequest{WalletKey: req.WalletKey, Mint: req.Mint, Percentage: req.Percentage})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mint or mints required"})
	}
}

func (s *Server) handleWalletBalance(c *gin.Context) {
	address := c.Param("address")
	if _, err := ledger.DecodeAddress(address); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	lamports, sol, err := s.ops.WalletBalance(c.Request.Context(), address)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": address, "lamports": lamports, "sol": sol})
}

func (s *Server) handleWalletTokens(c *gin.Context) {
	address := c.Param("address")
	if _, err := ledger.DecodeAddress(address); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tokens, err := s.ops.WalletTokens(c.Request.Context(), address)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": address, "tokens": tokens, "count": len(tokens)})
}
