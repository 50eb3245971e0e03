// Package server exposes the HTTP command surface: job inspection and
// long-poll endpoints, one endpoint per wallet operation, wallet balance
// reads, and Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mgaillard/solbatch/internal/config"
	"github.com/mgaillard/solbatch/internal/jobs"
	"github.com/mgaillard/solbatch/internal/jobs/poll"
	"github.com/mgaillard/solbatch/internal/ops"
)

// Server wires the HTTP routes to the job registry, the poller and the
// operation strategies
type Server struct {
	cfg      config.ServerConfig
	pollCfg  config.PollingConfig
	registry *jobs.Registry
	poller   *poll.Service
	ops      *ops.Service
	gatherer prometheus.Gatherer
	logger   *slog.Logger

	httpServer *http.Server
}

// New builds the server and its router. Gin runs in release mode; request
// logging goes through the shared slog logger, not gin's default writer.
func New(cfg config.ServerConfig, pollCfg config.PollingConfig, registry *jobs.Registry, poller *poll.Service, opsService *ops.Service, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		pollCfg:  pollCfg,
		registry: registry,
		poller:   poller,
		ops:      opsService,
		gatherer: gatherer,
		logger:   logger.With("component", "server"),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	s.registerRoutes(router)

	s.httpServer = &http.Server{
		Addr:    cfg.Listen,
		Handler: router,
	}
	return s
}

// Handler returns the configured router, used directly by the tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then drains connections
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Listen)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) registerRoutes(router *gin.Engine) {
	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/version", s.handleVersion)

		jobRoutes := api.Group("/jobs")
		{
			jobRoutes.GET("", s.handleListJobs)
			jobRoutes.POST("/poll", s.handlePollBatch)
			jobRoutes.GET("/:id", s.handleGetJob)
			jobRoutes.POST("/:id/cancel", s.handleCancelJob)
			jobRoutes.POST("/:id/poll", s.handlePollJob)
		}

		opRoutes := api.Group("/ops")
		{
			opRoutes.POST("/refund", s.handleRefund)
			opRoutes.POST("/refund-amount", s.handleRefundAmount)
			opRoutes.POST("/distribute", s.handleDistribute)
			opRoutes.POST("/close-accounts", s.handleCloseAccounts)
			opRoutes.POST("/close-token-account", s.handleCloseTokenAccount)
			opRoutes.POST("/burn", s.handleBurn)
		}

		wallets := api.Group("/wallets")
		{
			wallets.GET("/:address/balance", s.handleWalletBalance)
			wallets.GET("/:address/tokens", s.handleWalletTokens)
		}
	}
}

// requestLogger logs one line per request through slog
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).Round(time.Millisecond))
	}
}
