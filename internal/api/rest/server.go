package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/davidleathers/healthcare-security-pipeline/internal/infrastructure/config"
)

// Server hosts the pipeline's HTTP API
type Server struct {
	config     *config.ServerConfig
	logger     *zap.Logger
	handler    *Handler
	httpServer *http.Server
}

func NewServer(cfg *config.ServerConfig, logger *zap.Logger, handler *Handler) *Server {
	s := &Server{
		config:  cfg,
		logger:  logger,
		handler: handler,
	}

	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Port),
		Handler:        s.routes(),
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handler.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	v1 := http.NewServeMux()

	v1.HandleFunc("POST /evaluate", s.handler.handleEvaluate)

	v1.HandleFunc("POST /tokens", s.handler.handleIssueTokens)
	v1.HandleFunc("POST /tokens/verify", s.handler.handleVerifyToken)
	v1.HandleFunc("POST /tokens/refresh", s.handler.handleRefreshToken)
	v1.HandleFunc("POST /tokens/revoke", s.handler.handleRevokeToken)

	v1.HandleFunc("GET /audit/events", s.handler.handleGetAuditEvents)
	v1.HandleFunc("GET /audit/analytics", s.handler.handleGetAuditAnalytics)
	v1.HandleFunc("POST /audit/investigations", s.handler.handleCreateInvestigation)
	v1.HandleFunc("GET /audit/investigations", s.handler.handleGetInvestigations)
	v1.HandleFunc("PATCH /audit/investigations/{id}", s.handler.handleUpdateInvestigation)

	v1.HandleFunc("POST /privacy/anonymize", s.handler.handleAnonymize)
	v1.HandleFunc("POST /privacy/generalize", s.handler.handleGeneralize)
	v1.HandleFunc("POST /privacy/noise", s.handler.handleAddNoise)
	v1.HandleFunc("POST /privacy/pseudonyms", s.handler.handleCreatePseudonym)
	v1.HandleFunc("POST /privacy/pseudonyms/reverse", s.handler.handleReversePseudonym)

	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", v1))

	return withLogging(s.logger, withCorrelationID(mux))
}

// Start begins serving and blocks until the listener fails
func (s *Server) Start() error {
	s.logger.Info("starting API server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout
func (s *Server) Shutdown() error {
	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
