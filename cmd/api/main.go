package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/davidleathers/healthcare-security-pipeline/internal/api/rest"
	"github.com/davidleathers/healthcare-security-pipeline/internal/infrastructure/cache"
	"github.com/davidleathers/healthcare-security-pipeline/internal/infrastructure/config"
	"github.com/davidleathers/healthcare-security-pipeline/internal/infrastructure/repository"
	"github.com/davidleathers/healthcare-security-pipeline/internal/infrastructure/telemetry"
	"github.com/davidleathers/healthcare-security-pipeline/internal/metrics"
	auditsvc "github.com/davidleathers/healthcare-security-pipeline/internal/service/audit"
	privacysvc "github.com/davidleathers/healthcare-security-pipeline/internal/service/privacy"
	risksvc "github.com/davidleathers/healthcare-security-pipeline/internal/service/risk"
	tokensvc "github.com/davidleathers/healthcare-security-pipeline/internal/service/token"
)

var configPath = flag.String("config", "configs/config.yaml", "path to the configuration file")

func main() {
	flag.Parse()

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Fatal("security pipeline failed", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	zapCfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryProvider, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    "secpipeline",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SamplingRate:   cfg.Telemetry.SamplingRate,
		ExportTimeout:  cfg.Telemetry.ExportTimeout,
		BatchTimeout:   cfg.Telemetry.BatchTimeout,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetryProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	pool, err := repository.NewPool(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	if err := repository.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}

	redisClient, err := cache.NewRedisClient(&cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer redisClient.Close()

	eventRepo := repository.NewAuditEventRepository(pool)
	investigationRepo := repository.NewInvestigationRepository(pool)
	pseudonymRepo := repository.NewPseudonymRepository(pool)

	tokens, err := tokensvc.NewManager(tokensvc.Config{
		SigningSecret: []byte(cfg.Token.SigningSecret),
		Issuer:        cfg.Token.Issuer,
		Audience:      strings.Split(cfg.Token.Audience, ","),
		AccessTTL:     cfg.Token.AccessTTL,
		RefreshTTL:    cfg.Token.RefreshTTL,
		Leeway:        cfg.Token.Leeway,
	}, logger)
	if err != nil {
		return fmt.Errorf("building token manager: %w", err)
	}

	trailCfg := auditsvc.DefaultConfig()
	trailCfg.RingSize = cfg.Audit.RingSize
	trailCfg.WriterQueueSize = cfg.Audit.WriterQueueSize
	trailCfg.WriteTimeout = cfg.Audit.WriteTimeout

	trail, err := auditsvc.NewTrail(ctx, trailCfg, logger, eventRepo, investigationRepo)
	if err != nil {
		return fmt.Errorf("building audit trail: %w", err)
	}
	defer trail.Stop()

	privacyEngine, err := privacysvc.NewEngine(privacysvc.Config{
		PseudonymSecret:  []byte(cfg.Privacy.PseudonymSecret),
		PBKDF2Iterations: cfg.Privacy.PBKDF2Iterations,
		DefaultK:         cfg.Privacy.DefaultK,
		DefaultL:         cfg.Privacy.DefaultL,
	}, logger, pseudonymRepo, privacysvc.NewGrantAuthorizer(cfg.Privacy.ReversalGrants), trail)
	if err != nil {
		return fmt.Errorf("building privacy engine: %w", err)
	}

	sessions := cache.NewSessionStore(redisClient, logger, cache.DefaultSessionTTL)
	limiter := cache.NewSlidingWindowLimiter(redisClient, logger,
		cfg.Risk.RateLimit.BurstSize, cfg.Risk.RateLimit.Window,
		cfg.Risk.RateLimit.RequestsPerSecond)

	engine, err := risksvc.NewEngine(risksvc.Config{
		CheckTimeout: cfg.Risk.CheckTimeout,
		Heuristics: risksvc.HeuristicConfig{
			RateCheckEnabled:        cfg.Risk.RateCheckEnabled,
			IPReputationEnabled:     cfg.Risk.IPReputation,
			FingerprintCheckEnabled: cfg.Risk.FingerprintCheck,
			DeniedNetworks:          cfg.Risk.DeniedNetworks,
		},
	}, logger, tokens, sessions, limiter, nil, trail)
	if err != nil {
		return fmt.Errorf("building risk engine: %w", err)
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Audit.SweepSchedule, func() {
		removed, err := trail.CleanupExpiredEvents(context.Background())
		if err != nil {
			logger.Error("retention sweep failed", zap.Error(err))
			return
		}
		if removed > 0 {
			logger.Info("retention sweep complete", zap.Int64("removed", removed))
		}
	}); err != nil {
		return fmt.Errorf("scheduling retention sweep: %w", err)
	}
	if _, err := scheduler.AddFunc(cfg.Audit.FlushSchedule, func() {
		if flushed := trail.Flush(context.Background()); flushed > 0 {
			logger.Info("flushed retried audit writes", zap.Int("flushed", flushed))
		}
		metrics.SetAuditPendingWrites(trail.PendingWrites())
	}); err != nil {
		return fmt.Errorf("scheduling audit flush: %w", err)
	}
	scheduler.Schedule(cron.Every(cfg.Token.SweepInterval), cron.FuncJob(func() {
		if evicted := tokens.SweepDenylist(); evicted > 0 {
			logger.Debug("denylist sweep complete", zap.Int("evicted", evicted))
		}
		metrics.SetDenylistSize(tokens.DenylistSize())
	}))
	scheduler.Start()
	defer scheduler.Stop()

	handler := rest.NewHandler(logger, tokens, engine, trail, privacyEngine)
	server := rest.NewServer(&cfg.Server, logger, handler)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	logger.Info("security pipeline started",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Environment),
		zap.Int("port", cfg.Server.Port))

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	return server.Shutdown()
}
