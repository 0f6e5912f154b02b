// SPDX-License-Identifier: MIT

// Command adaptd runs the real-time adaptive-learning server: the
// websocket session endpoint, the synchronous tool API, and the
// background sweepers for idle sessions and expired data.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vrlearn/adaptd/internal/api"
	"github.com/vrlearn/adaptd/internal/audit"
	"github.com/vrlearn/adaptd/internal/cache"
	"github.com/vrlearn/adaptd/internal/clock"
	"github.com/vrlearn/adaptd/internal/config"
	"github.com/vrlearn/adaptd/internal/learner"
	adlog "github.com/vrlearn/adaptd/internal/log"
	"github.com/vrlearn/adaptd/internal/privacy"
	"github.com/vrlearn/adaptd/internal/session"
	"github.com/vrlearn/adaptd/internal/store"
	"github.com/vrlearn/adaptd/internal/telemetry"
	"github.com/vrlearn/adaptd/internal/tools"
	"github.com/vrlearn/adaptd/internal/transition"
	"github.com/vrlearn/adaptd/internal/transport"
	"github.com/vrlearn/adaptd/internal/version"
)

const (
	shutdownGrace  = 10 * time.Second
	retentionSweep = time.Hour
)

func main() {
	os.Exit(run())
}

func run() int {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	level := "info"
	if cfg.Debug {
		level = "debug"
	}
	adlog.Configure(adlog.Config{
		Level:   level,
		Service: cfg.ServerName,
		Version: version.Version,
	})
	logger := adlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		logger.Error().Err(err).Str("dir", cfg.DataDir).Msg("create data dir")
		return 1
	}

	tracing, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.TracingEnabled,
		ServiceName:    cfg.ServerName,
		ServiceVersion: version.Version,
		Endpoint:       cfg.TracingEndpoint,
		SamplingRate:   1.0,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
		return 1
	}
	defer func() { _ = tracing.Shutdown(context.Background()) }()

	keystorePath := cfg.KeystorePath
	if keystorePath == "" {
		keystorePath = filepath.Join(cfg.DataDir, "keystore")
	}
	secret, err := privacy.LoadOrCreateSecret(keystorePath)
	if err != nil {
		logger.Error().Err(err).Msg("load keystore")
		return 1
	}
	cipher, err := privacy.NewCipher(secret)
	if err != nil {
		logger.Error().Err(err).Msg("initialise cipher")
		return 1
	}

	st, err := store.OpenSQLite(filepath.Join(cfg.DataDir, "adaptd.db"), store.DefaultSQLiteConfig())
	if err != nil {
		logger.Error().Err(err).Msg("open store")
		return 1
	}
	defer func() { _ = st.Close() }()

	auditOpts := []audit.Option{}
	var auditSink *audit.BadgerSink
	if cfg.AuditLoggingEnabled {
		auditSink, err = audit.OpenBadgerSink(filepath.Join(cfg.DataDir, "audit"), cfg.Retention())
		if err != nil {
			logger.Error().Err(err).Msg("open audit sink")
			return 1
		}
		defer func() { _ = auditSink.Close() }()
		auditOpts = append(auditOpts, audit.WithSink(auditSink))
	}
	aud := audit.NewLogger(auditOpts...)

	var c cache.Cache
	if cfg.CacheEnabled && cfg.RedisAddr != "" {
		rc, err := cache.NewRedis(cache.RedisConfig{Addr: cfg.RedisAddr}, adlog.WithComponent("cache"))
		if err != nil {
			logger.Error().Err(err).Str("addr", cfg.RedisAddr).Msg("connect redis")
			return 1
		}
		defer func() { _ = rc.Close() }()
		c = rc
	} else {
		c = cache.NewMemory()
	}

	registry := learner.NewRegistry(learner.Config{
		Hasher:    privacy.NewHasher(secret),
		Cipher:    cipher,
		Store:     st,
		Cache:     c,
		Audit:     aud,
		Retention: cfg.Retention(),
		TokenTTL:  cfg.AuthTokenTTL,

		DisableAnonymisation: !cfg.AnonymisationEnabled,
	})

	calc := transition.NewCalculator(cfg.Bands)
	clk := clock.NewService(clock.Real{}, map[string]time.Duration{
		clock.OpCalculator: cfg.CalculatorBudget,
		clock.OpEndToEnd:   cfg.EndToEndBudget,
		clock.OpLearner:    cfg.ToolBudget,
		clock.OpKnowledge:  cfg.ToolBudget,
		clock.OpEngagement: cfg.ToolBudget,
		clock.OpAssessment: cfg.AssessmentBudget,
		clock.OpDecision:   cfg.DecisionBudget,
		clock.OpPersist:    time.Second,
		clock.OpAudit:      time.Second,
	})

	sessions := session.NewManager(session.Config{
		MaxSessions:   cfg.MaxConcurrentLearners,
		IdleTimeout:   cfg.SessionIdleTimeout,
		QueueCapacity: cfg.InboundQueueCapacity,
		DrainGrace:    cfg.DrainGrace,
	}, session.Deps{
		Registry: registry,
		Store:    st,
		Calc:     calc,
		Clock:    clk,
		Audit:    aud,
	})

	toolSvc, err := tools.NewService(tools.Deps{
		Registry: registry,
		Store:    st,
		Cipher:   cipher,
		Calc:     calc,
		Clock:    clk,
		Audit:    aud,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tools")
		return 1
	}

	server := api.New(api.Deps{
		Config:   cfg,
		Sessions: sessions,
		Tools:    toolSvc,
		Socket:   transport.NewHandler(sessions),
		Audit:    aud,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.APIToken == "" {
		logger.Warn().Msg("api_token not configured; every authenticated endpoint will refuse requests")
	}
	logger.Info().
		Str("version", version.Version).
		Str("addr", cfg.ListenAddr).
		Int("max_learners", cfg.MaxConcurrentLearners).
		Bool("audit", cfg.AuditLoggingEnabled).
		Msg("starting adaptd")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		sessions.RunSweeper(ctx)
		return nil
	})

	g.Go(func() error {
		runRetentionSweeper(ctx, logger, st, auditSink, aud, cfg.Retention())
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		logger.Info().Msg("shutting down")
		sessions.Shutdown(shutdownCtx)
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("daemon failed")
		return 1
	}
	logger.Info().Msg("shutdown complete")
	return 0
}

// runRetentionSweeper purges stored rows and audit entries older than
// the retention horizon, once per hour.
func runRetentionSweeper(ctx context.Context, logger zerolog.Logger, st store.Store, sink *audit.BadgerSink, aud *audit.Logger, retention time.Duration) {
	ticker := time.NewTicker(retentionSweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-retention)

			stats, err := st.PurgeBefore(ctx, cutoff)
			if err != nil {
				logger.Warn().Err(err).Msg("retention purge failed")
			} else if stats.Total() > 0 {
				aud.Purged(ctx, "expired_rows", stats.Total())
			}

			if sink != nil {
				n, err := sink.Sweep(ctx, cutoff)
				if err != nil {
					logger.Warn().Err(err).Msg("audit sweep failed")
				} else if n > 0 {
					logger.Info().Int("entries", n).Msg("audit entries swept")
				}
			}
		}
	}
}
