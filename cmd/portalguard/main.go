package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/portalguard/portalguard/internal/access"
	"github.com/portalguard/portalguard/internal/audit"
	"github.com/portalguard/portalguard/internal/gateway"
	"github.com/portalguard/portalguard/internal/guard"
	"github.com/portalguard/portalguard/internal/platform/config"
	"github.com/portalguard/portalguard/internal/platform/database"
	"github.com/portalguard/portalguard/internal/platform/server"
	"github.com/portalguard/portalguard/internal/platform/telemetry"
	"github.com/portalguard/portalguard/internal/policy"
	"github.com/portalguard/portalguard/internal/proxy"
	"github.com/portalguard/portalguard/internal/rbac"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	checkOnly := flag.Bool("check", false, "validate the policy and exit")
	seedFrom := flag.String("seed-policy", "", "write the policy from this YAML file (or \"default\") to the database and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
	telemetry.SetDefault(logger)

	slog.Info("portalguard starting",
		"port", cfg.Server.Port,
		"upstream", cfg.Upstream.URL,
		"policy_source", cfg.Policy.Source,
	)

	ctx := context.Background()
	var pool *database.Pool

	if cfg.Database.URL != "" {
		slog.Info("connecting to database")
		p, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			if cfg.Policy.Source == "db" || *seedFrom != "" {
				return fmt.Errorf("connecting to database: %w", err)
			}
			slog.Warn("database connection failed, starting without DB", "error", err)
		} else {
			pool = p
			defer pool.Close()

			if cfg.Database.Migrate {
				if err := database.Migrate(ctx, pool); err != nil {
					return fmt.Errorf("running migrations: %w", err)
				}
				slog.Info("migrations complete")
			}
		}
	}

	if *seedFrom != "" {
		if pool == nil {
			return fmt.Errorf("seeding the policy requires database.url")
		}
		doc := policy.DefaultDocument()
		if *seedFrom != "default" {
			if doc, err = policy.LoadFile(*seedFrom); err != nil {
				return err
			}
		}
		if err := seedPolicy(ctx, pool, doc); err != nil {
			return fmt.Errorf("seeding policy: %w", err)
		}
		slog.Info("policy seeded", "rules", len(doc.Rules), "roles", len(doc.Roles))
		return nil
	}

	// Policy
	loader, err := policyLoader(cfg.Policy, pool)
	if err != nil {
		return err
	}
	doc, err := loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading policy: %w", err)
	}
	engine, err := access.Build(doc)
	if err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	slog.Info("policy loaded", "rules", engine.Table().Len(), "roles", len(engine.Model().Roles()))
	if *checkOnly {
		return nil
	}
	engines := access.NewHolder(engine)

	// Credentials
	verifier, closeVerifier, err := buildVerifier(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeVerifier()

	// Audit
	var auditLogger audit.Logger = audit.NopLogger{}
	var auditHandler *audit.Handler
	switch {
	case !cfg.Audit.Enabled:
	case pool != nil:
		auditLogger = audit.NewAsyncLogger(pool, audit.NewStore(), audit.LoggerConfig{
			BufferSize:    cfg.Audit.BufferSize,
			BatchSize:     cfg.Audit.BatchSize,
			FlushInterval: cfg.Audit.FlushInterval,
		}, logger)
		auditHandler = audit.NewHandler(pool)
		slog.Info("audit logger started")
	default:
		auditLogger = audit.SlogLogger{Logger: logger}
	}
	defer auditLogger.Close()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	if !cfg.Metrics.Enabled {
		metricsHandler = nil
	}

	gw := gateway.New(engines, verifier, gateway.Config{
		SignInPath:       cfg.Policy.SignInPath,
		UnauthorizedPath: cfg.Policy.UnauthorizedPath,
		VerifyTimeout:    cfg.Auth.VerifyTimeout,
		Locales:          cfg.Policy.Locales,
	},
		gateway.WithAuditLogger(auditLogger),
		gateway.WithMetrics(gateway.NewMetrics(reg)),
		gateway.WithLogger(logger),
	)

	upstream, err := proxy.New(proxy.Config{
		URL:           cfg.Upstream.URL,
		FlushInterval: cfg.Upstream.FlushInterval,
	}, logger)
	if err != nil {
		return err
	}

	evaluator := rbac.NewEvaluator(engine.Model())

	srv := server.New(cfg.Server.Addr(), server.Dependencies{
		Pool:               pool,
		Engines:            engines,
		Gateway:            gw,
		Upstream:           upstream,
		Verifier:           verifier,
		VerifyTimeout:      cfg.Auth.VerifyTimeout,
		RBAC:               evaluator,
		AuditHandler:       auditHandler,
		GuardHandler:       guard.NewHandler(engines, cfg.Policy.Locales),
		RBACAuditLogger:    auditLogger,
		Metrics:            metricsHandler,
		MetricsPath:        cfg.Metrics.Path,
		Logger:             logger,
		CORSAllowedOrigins: cfg.CORS.Origins,
		ReadTimeout:        cfg.Server.ReadTimeout,
		WriteTimeout:       cfg.Server.WriteTimeout,
		ShutdownTimeout:    cfg.Server.ShutdownTimeout,
	})

	// Graceful shutdown on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		return watchReload(gctx, engines, loader, evaluator)
	})

	slog.Info("server ready", "addr", cfg.Server.Addr(), "dev_mode", cfg.Auth.DevMode)
	return g.Wait()
}
