// Command server runs the ledger behind an HTTP API: the payment provider
// webhook, a small account API for the app backend, health and metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	ledger "github.com/rechtskompass/ledger"
	audithook "github.com/rechtskompass/ledger/audit_hook"
	"github.com/rechtskompass/ledger/billing"
	"github.com/rechtskompass/ledger/observability"
	"github.com/rechtskompass/ledger/webhook"
)

type config struct {
	Addr            string        `env:"LEDGER_ADDR"              envDefault:":8080"`
	App             string        `env:"LEDGER_APP"               envDefault:"rechtskompass"`
	WebhookSecret   string        `env:"STRIPE_WEBHOOK_SECRET"`
	WebhookPath     string        `env:"LEDGER_WEBHOOK_PATH"      envDefault:"/webhooks/stripe"`
	MaxBodyBytes    int64         `env:"LEDGER_MAX_BODY_BYTES"    envDefault:"65536"`
	PluginTimeout   time.Duration `env:"LEDGER_PLUGIN_TIMEOUT"    envDefault:"5s"`
	ShutdownTimeout time.Duration `env:"LEDGER_SHUTDOWN_TIMEOUT"  envDefault:"10s"`
	LogLevel        slog.Level    `env:"LEDGER_LOG_LEVEL"         envDefault:"info"`
	Audit           bool          `env:"LEDGER_AUDIT"             envDefault:"true"`
	Production      bool          `env:"LEDGER_PRODUCTION"`

	DatabaseDriver   string `env:"LEDGER_DATABASE_DRIVER"    envDefault:"memory"`
	DatabaseURL      string `env:"LEDGER_DATABASE_URL"`
	DatabasePoolSize int    `env:"LEDGER_DATABASE_POOL_SIZE" envDefault:"10"`
}

func loadConfig() (config, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []ledger.Option{
		ledger.WithLogger(logger),
		ledger.WithPluginTimeout(cfg.PluginTimeout),
		ledger.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))),
	}
	if cfg.Audit {
		opts = append(opts, ledger.WithPlugin(audithook.New(auditLogger(logger), audithook.WithLogger(logger))))
	}

	store, err := openStore(context.Background(), cfg)
	if err != nil {
		return err
	}
	l := ledger.New(store, opts...)
	if err := l.Start(context.Background()); err != nil {
		_ = store.Close()
		return fmt.Errorf("start ledger: %w", err)
	}
	logger.Info("store ready", "driver", cfg.DatabaseDriver)
	defer func() {
		if err := l.Stop(); err != nil {
			logger.Warn("ledger stop", "error", err)
		}
	}()

	processor := billing.NewProcessor(l, cfg.App)
	hook := webhook.NewHandler(processor, cfg.WebhookSecret,
		webhook.WithLogger(logger),
		webhook.WithMaxBodyBytes(cfg.MaxBodyBytes),
	)
	if cfg.WebhookSecret == "" {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set; webhook will answer 500")
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	router.GET("/health", healthHandler(l))
	router.GET("/metrics", gin.WrapH(observability.Handler(reg)))
	hook.Register(router, cfg.WebhookPath)
	newAccountAPI(l).register(router.Group("/accounts"))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "webhook_path", cfg.WebhookPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

// auditLogger writes audit events to the structured log.
func auditLogger(logger *slog.Logger) audithook.Recorder {
	return audithook.RecorderFunc(func(_ context.Context, ev *audithook.AuditEvent) error {
		logger.Info("audit",
			"action", ev.Action,
			"resource", ev.Resource,
			"resource_id", ev.ResourceID,
			"outcome", ev.Outcome,
			"severity", ev.Severity,
			"metadata", ev.Metadata,
		)
		return nil
	})
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

func healthHandler(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := l.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
