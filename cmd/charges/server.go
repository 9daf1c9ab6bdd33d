package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/artpar/charges/internal/core/domain"
	"github.com/artpar/charges/internal/core/localtime"
	"github.com/artpar/charges/internal/shell/api"
	apimw "github.com/artpar/charges/internal/shell/api/middleware"
	"github.com/artpar/charges/internal/shell/metrics"
	"github.com/artpar/charges/internal/shell/notify"
	"github.com/artpar/charges/internal/shell/processor"
	"github.com/artpar/charges/internal/shell/receipt"
	"github.com/artpar/charges/internal/shell/rulesconfig"
	"github.com/artpar/charges/internal/shell/store"
	"github.com/artpar/charges/internal/shell/workers"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitNotifierError   = 3
	ExitHTTPServerError = 4
)

// =============================================================================
// Server
// =============================================================================

// Server represents the charges application server.
type Server struct {
	config      *Config
	httpServer  *http.Server
	store       store.Store
	inboxWorker *workers.InboxWorker
	closers     []io.Closer
	logger      *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(ctx context.Context, cfg *Config, logger *slog.Logger) (*Server, error) {
	zone, err := localtime.NewZone(cfg.Rules.TimeZone)
	if err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitConfigError}
	}

	rules, err := newRulesProvider(cfg.Rules)
	if err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitConfigError}
	}

	if err := ensureDataDir(cfg.Database.DSN); err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDatabaseError}
	}
	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDatabaseError}
	}

	notifier, closers, err := newNotifier(ctx, cfg.Notifier, logger)
	if err != nil {
		s.Close()
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitNotifierError}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	clock := localtime.SystemClock{}
	deps := processor.Deps{
		Store: s,
		Rules: rules,
		Clock: clock,
		Zone:  zone,
		Receipts: receipt.NewBuilder(domain.MarketParticipant{
			ID:   cfg.Receipts.SenderID,
			Role: domain.MarketParticipantRole(cfg.Receipts.SenderRole),
		}, clock),
		Sender:  receipt.NewSender(notifier, logger),
		Metrics: m,
		Logger:  logger,
	}

	inboxWorker := workers.NewInboxWorker(s,
		processor.NewChargeProcessor(deps),
		processor.NewLinkProcessor(deps),
		clock, m,
		workers.InboxWorkerConfig{
			Interval:  cfg.Worker.Interval,
			BatchSize: cfg.Worker.BatchSize,
			Dispatcher: workers.DispatcherConfig{
				MaxConcurrent:   cfg.Worker.MaxConcurrent,
				ConflictRetries: cfg.Worker.ConflictRetries,
			},
		}, logger)

	handler := api.NewHandler(s, clock, api.Config{
		Metrics: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Participant: apimw.ParticipantConfig{
			SharedSecret: cfg.Auth.SharedSecret,
			Required:     cfg.Auth.RequireParticipant,
		},
	}, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("server configured",
		"time_zone", zone.Name(),
		"notifiers", cfg.Notifier.Kinds(),
		"rules_file", cfg.Rules.File,
	)

	return &Server{
		config:      cfg,
		httpServer:  httpServer,
		store:       s,
		inboxWorker: inboxWorker,
		closers:     closers,
		logger:      logger,
	}, nil
}

func newRulesProvider(cfg RulesConfig) (rulesconfig.Provider, error) {
	if cfg.File != "" {
		return rulesconfig.NewFileProvider(cfg.File, cfg.Configuration())
	}
	return rulesconfig.NewStaticProvider(cfg.Configuration())
}

// newNotifier builds the receipt transports named in cfg. The returned
// closers release their connections.
func newNotifier(ctx context.Context, cfg NotifierConfig, logger *slog.Logger) (notify.Notifier, []io.Closer, error) {
	var notifiers []notify.Notifier
	var closers []io.Closer

	for _, kind := range cfg.Kinds() {
		switch kind {
		case "log":
			notifiers = append(notifiers, notify.NewLogNotifier(logger))
		case "webhook":
			if cfg.WebhookURL == "" {
				return nil, closers, errors.New("notifier.webhook_url is required for the webhook notifier")
			}
			notifiers = append(notifiers, notify.NewWebhookNotifier(notify.WebhookConfig{
				URL:     cfg.WebhookURL,
				APIKey:  cfg.WebhookAPIKey,
				Timeout: cfg.Timeout,
			}))
		case "redis":
			n, client, err := notify.NewRedisStreamNotifier(ctx, notify.RedisConfig{
				Addr:   cfg.RedisAddr,
				Stream: cfg.RedisStream,
				MaxLen: cfg.RedisMaxLen,
			})
			if err != nil {
				return nil, closers, err
			}
			notifiers = append(notifiers, n)
			closers = append(closers, client)
		default:
			return nil, closers, fmt.Errorf("unknown notifier kind %q", kind)
		}
	}

	switch len(notifiers) {
	case 0:
		return notify.NewNoOpNotifier(), closers, nil
	case 1:
		return notifiers[0], closers, nil
	default:
		return notify.NewMultiNotifier(notifiers...), closers, nil
	}
}

// ensureDataDir creates the directory of a file DSN.
func ensureDataDir(dsn string) error {
	if dsn == "" || strings.HasPrefix(dsn, ":memory:") || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data directory %s: %w", dir, err)
	}
	return nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	s.inboxWorker.Start()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		s.Shutdown(context.Background())
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	// Stop the worker before closing the store it writes to.
	s.inboxWorker.Stop()

	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.logger.Error("notifier close error", "error", err)
		}
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
