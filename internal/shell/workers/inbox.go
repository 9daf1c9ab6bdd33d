// Package workers contains the background workers that process received
// commands.
package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/artpar/charges/internal/core/domain"
	"github.com/artpar/charges/internal/core/localtime"
	"github.com/artpar/charges/internal/shell/metrics"
	"github.com/artpar/charges/internal/shell/processor"
	"github.com/artpar/charges/internal/shell/store"
)

// ChargeCommandProcessor processes decoded charge commands. A nil error
// means the inbox entry commandID was marked processed with the bundle.
type ChargeCommandProcessor interface {
	ProcessCommand(ctx context.Context, commandID string, cmd domain.ChargeCommand, receivedAt time.Time) (*processor.Outcome, error)
}

// LinkCommandProcessor processes decoded charge link commands.
type LinkCommandProcessor interface {
	ProcessCommand(ctx context.Context, commandID string, cmd domain.ChargeLinksCommand, receivedAt time.Time) (*processor.Outcome, error)
}

// InboxWorkerConfig configures the inbox worker.
type InboxWorkerConfig struct {
	// Interval is the time between polls of the inbox.
	// Default: 2 seconds.
	Interval time.Duration

	// BatchSize is the maximum number of commands claimed per poll.
	// Default: 50.
	BatchSize int

	Dispatcher DispatcherConfig
}

// DefaultInboxWorkerConfig returns the default configuration.
func DefaultInboxWorkerConfig() InboxWorkerConfig {
	return InboxWorkerConfig{
		Interval:   2 * time.Second,
		BatchSize:  50,
		Dispatcher: DefaultDispatcherConfig(),
	}
}

// InboxWorker polls the command inbox and processes what it finds.
type InboxWorker struct {
	store   store.Store
	charges ChargeCommandProcessor
	links   LinkCommandProcessor
	clock   localtime.Clock
	metrics *metrics.Metrics
	config  InboxWorkerConfig
	logger  *slog.Logger

	dispatcher *Dispatcher

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewInboxWorker creates a new inbox worker.
func NewInboxWorker(
	s store.Store,
	charges ChargeCommandProcessor,
	links LinkCommandProcessor,
	clock localtime.Clock,
	m *metrics.Metrics,
	config InboxWorkerConfig,
	logger *slog.Logger,
) *InboxWorker {
	if config.Interval == 0 {
		config.Interval = 2 * time.Second
	}
	if config.BatchSize == 0 {
		config.BatchSize = 50
	}
	if clock == nil {
		clock = localtime.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &InboxWorker{
		store:      s,
		charges:    charges,
		links:      links,
		clock:      clock,
		metrics:    m,
		config:     config,
		logger:     logger.With("component", "inbox_worker"),
		dispatcher: NewDispatcher(config.Dispatcher, logger),
	}
}

// Start releases commands a previous run left unfinished and begins polling.
func (w *InboxWorker) Start() {
	w.ctx, w.cancel = context.WithCancel(context.Background())

	if n, err := w.store.ReleaseProcessingCommands(w.ctx); err != nil {
		w.logger.Error("failed to release unfinished commands", "error", err)
	} else if n > 0 {
		w.logger.Info("released unfinished commands", "count", n)
	}

	w.wg.Add(1)
	go w.run()

	w.logger.Info("inbox worker started",
		"interval", w.config.Interval,
		"batch_size", w.config.BatchSize,
	)
}

// Stop gracefully stops the worker. It waits for the current cycle to finish.
func (w *InboxWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Info("inbox worker stopped")
}

func (w *InboxWorker) run() {
	defer w.wg.Done()

	w.RunCycle(w.ctx)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.RunCycle(w.ctx)
		}
	}
}

// RunCycle claims one batch of pending commands and processes it. It returns
// the number of commands claimed.
func (w *InboxWorker) RunCycle(ctx context.Context) int {
	commands, err := w.store.ClaimPendingCommands(ctx, w.config.BatchSize)
	if err != nil {
		w.logger.Error("failed to claim commands", "error", err)
		return 0
	}
	if len(commands) == 0 {
		return 0
	}

	jobs := make([]Job, 0, len(commands))
	claimed := make([]store.InboxCommand, 0, len(commands))
	for _, cmd := range commands {
		job, err := w.job(cmd)
		if err != nil {
			w.fail(ctx, cmd, err)
			continue
		}
		jobs = append(jobs, job)
		claimed = append(claimed, cmd)
	}

	errs := w.dispatcher.Dispatch(ctx, jobs)
	for i, cmd := range claimed {
		w.finish(ctx, cmd, errs[i])
	}

	w.logger.Debug("inbox cycle completed", "claimed", len(commands))
	return len(commands)
}

// job decodes cmd into a runnable job.
func (w *InboxWorker) job(cmd store.InboxCommand) (Job, error) {
	switch cmd.Kind {
	case store.CommandKindCharge:
		var c domain.ChargeCommand
		if err := json.Unmarshal(cmd.Payload, &c); err != nil {
			return Job{}, fmt.Errorf("decode charge command: %w", err)
		}
		keys := make([]string, len(c.Operations))
		for i, op := range c.Operations {
			keys[i] = op.Key().String()
		}
		return Job{
			ID:   cmd.ID,
			Keys: keys,
			Run: func(ctx context.Context) error {
				_, err := w.charges.ProcessCommand(ctx, cmd.ID, c, cmd.ReceivedAt)
				return err
			},
		}, nil

	case store.CommandKindChargeLink:
		var c domain.ChargeLinksCommand
		if err := json.Unmarshal(cmd.Payload, &c); err != nil {
			return Job{}, fmt.Errorf("decode charge link command: %w", err)
		}
		keys := make([]string, len(c.Operations))
		for i, op := range c.Operations {
			keys[i] = op.ChargeKey().String()
		}
		return Job{
			ID:   cmd.ID,
			Keys: keys,
			Run: func(ctx context.Context) error {
				_, err := w.links.ProcessCommand(ctx, cmd.ID, c, cmd.ReceivedAt)
				return err
			},
		}, nil

	default:
		return Job{}, fmt.Errorf("unknown command kind %q", cmd.Kind)
	}
}

// finish records the result of a dispatched command. Processors mark
// committed commands processed themselves, so only failures are written here.
func (w *InboxWorker) finish(ctx context.Context, cmd store.InboxCommand, err error) {
	switch {
	case err == nil:
	case errors.Is(err, processor.ErrDelivery):
		w.logger.Warn("command committed but receipts not delivered",
			"command_id", cmd.ID,
			"document_id", cmd.DocumentID,
			"error", err,
		)
	case ctx.Err() != nil:
		// Left in processing; released to pending on the next start.
		w.logger.Warn("command interrupted by shutdown",
			"command_id", cmd.ID,
			"document_id", cmd.DocumentID,
			"error", err,
		)
		return
	default:
		w.fail(ctx, cmd, err)
		return
	}
	w.metrics.ObserveInboxCommand(string(store.CommandProcessed))
}

func (w *InboxWorker) fail(ctx context.Context, cmd store.InboxCommand, cause error) {
	w.logger.Error("command failed",
		"command_id", cmd.ID,
		"document_id", cmd.DocumentID,
		"kind", cmd.Kind,
		"error", cause,
	)
	err := w.store.MarkCommandFailed(context.WithoutCancel(ctx), cmd.ID, cause.Error(), w.clock.Now())
	if err != nil {
		w.logger.Error("failed to mark command failed", "command_id", cmd.ID, "error", err)
		return
	}
	w.metrics.ObserveInboxCommand(string(store.CommandFailed))
}
