package workers

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/artpar/charges/internal/shell/store"
)

// =============================================================================
// Dispatcher
// =============================================================================

// Job is one command ready to run.
type Job struct {
	ID string
	// Keys are the business keys the command touches. Jobs sharing a key run
	// one after another in slice order.
	Keys []string
	Run  func(ctx context.Context) error
}

// DispatcherConfig configures the dispatcher.
type DispatcherConfig struct {
	// MaxConcurrent is the maximum number of job groups running at once.
	// Default: 5.
	MaxConcurrent int

	// ConflictRetries is how many times a job is re-run after an optimistic
	// concurrency conflict. Default: 3.
	ConflictRetries int
}

// DefaultDispatcherConfig returns the default configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MaxConcurrent:   5,
		ConflictRetries: 3,
	}
}

// Dispatcher runs jobs concurrently while keeping jobs that share a
// business key sequential.
type Dispatcher struct {
	config DispatcherConfig
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(config DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if config.MaxConcurrent == 0 {
		config.MaxConcurrent = 5
	}
	if config.ConflictRetries == 0 {
		config.ConflictRetries = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		config: config,
		logger: logger.With("component", "dispatcher"),
	}
}

// Dispatch runs all jobs and returns their errors, index aligned with jobs.
// A failing job does not stop the others.
func (d *Dispatcher) Dispatch(ctx context.Context, jobs []Job) []error {
	errs := make([]error, len(jobs))

	var g errgroup.Group
	g.SetLimit(d.config.MaxConcurrent)

	for _, group := range groupJobs(jobs) {
		group := group
		g.Go(func() error {
			for _, i := range group {
				errs[i] = d.runWithRetry(ctx, jobs[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	return errs
}

func (d *Dispatcher) runWithRetry(ctx context.Context, job Job) error {
	var err error
	for attempt := 0; attempt <= d.config.ConflictRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = job.Run(ctx)
		if !store.IsConflict(err) {
			return err
		}
		d.logger.Warn("commit conflict, retrying",
			"job_id", job.ID,
			"attempt", attempt+1,
			"error", err,
		)
	}
	return err
}

// groupJobs partitions job indexes into groups connected by shared keys.
// Each group keeps the original job order.
func groupJobs(jobs []Job) [][]int {
	parent := make([]int, len(jobs))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	owner := make(map[string]int)
	for i, job := range jobs {
		for _, key := range job.Keys {
			if j, ok := owner[key]; ok {
				a, b := find(i), find(j)
				if a < b {
					a, b = b, a
				}
				parent[a] = b
				continue
			}
			owner[key] = i
		}
	}

	index := make(map[int]int)
	var groups [][]int
	for i := range jobs {
		root := find(i)
		g, ok := index[root]
		if !ok {
			g = len(groups)
			index[root] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}
