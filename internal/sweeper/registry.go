// Package sweeper implements the entity status sweeps: idempotent bulk
// UPDATEs that converge fee, payment, exam, and notice rows to the status
// they should already have. Rules are registered in a Registry and run from
// the sweep-runner on an EventBridge cadence; every run is recorded in the
// sweep_runs history table.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"shiksha/internal/types"
)

// Rule is one named sweep. Apply must be idempotent: running a rule twice
// against converged data affects zero rows.
type Rule struct {
	Name  string
	Apply func(ctx context.Context, now time.Time) (int64, error)
}

// HistoryDB records sweep executions. Implemented by db.SweepRunRepository.
type HistoryDB interface {
	Start(ctx context.Context, ruleName string, now time.Time) (int64, error)
	Finish(ctx context.Context, id int64, status types.SweepRunStatus, items int64, runErr error, now time.Time) error
}

// Registry holds the registered sweep rules and runs them with history
// recording and per-rule failure isolation.
type Registry struct {
	rules   []Rule
	history HistoryDB
	clock   types.Clock
	logger  *slog.Logger
}

// NewRegistry creates a Registry over the given rules.
func NewRegistry(rules []Rule, history HistoryDB, clock types.Clock, logger *slog.Logger) *Registry {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{rules: rules, history: history, clock: clock, logger: logger}
}

// Rules returns the registered rule names in registration order.
func (r *Registry) Rules() []string {
	names := make([]string, len(r.rules))
	for i, rule := range r.rules {
		names[i] = rule.Name
	}
	return names
}

// Run executes one rule by name and returns the affected row count.
func (r *Registry) Run(ctx context.Context, name string, now time.Time) (int64, error) {
	for _, rule := range r.rules {
		if rule.Name == name {
			return r.execute(ctx, rule, now)
		}
	}
	return 0, fmt.Errorf("unknown sweep rule %q", name)
}

// RunAll executes every registered rule concurrently. A failing rule is
// recorded and reported but never prevents the other rules from running;
// the returned error aggregates all failures.
func (r *Registry) RunAll(ctx context.Context, now time.Time) error {
	g, ctx := errgroup.WithContext(ctx)
	errs := make([]error, len(r.rules))

	for i, rule := range r.rules {
		g.Go(func() error {
			if _, err := r.execute(ctx, rule, now); err != nil {
				errs[i] = fmt.Errorf("rule %s: %w", rule.Name, err)
			}
			// Errors are collected, not returned: returning would cancel the
			// group context and abort sibling rules mid-sweep.
			return nil
		})
	}
	g.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d sweep rules failed: %w", len(failed), len(r.rules), failed[0])
	}
	return nil
}

func (r *Registry) execute(ctx context.Context, rule Rule, now time.Time) (int64, error) {
	runID, err := r.history.Start(ctx, rule.Name, now)
	if err != nil {
		return 0, fmt.Errorf("record sweep start: %w", err)
	}

	affected, runErr := rule.Apply(ctx, now)

	status := types.SweepRunCompleted
	if runErr != nil {
		status = types.SweepRunFailed
	}
	if err := r.history.Finish(ctx, runID, status, affected, runErr, r.clock.Now()); err != nil {
		r.logger.ErrorContext(ctx, "failed to record sweep finish",
			"rule", rule.Name,
			"run_id", runID,
			"error", err,
		)
	}

	if runErr != nil {
		r.logger.ErrorContext(ctx, "sweep rule failed",
			"rule", rule.Name,
			"error", runErr,
		)
		return affected, runErr
	}

	r.logger.InfoContext(ctx, "sweep rule complete",
		"rule", rule.Name,
		"affected", affected,
	)
	return affected, nil
}
