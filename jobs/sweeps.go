package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/tempora-app/tempora/internal/jobs"
)

// LockoutStore is the slice of the auth repository the sweeps need.
type LockoutStore interface {
	DeleteExpiredLockouts(ctx context.Context) (int64, error)
	PruneLoginAttempts(ctx context.Context, before time.Time) (int64, error)
}

// ImpersonationEnder force-ends impersonation sessions older than a cutoff.
type ImpersonationEnder interface {
	ExpireOlderThan(ctx context.Context, maxAge time.Duration) (int, error)
}

// Sweeps bundles the periodic maintenance handlers with their dependencies.
type Sweeps struct {
	Lockouts              LockoutStore
	Impersonations        ImpersonationEnder
	Logger                *slog.Logger
	Metrics               *jobmetrics.Metrics
	LoginAttemptRetention time.Duration
	ImpersonationMaxAge   time.Duration
}

func (s Sweeps) metrics() *jobmetrics.Metrics {
	if s.Metrics != nil {
		return s.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

// Handlers returns the task registrations for the worker mux.
func (s Sweeps) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskLockoutSweep, Handler: s.HandleLockoutSweep},
		{Type: TaskLoginAttemptPrune, Handler: s.HandleLoginAttemptPrune},
		{Type: TaskImpersonationExpiry, Handler: s.HandleImpersonationExpiry},
	}
}

// HandleLockoutSweep processes TaskLockoutSweep tasks.
func (s Sweeps) HandleLockoutSweep(ctx context.Context, _ *asynq.Task) error {
	tracker := s.metrics().Track("lockout_sweep")
	n, err := s.Lockouts.DeleteExpiredLockouts(ctx)
	if err != nil {
		s.Logger.Error("lockout sweep", slog.Any("error", err))
		return tracker.End(err)
	}
	if n > 0 {
		s.Logger.Info("lockout sweep", slog.Int64("removed", n))
	}
	return tracker.End(nil)
}

// HandleLoginAttemptPrune processes TaskLoginAttemptPrune tasks.
func (s Sweeps) HandleLoginAttemptPrune(ctx context.Context, _ *asynq.Task) error {
	tracker := s.metrics().Track("login_attempt_prune")
	cutoff := time.Now().Add(-s.LoginAttemptRetention)
	n, err := s.Lockouts.PruneLoginAttempts(ctx, cutoff)
	if err != nil {
		s.Logger.Error("login attempt prune", slog.Any("error", err))
		return tracker.End(err)
	}
	if n > 0 {
		s.Logger.Info("login attempt prune", slog.Int64("removed", n))
	}
	return tracker.End(nil)
}

// HandleImpersonationExpiry processes TaskImpersonationExpiry tasks.
func (s Sweeps) HandleImpersonationExpiry(ctx context.Context, _ *asynq.Task) error {
	tracker := s.metrics().Track("impersonation_expiry")
	n, err := s.Impersonations.ExpireOlderThan(ctx, s.ImpersonationMaxAge)
	if err != nil {
		s.Logger.Error("impersonation expiry", slog.Any("error", err))
		return tracker.End(err)
	}
	if n > 0 {
		s.Logger.Info("impersonation expiry", slog.Int("ended", n))
	}
	return tracker.End(nil)
}
