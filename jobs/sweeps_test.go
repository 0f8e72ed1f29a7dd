package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeLockoutStore struct {
	deleted     int64
	pruned      int64
	pruneBefore time.Time
	err         error
}

func (f *fakeLockoutStore) DeleteExpiredLockouts(ctx context.Context) (int64, error) {
	return f.deleted, f.err
}

func (f *fakeLockoutStore) PruneLoginAttempts(ctx context.Context, before time.Time) (int64, error) {
	f.pruneBefore = before
	return f.pruned, f.err
}

type fakeEnder struct {
	ended  int
	maxAge time.Duration
	err    error
}

func (f *fakeEnder) ExpireOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	f.maxAge = maxAge
	return f.ended, f.err
}

func testSweeps(lockouts *fakeLockoutStore, ender *fakeEnder) Sweeps {
	return Sweeps{
		Lockouts:              lockouts,
		Impersonations:        ender,
		Logger:                slog.Default(),
		LoginAttemptRetention: 30 * 24 * time.Hour,
		ImpersonationMaxAge:   4 * time.Hour,
	}
}

func TestHandleLockoutSweep(t *testing.T) {
	lockouts := &fakeLockoutStore{deleted: 3}
	s := testSweeps(lockouts, &fakeEnder{})
	require.NoError(t, s.HandleLockoutSweep(context.Background(), NewLockoutSweepTask()))

	lockouts.err = errors.New("boom")
	require.Error(t, s.HandleLockoutSweep(context.Background(), NewLockoutSweepTask()))
}

func TestHandleLoginAttemptPrune(t *testing.T) {
	lockouts := &fakeLockoutStore{pruned: 10}
	s := testSweeps(lockouts, &fakeEnder{})
	require.NoError(t, s.HandleLoginAttemptPrune(context.Background(), NewLoginAttemptPruneTask()))

	wantCutoff := time.Now().Add(-s.LoginAttemptRetention)
	require.WithinDuration(t, wantCutoff, lockouts.pruneBefore, time.Minute)
}

func TestHandleImpersonationExpiry(t *testing.T) {
	ender := &fakeEnder{ended: 2}
	s := testSweeps(&fakeLockoutStore{}, ender)
	require.NoError(t, s.HandleImpersonationExpiry(context.Background(), NewImpersonationExpiryTask()))
	require.Equal(t, 4*time.Hour, ender.maxAge)

	ender.err = errors.New("boom")
	require.Error(t, s.HandleImpersonationExpiry(context.Background(), NewImpersonationExpiryTask()))
}
