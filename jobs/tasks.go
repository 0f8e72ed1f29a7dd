package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLockoutSweep clears expired login lockouts.
	TaskLockoutSweep = "auth:lockout_sweep"
	// TaskLoginAttemptPrune removes login attempts past the retention window.
	TaskLoginAttemptPrune = "auth:attempt_prune"
	// TaskImpersonationExpiry force-ends impersonation sessions past the maximum age.
	TaskImpersonationExpiry = "impersonation:expire"
)

// NewLockoutSweepTask constructs an Asynq task.
func NewLockoutSweepTask() *asynq.Task {
	return asynq.NewTask(TaskLockoutSweep, nil)
}

// NewLoginAttemptPruneTask constructs an Asynq task.
func NewLoginAttemptPruneTask() *asynq.Task {
	return asynq.NewTask(TaskLoginAttemptPrune, nil)
}

// NewImpersonationExpiryTask constructs an Asynq task.
func NewImpersonationExpiryTask() *asynq.Task {
	return asynq.NewTask(TaskImpersonationExpiry, nil)
}
