package jobs

import (
	"context"
	"time"

	"github.com/wonny/aegis-risk/pkg/logger"
)

// expiredDeleter is the part of store.ScenarioStore used by the expiry job
type expiredDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ScenarioExpiryJob removes scenarios whose validity window has ended
type ScenarioExpiryJob struct {
	store    expiredDeleter
	schedule string
	logger   *logger.Logger
	now      func() time.Time
}

// NewScenarioExpiryJob creates a new scenario expiry job
func NewScenarioExpiryJob(store expiredDeleter, schedule string, log *logger.Logger) *ScenarioExpiryJob {
	if schedule == "" {
		schedule = "0 0 * * * *" // Every hour
	}
	return &ScenarioExpiryJob{
		store:    store,
		schedule: schedule,
		logger:   log,
		now:      time.Now,
	}
}

// Name returns the job name
func (j *ScenarioExpiryJob) Name() string {
	return "scenario_expiry"
}

// Schedule returns the cron schedule
func (j *ScenarioExpiryJob) Schedule() string {
	return j.schedule
}

// Run deletes expired scenarios
func (j *ScenarioExpiryJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled scenario expiry")

	count, err := j.store.DeleteExpired(ctx, j.now())
	if err != nil {
		return err
	}

	if count > 0 {
		j.logger.WithField("removed", count).Info("Expired scenarios removed")
	}

	return nil
}
