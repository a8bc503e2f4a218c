package memory

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs periodic index maintenance: interval-based syncs and
// cron-expression compaction. The manager owns its lifecycle.
type Scheduler struct {
	cron   *cron.Cron
	logger zerolog.Logger
}

// NewScheduler creates a scheduler accepting standard five-field cron
// expressions.
func NewScheduler(logger zerolog.Logger) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &Scheduler{
		cron:   cron.New(cron.WithParser(parser)),
		logger: logger,
	}
}

// AddSyncJob schedules fn on a fixed interval.
func (s *Scheduler) AddSyncJob(interval time.Duration, fn func()) error {
	if interval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", interval)
	}
	s.cron.Schedule(cron.Every(interval), cron.FuncJob(fn))
	s.logger.Debug().Dur("interval", interval).Msg("Periodic sync scheduled")
	return nil
}

// AddCompactionJob schedules fn on a cron expression, e.g. "0 3 * * *".
func (s *Scheduler) AddCompactionJob(expr string, fn func()) error {
	if _, err := s.cron.AddFunc(expr, fn); err != nil {
		return fmt.Errorf("invalid compaction schedule %q: %w", expr, err)
	}
	s.logger.Debug().Str("schedule", expr).Msg("Compaction scheduled")
	return nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for any running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Debug().Msg("Scheduler stopped")
}
