package session

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"lsm/internal/logging"
)

// DefaultSweepSchedule purges expired sessions every ten minutes.
const DefaultSweepSchedule = "@every 10m"

// Sweeper purges expired sessions on a cron schedule.
type Sweeper struct {
	mg       *Manager
	schedule string
	logger   *slog.Logger
}

// NewSweeper returns a sweeper; an empty schedule uses DefaultSweepSchedule.
func NewSweeper(mg *Manager, schedule string, logger *slog.Logger) *Sweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Sweeper{mg: mg, schedule: schedule, logger: logging.NewComponentLogger(logger, "session-sweeper")}
}

// Run purges once, then on schedule until ctx is cancelled. It waits for an
// in-flight purge before returning.
func (s *Sweeper) Run(ctx context.Context) error {
	c := cron.New(cron.WithLogger(cronLogger{s.logger}))
	if _, err := c.AddFunc(s.schedule, func() { s.sweep(ctx) }); err != nil {
		return err
	}
	s.sweep(ctx)
	c.Start()
	s.logger.Debug("session sweeper started", logging.String("schedule", s.schedule))
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (s *Sweeper) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.mg.Purge(ctx); err != nil {
		s.logger.Warn("session purge failed",
			logging.String(logging.FieldEventType, "session_purge_failed"),
			logging.Error(err))
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{logging.Error(err)}, keysAndValues...)...)
}
