// Package housekeeping runs ambient, deployment-style background jobs
// that are not part of the spec's concurrency core, session count
// observability and similar periodic bookkeeping. The Market Updater
// never lives here: its fixed polling interval is a spec requirement
// served by a plain time.Ticker (internal/market), not a cron schedule.
// This package is grounded on the teacher's scheduler.Scheduler, just
// swapped to this domain's jobs.
package housekeeping

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/onexdata/stock-portfolio-analysis/internal/session"
)

// Job is one schedulable unit of housekeeping work.
type Job interface {
	Run()
	Name() string
}

// Scheduler wraps a cron.Cron with structured logging around every run.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New builds a Scheduler with second-level precision.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "housekeeping").Logger(),
	}
}

// Start begins running registered jobs on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("housekeeping scheduler started")
}

// Stop waits for any in-flight job to finish, then halts scheduling.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("housekeeping scheduler stopped")
}

// AddJob registers job on the given cron schedule (seconds-field form,
// e.g. "0 * * * * *" for once a minute).
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.log.Debug().Str("job", job.Name()).Msg("running job")
		job.Run()
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("schedule", schedule).Str("job", job.Name()).Msg("job registered")
	return nil
}

// SessionCountJob logs the number of live Session Controllers once per
// schedule tick, cheap visibility into connection churn without
// needing a full metrics scrape.
type SessionCountJob struct {
	registry *session.Registry
	log      zerolog.Logger
}

// NewSessionCountJob builds a SessionCountJob over registry.
func NewSessionCountJob(registry *session.Registry, log zerolog.Logger) *SessionCountJob {
	return &SessionCountJob{registry: registry, log: log.With().Str("job", "session_count").Logger()}
}

func (j *SessionCountJob) Name() string { return "session_count" }

func (j *SessionCountJob) Run() {
	j.log.Info().Int("count", j.registry.Count()).Msg("active sessions")
}
