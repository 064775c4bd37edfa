// Package scheduler runs the bot's periodic housekeeping on a cron schedule.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// RotationSpec fires at local midnight.
const RotationSpec = "0 0 * * *"

// Rotator moves the active log file aside.
type Rotator interface {
	Rotate(now time.Time) (string, error)
}

// Scheduler runs log rotation on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	loc     *time.Location
	rotator Rotator
	log     zerolog.Logger
}

// New creates a scheduler evaluating its specs in loc (UTC when nil).
func New(loc *time.Location, log zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		ctx:    ctx,
		cancel: cancel,
		loc:    loc,
		log:    log,
	}
}

// SetRotator sets the log rotated at midnight.
func (s *Scheduler) SetRotator(r Rotator) {
	s.rotator = r
}

func (s *Scheduler) Start() error {
	if s.rotator == nil {
		s.log.Warn().Msg("no rotator set, scheduler has nothing to do")
		return nil
	}
	if _, err := s.cron.AddFunc(RotationSpec, func() { s.Rotate(time.Now().In(s.loc)) }); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info().Str("spec", RotationSpec).Str("tz", s.loc.String()).Msg("scheduler started")
	return nil
}

// Rotate runs one rotation as of now. Failures are logged; the next midnight
// tries again.
func (s *Scheduler) Rotate(now time.Time) {
	if s.ctx.Err() != nil {
		return
	}
	target, err := s.rotator.Rotate(now)
	if err != nil {
		s.log.Error().Err(err).Msg("log rotation failed")
		return
	}
	if target == "" {
		s.log.Debug().Msg("log rotation skipped, nothing written")
		return
	}
	s.log.Info().Str("file", target).Msg("log rotated")
}

func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}
