package app

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bobmcallan/fnoscreen/internal/common"
)

// ist is the exchange time zone; cron specs are read as IST wall clock.
var ist = time.FixedZone("IST", 5*3600+1800)

// trigger starts a background pipeline run. Implemented by *pipeline.Runner.
type trigger interface {
	Trigger(source string) bool
}

// Scheduler fires full collection runs on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	logger *common.Logger
	spec   string
}

// cronLogger adapts common.Logger to the cron.Logger interface.
type cronLogger struct {
	logger *common.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Str("detail", fmt.Sprint(keysAndValues...)).Msg("Scheduler: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Str("detail", fmt.Sprint(keysAndValues...)).Msg("Scheduler: " + msg)
}

// NewScheduler parses spec (standard five field cron) and registers the collection job.
func NewScheduler(spec string, runner trigger, logger *common.Logger) (*Scheduler, error) {
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLocation(ist),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	_, err := c.AddFunc(spec, func() {
		if !runner.Trigger("schedule") {
			logger.Warn().Msg("Scheduler: previous run still in progress, skipped")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid schedule.collect_cron %q: %w", spec, err)
	}

	return &Scheduler{cron: c, logger: logger, spec: spec}, nil
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Str("cron", s.spec).Time("next", s.Next()).Msg("Scheduler: started")
}

// Next returns the next scheduled fire time, zero if not started.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Stop halts the schedule and waits for a firing job callback to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler: stopped")
}
