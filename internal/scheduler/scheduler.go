// Package scheduler triggers the batch on a cron schedule.
//
// Runs never overlap: a trigger that fires while the previous run is still
// going is skipped. Every run gets its own context bounded by the run
// timeout, and a panic inside a run is recovered and logged so the schedule
// survives it.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one batch run.
type Job func(ctx context.Context) error

// Scheduler owns a cron instance with a single entry.
type Scheduler struct {
	spec     string
	schedule cron.Schedule
	timeout  time.Duration
	log      *zap.Logger
	cron     *cron.Cron
}

// New parses spec (five-field cron or a descriptor such as "@every 30m").
// A non-positive timeout leaves runs bounded only by the parent context.
func New(spec string, timeout time.Duration, log *zap.Logger) (*Scheduler, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("scheduler: parse %q: %w", spec, err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		spec:     spec,
		schedule: sched,
		timeout:  timeout,
		log:      log,
		cron:     cron.New(cron.WithLogger(cronLogger{log.Sugar()})),
	}, nil
}

// Next returns the first activation after t.
func (s *Scheduler) Next(t time.Time) time.Time { return s.schedule.Next(t) }

// Run schedules job and blocks until ctx is done, then waits for a run in
// progress to finish, including the immediate one. With runNow the job also
// fires once immediately.
func (s *Scheduler) Run(ctx context.Context, job Job, runNow bool) error {
	wrapped := s.wrap(ctx, job)
	id := s.cron.Schedule(s.schedule, wrapped)
	s.cron.Start()

	s.log.Info("scheduler started",
		zap.String("schedule", s.spec),
		zap.Duration("run_timeout", s.timeout),
		zap.Time("next_run", s.cron.Entry(id).Next),
	)
	var immediate sync.WaitGroup
	if runNow {
		immediate.Add(1)
		go func() {
			defer immediate.Done()
			wrapped.Run()
		}()
	}

	<-ctx.Done()
	s.log.Info("scheduler stopping; waiting for the active run")
	<-s.cron.Stop().Done()
	immediate.Wait()
	return nil
}

// wrap adds overlap skipping, panic recovery and the per-run timeout.
func (s *Scheduler) wrap(parent context.Context, job Job) cron.Job {
	l := cronLogger{s.log.Sugar()}
	return cron.NewChain(cron.Recover(l), cron.SkipIfStillRunning(l)).Then(cron.FuncJob(func() {
		if parent.Err() != nil {
			return
		}
		var (
			ctx    context.Context
			cancel context.CancelFunc
		)
		if s.timeout > 0 {
			ctx, cancel = context.WithTimeout(parent, s.timeout)
		} else {
			ctx, cancel = context.WithCancel(parent)
		}
		defer cancel()

		start := time.Now()
		if err := job(ctx); err != nil {
			s.log.Error("scheduled run failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		} else {
			s.log.Info("scheduled run finished", zap.Duration("duration", time.Since(start)))
		}
		s.log.Info("next run", zap.Time("at", s.Next(time.Now())))
	}))
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	if msg == "skip" {
		l.s.Warnw("previous run still in progress; skipping trigger", keysAndValues...)
		return
	}
	l.s.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
