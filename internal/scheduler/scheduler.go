package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"feedbrief/internal/digest"

	"github.com/robfig/cron/v3"
)

const defaultPassTimeout = 15 * time.Minute

type Runner interface {
	Run(ctx context.Context) (digest.Report, error)
}

type Scheduler struct {
	ctx         context.Context
	cron        *cron.Cron
	runner      Runner
	spec        string
	passTimeout time.Duration
	log         *slog.Logger
}

// New schedules runner passes by the standard five-field cron spec in loc.
// ctx bounds every pass started by the scheduler.
func New(
	ctx context.Context,
	runner Runner,
	spec string,
	loc *time.Location,
	passTimeout time.Duration,
	log *slog.Logger,
) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if passTimeout <= 0 {
		passTimeout = defaultPassTimeout
	}

	cronLog := cronLogger{log: log}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	return &Scheduler{
		ctx:         ctx,
		cron:        c,
		runner:      runner,
		spec:        spec,
		passTimeout: passTimeout,
		log:         log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.runPass); err != nil {
		return fmt.Errorf("add cron func (spec = %s): %w", s.spec, err)
	}

	s.cron.Start()

	s.log.InfoContext(s.ctx, "Scheduler is started",
		"spec", s.spec,
		"location", s.cron.Location().String())

	return nil
}

// Stop prevents new passes and waits for the running one, if any, up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.WarnContext(ctx, "Stopped waiting for running digest pass",
			"error", ctx.Err())
	}
}

func (s *Scheduler) runPass() {
	ctx, cancel := context.WithTimeout(s.ctx, s.passTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		s.log.InfoContext(ctx, "Scheduler context is done",
			"error", ctx.Err())
		return
	default:
	}

	report, err := s.runner.Run(ctx)
	if errors.Is(err, digest.ErrPassInProgress) {
		s.log.InfoContext(ctx, "Skipping scheduled pass, previous one is still running")
		return
	}
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to run digest pass",
			"error", err,
			"report", report)
	}
}

type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
