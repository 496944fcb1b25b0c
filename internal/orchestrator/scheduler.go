package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Runner executes one full engagement pass.
type Runner interface {
	RunAll(ctx context.Context) error
}

// Scheduler repeats engagement passes with a fixed rest between them.
// A failed pass is logged and the next one still runs on schedule.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	log      *zap.Logger

	// after is swapped in tests to avoid real waits.
	after func(d time.Duration) <-chan time.Time
}

// NewScheduler builds a scheduler over the given runner.
func NewScheduler(runner Runner, interval time.Duration, log *zap.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		log:      log,
		after:    time.After,
	}
}

// Run loops until the context is cancelled. The first pass starts
// immediately; each later pass starts interval after the previous one
// finished.
func (s *Scheduler) Run(ctx context.Context) error {
	for pass := 1; ; pass++ {
		log := s.log.With(zap.Int("pass", pass))
		log.Info("engagement pass starting")

		start := time.Now()
		if err := s.runPass(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("engagement pass failed", zap.Error(err))
		} else {
			log.Info("engagement pass finished", zap.Duration("took", time.Since(start)))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.after(s.interval):
		}
	}
}

// runPass isolates a panicking pass so the scheduler keeps its cadence.
func (s *Scheduler) runPass(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pass panicked: %v", r)
		}
	}()
	return s.runner.RunAll(ctx)
}
