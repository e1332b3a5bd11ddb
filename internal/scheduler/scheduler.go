// Package scheduler runs ingestion periodically and on demand, never two at once.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ErrRunInProgress is returned when a run is requested while another is active.
var ErrRunInProgress = errors.New("run already in progress")

// RunFunc performs one ingestion run.
type RunFunc func(ctx context.Context) error

// Scheduler wraps robfig/cron and guards the run function against overlap.
type Scheduler struct {
	cron   *cron.Cron
	spec   string
	run    RunFunc
	logger *zap.Logger

	running sync.Mutex
	wg      sync.WaitGroup

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Scheduler. spec uses the standard five-field cron syntax or a descriptor such as "@hourly".
func New(spec string, run RunFunc, logger *zap.Logger) (*Scheduler, error) {
	if run == nil {
		return nil, fmt.Errorf("run function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")
	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		spec:   spec,
		run:    run,
		logger: logger,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// RunNow runs synchronously. It returns ErrRunInProgress instead of waiting for an active run.
func (s *Scheduler) RunNow(ctx context.Context) error {
	if !s.running.TryLock() {
		return ErrRunInProgress
	}
	defer s.running.Unlock()
	return s.run(ctx)
}

// Trigger starts a run in the background and reports whether it was started.
func (s *Scheduler) Trigger() bool {
	if !s.running.TryLock() {
		return false
	}
	ctx := s.baseContext()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Unlock()
		if err := s.run(ctx); err != nil {
			s.logger.Warn("triggered run failed", zap.Error(err))
		}
	}()
	return true
}

// Start registers the cron job and starts ticking. Runs inherit ctx.
// When runOnStart is set one run starts immediately.
func (s *Scheduler) Start(ctx context.Context, runOnStart bool) error {
	if s.spec == "" {
		return fmt.Errorf("cron spec is required")
	}
	s.mu.Lock()
	s.cancel()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if _, err := s.cron.AddFunc(s.spec, s.tick); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	s.logger.Info("cron started", zap.String("spec", s.spec))

	if runOnStart {
		s.Trigger()
	}
	return nil
}

// Stop halts the cron, cancels in-flight runs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("cron stopped")
}

// Next returns the next scheduled activation, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) tick() {
	s.wg.Add(1)
	defer s.wg.Done()
	if err := s.RunNow(s.baseContext()); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			s.logger.Info("skipping scheduled run, previous run still active")
			return
		}
		s.logger.Warn("scheduled run failed", zap.Error(err))
	}
}

func (s *Scheduler) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
