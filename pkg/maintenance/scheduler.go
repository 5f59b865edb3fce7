package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dmitrymomot/stash/pkg/cache"
	"github.com/dmitrymomot/stash/pkg/logger"
)

// Scheduler runs periodic cache maintenance and reacts to invalidation signals.
type Scheduler struct {
	cache  *cache.Cache
	opts   *options
	logger *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New creates a scheduler for c. Nothing runs until Start is called.
func New(c *cache.Cache, opts ...Option) (*Scheduler, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.NewNope()
	}

	for _, expr := range []string{o.memoryCron, o.sweepCron} {
		if expr == "" {
			continue
		}
		if _, err := parseCronSchedule(expr); err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrInvalidSchedule, expr, err)
		}
	}

	return &Scheduler{
		cache:  c,
		opts:   o,
		logger: o.logger,
	}, nil
}

// Start schedules the maintenance tasks and subscribes to signals.
// Calling Start on a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	c := cron.New(cron.WithChain(cron.Recover(cronLogger{s.logger})))
	tasks := 0
	if sched := s.schedule(s.opts.memoryCron, s.opts.memoryInterval); sched != nil {
		c.Schedule(sched, s.job("memory_clear", s.clearMemory))
		tasks++
	}
	if sched := s.schedule(s.opts.sweepCron, s.opts.sweepInterval); sched != nil {
		c.Schedule(sched, s.job("expiry_sweep", s.sweepExpired))
		tasks++
	}
	c.Start()
	s.cron = c

	if s.opts.signals != nil {
		subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		done := make(chan struct{})
		s.cancel = cancel
		s.done = done

		go func() {
			defer close(done)
			err := s.opts.signals.Subscribe(subCtx, s.handleSignal)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.ErrorContext(subCtx, "signal subscription stopped", slog.Any("error", err))
			}
		}()
	}

	s.started = true
	s.logger.InfoContext(ctx, "cache maintenance started",
		slog.Int("tasks", tasks),
		slog.Bool("signals", s.opts.signals != nil),
	)
	return nil
}

// Stop halts all timers and the signal subscription, waiting for a running
// task to finish or ctx to expire. Calling Stop on a stopped scheduler does
// nothing.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false

	stopped := s.cron.Stop()
	if s.cancel != nil {
		s.cancel()
	}

	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return fmt.Errorf("maintenance: stop: %w", ctx.Err())
	}
	if s.done != nil {
		select {
		case <-s.done:
		case <-ctx.Done():
			return fmt.Errorf("maintenance: stop: %w", ctx.Err())
		}
	}

	s.cron, s.cancel, s.done = nil, nil, nil
	s.logger.InfoContext(ctx, "cache maintenance stopped")
	return nil
}

// Running reports whether the scheduler has been started and not stopped.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Hidden releases the memory backend. Call it when the client or process
// goes idle.
func (s *Scheduler) Hidden(ctx context.Context) {
	s.cache.Clear(ctx, cache.KindMemory)
}

// Invalidate removes every entry tagged with tag and returns how many were removed.
func (s *Scheduler) Invalidate(ctx context.Context, tag string) int {
	return s.cache.InvalidateByTag(ctx, tag)
}

// Sweep purges expired entries now and returns how many were removed.
func (s *Scheduler) Sweep(ctx context.Context) int {
	return s.cache.PurgeExpired(ctx)
}

// Broadcast publishes sig to the other processes sharing the signal
// channel. It does nothing when no Signals transport is configured.
func (s *Scheduler) Broadcast(ctx context.Context, sig Signal) error {
	if s.opts.signals == nil {
		return nil
	}
	return s.opts.signals.Publish(ctx, sig)
}

// StartFunc returns a startup function for the scheduler.
func (s *Scheduler) StartFunc() func(context.Context) error {
	return func(ctx context.Context) error {
		return s.Start(ctx)
	}
}

// Shutdown returns a shutdown function for the scheduler.
func (s *Scheduler) Shutdown() func(context.Context) error {
	return func(ctx context.Context) error {
		return s.Stop(ctx)
	}
}

func (s *Scheduler) clearMemory(ctx context.Context) error {
	s.Hidden(ctx)
	return nil
}

func (s *Scheduler) sweepExpired(ctx context.Context) error {
	n := s.Sweep(ctx)
	s.logger.DebugContext(ctx, "expiry sweep finished", slog.Int("removed", n))
	return nil
}

// deleteShared removes key from every backend not bound to a session.
func (s *Scheduler) deleteShared(ctx context.Context, key string) {
	for _, kind := range s.cache.Kinds() {
		if kind != cache.KindSession {
			s.cache.DeleteFrom(ctx, kind, key)
		}
	}
}

func (s *Scheduler) handleSignal(ctx context.Context, sig Signal) {
	s.logger.DebugContext(ctx, "signal received", slog.String("signal", sig.String()))

	switch sig.Kind {
	case SignalTag:
		s.Invalidate(ctx, sig.Value)
	case SignalKey:
		s.deleteShared(ctx, sig.Value)
	case SignalHidden:
		s.Hidden(ctx)
	}
}

// job wraps a task so that an error or panic in one run is logged and
// reported without affecting later runs.
func (s *Scheduler) job(name string, fn func(context.Context) error) cron.Job {
	return cron.FuncJob(func() {
		ctx := context.Background()
		started := time.Now()

		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("maintenance: task %s panicked: %v", name, r)
				}
			}()
			return fn(ctx)
		}()
		if err != nil {
			s.logger.ErrorContext(ctx, "maintenance task failed",
				slog.String("task", name),
				slog.Any("error", err),
			)
			s.cache.Observer().Observe(ctx, cache.Event{Type: cache.EventSweepFailed, Op: name, Err: err})
			return
		}

		s.logger.DebugContext(ctx, "maintenance task completed",
			slog.String("task", name),
			slog.Duration("took", time.Since(started)),
		)
	})
}

// schedule picks the cron expression when set, otherwise a fixed interval.
// A zero interval without an expression disables the task.
func (s *Scheduler) schedule(expr string, every time.Duration) cron.Schedule {
	if expr != "" {
		sched, _ := parseCronSchedule(expr)
		return sched
	}
	if every <= 0 {
		return nil
	}
	return interval(every)
}

// interval is a fixed-delay schedule. Unlike cron.Every it keeps
// sub-second precision.
type interval time.Duration

func (i interval) Next(t time.Time) time.Time {
	return t.Add(time.Duration(i))
}

func parseCronSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, slog.Any("error", err))...)
}
