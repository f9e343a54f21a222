package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"indexq/internal/metrics"
	"indexq/internal/toggles"
	"indexq/pkg/backoff"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrRunnerClosed = errors.New("runner closed")

// WorkFunc drains the queue once. A non-nil error counts as a worker failure.
type WorkFunc func(ctx context.Context) error

type RunnerConfig struct {
	MaxRestarts  int
	RestartDelay time.Duration
	RestartMax   time.Duration
}

func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{MaxRestarts: 5, RestartDelay: time.Second, RestartMax: 30 * time.Second}
}

type RunnerOption func(*Runner)

func WithIDGenerator(f func() string) RunnerOption {
	return func(r *Runner) { r.newID = f }
}

func WithSleep(f func(ctx context.Context, d time.Duration) error) RunnerOption {
	return func(r *Runner) { r.sleep = f }
}

// Runner admits at most one queue worker per process. A failed worker is
// restarted in place up to MaxRestarts times per admission.
type Runner struct {
	work    WorkFunc
	toggles *toggles.Set
	metrics *metrics.Metrics
	cfg     RunnerConfig
	newID   func() string
	sleep   func(ctx context.Context, d time.Duration) error

	life context.Context
	stop context.CancelFunc

	running atomic.Bool

	mu       sync.Mutex
	execID   string
	restarts int
	done     chan struct{}
}

func NewRunner(work WorkFunc, t *toggles.Set, m *metrics.Metrics, cfg RunnerConfig, opts ...RunnerOption) *Runner {
	life, stop := context.WithCancel(context.Background())
	r := &Runner{
		work:    work,
		toggles: t,
		metrics: m,
		cfg:     cfg,
		newID:   uuid.NewString,
		sleep:   sleepCtx,
		life:    life,
		stop:    stop,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RunAsync starts the worker unless indexing is off or a worker is already
// active. The worker keeps the values of ctx but not its cancellation; it
// stops when the runner is closed.
func (r *Runner) RunAsync(ctx context.Context) error {
	if !r.toggles.IndexingEnabled(ctx) || !r.toggles.SearchEnabled(ctx) {
		return nil
	}
	if r.running.Load() {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running.Load() {
		return nil
	}
	r.running.Store(true)
	if err := r.startLocked(ctx); err != nil {
		r.running.Store(false)
		return err
	}
	return nil
}

func (r *Runner) startLocked(trigger context.Context) error {
	if r.life.Err() != nil {
		return ErrRunnerClosed
	}

	id := r.newID()
	ctx, cancel := context.WithCancel(context.WithoutCancel(trigger))
	stop := context.AfterFunc(r.life, cancel)

	logger := log.Ctx(trigger).With().Str("execution_id", id).Logger()
	ctx = logger.WithContext(WithExecutionID(ctx, id))

	r.execID = id
	r.restarts = 0
	r.done = make(chan struct{})
	r.metrics.WorkerRunning(true)

	go r.loop(ctx, func() {
		stop()
		cancel()
	}, r.done)
	return nil
}

func (r *Runner) loop(ctx context.Context, release func(), done chan struct{}) {
	defer func() {
		release()
		r.mu.Lock()
		r.execID = ""
		r.running.Store(false)
		r.metrics.WorkerRunning(false)
		close(done)
		r.mu.Unlock()
	}()

	logger := log.Ctx(ctx)
	logger.Debug().Msg("queue worker started")

	for {
		err := r.runOnce(ctx)
		if err == nil {
			r.mu.Lock()
			r.restarts = 0
			r.mu.Unlock()
			logger.Debug().Msg("queue worker finished")
			return
		}
		if ctx.Err() != nil {
			logger.Info().AnErr("cause", err).Msg("queue worker cancelled")
			return
		}

		r.mu.Lock()
		n := r.restarts + 1
		if n <= r.cfg.MaxRestarts {
			r.restarts = n
		}
		r.mu.Unlock()

		if n > r.cfg.MaxRestarts {
			logger.Error().Err(err).Int("restarts", r.cfg.MaxRestarts).Msg("queue worker failed, restart limit reached")
			r.metrics.WorkerGaveUp()
			return
		}

		logger.Warn().Err(err).Int("restart", n).Msg("queue worker failed, restarting")
		r.metrics.WorkerRestarted()
		if err := r.sleep(ctx, backoff.ExponentialJitter(r.cfg.RestartDelay, r.cfg.RestartMax, n)); err != nil {
			logger.Info().Msg("queue worker cancelled while waiting to restart")
			return
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("worker panic: %v", p)
		}
	}()
	return r.work(ctx)
}

func (r *Runner) Running() bool { return r.running.Load() }

// ExecutionID identifies the active worker. Empty when idle.
func (r *Runner) ExecutionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.execID
}

// Restarts is the number of restarts in the current or last admission.
func (r *Runner) Restarts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.restarts
}

// Wait blocks until the current worker, if any, has stopped.
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close cancels the active worker, waits for it and rejects later starts.
func (r *Runner) Close() {
	r.stop()
	r.Wait()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
