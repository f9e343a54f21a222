package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"indexq/internal/toggles"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newTestRunner(work WorkFunc, opts ...RunnerOption) *Runner {
	var seq atomic.Int64
	opts = append([]RunnerOption{
		WithSleep(noSleep),
		WithIDGenerator(func() string { return fmt.Sprintf("exec-%d", seq.Add(1)) }),
	}, opts...)
	return NewRunner(work, toggles.New(toggles.Defaults()), nil, DefaultRunnerConfig(), opts...)
}

func TestRunner_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	r := newTestRunner(func(ctx context.Context) error {
		calls.Add(1)
		<-release
		return nil
	})
	defer r.Close()

	assert.False(t, r.Running())
	assert.Empty(t, r.ExecutionID())

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.RunAsync(context.Background()))
		}()
	}
	wg.Wait()

	assert.True(t, r.Running())
	assert.Equal(t, "exec-1", r.ExecutionID())
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	close(release)
	r.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, r.Running())
	assert.Empty(t, r.ExecutionID())
}

func TestRunner_AdmitsNextCallerAfterCompletion(t *testing.T) {
	var calls atomic.Int32
	r := newTestRunner(func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})
	defer r.Close()

	require.NoError(t, r.RunAsync(context.Background()))
	r.Wait()
	require.NoError(t, r.RunAsync(context.Background()))
	r.Wait()

	assert.Equal(t, int32(2), calls.Load())
}

func TestRunner_RestartCap(t *testing.T) {
	var calls atomic.Int32
	r := newTestRunner(func(ctx context.Context) error {
		calls.Add(1)
		return errors.New("poisoned task")
	})
	defer r.Close()

	require.NoError(t, r.RunAsync(context.Background()))
	r.Wait()

	// first run plus five restarts, no sixth restart
	assert.Equal(t, int32(6), calls.Load())
	assert.Equal(t, 5, r.Restarts(), "only performed restarts are counted")
	assert.False(t, r.Running())

	// the next external trigger gets a fresh budget
	require.NoError(t, r.RunAsync(context.Background()))
	r.Wait()
	assert.Equal(t, int32(12), calls.Load())
}

func TestRunner_RecoversAfterTransientFailures(t *testing.T) {
	var calls atomic.Int32
	r := newTestRunner(func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})
	defer r.Close()

	require.NoError(t, r.RunAsync(context.Background()))
	r.Wait()

	assert.Equal(t, int32(3), calls.Load())
	assert.Zero(t, r.Restarts(), "success resets the restart counter")
}

func TestRunner_PanicCountsAsFailure(t *testing.T) {
	var calls atomic.Int32
	r := newTestRunner(func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return nil
	})
	defer r.Close()

	require.NoError(t, r.RunAsync(context.Background()))
	r.Wait()
	assert.Equal(t, int32(2), calls.Load())
}

func TestRunner_CancellationIsNotRestarted(t *testing.T) {
	started := make(chan struct{})
	var calls atomic.Int32
	r := newTestRunner(func(ctx context.Context) error {
		calls.Add(1)
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	require.NoError(t, r.RunAsync(context.Background()))
	<-started
	r.Close()

	assert.Equal(t, int32(1), calls.Load())
	assert.Zero(t, r.Restarts())
	assert.False(t, r.Running())
	assert.ErrorIs(t, r.RunAsync(context.Background()), ErrRunnerClosed)
	assert.False(t, r.Running(), "flag is reset when start fails")
}

func TestRunner_TriggerCancellationDoesNotStopWorker(t *testing.T) {
	trigger, cancel := context.WithCancel(context.Background())
	type key struct{}
	trigger = context.WithValue(trigger, key{}, "alice")

	proceed := make(chan struct{})
	got := make(chan string, 1)
	r := newTestRunner(func(ctx context.Context) error {
		<-proceed
		if ctx.Err() != nil {
			return ctx.Err()
		}
		v, _ := ctx.Value(key{}).(string)
		got <- v + "/" + ExecutionID(ctx)
		return nil
	})
	defer r.Close()

	require.NoError(t, r.RunAsync(trigger))
	cancel()
	close(proceed)
	r.Wait()

	assert.Equal(t, "alice/exec-1", <-got)
}

func TestRunner_DisabledIsNoop(t *testing.T) {
	var calls atomic.Int32
	work := func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}

	for name, v := range map[string]toggles.Values{
		"indexing off": {Search: true, TaskCreation: true},
		"search off":   {Indexing: true, TaskCreation: true},
	} {
		t.Run(name, func(t *testing.T) {
			r := NewRunner(work, toggles.New(v), nil, DefaultRunnerConfig(), WithSleep(noSleep))
			defer r.Close()
			require.NoError(t, r.RunAsync(context.Background()))
			assert.False(t, r.Running())
		})
	}
	assert.Zero(t, calls.Load())
}

func TestRunner_WaitsBetweenRestarts(t *testing.T) {
	var (
		mu     sync.Mutex
		delays []time.Duration
	)
	cfg := RunnerConfig{MaxRestarts: 2, RestartDelay: 10 * time.Millisecond, RestartMax: time.Second}
	r := NewRunner(func(ctx context.Context) error { return errors.New("fail") },
		toggles.New(toggles.Defaults()), nil, cfg,
		WithSleep(func(_ context.Context, d time.Duration) error {
			mu.Lock()
			delays = append(delays, d)
			mu.Unlock()
			return nil
		}))
	defer r.Close()

	require.NoError(t, r.RunAsync(context.Background()))
	r.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, delays, 2)
	assert.InDelta(t, float64(10*time.Millisecond), float64(delays[0]), float64(2*time.Millisecond))
	assert.InDelta(t, float64(20*time.Millisecond), float64(delays[1]), float64(4*time.Millisecond))
}

func TestRunner_WithProcessor(t *testing.T) {
	store := openStore(t, 10)
	rec := &recorder{}
	p := NewProcessor(store, resolverMap{"page": rec}, staticSingle(), nil, nil)
	insertTasks(t, store,
		recordValue("x"),
		recordValue("y"),
	)

	r := newTestRunner(p.Drain)
	defer r.Close()

	require.NoError(t, r.RunAsync(context.Background()))
	r.Wait()

	assert.Equal(t, []string{"x", "y"}, rec.Seen())
	assert.Empty(t, allTasks(t, store))
}
