package usecase

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"indexq/internal/cluster"
	"indexq/internal/domain"
	"indexq/internal/filelock"
	"indexq/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	seen []string
	fail map[string]error
}

func (r *recorder) ExecuteTask(_ context.Context, t domain.TaskRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, t.Value)
	return r.fail[t.Value]
}

func (r *recorder) Seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func insertTasks(t *testing.T, s ports.TaskStore, recs ...domain.TaskRecord) []domain.TaskRecord {
	t.Helper()
	for i := range recs {
		if recs[i].TaskType == "" {
			recs[i].TaskType = domain.TaskUpdate
		}
		if recs[i].ObjectType == "" && !recs[i].TaskType.ClusterWide() {
			recs[i].ObjectType = "page"
		}
		require.NoError(t, s.Insert(context.Background(), &recs[i]))
	}
	return recs
}

func TestProcessor_SuccessDeletesRows(t *testing.T) {
	store := openStore(t, 10)
	rec := &recorder{}
	p := NewProcessor(store, resolverMap{"page": rec}, cluster.NewStatic("node-a", nil, false), nil, nil)

	insertTasks(t, store, domain.TaskRecord{Value: "x"})

	require.NoError(t, p.Drain(context.Background()))
	assert.Equal(t, []string{"x"}, rec.Seen())
	assert.Empty(t, allTasks(t, store))
}

func TestProcessor_DrainsEveryBatchInOrder(t *testing.T) {
	store := openStore(t, 2)
	rec := &recorder{}
	p := NewProcessor(store, resolverMap{"page": rec, "": rec}, cluster.NewStatic("node-a", nil, false), nil, nil)

	insertTasks(t, store,
		domain.TaskRecord{Value: "a"},
		domain.TaskRecord{Value: "b", Priority: domain.PriorityHigh, TaskType: domain.TaskRebuild},
		domain.TaskRecord{Value: "c"},
		domain.TaskRecord{Value: "d", Priority: domain.PriorityHigh, TaskType: domain.TaskRebuild},
		domain.TaskRecord{Value: "e"},
	)

	require.NoError(t, p.Drain(context.Background()))
	assert.Equal(t, []string{"b", "d", "a", "c", "e"}, rec.Seen())
	assert.Empty(t, allTasks(t, store))
}

func TestProcessor_FailureKeepsRowAndAbortsPass(t *testing.T) {
	store := openStore(t, 10)
	boom := errors.New("index unreachable")
	rec := &recorder{fail: map[string]error{"b": boom}}
	p := NewProcessor(store, resolverMap{"page": rec}, cluster.NewStatic("node-a", nil, false), nil, nil)

	recs := insertTasks(t, store,
		domain.TaskRecord{Value: "a"},
		domain.TaskRecord{Value: "b"},
		domain.TaskRecord{Value: "c"},
	)

	err := p.Drain(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a", "b"}, rec.Seen(), "remaining tasks wait for the next pass")

	failed, err := store.Get(context.Background(), recs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, failed.Status)
	assert.Equal(t, "index unreachable", failed.ErrorMessage)

	_, err = store.Get(context.Background(), recs[2].ID)
	require.NoError(t, err)

	// next pass picks the errored row up again
	rec.fail = nil
	require.NoError(t, p.Drain(context.Background()))
	assert.Equal(t, []string{"a", "b", "b", "c"}, rec.Seen())
	assert.Empty(t, allTasks(t, store))
}

func TestProcessor_UnknownObjectTypeFails(t *testing.T) {
	store := openStore(t, 10)
	p := NewProcessor(store, resolverMap{}, cluster.NewStatic("node-a", nil, false), nil, nil)

	recs := insertTasks(t, store, domain.TaskRecord{Value: "x", ObjectType: "user"})

	err := p.Drain(context.Background())
	require.ErrorIs(t, err, domain.ErrNoIndexer)

	got, err := store.Get(context.Background(), recs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, got.Status)
	assert.Contains(t, got.ErrorMessage, "user")
}

func TestProcessor_IndexerPanicIsATaskFailure(t *testing.T) {
	store := openStore(t, 10)
	panicky := ports.IndexerFunc(func(context.Context, domain.TaskRecord) error { panic("nil index") })
	p := NewProcessor(store, resolverMap{"page": panicky}, cluster.NewStatic("node-a", nil, false), nil, nil)

	recs := insertTasks(t, store, domain.TaskRecord{Value: "x"})

	require.Error(t, p.Drain(context.Background()))
	got, err := store.Get(context.Background(), recs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, got.Status)
	assert.Contains(t, got.ErrorMessage, "nil index")
}

func TestProcessor_PartitionedOnlyTouchesOwnRows(t *testing.T) {
	store := openStore(t, 10)
	rec := &recorder{}
	topo := cluster.NewStatic("node-a", []string{"node-a", "node-b"}, false)
	p := NewProcessor(store, resolverMap{"page": rec}, topo, nil, nil)

	recs := insertTasks(t, store,
		domain.TaskRecord{Value: "mine", ServerName: "node-a"},
		domain.TaskRecord{Value: "theirs", ServerName: "node-b"},
	)

	require.NoError(t, p.Drain(context.Background()))
	assert.Equal(t, []string{"mine"}, rec.Seen())
	left := allTasks(t, store)
	require.Len(t, left, 1)
	assert.Equal(t, recs[1].ID, left[0].ID)
}

func TestProcessor_SkipsPassWhenLockHeld(t *testing.T) {
	store := openStore(t, 10)
	rec := &recorder{}
	path := filepath.Join(t.TempDir(), "index.lock")
	topo := cluster.NewStatic("node-a", []string{"node-a", "node-b"}, true)
	p := NewProcessor(store, resolverMap{"page": rec}, topo, filelock.New(path), nil)

	insertTasks(t, store, domain.TaskRecord{Value: "x"})

	other := filelock.New(path)
	ok, err := other.TryAcquire("node-b/exec")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, p.Drain(context.Background()))
	assert.Empty(t, rec.Seen())
	assert.Len(t, allTasks(t, store), 1)

	require.NoError(t, other.Release())
	require.NoError(t, p.Drain(WithExecutionID(context.Background(), "exec-1")))
	assert.Equal(t, []string{"x"}, rec.Seen())
}

func TestProcessor_ReleasesLockAfterFailure(t *testing.T) {
	store := openStore(t, 10)
	rec := &recorder{fail: map[string]error{"x": errors.New("boom")}}
	path := filepath.Join(t.TempDir(), "index.lock")
	topo := cluster.NewStatic("node-a", []string{"node-a", "node-b"}, true)
	p := NewProcessor(store, resolverMap{"page": rec}, topo, filelock.New(path), nil)

	insertTasks(t, store, domain.TaskRecord{Value: "x"})
	require.Error(t, p.Drain(context.Background()))

	other := filelock.New(path)
	ok, err := other.TryAcquire("node-b/exec")
	require.NoError(t, err)
	assert.True(t, ok, "lock must be released when the pass fails")
	require.NoError(t, other.Release())
}

func TestProcessor_CancellationLeavesTaskUntouched(t *testing.T) {
	store := openStore(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	blocking := ports.IndexerFunc(func(ctx context.Context, _ domain.TaskRecord) error {
		cancel()
		return ctx.Err()
	})
	p := NewProcessor(store, resolverMap{"page": blocking}, cluster.NewStatic("node-a", nil, false), nil, nil)

	recs := insertTasks(t, store, domain.TaskRecord{Value: "x"})

	err := p.Drain(ctx)
	require.ErrorIs(t, err, context.Canceled)

	got, err := store.Get(context.Background(), recs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, got.Status)
	assert.Empty(t, got.ErrorMessage)
}
