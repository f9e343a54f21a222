package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"indexq/internal/cluster"
	"indexq/internal/domain"
	"indexq/internal/infra/sqlstore"
	"indexq/internal/ports"

	"github.com/stretchr/testify/require"
)

var dbSeq atomic.Int64

func openStore(t *testing.T, batchSize int) *sqlstore.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:usecase_%s_%d?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"), dbSeq.Add(1))
	s, err := sqlstore.Open(context.Background(), "sqlite", dsn, batchSize)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func allTasks(t *testing.T, s ports.TaskStore) []domain.TaskRecord {
	t.Helper()
	recs, err := s.List(context.Background(), ports.ListFilter{})
	require.NoError(t, err)
	return recs
}

type classifierFunc func(id int64) bool

func (f classifierFunc) IsOwnedKind(_ context.Context, id int64) (bool, error) { return f(id), nil }

var ownsAll = classifierFunc(func(int64) bool { return true })

type recordingNotifier struct {
	mu      sync.Mutex
	signals []string
}

func (n *recordingNotifier) SignalOtherNodes(_ context.Context, kind ports.SignalKind, payload string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.signals = append(n.signals, string(kind)+":"+payload)
	return nil
}

func (n *recordingNotifier) Signals() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.signals...)
}

type countingTrigger struct {
	calls atomic.Int32
}

func (c *countingTrigger) RunAsync(context.Context) error {
	c.calls.Add(1)
	return nil
}

type resolverMap map[string]ports.Indexer

func (m resolverMap) Resolve(objectType string) (ports.Indexer, bool) {
	ix, ok := m[objectType]
	return ix, ok
}

// failingWriter fails the nth insert.
type failingWriter struct {
	ports.TaskStore
	n     int
	count int
}

func (f *failingWriter) InTx(ctx context.Context, fn func(w ports.TaskWriter) error) error {
	return f.TaskStore.InTx(ctx, func(w ports.TaskWriter) error {
		return fn(writerFunc(func(ctx context.Context, t *domain.TaskRecord) error {
			f.count++
			if f.count == f.n {
				return fmt.Errorf("insert %d refused", f.count)
			}
			return w.Insert(ctx, t)
		}))
	})
}

type writerFunc func(ctx context.Context, t *domain.TaskRecord) error

func (f writerFunc) Insert(ctx context.Context, t *domain.TaskRecord) error { return f(ctx, t) }

func staticSingle() *cluster.Static { return cluster.NewStatic("node-a", nil, false) }

func recordValue(v string) domain.TaskRecord {
	return domain.TaskRecord{TaskType: domain.TaskUpdate, ObjectType: "page", Value: v}
}
