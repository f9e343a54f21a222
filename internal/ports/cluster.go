package ports

import (
	"context"
	"indexq/internal/domain"
)

type Indexer interface {
	ExecuteTask(ctx context.Context, t domain.TaskRecord) error
}

type IndexerFunc func(ctx context.Context, t domain.TaskRecord) error

func (f IndexerFunc) ExecuteTask(ctx context.Context, t domain.TaskRecord) error { return f(ctx, t) }

type IndexerResolver interface {
	Resolve(objectType string) (Indexer, bool)
}

// IndexClassifier tells whether the index behind relatedObjectID is of the
// kind this process indexes.
type IndexClassifier interface {
	IsOwnedKind(ctx context.Context, relatedObjectID int64) (bool, error)
}

type Topology interface {
	NodeName() string
	EnabledNodeNames() []string
	// IsPartitioned is true when several nodes keep their own index storage
	// and therefore their own copy of every task.
	IsPartitioned() bool
}

type SignalKind string

const SignalRunIndexer SignalKind = "run_indexer"

// Notifier delivers best-effort signals to the other cluster nodes.
type Notifier interface {
	SignalOtherNodes(ctx context.Context, kind SignalKind, payload string) error
}

type Locker interface {
	TryAcquire(owner string) (bool, error)
	Release() error
}
