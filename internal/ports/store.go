package ports

import (
	"context"
	"indexq/internal/domain"
)

type TaskWriter interface {
	Insert(ctx context.Context, t *domain.TaskRecord) error
}

// TaskStore persists index tasks. It holds no business logic.
type TaskStore interface {
	TaskWriter
	Update(ctx context.Context, t domain.TaskRecord) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*domain.TaskRecord, error)
	// NextBatch returns ready and errored tasks ordered by priority desc, id
	// asc, limited to the store's batch size. An empty serverName matches
	// every row.
	NextBatch(ctx context.Context, serverName string) ([]domain.TaskRecord, error)
	List(ctx context.Context, f ListFilter) ([]domain.TaskRecord, error)
	// InTx runs fn inside one transaction; nothing is persisted if fn fails.
	InTx(ctx context.Context, fn func(w TaskWriter) error) error
}

type ListFilter struct {
	Status     domain.TaskStatus
	ServerName string
	Limit      int
}

// UnitOfWork is a caller-owned transaction that task inserts can join.
// Callbacks registered with AfterCommit run only if it commits.
type UnitOfWork interface {
	TaskWriter
	AfterCommit(fn func())
}
