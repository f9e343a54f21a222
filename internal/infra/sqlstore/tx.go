package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"indexq/internal/domain"
	"indexq/internal/ports"
)

var _ ports.UnitOfWork = (*Tx)(nil)

// Tx is a unit of work over the task table.
type Tx struct {
	tx *sql.Tx
	d  dialect

	mu          sync.Mutex
	afterCommit []func()
}

func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &Tx{tx: tx, d: s.d}, nil
}

func (t *Tx) Insert(ctx context.Context, rec *domain.TaskRecord) error {
	return insert(ctx, t.tx, t.d, rec)
}

func (t *Tx) AfterCommit(fn func()) {
	t.mu.Lock()
	t.afterCommit = append(t.afterCommit, fn)
	t.mu.Unlock()
}

// Commit commits and then runs the AfterCommit callbacks in registration order.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	t.mu.Lock()
	hooks := t.afterCommit
	t.afterCommit = nil
	t.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
	return nil
}

// Rollback discards the transaction and its callbacks. It is safe to call
// after Commit.
func (t *Tx) Rollback() error {
	t.mu.Lock()
	t.afterCommit = nil
	t.mu.Unlock()
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func (s *Store) InTx(ctx context.Context, fn func(w ports.TaskWriter) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
