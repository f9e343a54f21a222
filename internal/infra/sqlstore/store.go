package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"indexq/internal/domain"
	"indexq/internal/ports"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

var _ ports.TaskStore = (*Store)(nil)

const taskColumns = `id, task_type, object_type, object_field, value, related_object_id, priority, server_name, status, error_message, created_at`

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db        *sql.DB
	d         dialect
	batchSize int
}

// Open connects to the task database and applies the schema.
func Open(ctx context.Context, driver, dsn string, batchSize int) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(d.name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if d.name == "sqlite" {
		// a single writer keeps sqlite away from SQLITE_BUSY under the worker
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db connection failed: %w", err)
	}

	s := &Store{db: db, d: d, batchSize: batchSize}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Ctx(ctx).Info().Str("driver", d.name).Int("batch_size", batchSize).Msg("task store ready")
	return s, nil
}

// New wraps an existing handle. The schema is not applied.
func New(db *sql.DB, driver string, batchSize int) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	return &Store{db: db, d: d, batchSize: batchSize}, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.d.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) BatchSize() int { return s.batchSize }

func (s *Store) Insert(ctx context.Context, t *domain.TaskRecord) error {
	return insert(ctx, s.db, s.d, t)
}

func insert(ctx context.Context, q querier, d dialect, t *domain.TaskRecord) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.Status == "" {
		t.Status = domain.StatusReady
	}
	query := d.rebind(`INSERT INTO index_tasks (task_type, object_type, object_field, value, related_object_id, priority, server_name, status, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := q.QueryRowContext(ctx, query,
		string(t.TaskType), t.ObjectType, t.ObjectField, t.Value, t.RelatedObjectID,
		t.Priority, t.ServerName, string(t.Status), t.ErrorMessage, t.CreatedAt.UTC(),
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// Update persists the status and error message of t.
func (s *Store) Update(ctx context.Context, t domain.TaskRecord) error {
	res, err := s.db.ExecContext(ctx, s.d.rebind(`UPDATE index_tasks SET status = ?, error_message = ? WHERE id = ?`),
		string(t.Status), t.ErrorMessage, t.ID)
	if err != nil {
		return fmt.Errorf("update task %d: %w", t.ID, err)
	}
	return expectOne(res, t.ID)
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.d.rebind(`DELETE FROM index_tasks WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return expectOne(res, id)
}

func (s *Store) Get(ctx context.Context, id int64) (*domain.TaskRecord, error) {
	row := s.db.QueryRowContext(ctx, s.d.rebind(`SELECT `+taskColumns+` FROM index_tasks WHERE id = ?`), id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, domain.ErrTaskNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	return &t, nil
}

func (s *Store) NextBatch(ctx context.Context, serverName string) ([]domain.TaskRecord, error) {
	var (
		b    strings.Builder
		args = []any{string(domain.StatusReady), string(domain.StatusError)}
	)
	b.WriteString(`SELECT ` + taskColumns + ` FROM index_tasks WHERE status IN (?, ?)`)
	if serverName != "" {
		b.WriteString(` AND server_name = ?`)
		args = append(args, serverName)
	}
	b.WriteString(` ORDER BY priority DESC, id ASC LIMIT ?`)
	args = append(args, s.batchSize)

	return s.query(ctx, b.String(), args...)
}

// List returns tasks for operator inspection, in processing order.
func (s *Store) List(ctx context.Context, f ports.ListFilter) ([]domain.TaskRecord, error) {
	var (
		b    strings.Builder
		args []any
	)
	b.WriteString(`SELECT ` + taskColumns + ` FROM index_tasks WHERE 1 = 1`)
	if f.Status != "" {
		b.WriteString(` AND status = ?`)
		args = append(args, string(f.Status))
	}
	if f.ServerName != "" {
		b.WriteString(` AND server_name = ?`)
		args = append(args, f.ServerName)
	}
	b.WriteString(` ORDER BY priority DESC, id ASC`)
	if f.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, f.Limit)
	}
	return s.query(ctx, b.String(), args...)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]domain.TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.d.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []domain.TaskRecord
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (domain.TaskRecord, error) {
	var (
		t              domain.TaskRecord
		taskType, stat string
	)
	err := row.Scan(&t.ID, &taskType, &t.ObjectType, &t.ObjectField, &t.Value, &t.RelatedObjectID,
		&t.Priority, &t.ServerName, &stat, &t.ErrorMessage, &t.CreatedAt)
	if err != nil {
		return t, err
	}
	t.TaskType = domain.TaskType(taskType)
	t.Status = domain.TaskStatus(stat)
	return t, nil
}

func expectOne(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("task %d: %w", id, domain.ErrTaskNotFound)
	}
	return nil
}
