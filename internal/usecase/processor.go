package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"indexq/internal/domain"
	"indexq/internal/metrics"
	"indexq/internal/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Processor drains the task queue of this node, one task at a time.
type Processor struct {
	store    ports.TaskStore
	indexers ports.IndexerResolver
	topology ports.Topology
	// locker is set only when nodes share one index storage.
	locker  ports.Locker
	metrics *metrics.Metrics
}

func NewProcessor(store ports.TaskStore, indexers ports.IndexerResolver, topology ports.Topology, locker ports.Locker, m *metrics.Metrics) *Processor {
	return &Processor{
		store:    store,
		indexers: indexers,
		topology: topology,
		locker:   locker,
		metrics:  m,
	}
}

// Drain processes batches until the queue is empty. The first failing task
// aborts the pass; its row is kept in error state and retried next pass.
// When another node holds the shared index lock the pass is skipped.
func (p *Processor) Drain(ctx context.Context) error {
	if p.locker != nil {
		owner := p.topology.NodeName() + "/" + lockOwner(ctx)
		ok, err := p.locker.TryAcquire(owner)
		if err != nil {
			return fmt.Errorf("acquire index lock: %w", err)
		}
		if !ok {
			log.Ctx(ctx).Debug().Msg("index lock held by another node, skipping pass")
			p.metrics.LockSkipped()
			return nil
		}
		defer func() {
			if err := p.locker.Release(); err != nil {
				log.Ctx(ctx).Warn().Err(err).Msg("failed to release index lock")
			}
		}()
	}
	return p.drain(ctx)
}

func (p *Processor) drain(ctx context.Context) error {
	serverName := ""
	if p.topology.IsPartitioned() {
		serverName = p.topology.NodeName()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := p.store.NextBatch(ctx, serverName)
		if err != nil {
			return fmt.Errorf("load batch: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}
		for _, t := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := p.execute(ctx, t); err != nil {
				return err
			}
		}
	}
}

func (p *Processor) execute(ctx context.Context, t domain.TaskRecord) error {
	logger := log.Ctx(ctx).With().
		Int64("task_id", t.ID).
		Str("task_type", string(t.TaskType)).
		Str("object_type", t.ObjectType).
		Logger()

	start := time.Now()
	err := p.invoke(ctx, t)
	p.metrics.TaskProcessed(string(t.TaskType), err, time.Since(start))

	if err == nil {
		if err := p.store.Delete(ctx, t.ID); err != nil && !errors.Is(err, domain.ErrTaskNotFound) {
			return fmt.Errorf("delete processed task %d: %w", t.ID, err)
		}
		logger.Debug().Dur("took", time.Since(start)).Msg("task processed")
		return nil
	}

	// interrupted by shutdown: leave the row untouched
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}

	t.Status = domain.StatusError
	t.ErrorMessage = err.Error()
	if t.ErrorMessage == "" {
		t.ErrorMessage = "indexer failed without a message"
	}
	if uerr := p.store.Update(ctx, t); uerr != nil {
		return errors.Join(fmt.Errorf("task %d: %w", t.ID, err), fmt.Errorf("record task failure: %w", uerr))
	}
	logger.Warn().Err(err).Msg("task failed")
	return fmt.Errorf("task %d: %w", t.ID, err)
}

func (p *Processor) invoke(ctx context.Context, t domain.TaskRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("indexer panic: %v", r)
		}
	}()

	ix, ok := p.indexers.Resolve(t.ObjectType)
	if !ok {
		return fmt.Errorf("%w %q", domain.ErrNoIndexer, t.ObjectType)
	}
	return ix.ExecuteTask(ctx, t)
}

func lockOwner(ctx context.Context) string {
	if id := ExecutionID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}
