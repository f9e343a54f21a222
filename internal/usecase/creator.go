package usecase

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"indexq/internal/domain"
	"indexq/internal/metrics"
	"indexq/internal/ports"
	"indexq/internal/toggles"

	"github.com/rs/zerolog/log"
)

const signalTimeout = 5 * time.Second

// Trigger starts queue processing in the background.
type Trigger interface {
	RunAsync(ctx context.Context) error
}

type CreateOption func(*createOptions)

type createOptions struct {
	runIndexer *bool
	uow        ports.UnitOfWork
}

// WithRunIndexer forces or suppresses immediate processing, overriding the
// process-immediately toggle.
func WithRunIndexer(run bool) CreateOption {
	return func(o *createOptions) { o.runIndexer = &run }
}

// WithinUnitOfWork inserts into the caller's transaction and defers
// processing until it commits.
func WithinUnitOfWork(u ports.UnitOfWork) CreateOption {
	return func(o *createOptions) { o.uow = u }
}

type Creator struct {
	Store      ports.TaskStore
	Classifier ports.IndexClassifier
	Topology   ports.Topology
	Notifier   ports.Notifier
	Toggles    *toggles.Set
	Trigger    Trigger
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

// CreateTasks persists the tasks derived from reqs and returns how many rows
// were written. Requests with an empty value, and rebuild or optimize
// requests for indexes of a foreign kind, are dropped.
func (c Creator) CreateTasks(ctx context.Context, reqs []domain.CreationRequest, opts ...CreateOption) (int, error) {
	var o createOptions
	for _, opt := range opts {
		opt(&o)
	}

	if !c.Toggles.TaskCreationEnabled(ctx) {
		return 0, nil
	}

	accepted, err := c.filter(ctx, reqs)
	if err != nil {
		return 0, err
	}
	if len(accepted) == 0 {
		return 0, nil
	}

	records := c.expand(accepted)
	if err := c.persist(ctx, records, o.uow); err != nil {
		return 0, err
	}
	for _, r := range records {
		c.Metrics.TaskCreated(string(r.TaskType))
	}
	log.Ctx(ctx).Debug().Int("requests", len(accepted)).Int("rows", len(records)).Msg("index tasks created")

	after := func() { c.afterPersist(ctx, o, len(records)) }
	if o.uow != nil {
		o.uow.AfterCommit(after)
	} else {
		after()
	}
	return len(records), nil
}

func (c Creator) filter(ctx context.Context, reqs []domain.CreationRequest) ([]domain.CreationRequest, error) {
	out := make([]domain.CreationRequest, 0, len(reqs))
	for _, r := range reqs {
		if !r.TaskType.Valid() {
			return nil, fmt.Errorf("%w: unknown task type %q", domain.ErrInvalidTask, r.TaskType)
		}
		if r.TaskType.ClusterWide() {
			owned, err := c.Classifier.IsOwnedKind(ctx, r.RelatedObjectID)
			if err != nil {
				return nil, fmt.Errorf("classify index %d: %w", r.RelatedObjectID, err)
			}
			if !owned {
				continue
			}
		}
		if r.Value == "" {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (c Creator) expand(reqs []domain.CreationRequest) []domain.TaskRecord {
	now := time.Now().UTC()
	if c.Now != nil {
		now = c.Now()
	}

	nodes := []string{""}
	if c.Topology.IsPartitioned() {
		nodes = c.Topology.EnabledNodeNames()
	}

	records := make([]domain.TaskRecord, 0, len(nodes)*len(reqs))
	for _, node := range nodes {
		for _, r := range reqs {
			records = append(records, domain.NewTaskRecord(r, node, now))
		}
	}
	return records
}

func (c Creator) persist(ctx context.Context, records []domain.TaskRecord, uow ports.UnitOfWork) error {
	insertAll := func(w ports.TaskWriter) error {
		for i := range records {
			if err := w.Insert(ctx, &records[i]); err != nil {
				return err
			}
		}
		return nil
	}

	switch {
	case uow != nil:
		return insertAll(uow)
	case len(records) > 1:
		return c.Store.InTx(ctx, insertAll)
	default:
		return insertAll(c.Store)
	}
}

func (c Creator) afterPersist(ctx context.Context, o createOptions, rows int) {
	run := c.Toggles.ProcessImmediately(ctx)
	if o.runIndexer != nil {
		run = *o.runIndexer
	}
	if run && c.Toggles.IndexingEnabled(ctx) && c.Trigger != nil {
		if err := c.Trigger.RunAsync(ctx); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("could not start queue worker")
		}
	}

	if c.Topology.IsPartitioned() && c.Notifier != nil {
		// the caller never waits on the notifier
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), signalTimeout)
		go func() {
			defer cancel()
			if err := c.Notifier.SignalOtherNodes(sctx, ports.SignalRunIndexer, strconv.Itoa(rows)); err != nil {
				log.Ctx(sctx).Warn().Err(err).Msg("failed to signal other nodes")
			}
		}()
	}
}
