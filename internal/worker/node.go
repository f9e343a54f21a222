// Package worker assembles one indexing node: task store, queue worker,
// cross-node signalling and the periodic sweep.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"indexq/internal/cluster"
	"indexq/internal/config"
	"indexq/internal/filelock"
	"indexq/internal/indexer"
	"indexq/internal/infra/redisq"
	"indexq/internal/infra/sqlstore"
	"indexq/internal/metrics"
	"indexq/internal/ports"
	"indexq/internal/toggles"
	"indexq/internal/usecase"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

const listenBlock = time.Second

type Node struct {
	Cfg       *config.Config
	Store     *sqlstore.Store
	Topology  *cluster.Static
	Toggles   *toggles.Set
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Indexers  *indexer.Registry
	Processor *usecase.Processor
	Runner    *usecase.Runner
	Creator   usecase.Creator
	// Redis is nil when no redis address is configured.
	Redis *redisq.Client
	Lock  *filelock.Lock

	sweep     *Sweep
	ownsStore bool
}

type Option func(*options)

type options struct {
	indexers *indexer.Registry
	store    *sqlstore.Store
}

// WithIndexers replaces the webhook indexers built from config.
func WithIndexers(r *indexer.Registry) Option {
	return func(o *options) { o.indexers = r }
}

// WithStore uses an already opened store instead of opening cfg.DB. The
// caller keeps ownership of it.
func WithStore(s *sqlstore.Store) Option {
	return func(o *options) { o.store = s }
}

func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*Node, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := &Node{Cfg: cfg}

	v := toggles.Values{
		Indexing:           cfg.Toggles.Indexing,
		TaskCreation:       cfg.Toggles.TaskCreation,
		Search:             cfg.Toggles.Search,
		ProcessImmediately: cfg.Toggles.ProcessImmediately,
	}
	if cfg.Toggles.File != "" {
		loaded, err := toggles.LoadFile(cfg.Toggles.File, v)
		if err != nil {
			return nil, err
		}
		v = loaded
	}
	n.Toggles = toggles.New(v)

	n.Registry = prometheus.NewRegistry()
	n.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	n.Metrics = metrics.New(n.Registry)

	n.Topology = cluster.NewStatic(cfg.Cluster.NodeName, cfg.Cluster.Nodes, cfg.Cluster.SharedStorage)

	n.Store = o.store
	if n.Store == nil {
		s, err := sqlstore.Open(ctx, cfg.DB.Driver, cfg.DB.DSN, cfg.Queue.BatchSize)
		if err != nil {
			return nil, err
		}
		n.Store = s
		n.ownsStore = true
	}

	n.Indexers = o.indexers
	if n.Indexers == nil {
		n.Indexers = indexer.FromConfig(cfg.Indexer.Endpoints, cfg.Indexer.DefaultEndpoint, cfg.Indexer.Timeout)
	}

	var locker ports.Locker
	if n.Topology.SharedStorage() {
		n.Lock = filelock.New(cfg.Cluster.LockPath)
		locker = n.Lock
	}
	n.Processor = usecase.NewProcessor(n.Store, n.Indexers, n.Topology, locker, n.Metrics)

	n.Runner = usecase.NewRunner(n.Processor.Drain, n.Toggles, n.Metrics, usecase.RunnerConfig{
		MaxRestarts:  cfg.Queue.MaxRestarts,
		RestartDelay: cfg.Queue.RestartDelay,
		RestartMax:   cfg.Queue.RestartMax,
	})

	if cfg.Queue.SweepSpec != "" {
		s, err := NewSweep(cfg.Queue.SweepSpec, n.Runner)
		if err != nil {
			n.Close()
			return nil, err
		}
		n.sweep = s
	}

	n.Creator = usecase.Creator{
		Store:      n.Store,
		Classifier: indexer.NewStaticClassifier(cfg.Indexer.OwnedIndexes),
		Topology:   n.Topology,
		Toggles:    n.Toggles,
		Trigger:    n.Runner,
		Metrics:    n.Metrics,
	}

	if cfg.Redis.Addr != "" {
		n.Redis = redisq.New(cfg.Redis, cfg.Cluster.NodeName, n.Metrics)
		if err := n.Redis.Init(ctx); err != nil {
			n.Close()
			return nil, err
		}
		n.Creator.Notifier = n.Redis
	} else if n.Topology.IsPartitioned() {
		log.Ctx(ctx).Warn().Msg("no redis configured, other nodes will only pick up tasks on their sweep")
	}

	log.Ctx(ctx).Info().
		Str("node", n.Topology.NodeName()).
		Strs("nodes", n.Topology.EnabledNodeNames()).
		Bool("partitioned", n.Topology.IsPartitioned()).
		Bool("shared_storage", n.Topology.SharedStorage()).
		Msg("indexing node ready")
	return n, nil
}

// Close stops the queue worker and releases the store and redis client.
func (n *Node) Close() error {
	if n.Runner != nil {
		n.Runner.Close()
	}
	var errs []error
	if n.Redis != nil {
		if err := n.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if n.Store != nil && n.ownsStore {
		if err := n.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
