package redisq

import (
	"context"
	"fmt"
	"strings"

	"indexq/internal/config"
	"indexq/internal/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Client carries run signals between cluster nodes over a redis stream.
// Every node reads the stream through its own consumer group, so each
// signal reaches every node once.
type Client struct {
	Cfg     config.Redis
	Rdb     *redis.Client
	Node    string
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

func New(cfg config.Redis, node string, m *metrics.Metrics) *Client {
	log.Info().Msgf("connecting to redis at %s", cfg.Addr)
	c := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewWithClient(cfg, node, c, m)
}

func NewWithClient(cfg config.Redis, node string, rdb *redis.Client, m *metrics.Metrics) *Client {
	limit := rate.Inf
	if cfg.SignalRate > 0 {
		limit = rate.Limit(cfg.SignalRate)
	}
	burst := max(cfg.SignalBurst, 1)
	return &Client{
		Cfg:     cfg,
		Rdb:     rdb,
		Node:    node,
		limiter: rate.NewLimiter(limit, burst),
		metrics: m,
	}
}

// Connect → used by producers that only publish signals
func (c *Client) Connect(ctx context.Context) error {
	if err := c.Rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	log.Ctx(ctx).Info().Msg("connected to redis")
	return nil
}

// Init → used by workers, ensures the stream and this node's group exist
func (c *Client) Init(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}

	// Signals sent before the node joined are not replayed.
	err := c.Rdb.XGroupCreateMkStream(ctx, c.Cfg.StreamKey, c.group(), "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	log.Ctx(ctx).Info().
		Str("stream", c.Cfg.StreamKey).
		Str("group", c.group()).
		Msg("redis stream and consumer group ready")

	return nil
}

func (c *Client) Close() error { return c.Rdb.Close() }

func (c *Client) group() string { return "node:" + c.Node }
