package redisq

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"indexq/internal/ports"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var _ ports.Notifier = (*Client)(nil)

// Signal is one message read from the stream.
type Signal struct {
	ID      string
	Origin  string
	Kind    ports.SignalKind
	Payload string
	SentAt  time.Time
}

// SignalOtherNodes publishes a signal for every other node. Signals over the
// configured rate are dropped; the periodic sweep covers for them.
func (c *Client) SignalOtherNodes(ctx context.Context, kind ports.SignalKind, payload string) error {
	if !c.limiter.Allow() {
		c.metrics.SignalSent("dropped")
		log.Ctx(ctx).Debug().Str("kind", string(kind)).Msg("signal rate exceeded, dropped")
		return nil
	}

	args := &redis.XAddArgs{
		Stream: c.Cfg.StreamKey,
		Values: map[string]any{
			"origin":  c.Node,
			"kind":    string(kind),
			"payload": payload,
			"sent_at": time.Now().UnixMilli(),
		},
	}
	if c.Cfg.MaxLen > 0 {
		args.MaxLen = c.Cfg.MaxLen
		args.Approx = true
	}

	if err := c.Rdb.XAdd(ctx, args).Err(); err != nil {
		c.metrics.SignalSent("error")
		return fmt.Errorf("publish %s signal: %w", kind, err)
	}
	c.metrics.SignalSent("sent")
	return nil
}

// Receive blocks up to block for the next signal addressed to this node's
// group. It returns nil when nothing arrived.
func (c *Client) Receive(ctx context.Context, block time.Duration) (*Signal, error) {
	res, err := c.Rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group(),
		Consumer: c.Node,
		Streams:  []string{c.Cfg.StreamKey, ">"},
		Count:    1,
		Block:    block,
	}).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	if len(res) == 0 || len(res[0].Messages) == 0 {
		return nil, nil
	}

	return decodeSignal(res[0].Messages[0]), nil
}

func (c *Client) Ack(ctx context.Context, id string) error {
	return c.Rdb.XAck(ctx, c.Cfg.StreamKey, c.group(), id).Err()
}

func decodeSignal(msg redis.XMessage) *Signal {
	s := &Signal{ID: msg.ID}
	s.Origin, _ = msg.Values["origin"].(string)
	kind, _ := msg.Values["kind"].(string)
	s.Kind = ports.SignalKind(kind)
	s.Payload, _ = msg.Values["payload"].(string)
	if raw, ok := msg.Values["sent_at"].(string); ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			s.SentAt = time.UnixMilli(ms)
		}
	}
	return s
}
