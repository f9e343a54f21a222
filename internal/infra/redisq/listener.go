package redisq

import (
	"context"
	"time"

	"indexq/pkg/backoff"

	"github.com/rs/zerolog/log"
)

type HandlerFunc func(ctx context.Context, s Signal) error

// Listener consumes signals from other nodes and hands them to a handler.
type Listener struct {
	C       *Client
	Block   time.Duration
	Handler HandlerFunc
}

func NewListener(c *Client, block time.Duration, h HandlerFunc) *Listener {
	return &Listener{C: c, Block: block, Handler: h}
}

// Run reads until ctx is done. Redis errors are retried with backoff.
func (l *Listener) Run(ctx context.Context) error {
	logger := log.Ctx(ctx).With().Str("component", "listener").Str("node", l.C.Node).Logger()
	ctx = logger.WithContext(ctx)

	failures := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s, err := l.C.Receive(ctx, l.Block)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			wait := backoff.ExponentialJitter(200*time.Millisecond, 10*time.Second, failures)
			logger.Error().Err(err).Dur("retry_in", wait).Msg("read signal failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		failures = 0
		if s == nil {
			continue
		}

		l.dispatch(ctx, *s)
		if err := l.C.Ack(ctx, s.ID); err != nil {
			logger.Warn().Err(err).Str("id", s.ID).Msg("ack signal failed")
		}
	}
}

func (l *Listener) dispatch(ctx context.Context, s Signal) {
	if s.Origin == l.C.Node {
		return
	}
	l.C.metrics.SignalReceived()

	logger := log.Ctx(ctx)
	logger.Debug().Str("origin", s.Origin).Str("kind", string(s.Kind)).Msg("signal received")
	if err := l.Handler(ctx, s); err != nil {
		logger.Error().Err(err).Str("origin", s.Origin).Str("kind", string(s.Kind)).Msg("handle signal failed")
	}
}
