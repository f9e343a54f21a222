package worker

import (
	"context"
	"errors"

	"indexq/internal/infra/redisq"
	"indexq/internal/ports"
	"indexq/internal/toggles"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Run starts the background services of the node and blocks until ctx is
// done or one of them fails. A first queue pass is started right away so
// tasks left over from a previous run are picked up.
func (n *Node) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if n.Redis != nil {
		l := redisq.NewListener(n.Redis, listenBlock, n.handleSignal)
		g.Go(func() error { return ignoreCanceled(l.Run(ctx)) })
	}

	if n.sweep != nil {
		g.Go(func() error { return n.sweep.Run(ctx) })
	}

	if n.Cfg.Toggles.File != "" {
		g.Go(func() error { return toggles.Watch(ctx, n.Cfg.Toggles.File, n.Toggles) })
	}

	if err := n.Runner.RunAsync(ctx); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("initial queue pass not started")
	}

	g.Go(func() error {
		<-ctx.Done()
		n.Runner.Close()
		return nil
	})

	return g.Wait()
}

func (n *Node) handleSignal(ctx context.Context, s redisq.Signal) error {
	switch s.Kind {
	case ports.SignalRunIndexer:
		return n.Runner.RunAsync(ctx)
	default:
		log.Ctx(ctx).Warn().Str("kind", string(s.Kind)).Msg("unknown signal ignored")
		return nil
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
