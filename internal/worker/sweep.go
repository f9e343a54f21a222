package worker

import (
	"context"
	"fmt"

	"indexq/internal/usecase"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Sweep periodically starts a queue pass so tasks whose trigger was lost,
// or that failed on an earlier pass, are retried.
type Sweep struct {
	sched   cron.Schedule
	trigger usecase.Trigger
}

func NewSweep(spec string, t usecase.Trigger) (*Sweep, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse sweep spec %q: %w", spec, err)
	}
	return &Sweep{sched: sched, trigger: t}, nil
}

func (s *Sweep) Run(ctx context.Context) error {
	c := cron.New()
	c.Schedule(s.sched, cron.FuncJob(func() {
		if err := s.trigger.RunAsync(ctx); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("sweep could not start queue worker")
		}
	}))
	c.Start()
	log.Ctx(ctx).Debug().Msg("queue sweep scheduled")

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
