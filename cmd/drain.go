package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"indexq/internal/config"
	"indexq/internal/worker"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func drainCmd() *cobra.Command {
	var command = &cobra.Command{
		Use:   "drain",
		Short: "Process this node's queue once in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			node, err := worker.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer node.Close()

			if err := node.Processor.Drain(ctx); err != nil {
				return err
			}
			log.Info().Msg("queue drained")
			return nil
		},
	}
	return command
}
