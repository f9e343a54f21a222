package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"indexq/internal/api"
	"indexq/internal/config"
	"indexq/internal/worker"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func apiCmd() *cobra.Command {
	var port int
	var command = &cobra.Command{
		Use:   "api",
		Short: "Start API server with an embedded queue worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cmd.Flags().Changed("port") {
				cfg.HTTP.Port = port
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			node, err := worker.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer node.Close()

			log.Info().Msgf("API server on node %s using %s", cfg.Cluster.NodeName, cfg.DB.Driver)
			server := api.NewServer(api.FromNode(node))

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return node.Run(ctx) })
			g.Go(func() error { return server.Run(ctx, cfg.HTTP.Port) })
			return g.Wait()
		},
	}

	command.Flags().IntVarP(&port, "port", "p", 8080, "Port to run the server on")
	return command
}
