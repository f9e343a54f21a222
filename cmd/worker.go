package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"indexq/internal/config"
	"indexq/internal/worker"

	"github.com/spf13/cobra"
)

func workerCmd() *cobra.Command {
	var (
		nodeName    string
		maxRestarts int
		sweep       string
	)

	var command = &cobra.Command{
		Use:   "worker",
		Short: "Start a headless queue worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if nodeName != "" {
				cfg.Cluster.NodeName = nodeName
			}
			if cmd.Flags().Changed("max-restarts") {
				cfg.Queue.MaxRestarts = maxRestarts
			}
			if cmd.Flags().Changed("sweep") {
				cfg.Queue.SweepSpec = sweep
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			node, err := worker.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer node.Close()
			return node.Run(ctx)
		},
	}

	command.Flags().StringVar(&nodeName, "node", "", "Node name, overrides CLUSTER_NODE_NAME")
	command.Flags().IntVar(&maxRestarts, "max-restarts", 5, "Restarts of a failing worker per trigger")
	command.Flags().StringVar(&sweep, "sweep", "@every 1m", "Cron spec of the periodic queue pass, empty disables it")

	return command
}
