package cmd

import (
	"context"
	"fmt"

	"indexq/internal/config"
	"indexq/internal/domain"
	"indexq/internal/usecase"
	"indexq/internal/worker"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func enqueueCmd() *cobra.Command {
	var (
		req domain.CreationRequest
		typ string
		run bool
	)

	var command = &cobra.Command{
		Use:   "enqueue [value...]",
		Short: "Create index tasks, one per value",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			ctx := context.Background()

			node, err := worker.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer node.Close()

			req.TaskType = domain.TaskType(typ)
			reqs := make([]domain.CreationRequest, 0, len(args))
			for _, v := range args {
				r := req
				r.Value = v
				reqs = append(reqs, r)
			}

			n, err := node.Creator.CreateTasks(ctx, reqs, usecase.WithRunIndexer(run))
			if err != nil {
				return err
			}
			if run {
				node.Runner.Wait()
			}
			log.Info().Int("rows", n).Msg("tasks created")
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}

	command.Flags().StringVarP(&typ, "type", "t", string(domain.TaskUpdate), "Task type: update, delete, rebuild, optimize or process_all")
	command.Flags().StringVarP(&req.ObjectType, "object-type", "o", "", "Object type of the indexed objects")
	command.Flags().StringVarP(&req.ObjectField, "field", "f", "", "Object field the values refer to")
	command.Flags().Int64VarP(&req.RelatedObjectID, "related", "r", 0, "Related object or index id")
	command.Flags().BoolVar(&run, "run", false, "Process the queue before exiting")

	return command
}
