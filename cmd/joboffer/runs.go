package main

import (
	"fmt"

	"github.com/hyperjump/joboffer/internal/cli"
	"github.com/hyperjump/joboffer/internal/storage"
	"github.com/spf13/cobra"
)

func newRunsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded training runs",
	}
	cmd.PersistentFlags().String("db", "", "run registry database path")

	list := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			offset, _ := cmd.Flags().GetInt("offset")
			limit, _ := cmd.Flags().GetInt("limit")
			return withStore(cmd, e, func(store storage.Storage, format cli.OutputFormat) error {
				runs, err := store.ListRuns(cmd.Context(), offset, limit)
				if err != nil {
					return err
				}
				return cli.WriteRuns(cmd.OutOrStdout(), runs, format)
			})
		},
	}
	list.Flags().Int("offset", 0, "number of runs to skip")
	list.Flags().Int("limit", 20, "maximum number of runs")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a run and its evaluation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, e, func(store storage.Storage, format cli.OutputFormat) error {
				run, err := store.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return cli.WriteRun(cmd.OutOrStdout(), run, format)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a run from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, e, func(store storage.Storage, _ cli.OutputFormat) error {
				if _, err := store.GetRun(cmd.Context(), args[0]); err != nil {
					return err
				}
				if err := store.DeleteRun(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(list, show, del)
	return cmd
}

func withStore(cmd *cobra.Command, e *env, fn func(storage.Storage, cli.OutputFormat) error) error {
	cfg, logger, err := e.setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()
	format, err := e.format()
	if err != nil {
		return err
	}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store, format)
}
