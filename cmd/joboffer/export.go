package main

import (
	"fmt"

	"github.com/hyperjump/joboffer/internal/estimator"
	"github.com/spf13/cobra"
)

func newExportCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <dst>",
		Short: "Copy a trained model directory to dst",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := e.setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if cfg.Model.Dir == "" {
				return fmt.Errorf("no model: set model.dir in the config or pass --model-dir")
			}
			if err := estimator.ExportDir(cfg.Model.Dir, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", cfg.Model.Dir, args[0])
			return nil
		},
	}
	cmd.Flags().String("model-dir", "", "directory of a trained model")
	return cmd
}
