package main

import (
	"github.com/spf13/cobra"

	"mirrordl/internal/app"
	apperrors "mirrordl/internal/errors"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recent download runs, or show one run's files",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if len(args) == 0 {
			return app.ListHistory(cmd.Context(), cfg, historyLimit, nil)
		}

		err = app.ShowRun(cmd.Context(), cfg, args[0], nil)
		if apperrors.HasCode(err, apperrors.CodeRunNotFound) {
			cfg.NewLogger().Info("Run 'mirrordl history' to list recorded run ids")
		}
		return err
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of runs to show")
	rootCmd.AddCommand(historyCmd)
}
