package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newReconcileCmd(configPath *string) *cobra.Command {
	var (
		limit  int
		txHash string
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Apply confirmed escrow transactions missing from the database",
		Long:  "Replays journaled transactions whose database write failed after on-chain confirmation. Pass --tx to apply a single transaction.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			if txHash != "" {
				if err := a.facade.ApplyConfirmed(cmd.Context(), txHash); err != nil {
					return err
				}
				fmt.Fprintf(out, "applied %s\n", txHash)
				return nil
			}

			report, err := a.facade.ReconcilePending(cmd.Context(), limit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d transactions could not be applied", len(report.Failed))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum journal entries to process")
	cmd.Flags().StringVar(&txHash, "tx", "", "apply a single transaction hash")
	return cmd
}
