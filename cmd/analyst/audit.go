package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iyulab/siem-analyst/internal/audit"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit ledger",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "verify <ledger.jsonl>",
		Short: "Check the ledger's hash chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := audit.ReadLedger(args[0])
			if err != nil {
				return err
			}
			if err := audit.VerifyChain(records); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d records, chain intact\n", args[0], len(records))
			return nil
		},
	})
	return cmd
}
