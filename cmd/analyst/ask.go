package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iyulab/siem-analyst/internal/pipeline"
)

func newAskCmd() *cobra.Command {
	var (
		sessionID string
		asJSON    bool
		showKQL   bool
	)

	cmd := &cobra.Command{
		Use:   `ask "<question>"`,
		Short: "Run a single question through the pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			req := pipeline.Request{SessionID: sessionID, Text: strings.Join(args, " ")}
			p, err := a.handle(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(p)
			}
			printPayload(out, p, showKQL)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id (new session when empty)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full response payload as JSON")
	cmd.Flags().BoolVar(&showKQL, "kql", false, "also print the equivalent KQL")
	return cmd
}

// printPayload writes the human-readable form of a reply.
func printPayload(w io.Writer, p pipeline.Payload, showKQL bool) {
	fmt.Fprintln(w, p.Response)

	if p.Analysis != nil {
		a := p.Analysis
		fmt.Fprintf(w, "\nRisk: %.0f/100 | Threats: %d | Anomalies: %d\n", a.RiskScore, len(a.Threats), len(a.Anomalies))
		if a.Assessment.Urgency != "" && a.Assessment.Urgency != "none" {
			fmt.Fprintf(w, "ASSESSMENT: %s - %s\n", a.Assessment.Urgency, a.Assessment.Reason)
		}
	}
	for _, warning := range p.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	if showKQL && p.KQL != "" {
		fmt.Fprintf(w, "\nKQL: %s\n", p.KQL)
	}
	if len(p.Suggestions) > 0 {
		fmt.Fprintln(w, "\nYou could also ask:")
		for _, s := range p.Suggestions {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}
	fmt.Fprintf(w, "\n[session %s]\n", p.SessionID)
}
