// Package main is the CLI entry point for siem-analyst.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iyulab/siem-analyst/internal/audit"
	"github.com/iyulab/siem-analyst/internal/config"
	"github.com/iyulab/siem-analyst/internal/observability"
	"github.com/iyulab/siem-analyst/internal/pipeline"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "analyst",
		Short: "Ask security-monitoring questions in plain language",
		Long: `analyst turns natural-language questions into SIEM searches, runs
anomaly scoring and threat detection over the results, and answers with a
narrative, charts and follow-up suggestions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config file (defaults when empty)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	rootCmd.AddCommand(newAskCmd(), newChatCmd(), newServeCmd(), newAuditCmd())
	return rootCmd
}

// app bundles what every subcommand needs.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	svc    *pipeline.Services
	sink   audit.Sink
}

func setup(cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	logger := observability.NewLogger(cfg.Log, nil)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, err := pipeline.NewServices(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("services: %w", err)
	}
	sink, err := audit.Open(cfg.Audit, logger)
	if err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("audit: %w", err)
	}
	return &app{cfg: cfg, logger: logger, svc: svc, sink: sink}, nil
}

// handle runs one turn and records it with the audit sink.
func (a *app) handle(ctx context.Context, req pipeline.Request) (pipeline.Payload, error) {
	p, err := a.svc.Handle(ctx, req)
	if _, aerr := a.sink.Write(ctx, pipeline.AuditRecord(req, p, err)); aerr != nil {
		a.logger.Warn("audit write failed", zap.Error(aerr))
	}
	return p, err
}

func (a *app) Close() {
	if err := a.sink.Close(); err != nil {
		a.logger.Warn("close audit sink", zap.Error(err))
	}
	if err := a.svc.Close(); err != nil {
		a.logger.Warn("close services", zap.Error(err))
	}
	_ = a.logger.Sync()
}
