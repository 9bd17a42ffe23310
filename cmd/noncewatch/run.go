package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/noncewatch/noncewatch/internal/alert"
	"github.com/noncewatch/noncewatch/internal/config"
	"github.com/noncewatch/noncewatch/internal/dedup"
	"github.com/noncewatch/noncewatch/internal/runner"
	"github.com/noncewatch/noncewatch/internal/source"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one check batch",
	Long: "Checks every configured process once and dispatches alerts. Exits 1 when\n" +
		"any check fails outright, or (with fail_on_mismatch) when any process drifted.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		logger := setupLogger(cmd)

		cfg, err := config.Resolve(cfgFile)
		if err != nil {
			return err
		}
		ids, err := cfg.ResolveProcesses()
		if err != nil {
			return err
		}

		sum := runOnce(cmd.Context(), cfg, ids, logger, dryRun)
		if code := sum.ExitCode(cfg.Alerting.FailOnMismatch); code != 0 {
			os.Exit(code)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().Bool("dry-run", false, "check without sending alerts")
	rootCmd.AddCommand(runCmd)
}

// runOnce executes the full pipeline: batch check, then alert dispatch.
func runOnce(ctx context.Context, cfg *config.Config, ids []string, logger *slog.Logger, dryRun bool) runner.Summary {
	backoff := source.Backoff{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.ParsedBaseDelay(),
		MaxDelay:   cfg.Retry.ParsedMaxDelay(),
	}
	client := source.New(cfg.PrimaryURL, cfg.SecondaryURL, cfg.Timeout(), backoff, logger)

	r := runner.New(client, logger)
	outcomes, sum := r.RunAll(ctx, ids)

	if dryRun {
		logger.Info("dry run, skipping alert dispatch")
		return sum
	}

	var chat *alert.ChatSink
	if cfg.Alerting.SlackWebhookURL != "" {
		chat = alert.NewChatSink(cfg.Alerting.SlackWebhookURL, cfg.Alerting.ChatTemplate, logger)
	}
	var pager *alert.PagerDutySink
	if cfg.Alerting.PagerDuty.Enabled {
		pager = alert.NewPagerDutySink(cfg.Alerting.PagerDuty.RoutingKey, cfg.Alerting.PagerDuty.EventsURL, logger)
	}

	store := dedup.NewFileStore(cfg.StateFile, logger)
	d := alert.NewDispatcher(alert.Options{
		Threshold:         cfg.Alerting.Threshold,
		SeverityThreshold: cfg.Alerting.ParsedSeverityThreshold(),
		AutoResolve:       cfg.Alerting.PagerDuty.AutoResolveEnabled(),
		ShoutrrrURL:       cfg.Alerting.ShoutrrrURL,
	}, chat, pager, store, logger)
	d.Dispatch(ctx, outcomes, sum)

	return sum
}
