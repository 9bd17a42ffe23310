package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noncewatch/noncewatch/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Resolve(cfgFile)
		if err != nil {
			return err
		}
		ids, err := cfg.ResolveProcesses()
		if err != nil {
			return err
		}

		fmt.Printf("✓ Config valid\n")
		fmt.Printf("  Processes: %d\n", len(ids))
		fmt.Printf("  Primary:   %s\n", cfg.PrimaryURL)
		fmt.Printf("  Secondary: %s\n", cfg.SecondaryURL)
		sinks := 0
		if cfg.Alerting.SlackWebhookURL != "" {
			sinks++
			fmt.Println("  Sink: slack webhook")
		}
		if cfg.Alerting.PagerDuty.Enabled && cfg.Alerting.PagerDuty.RoutingKey != "" {
			sinks++
			fmt.Println("  Sink: pagerduty")
		}
		if cfg.Alerting.ShoutrrrURL != "" {
			sinks++
			fmt.Println("  Sink: shoutrrr")
		}
		if sinks == 0 {
			fmt.Println("  Warning: no alert sinks configured")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
