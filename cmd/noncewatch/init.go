package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/noncewatch/noncewatch/internal/config"
)

const starterConfig = `# noncewatch configuration

# Flat list of process identifiers, one per line. '#' starts a comment.
#processes_file: /etc/noncewatch/processes.txt

# Single process to watch when no list file is set.
process: my-process

primary_url: https://primary.example
secondary_url: https://secondary.example

#request_timeout: 10s
#schedule: "@every 5m"

#retry:
#  max_retries: 5
#  base_delay: 1s
#  max_delay: 30s

alerting:
  # Mismatches below this slot difference are logged but not alerted.
  threshold: 50
  fail_on_mismatch: false
  slack_webhook_url: ${SLACK_WEBHOOK_URL}
  pagerduty:
    enabled: false
    routing_key: ${PD_ROUTING_KEY}
    severity_threshold: warning
    auto_resolve: true

#state_file: ~/.noncewatch/alert-state.json
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.DefaultConfigPaths()[0]
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("refusing to overwrite existing config: %s", path)
		}

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating config dir: %w", err)
		}
		if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
