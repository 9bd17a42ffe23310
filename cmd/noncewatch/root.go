package main

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "noncewatch",
	Short: "Nonce drift monitor",
	Long: "Noncewatch checks whether two independent sources agree on the current\n" +
		"nonce of each watched process, and alerts to Slack and PagerDuty when\n" +
		"they drift apart or a check fails.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
}
