package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/noncewatch/noncewatch/internal/config"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run check batches on a schedule",
	Long: "Starts a long-running scheduler that executes the check batch per the\n" +
		"configured cron schedule. Edits to the process-list file are picked up\n" +
		"without a restart.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := setupLogger(cmd)

		cfg, err := config.Resolve(cfgFile)
		if err != nil {
			return err
		}
		ids, err := cfg.ResolveProcesses()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var mu sync.Mutex
		if cfg.ProcessesFile != "" {
			watcher, werr := fsnotify.NewWatcher()
			if werr != nil {
				return fmt.Errorf("watching process list: %w", werr)
			}
			defer watcher.Close()
			if werr := watcher.Add(cfg.ProcessesFile); werr != nil {
				return fmt.Errorf("watching %s: %w", cfg.ProcessesFile, werr)
			}

			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case ev, ok := <-watcher.Events:
						if !ok {
							return
						}
						if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
							continue
						}
						reloaded, rerr := config.ReadProcessList(cfg.ProcessesFile)
						if rerr != nil {
							logger.Warn("reloading process list", "error", rerr)
							continue
						}
						mu.Lock()
						ids = reloaded
						mu.Unlock()
						logger.Info("process list reloaded", "count", len(reloaded))
					case werr, ok := <-watcher.Errors:
						if !ok {
							return
						}
						logger.Warn("process list watcher", "error", werr)
					}
				}
			}()
		}

		c := cron.New()
		_, err = c.AddFunc(cfg.Schedule, func() {
			mu.Lock()
			batch := slices.Clone(ids)
			mu.Unlock()
			runOnce(ctx, cfg, batch, logger, false)
		})
		if err != nil {
			return fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
		}

		logger.Info("scheduler started", "schedule", cfg.Schedule, "processes", len(ids))
		c.Start()
		<-ctx.Done()
		<-c.Stop().Done()
		logger.Info("scheduler stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
