package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amaumene/guardarr/internal/api"
	"github.com/amaumene/guardarr/internal/watcher"
)

// newWatchCommand runs the long-lived watcher with the status server.
func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch qBittorrent for new torrents and process each one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			w := watcher.NewWatcher(a.cfg, a.qbit, a.guard, a.logger)
			server := api.NewServer(a.cfg, w, a.registry, a.logger)

			serverErrChan := make(chan error, 1)
			go func() {
				if err := server.Start(ctx); err != nil {
					serverErrChan <- err
				}
			}()

			watcherErrChan := make(chan error, 1)
			go func() {
				watcherErrChan <- w.Run(ctx)
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-serverErrChan:
				return err
			case err := <-watcherErrChan:
				return err
			case sig := <-sigChan:
				a.logger.WithField("signal", sig).Info("Received shutdown signal")
				cancel()
				<-watcherErrChan
			}
			return nil
		},
	}
}
