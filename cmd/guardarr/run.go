package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
)

// newRunCommand is the single-shot entry point, meant to be invoked by
// qBittorrent's "run on torrent added" hook.
func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run <hash> [category]",
		Short: "Process one torrent and exit",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash := strings.TrimSpace(args[0])
			category := ""
			if len(args) > 1 {
				category = strings.TrimSpace(args[1])
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			return a.guard.Run(context.Background(), hash, category)
		},
	}
}
