package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/amaumene/guardarr/internal/services/qbit"
)

func main() {
	root := &cobra.Command{
		Use:           "guardarr",
		Short:         "Admission-control gate for qBittorrent downloads",
		Long:          "guardarr stops newly added torrents, checks them against pre-air and content policies, then starts or deletes them.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCommand(), newWatchCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, qbit.ErrAuth) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
