package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// Version information, set via ldflags during build.
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:   "andon",
		Short: "Factory andon station status board",
		Long: `andon serves the station status board: per-station status changes,
bulk reset, alerts, statistics and a realtime feed for shop-floor dashboards.

Run without a subcommand to start the HTTP server.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.SetVersionTemplate(versionText())
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file (falls back to ANDON_CONFIG)")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newMigrateCmd(&configPath))
	root.AddCommand(newSeedCmd(&configPath))
	root.AddCommand(newVersionCmd())
	return root
}

func versionText() string {
	return fmt.Sprintf("andon version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
}
