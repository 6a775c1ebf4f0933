// Gray Logic Karotz Bridge
//
// karotzbridge connects OpenKarotz rabbits to the Gray Logic bus. It polls
// each rabbit's status, publishes state over MQTT, executes commands from
// MQTT and REST, and relays RFID and button webhooks as events.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Running the binary without a
// subcommand serves.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "karotzbridge",
		Short:         "OpenKarotz bridge for Gray Logic",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), resolveConfigPath(configPath))
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $GRAYLOGIC_CONFIG or "+defaultConfigPath+")")

	root.AddCommand(
		newServeCmd(&configPath),
		newProbeCmd(),
		newMigrateCmd(&configPath),
		newTokenCmd(&configPath),
		newServiceCmd(&configPath),
	)
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), resolveConfigPath(*configPath))
		},
	}
}

// resolveConfigPath picks the --config flag, then GRAYLOGIC_CONFIG, then
// the default path.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
