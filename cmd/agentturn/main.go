// Command agentturn runs the multi-channel agent-turn core: a single
// process that classifies a turn's tier, selects an LM provider with
// failover, runs the tool-use agent loop, and dispatches skills through the
// health/rate-limit/confirmation pipeline.
//
// Usage:
//
//	agentturn serve --config agentturn.yaml
//	agentturn validate-config --config agentturn.yaml
//	agentturn healthcheck --addr localhost:8089
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.Default()
	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "agentturn",
		Short:        "Multi-channel agent-turn core",
		Version:      fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage: true,
	}
	root.AddCommand(
		buildServeCmd(),
		buildValidateConfigCmd(),
		buildHealthcheckCmd(),
	)
	return root
}
