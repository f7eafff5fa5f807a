// Package main implements the veil CLI: the anonymizing assistant server and
// local tools for trying the detectors.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

var (
	// configPath is the optional path to the YAML configuration file
	configPath string
	// serverURL is used by the health command
	serverURL string
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "veil",
		Short: "Reversible PII anonymization for LLM requests and tool calls",
		Long: `veil replaces personal data with placeholders before a request reaches a
language model, restores the originals for MCP tool calls, and masks them
again in tool responses.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file")

	root.AddCommand(newServeCmd())
	root.AddCommand(newAnonymizeCmd())
	root.AddCommand(newAnonymizeFileCmd())
	root.AddCommand(newPatternsCmd())
	root.AddCommand(newHealthCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "llm-veil %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

// newHealthCmd checks a running server
func newHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the health of a running veil server",
		Long: `Check the health status of a running veil server.

Examples:
  veil health
  veil health --server http://localhost:9090`,
		Args: cobra.NoArgs,
		RunE: runHealth,
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "veil server URL")
	return cmd
}

func runHealth(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: HTTP %d", resp.StatusCode)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Health check passed")
	return nil
}
