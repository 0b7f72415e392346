package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "schemasync",
	Short: "Safely apply Postgres schema and data scripts to another environment",
	Long: `schemasync clones a Postgres-compatible schema (and optionally data) into a
destination environment, or imports a SQL script into one.

Scripts are normalized, split into statements, screened for dangerous
operations and validated before anything runs. Execution happens in a single
transaction over a direct connection, or statement by statement through the
destination's exec_sql procedure.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Version = getVersion()
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides schemasync.toml")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text or json); overrides schemasync.toml")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = color.New(color.FgRed).Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}

// errFailed is returned after a failed run has already been reported.
type errFailed struct {
	kind string
}

func (e errFailed) Error() string {
	return fmt.Sprintf("%s failed", e.kind)
}
