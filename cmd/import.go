package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lockplane/schemasync/internal/orchestrator"
)

var (
	importEnv             string
	importDryRun          bool
	importContinueOnError bool
	importSkipValidation  bool
	importStatements      bool
	importJSON            bool
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Apply a SQL script to an environment",
	Long: `Validate and apply a SQL script to the destination of an environment.
Use "-" to read the script from stdin.

The whole script runs in one transaction and stops at the first failing
statement. --continue-on-error runs every statement under a savepoint and
commits the ones that succeeded; the run is still reported as failed.`,
	Example: `  # Preview an import without committing
  schemasync import --env staging --dry-run migration.sql

  # Apply, keeping the statements that succeed
  schemasync import --env staging --continue-on-error migration.sql`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importEnv, "env", "", "Environment to import into (default from schemasync.toml)")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Execute inside a transaction that is always rolled back")
	importCmd.Flags().BoolVar(&importContinueOnError, "continue-on-error", false, "Keep going after a failing statement")
	importCmd.Flags().BoolVar(&importSkipValidation, "skip-validation", false, "Skip SQL and schema validation (the critical denylist still applies)")
	importCmd.Flags().BoolVar(&importStatements, "statements", false, "Execute one statement at a time over a direct connection")
	importCmd.Flags().BoolVar(&importJSON, "json", false, "Print the full response as JSON")
}

func runImport(cmd *cobra.Command, args []string) error {
	sql, err := readSQL(args[0])
	if err != nil {
		return err
	}

	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	env, err := rt.environment(importEnv)
	if err != nil {
		return err
	}

	o, closer, err := rt.orchestrator(cmd.Context(), env)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()
	if importStatements {
		o.Settings.PreferCLI = false
	}

	resp := o.Import(cmd.Context(), destinationFor(env), orchestrator.ImportRequest{
		SQL: sql,
		Options: orchestrator.ImportOptions{
			DryRun:          importDryRun,
			ContinueOnError: importContinueOnError,
			SkipValidation:  importSkipValidation,
		},
	})

	if importJSON {
		if err := printJSON(os.Stdout, resp); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	} else {
		printResponse(os.Stderr, "import", resp)
		if resp.PlannedRollback != nil && resp.Rollback != nil {
			_, _ = bold.Fprintln(os.Stderr, "  rollback covers only the statements that were committed")
		}
	}
	if !resp.Success {
		return errFailed{kind: "import"}
	}
	return nil
}
