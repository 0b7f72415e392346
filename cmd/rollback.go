package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lockplane/schemasync/internal/classify"
	"github.com/lockplane/schemasync/internal/normalize"
	"github.com/lockplane/schemasync/internal/rollback"
	"github.com/lockplane/schemasync/internal/sqlsplit"
)

var rollbackJSON bool

var rollbackCmd = &cobra.Command{
	Use:   "rollback <file>",
	Short: "Print a rollback script for a SQL script",
	Long: `Generate the statements that undo a SQL script, in reverse order.

Statements that cannot be reversed (drops, data changes, unrecognized
statements) are listed with a note and left out of the script. The script
is only printed; nothing is executed.`,
	Example: `  # Print the undo script
  schemasync rollback migration.sql > undo.sql

  # Inspect every step
  schemasync rollback --json migration.sql`,
	Args: cobra.ExactArgs(1),
	RunE: runRollback,
}

func init() {
	rootCmd.AddCommand(rollbackCmd)
	rollbackCmd.Flags().BoolVar(&rollbackJSON, "json", false, "Print every rollback step as JSON")
}

func runRollback(_ *cobra.Command, args []string) error {
	raw, err := readSQL(args[0])
	if err != nil {
		return err
	}

	normalized := normalize.Normalize(raw).SQL
	texts := sqlsplit.Texts(sqlsplit.Split(normalized))
	if len(texts) == 0 {
		return fmt.Errorf("%s contains no statements", args[0])
	}
	plan := rollback.Generate(classify.ClassifyAll(texts))

	if rollbackJSON {
		if err := printJSON(os.Stdout, plan); err != nil {
			return fmt.Errorf("failed to write rollback plan: %w", err)
		}
		return nil
	}

	_, _ = fmt.Fprintln(os.Stdout, plan.Script())
	if plan.CanRollback {
		_, _ = green.Fprintf(os.Stderr, "✓ All %d statements can be rolled back\n", len(plan.Steps))
		return nil
	}
	skipped := plan.Irreversible()
	_, _ = yellow.Fprintf(os.Stderr, "⚠ Partial rollback: %d of %d statements cannot be undone\n", len(skipped), len(plan.Steps))
	for _, step := range skipped {
		_, _ = yellow.Fprintf(os.Stderr, "  #%d %s: %s\n", step.Position+1, sqlsplit.Preview(step.OriginalStatement, 80), step.Notes)
	}
	return nil
}
