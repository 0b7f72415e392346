package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lockplane/schemasync/internal/classify"
	"github.com/lockplane/schemasync/internal/config"
	"github.com/lockplane/schemasync/internal/database"
	"github.com/lockplane/schemasync/internal/database/postgres"
	"github.com/lockplane/schemasync/internal/locks"
	"github.com/lockplane/schemasync/internal/normalize"
	"github.com/lockplane/schemasync/internal/schema"
	"github.com/lockplane/schemasync/internal/sqlsplit"
	"github.com/lockplane/schemasync/internal/validation"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate SQL scripts and live schemas",
	Long: `Validate a SQL script before running it, or the schema of a live database.

Subcommands:
  sql  - Screen a script for dangerous operations and check the schema it builds
  live - Introspect an environment's database and check its schema`,
	Example: `  # Screen a script
  schemasync validate sql migration.sql

  # Compare the exact splitter with the line-based one
  schemasync validate sql --advisory migration.sql

  # Check the schema of the staging database
  schemasync validate live --env staging

  # Confirm a clone produced every object of the exported schema
  schemasync validate live --env staging --against export/schema.sql`,
}

var validateSQLCmd = &cobra.Command{
	Use:   "sql <file>",
	Short: "Screen a SQL script and validate the schema it builds",
	Long: `Normalize and split a SQL script, classify every statement, and report
errors and warnings. The objects the script creates are then checked for
structural problems. Use "-" to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidateSQL,
}

var validateLiveCmd = &cobra.Command{
	Use:   "live",
	Short: "Validate the schema of an environment's database",
	Long:  `Introspect the database_url of an environment and check the schema for structural problems.`,
	Args:  cobra.NoArgs,
	RunE:  runValidateLive,
}

var (
	validateAdvisory  bool
	validateInventory bool
	validateJSON      bool
	validateEnv       string
	validateAgainst   string
)

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.AddCommand(validateSQLCmd)
	validateCmd.AddCommand(validateLiveCmd)

	validateSQLCmd.Flags().BoolVar(&validateAdvisory, "advisory", false, "Also split with the line-based splitter and report differences")
	validateSQLCmd.Flags().BoolVar(&validateInventory, "inventory", false, "Include the parsed object inventory in JSON output")
	validateCmd.PersistentFlags().BoolVar(&validateJSON, "json", false, "Print the report as JSON")
	validateLiveCmd.Flags().StringVar(&validateEnv, "env", "", "Environment to introspect (default from schemasync.toml)")
	validateLiveCmd.Flags().StringVar(&validateAgainst, "against", "", "SQL script whose objects the database is expected to contain")
}

type sqlReport struct {
	Valid      bool                   `json:"valid"`
	ACLFixes   []string               `json:"aclFixes,omitempty"`
	Screening  classify.SQLValidation `json:"screening"`
	Critical   []string               `json:"critical,omitempty"`
	Locks      []locks.Impact         `json:"locks,omitempty"`
	Schema     *validation.Result     `json:"schema,omitempty"`
	ParseError string                 `json:"parseError,omitempty"`
	Inventory  *schema.Inventory      `json:"inventory,omitempty"`
	Advisory   *splitComparison       `json:"advisory,omitempty"`
}

type splitComparison struct {
	Exact    int      `json:"exact"`
	Advisory int      `json:"advisory"`
	Differs  []string `json:"differs,omitempty"`
}

func runValidateSQL(_ *cobra.Command, args []string) error {
	raw, err := readSQL(args[0])
	if err != nil {
		return err
	}

	normalized := normalize.Normalize(raw)
	report := sqlReport{
		ACLFixes:  normalized.Fixes,
		Screening: classify.ValidateSQL(normalized.SQL, classify.ValidateOptions{}),
		Critical:  classify.CheckCritical(normalized.SQL),
	}
	report.Valid = report.Screening.Valid() && len(report.Critical) == 0 && len(report.Screening.SyntaxErrors) == 0
	report.Locks = locks.Disruptive(locks.Analyze(sqlsplit.Texts(sqlsplit.Split(normalized.SQL))))

	inv, err := schema.ParseInventory(normalized.SQL)
	if err != nil {
		report.ParseError = err.Error()
	} else {
		result := validation.Validate(inv)
		report.Schema = &result
		if validateInventory {
			report.Inventory = inv
		}
	}

	if validateAdvisory {
		report.Advisory = compareSplitters(sqlsplit.StripComments(normalized.SQL))
	}

	if validateJSON {
		if err := printJSON(os.Stdout, report); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	} else {
		printSQLReport(os.Stderr, report)
	}
	if !report.Valid {
		return errFailed{kind: "validation"}
	}
	return nil
}

// compareSplitters lists statements the line-based splitter cuts differently.
func compareSplitters(stripped string) *splitComparison {
	exact := sqlsplit.Texts(sqlsplit.Exact{}.Split(stripped))
	advisory := sqlsplit.Texts(sqlsplit.Advisory{}.Split(stripped))

	cmp := &splitComparison{Exact: len(exact), Advisory: len(advisory)}
	known := make(map[string]bool, len(exact))
	for _, text := range exact {
		known[text] = true
	}
	for _, text := range advisory {
		if !known[text] {
			cmp.Differs = append(cmp.Differs, sqlsplit.Preview(text, 120))
		}
	}
	return cmp
}

func printSQLReport(w io.Writer, r sqlReport) {
	s := r.Screening
	if r.Valid {
		_, _ = green.Fprintf(w, "✓ SQL is valid")
	} else {
		_, _ = red.Fprintf(w, "✗ SQL is invalid")
	}
	_, _ = fmt.Fprintf(w, " (%d statements, danger: %s)\n", s.Statements, s.DangerLevel)

	for _, fix := range r.ACLFixes {
		_, _ = yellow.Fprintf(w, "  fixed: %s\n", fix)
	}
	for _, e := range s.Errors {
		_, _ = red.Fprintf(w, "  error: %s\n", e)
	}
	for _, c := range r.Critical {
		_, _ = red.Fprintf(w, "  forbidden: %s\n", c)
	}
	for _, warning := range s.Warnings {
		_, _ = yellow.Fprintf(w, "  warning: %s\n", warning)
	}
	if len(s.AffectedTables) > 0 {
		_, _ = fmt.Fprintf(w, "  tables: %v\n", s.AffectedTables)
	}
	for _, l := range r.Locks {
		_, _ = yellow.Fprintf(w, "  lock: #%d takes %s (%s)\n", l.Position+1, l.Mode, l.Explanation)
	}

	if r.ParseError != "" {
		_, _ = yellow.Fprintf(w, "  schema not checked: %s\n", r.ParseError)
	}
	if r.Schema != nil {
		printIssues(w, *r.Schema)
	}

	if a := r.Advisory; a != nil {
		_, _ = fmt.Fprintf(w, "  splitters: exact=%d advisory=%d\n", a.Exact, a.Advisory)
		for _, d := range a.Differs {
			_, _ = yellow.Fprintf(w, "    advisory differs: %s\n", d)
		}
	}
}

func printIssues(w io.Writer, result validation.Result) {
	_, _ = bold.Fprintf(w, "  schema: %d errors, %d warnings, %d infos\n",
		result.Summary.Errors, result.Summary.Warnings, result.Summary.Infos)
	for _, issue := range result.Issues {
		c := yellow
		switch issue.Severity {
		case validation.SeverityError:
			c = red
		case validation.SeverityInfo:
			c = bold
		}
		_, _ = c.Fprintf(w, "    [%s] %s: %s\n", issue.Severity, issue.Category, issue.Message)
	}
}

func runValidateLive(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	env, err := config.ResolveEnvironment(rt.cfg, validateEnv)
	if err != nil {
		return err
	}
	if env.DatabaseURL == "" {
		return fmt.Errorf("environment %q has no database_url", env.Name)
	}

	inv, err := introspectLive(cmd.Context(), rt, env.DatabaseURL)
	if err != nil {
		return err
	}
	report := liveReport{Schema: validation.Validate(inv)}

	if validateAgainst != "" {
		raw, err := readSQL(validateAgainst)
		if err != nil {
			return err
		}
		expected, err := schema.ParseInventory(normalize.Normalize(raw).SQL)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", validateAgainst, err)
		}
		report.Diff = schema.Diff(expected, inv)
	}

	if validateJSON {
		if err := printJSON(os.Stdout, report); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	} else {
		_, _ = green.Fprintf(os.Stderr, "✓ Introspected %d tables from %s\n", len(inv.Tables), env.Name)
		printIssues(os.Stderr, report.Schema)
		if report.Diff != nil {
			printDiff(os.Stderr, validateAgainst, report.Diff)
		}
	}
	if !report.Schema.IsValid || (report.Diff != nil && !report.Diff.IsEmpty()) {
		return errFailed{kind: "validation"}
	}
	return nil
}

type liveReport struct {
	Schema validation.Result     `json:"schema"`
	Diff   *schema.InventoryDiff `json:"diff,omitempty"`
}

func printDiff(w io.Writer, source string, d *schema.InventoryDiff) {
	if d.IsEmpty() {
		_, _ = green.Fprintf(w, "✓ Database matches %s\n", source)
		return
	}
	_, _ = red.Fprintf(w, "✗ Database differs from %s\n", source)
	list := func(label string, names []string) {
		for _, name := range names {
			_, _ = fmt.Fprintf(w, "  %s: %s\n", label, name)
		}
	}
	list("missing table", d.MissingTables)
	list("extra table", d.ExtraTables)
	for _, td := range d.ModifiedTables {
		list("missing column "+td.Table, td.MissingColumns)
		list("extra column "+td.Table, td.ExtraColumns)
		for _, cd := range td.ModifiedColumns {
			_, _ = fmt.Fprintf(w, "  changed column %s.%s: %v (expected %s, found %s)\n",
				td.Table, cd.Column, cd.Changes, cd.Expected.Type, cd.Actual.Type)
		}
	}
	list("missing index", d.MissingIndexes)
	list("missing function", d.MissingFunctions)
	list("missing trigger", d.MissingTriggers)
	list("missing policy", d.MissingPolicies)
	list("missing sequence", d.MissingSequences)
	list("missing view", d.MissingViews)
}

func introspectLive(ctx context.Context, rt *runtime, databaseURL string) (*schema.Inventory, error) {
	s := rt.settings()
	cfg := database.ConnectionConfig{
		DatabaseType:   database.DatabaseTypePostgres,
		PostgresUrl:    databaseURL,
		ConnectTimeout: s.ConnectTimeout,
		IdleTimeout:    s.IdleTimeout,
		CloseTimeout:   s.CloseTimeout,
	}
	db, err := postgres.NewDriver().OpenConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = postgres.CloseWithTimeout(db, s.CloseTimeout) }()

	inv, err := schema.Introspect(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect database: %w", err)
	}
	return inv, nil
}
