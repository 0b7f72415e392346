package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lockplane/schemasync/internal/orchestrator"
)

var (
	cloneEnv            string
	cloneSchemaFile     string
	cloneDataFile       string
	cloneIncludeData    bool
	cloneNoReset        bool
	cloneSkipValidation bool
	cloneStatements     bool
	cloneJSON           bool
)

var cloneCmd = &cobra.Command{
	Use:   "clone",
	Short: "Reset a destination and apply an exported schema to it",
	Long: `Apply an exported schema (and optionally data) to the destination of an
environment. By default the destination schema is reset first.

With a database_url the script runs over a direct connection, as one batch or
one statement at a time (--statements). Without one, statements go through the
destination's exec_sql procedure, after waiting for it to become available.`,
	Example: `  # Clone the exported schema into staging
  schemasync clone --env staging --sql export/schema.sql

  # Include data and keep the existing destination schema
  schemasync clone --env staging --sql export/schema.sql --data export/data.sql --include-data --no-reset`,
	Args: cobra.NoArgs,
	RunE: runClone,
}

func init() {
	rootCmd.AddCommand(cloneCmd)

	cloneCmd.Flags().StringVar(&cloneEnv, "env", "", "Environment to clone into (default from schemasync.toml)")
	cloneCmd.Flags().StringVar(&cloneSchemaFile, "sql", "", "Exported schema SQL file")
	cloneCmd.Flags().StringVar(&cloneDataFile, "data", "", "Exported data SQL file")
	cloneCmd.Flags().BoolVar(&cloneIncludeData, "include-data", false, "Apply the data file after the schema")
	cloneCmd.Flags().BoolVar(&cloneNoReset, "no-reset", false, "Do not reset the destination first")
	cloneCmd.Flags().BoolVar(&cloneSkipValidation, "skip-validation", false, "Skip SQL and schema validation (the critical denylist still applies)")
	cloneCmd.Flags().BoolVar(&cloneStatements, "statements", false, "Execute one statement at a time over a direct connection")
	cloneCmd.Flags().BoolVar(&cloneJSON, "json", false, "Print the full response as JSON")
	_ = cloneCmd.MarkFlagRequired("sql")
}

func runClone(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	env, err := rt.environment(cloneEnv)
	if err != nil {
		return err
	}

	o, closer, err := rt.orchestrator(cmd.Context(), env)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()
	o.Exporter = orchestrator.FileExporter{SchemaPath: cloneSchemaFile, DataPath: cloneDataFile}

	reset := !cloneNoReset
	req := orchestrator.CloneRequest{
		Destination:      destinationFor(env),
		Source:           sourceFor(env),
		IncludeData:      cloneIncludeData,
		ResetDestination: &reset,
		SkipValidation:   cloneSkipValidation,
	}
	if cloneStatements {
		preferCLI := false
		req.PreferCliExecution = &preferCLI
	}

	resp := o.Clone(cmd.Context(), req)
	if cloneJSON {
		if err := printJSON(os.Stdout, resp); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	} else {
		printResponse(os.Stderr, "clone", resp)
	}
	if !resp.Success {
		return errFailed{kind: "clone"}
	}
	return nil
}
