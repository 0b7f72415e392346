package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lockplane/schemasync/internal/api"
	"github.com/lockplane/schemasync/internal/config"
	"github.com/lockplane/schemasync/internal/orchestrator"
)

var (
	serveListen     string
	serveEnv        string
	serveSchemaFile string
	serveDataFile   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the clone and import HTTP API",
	Long: `Serve POST /api/clone and POST /api/import.

Request bodies are checked against a JSON schema before anything runs. Every
request gets its own session, log and connections, so requests may run
concurrently. An import without a destination uses the destination of --env.`,
	Example: `  # Serve on the address from schemasync.toml
  schemasync serve

  # Serve imports into staging, cloning from an exported schema
  schemasync serve --env staging --sql export/schema.sql --listen :9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Address to listen on (overrides schemasync.toml)")
	serveCmd.Flags().StringVar(&serveEnv, "env", "", "Environment used when an import names no destination")
	serveCmd.Flags().StringVar(&serveSchemaFile, "sql", "", "Exported schema SQL file used by clone requests")
	serveCmd.Flags().StringVar(&serveDataFile, "data", "", "Exported data SQL file used by clone requests")
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}

	var env *config.ResolvedEnvironment
	var importDestination orchestrator.Destination
	if serveEnv != "" {
		if env, err = rt.environment(serveEnv); err != nil {
			return err
		}
		importDestination = destinationFor(env)
	}

	o, closer, err := rt.orchestrator(cmd.Context(), env)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()
	if serveSchemaFile != "" {
		o.Exporter = orchestrator.FileExporter{SchemaPath: serveSchemaFile, DataPath: serveDataFile}
	}

	addr := rt.cfg.Server.Listen
	if serveListen != "" {
		addr = serveListen
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return api.NewServer(o, importDestination, rt.log).ListenAndServe(ctx, addr)
}
