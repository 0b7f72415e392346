package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lockplane/schemasync/internal/config"
	"github.com/lockplane/schemasync/internal/history"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent clone and import runs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print runs as JSON")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	if rt.cfg.History.Disabled {
		return fmt.Errorf("history is disabled in %s", config.FileName)
	}

	store, err := history.Open(cmd.Context(), rt.cfg.HistoryPath())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.List(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}

	if historyJSON {
		if err := printJSON(os.Stdout, runs); err != nil {
			return fmt.Errorf("failed to write history: %w", err)
		}
		return nil
	}

	if len(runs) == 0 {
		_, _ = fmt.Fprintln(os.Stderr, "No runs recorded yet")
		return nil
	}
	for _, run := range runs {
		mark := green.Sprint("✓")
		if !run.Success {
			mark = red.Sprint("✗")
		}
		line := fmt.Sprintf("%s %s  %-6s %-17s %3d/%-3d  %s",
			mark, run.StartedAt.Local().Format(time.DateTime), run.Kind, run.Mode,
			run.Successful, run.Total, run.Environment)
		if run.DryRun {
			line += yellow.Sprint(" [dry run]")
		}
		if !run.Success && run.Error != "" {
			line += "\n    " + red.Sprintf("%s: %s", run.Failure, run.Error)
		}
		_, _ = fmt.Fprintln(os.Stdout, line)
	}
	return nil
}
