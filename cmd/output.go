package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/lockplane/schemasync/internal/orchestrator"
)

var (
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	bold   = color.New(color.Bold)
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResponse writes a human summary of a clone or import.
func printResponse(w io.Writer, kind string, resp *orchestrator.Response) {
	c := resp.Statements
	if resp.Success {
		_, _ = green.Fprintf(w, "✓ %s succeeded", kind)
	} else {
		_, _ = red.Fprintf(w, "✗ %s failed (%s)", kind, resp.Failure)
	}
	if resp.DryRun {
		_, _ = yellow.Fprint(w, " [dry run]")
	}
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintf(w, "  run:        %s\n", resp.ID)
	if resp.ExecutionMode != "" {
		_, _ = fmt.Fprintf(w, "  mode:       %s\n", resp.ExecutionMode)
	}
	_, _ = fmt.Fprintf(w, "  statements: %d total, %d executed, %d successful, %d failed\n",
		c.Total, c.Executed, c.Successful, c.Failed)
	if resp.DangerLevel != "" {
		_, _ = fmt.Fprintf(w, "  danger:     %s\n", resp.DangerLevel)
	}
	if resp.ResetExecuted {
		_, _ = fmt.Fprintln(w, "  destination was reset")
	}
	if v := resp.Validation; v != nil {
		_, _ = fmt.Fprintf(w, "  schema:     %d errors, %d warnings, %d infos (advisory)\n", v.Errors, v.Warnings, v.Infos)
	}

	for _, fix := range resp.ACLFixes {
		_, _ = yellow.Fprintf(w, "  fixed: %s\n", fix)
	}
	for _, warning := range resp.ValidationWarnings {
		_, _ = yellow.Fprintf(w, "  warning: %s\n", warning)
	}
	for _, e := range resp.ValidationErrors {
		_, _ = red.Fprintf(w, "  error: %s\n", e)
	}

	if resp.Error != "" && len(resp.ValidationErrors) == 0 {
		_, _ = red.Fprintf(w, "  error: %s\n", resp.Error)
	}
	if resp.StatementIndex > 0 {
		_, _ = fmt.Fprintf(w, "  failing statement #%d: %s\n", resp.StatementIndex, resp.StatementPreview)
	}
	if resp.ErrorContext != "" {
		_, _ = fmt.Fprintf(w, "  near position %d: %s\n", resp.SQLPosition, resp.ErrorContext)
	}

	if rb := resp.Rollback; rb != nil && !rb.CanRollback {
		_, _ = yellow.Fprintf(w, "  rollback is partial: %d statement(s) cannot be undone\n", len(rb.Irreversible))
	}
}
