package orchestrator

import (
	"context"
	"fmt"
	"os"
)

// Exporter produces the SQL a clone applies: schema DDL and, when includeData
// is set, INSERT blocks. Generating it from a live source is outside this
// module; exporters here hand over SQL produced elsewhere.
type Exporter interface {
	Export(ctx context.Context, source *Source, includeData bool) (string, error)
}

// FileExporter reads a schema dump and an optional data dump from disk.
type FileExporter struct {
	SchemaPath string
	DataPath   string
}

func (f FileExporter) Export(_ context.Context, _ *Source, includeData bool) (string, error) {
	if f.SchemaPath == "" {
		return "", fmt.Errorf("no schema file configured")
	}
	schemaSQL, err := os.ReadFile(f.SchemaPath)
	if err != nil {
		return "", fmt.Errorf("failed to read schema file: %w", err)
	}
	if !includeData || f.DataPath == "" {
		return string(schemaSQL), nil
	}

	dataSQL, err := os.ReadFile(f.DataPath)
	if err != nil {
		return "", fmt.Errorf("failed to read data file: %w", err)
	}
	return string(schemaSQL) + "\n\n" + string(dataSQL), nil
}

// StaticExporter returns fixed SQL.
type StaticExporter struct {
	Schema string
	Data   string
}

func (s StaticExporter) Export(_ context.Context, _ *Source, includeData bool) (string, error) {
	if includeData && s.Data != "" {
		return s.Schema + "\n\n" + s.Data, nil
	}
	return s.Schema, nil
}
