// Package orchestrator drives a clone or import end to end: normalize,
// validate, connect, optionally reset the destination, wait for the exec
// procedure, execute, and report. Every exit path returns a Response carrying
// the session log, and every opened connection is closed.
package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lockplane/schemasync/internal/classify"
	"github.com/lockplane/schemasync/internal/database"
	"github.com/lockplane/schemasync/internal/executor"
	"github.com/lockplane/schemasync/internal/history"
	"github.com/lockplane/schemasync/internal/logging"
	"github.com/lockplane/schemasync/internal/rollback"
	"github.com/lockplane/schemasync/internal/rpc"
)

var (
	// ErrEmptySQL rejects a script with no statements.
	ErrEmptySQL = errors.New("SQL is empty")
	// ErrRejected rejects a script that failed validation.
	ErrRejected = errors.New("SQL rejected by validation")
)

// FailureKind classifies why a run did not succeed.
type FailureKind string

const (
	FailureNone       FailureKind = "none"
	FailureRejected   FailureKind = "rejected"
	FailureBootstrap  FailureKind = "bootstrap"
	FailureExecution  FailureKind = "execution"
	FailureConnection FailureKind = "connection"
	FailureExport     FailureKind = "export"
)

// Destination is where statements are applied. DatabaseURL selects a direct
// connection; otherwise URL and ServiceKey reach the exec procedure.
type Destination struct {
	URL         string `json:"url"`
	ServiceKey  string `json:"serviceKey,omitempty"`
	DatabaseURL string `json:"databaseUrl,omitempty"`
}

// Source is where the exported schema comes from.
type Source struct {
	URL        string `json:"url"`
	ServiceKey string `json:"serviceKey,omitempty"`
}

type CloneRequest struct {
	Destination        Destination `json:"destination"`
	Source             *Source     `json:"source,omitempty"`
	IncludeData        bool        `json:"includeData,omitempty"`
	ResetDestination   *bool       `json:"resetDestination,omitempty"`
	SkipValidation     bool        `json:"skipValidation,omitempty"`
	PreferCliExecution *bool       `json:"preferCliExecution,omitempty"`
}

type ImportOptions struct {
	DryRun          bool `json:"dryRun,omitempty"`
	ContinueOnError bool `json:"continueOnError,omitempty"`
	SkipValidation  bool `json:"skipValidation,omitempty"`
}

type ImportRequest struct {
	SQL     string        `json:"sql"`
	Options ImportOptions `json:"options"`
}

// Counts are statement counts for a run. Executed counts attempts; after a
// rolled-back failure Successful does not reflect persisted state.
type Counts struct {
	Total      int `json:"total"`
	Executed   int `json:"executed"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// ValidationSummary counts schema validation findings.
type ValidationSummary struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Infos    int `json:"infos"`
}

// RollbackReport is the synthesized undo script. Partial is true when some
// statement could not be reversed; SQL then undoes only part of the run.
type RollbackReport struct {
	CanRollback  bool            `json:"canRollback"`
	Partial      bool            `json:"partial"`
	SQL          string          `json:"sql"`
	Irreversible []rollback.Step `json:"irreversible,omitempty"`
}

func newRollbackReport(plan rollback.Plan) *RollbackReport {
	return &RollbackReport{
		CanRollback:  plan.CanRollback,
		Partial:      !plan.CanRollback,
		SQL:          plan.Script(),
		Irreversible: plan.Irreversible(),
	}
}

// Response is the envelope returned for every clone and import.
type Response struct {
	ID                 string               `json:"id"`
	Success            bool                 `json:"success"`
	Failure            FailureKind          `json:"failure"`
	Statements         Counts               `json:"statements"`
	ResetExecuted      bool                 `json:"resetExecuted"`
	DryRun             bool                 `json:"dryRun,omitempty"`
	Validation         *ValidationSummary   `json:"validation,omitempty"`
	ValidationErrors   []string             `json:"validationErrors,omitempty"`
	ValidationWarnings []string             `json:"validationWarnings,omitempty"`
	DangerLevel        classify.DangerLevel `json:"dangerLevel,omitempty"`
	ACLFixes           []string             `json:"aclFixes,omitempty"`
	Error              string               `json:"error,omitempty"`
	StatementPreview   string               `json:"statementPreview,omitempty"`
	StatementIndex     int                  `json:"statementIndex,omitempty"`
	SQLPosition        int                  `json:"sqlPosition,omitempty"`
	ErrorContext       string               `json:"errorContext,omitempty"`
	ExecutionMode      executor.Mode        `json:"executionMode,omitempty"`
	Results            []executor.Result    `json:"results,omitempty"`
	Rollback           *RollbackReport      `json:"rollback,omitempty"`
	PlannedRollback    *RollbackReport      `json:"plannedRollback,omitempty"`
	DurationMs         int64                `json:"durationMs"`
	Logs               []logging.Entry      `json:"logs"`
}

// Direct is an open direct connection to the destination.
type Direct interface {
	executor.Conn
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Close() error
}

// Dialer opens a direct connection.
type Dialer func(ctx context.Context, cfg database.ConnectionConfig) (Direct, error)

// Remote reaches the exec procedure of a destination.
type Remote interface {
	executor.SQLRunner
	Ping(ctx context.Context) error
}

// RemoteFactory builds a Remote for one invocation.
type RemoteFactory func(url, serviceKey string) Remote

// Resetter recreates a destination through an external service.
type Resetter interface {
	Reset(ctx context.Context, destinationURL string) error
}

// Recorder stores a summary of each run.
type Recorder interface {
	Record(ctx context.Context, run history.Run) error
}

// Settings are the tunables shared by all invocations.
type Settings struct {
	PreferCLI         bool
	BootstrapAttempts int
	BootstrapDelay    time.Duration
	ConnectTimeout    time.Duration
	IdleTimeout       time.Duration
	CloseTimeout      time.Duration
}

// DefaultSettings mirrors the config defaults.
func DefaultSettings() Settings {
	return Settings{
		PreferCLI:         true,
		BootstrapAttempts: 10,
		BootstrapDelay:    2 * time.Second,
		ConnectTimeout:    database.DefaultConnectTimeout,
		IdleTimeout:       database.DefaultIdleTimeout,
		CloseTimeout:      database.DefaultCloseTimeout,
	}
}

// Orchestrator runs clones and imports. It holds no per-run state and is safe
// for concurrent use; each call builds its own session, clients and log.
type Orchestrator struct {
	Settings Settings
	Log      *logrus.Logger
	Dial     Dialer
	Remote   RemoteFactory
	Resetter Resetter
	Exporter Exporter
	History  Recorder
}

// New returns an orchestrator with the postgres dialer and the HTTP exec client.
func New(settings Settings, log *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		Settings: settings,
		Log:      log,
		Dial:     DialPostgres,
		Remote: func(url, key string) Remote {
			return rpc.NewClient(url, key)
		},
	}
}
