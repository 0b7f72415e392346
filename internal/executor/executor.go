// Package executor runs a split script against a destination using one of
// three strategies: the whole script as one batch, one statement at a time in
// an explicit transaction, or one statement at a time through the remote exec
// procedure.
//
// Every strategy stops at the first failing statement and rolls back, unless
// ContinueOnError is set. Statement order is never changed.
package executor

import (
	"context"
	"database/sql"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lockplane/schemasync/internal/sqlsplit"
)

// Mode names the execution strategy.
type Mode string

const (
	ModeBatch      Mode = "cli"
	ModeStatements Mode = "direct_statements"
	ModeRPC        Mode = "exec_sql_rpc"
)

// contextRadius is how many characters around an error position are reported.
const contextRadius = 80

// Script is the text that gets executed and its statement boundaries.
// Statement offsets refer to Text.
type Script struct {
	Text       string
	Statements []sqlsplit.Statement
}

// NewScript strips comments from normalized text and splits the result with
// the exact splitter, so statement offsets line up with the submitted text.
func NewScript(normalized string) Script {
	text := sqlsplit.StripComments(normalized)
	return Script{Text: text, Statements: sqlsplit.Exact{}.Split(text)}
}

// Options control a single run.
type Options struct {
	ContinueOnError bool
	DryRun          bool
}

// Result is the outcome of one statement.
type Result struct {
	Index            int    `json:"index"` // 1-based
	StatementPreview string `json:"statementPreview"`
	Success          bool   `json:"success"`
	Error            string `json:"error,omitempty"`
	RowsAffected     *int64 `json:"rowsAffected,omitempty"`
	DurationMs       int64  `json:"durationMs"`
}

// Failure locates the first failing statement.
type Failure struct {
	StatementIndex   int    `json:"statementIndex,omitempty"` // 1-based, 0 when unknown
	StatementPreview string `json:"statementPreview,omitempty"`
	Error            string `json:"error"`
	Code             string `json:"code,omitempty"`
	SQLPosition      int    `json:"sqlPosition,omitempty"` // 1-based character position in the submitted text
	ErrorContext     string `json:"errorContext,omitempty"`
}

// Outcome summarizes a run.
type Outcome struct {
	Mode       Mode      `json:"mode"`
	Results    []Result  `json:"results"`
	Total      int       `json:"total"`
	Executed   int       `json:"executed"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	Committed  bool      `json:"committed"`
	DryRun     bool      `json:"dryRun,omitempty"`
	Failure    *Failure  `json:"failure,omitempty"`
	DurationMs int64     `json:"durationMs"`
	StartedAt  time.Time `json:"startedAt"`
}

// Success reports whether every statement succeeded.
func (o *Outcome) Success() bool {
	return o.Failed == 0 && o.Failure == nil
}

// SucceededPositions returns the 0-based positions of successful statements.
func (o *Outcome) SucceededPositions() []int {
	var out []int
	for _, r := range o.Results {
		if r.Success {
			out = append(out, r.Index-1)
		}
	}
	return out
}

func (o *Outcome) record(r Result) {
	o.Results = append(o.Results, r)
	o.Executed++
	if r.Success {
		o.Successful++
	} else {
		o.Failed++
	}
}

// Executor runs a script.
type Executor interface {
	Mode() Mode
	Execute(ctx context.Context, script Script, opts Options) (*Outcome, error)
}

// Tx is the part of *sql.Tx the direct strategies use.
type Tx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

// Conn starts transactions.
type Conn interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error)
}

type dbConn struct {
	db *sql.DB
}

// FromDB adapts a *sql.DB to Conn.
func FromDB(db *sql.DB) Conn {
	return dbConn{db: db}
}

func (c dbConn) BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	return c.db.BeginTx(ctx, opts)
}

func newOutcome(mode Mode, script Script, opts Options) *Outcome {
	return &Outcome{
		Mode:      mode,
		Results:   []Result{},
		Total:     len(script.Statements),
		DryRun:    opts.DryRun,
		StartedAt: time.Now(),
	}
}

func finish(o *Outcome) *Outcome {
	o.DurationMs = time.Since(o.StartedAt).Milliseconds()
	return o
}

func preview(s sqlsplit.Statement) string {
	return sqlsplit.Preview(s.Text, sqlsplit.PreviewLength)
}

func logger(log logrus.FieldLogger) logrus.FieldLogger {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		return l
	}
	return log
}
