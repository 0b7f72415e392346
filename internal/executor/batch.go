package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lockplane/schemasync/internal/database/postgres"
	"github.com/lockplane/schemasync/internal/sqlsplit"
)

// Batch submits the whole script in one round trip inside a transaction.
// Continue-on-error is not possible in this mode.
type Batch struct {
	conn Conn
	log  logrus.FieldLogger
}

// NewBatch returns a batch executor.
func NewBatch(conn Conn, log logrus.FieldLogger) *Batch {
	return &Batch{conn: conn, log: logger(log)}
}

func (b *Batch) Mode() Mode { return ModeBatch }

// Execute runs script.Text as a single multi-statement query. On failure the
// server-reported position is mapped back to the statement that contains it.
func (b *Batch) Execute(ctx context.Context, script Script, opts Options) (*Outcome, error) {
	out := newOutcome(ModeBatch, script, opts)
	if len(script.Statements) == 0 {
		return finish(out), nil
	}
	if opts.ContinueOnError {
		b.log.Warn("continue-on-error is ignored in batch mode")
	}

	tx, err := b.conn.BeginTx(ctx, nil)
	if err != nil {
		return finish(out), fmt.Errorf("failed to begin transaction: %w", err)
	}

	b.log.WithField("statements", len(script.Statements)).Info("executing script as one batch")
	start := time.Now()
	res, execErr := tx.ExecContext(ctx, script.Text)
	elapsed := time.Since(start).Milliseconds()

	if execErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			b.log.WithError(rbErr).Warn("rollback after failed batch returned an error")
		}
		b.recordFailure(out, script, execErr, elapsed)
		return finish(out), nil
	}

	if opts.DryRun {
		if err := tx.Rollback(); err != nil {
			return finish(out), fmt.Errorf("failed to roll back dry run: %w", err)
		}
	} else if err := tx.Commit(); err != nil {
		out.Failure = &Failure{Error: "commit failed: " + postgres.Describe(err), Code: postgres.ErrorCode(err)}
		for i, s := range script.Statements {
			out.record(Result{Index: i + 1, StatementPreview: preview(s), Success: false, Error: "not committed"})
		}
		return finish(out), nil
	} else {
		out.Committed = true
	}

	// The driver only reports the last statement's count, so attribute it there.
	var rows *int64
	if res != nil {
		if n, err := res.RowsAffected(); err == nil {
			rows = &n
		}
	}
	last := len(script.Statements) - 1
	for i, s := range script.Statements {
		r := Result{Index: i + 1, StatementPreview: preview(s), Success: true}
		if i == last {
			r.RowsAffected = rows
			r.DurationMs = elapsed
		}
		out.record(r)
	}
	return finish(out), nil
}

// recordFailure fills results for a failed batch. Statements before the failing
// one count as executed and successful even though the rollback discarded
// them; the persisted state is empty either way.
func (b *Batch) recordFailure(out *Outcome, script Script, err error, elapsed int64) {
	failure := &Failure{Error: postgres.Describe(err), Code: postgres.ErrorCode(err)}

	idx := -1
	if pos, ok := postgres.ErrorPosition(err); ok {
		failure.SQLPosition = pos
		failure.ErrorContext = postgres.ContextWindow(script.Text, pos, contextRadius)
		idx = sqlsplit.IndexAt(script.Statements, postgres.ByteOffset(script.Text, pos))
	}

	if idx < 0 {
		// Unknown location: report a single failed attempt.
		out.record(Result{Index: 0, Success: false, Error: failure.Error, DurationMs: elapsed})
		out.Failure = failure
		b.log.WithError(err).Error("batch failed at an unknown statement")
		return
	}

	for i := 0; i < idx; i++ {
		out.record(Result{Index: i + 1, StatementPreview: preview(script.Statements[i]), Success: true})
	}
	stmt := script.Statements[idx]
	failure.StatementIndex = idx + 1
	failure.StatementPreview = preview(stmt)
	out.record(Result{
		Index:            idx + 1,
		StatementPreview: failure.StatementPreview,
		Success:          false,
		Error:            failure.Error,
		DurationMs:       elapsed,
	})
	out.Failure = failure

	b.log.WithFields(logrus.Fields{
		"statement": idx + 1,
		"position":  failure.SQLPosition,
		"code":      failure.Code,
	}).WithError(err).Error("batch failed")
}
