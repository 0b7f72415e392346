package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lockplane/schemasync/internal/database/postgres"
)

const savepointName = "schemasync_stmt"

// Statements runs each statement separately inside one explicit transaction.
// With ContinueOnError every statement is wrapped in a savepoint, so a failure
// discards only that statement and the successful subset is committed.
type Statements struct {
	conn Conn
	log  logrus.FieldLogger
}

// NewStatements returns a per-statement executor.
func NewStatements(conn Conn, log logrus.FieldLogger) *Statements {
	return &Statements{conn: conn, log: logger(log)}
}

func (s *Statements) Mode() Mode { return ModeStatements }

func (s *Statements) Execute(ctx context.Context, script Script, opts Options) (*Outcome, error) {
	out := newOutcome(ModeStatements, script, opts)
	if len(script.Statements) == 0 {
		return finish(out), nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return finish(out), fmt.Errorf("failed to begin transaction: %w", err)
	}

	aborted := false
	for i, stmt := range script.Statements {
		if err := ctx.Err(); err != nil {
			_ = tx.Rollback()
			return finish(out), err
		}

		r := Result{Index: i + 1, StatementPreview: preview(stmt)}
		if opts.ContinueOnError {
			if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepointName); err != nil {
				_ = tx.Rollback()
				return finish(out), fmt.Errorf("failed to create savepoint: %w", err)
			}
		}

		start := time.Now()
		res, execErr := tx.ExecContext(ctx, stmt.Text)
		r.DurationMs = time.Since(start).Milliseconds()

		if execErr == nil {
			r.Success = true
			if n, err := res.RowsAffected(); err == nil {
				r.RowsAffected = &n
			}
			out.record(r)
			s.log.WithFields(logrus.Fields{"statement": i + 1, "duration_ms": r.DurationMs}).Debug("statement succeeded")

			if opts.ContinueOnError {
				if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepointName); err != nil {
					_ = tx.Rollback()
					return finish(out), fmt.Errorf("failed to release savepoint: %w", err)
				}
			}
			continue
		}

		r.Error = postgres.Describe(execErr)
		out.record(r)
		if out.Failure == nil {
			out.Failure = statementFailure(i, r, execErr, stmt.Text)
		}
		s.log.WithFields(logrus.Fields{
			"statement": i + 1,
			"code":      postgres.ErrorCode(execErr),
		}).WithError(execErr).Error("statement failed")

		if !opts.ContinueOnError {
			aborted = true
			break
		}
		if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepointName); err != nil {
			_ = tx.Rollback()
			return finish(out), fmt.Errorf("failed to roll back to savepoint: %w", err)
		}
	}

	switch {
	case aborted:
		if err := tx.Rollback(); err != nil {
			s.log.WithError(err).Warn("rollback after failed statement returned an error")
		}
		s.log.WithField("attempted", out.Executed).Warn("transaction rolled back")
	case opts.DryRun:
		if err := tx.Rollback(); err != nil {
			return finish(out), fmt.Errorf("failed to roll back dry run: %w", err)
		}
		s.log.Info("dry run rolled back")
	default:
		if err := tx.Commit(); err != nil {
			if out.Failure == nil {
				out.Failure = &Failure{Error: "commit failed: " + postgres.Describe(err), Code: postgres.ErrorCode(err)}
			}
			return finish(out), nil
		}
		out.Committed = true
	}
	return finish(out), nil
}

func statementFailure(i int, r Result, err error, text string) *Failure {
	f := &Failure{
		StatementIndex:   i + 1,
		StatementPreview: r.StatementPreview,
		Error:            r.Error,
		Code:             postgres.ErrorCode(err),
	}
	if pos, ok := postgres.ErrorPosition(err); ok {
		f.SQLPosition = pos
		f.ErrorContext = postgres.ContextWindow(text, pos, contextRadius)
	}
	return f
}
