package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lockplane/schemasync/internal/rpc"
)

// SQLRunner executes one statement remotely. *rpc.Client implements it.
type SQLRunner interface {
	ExecSQL(ctx context.Context, sql string) (rpc.ExecResult, error)
}

// RPC sends each statement to the exec procedure, bracketed by BEGIN and
// COMMIT (or ROLLBACK) calls. Whether those calls share a transaction depends
// on the gateway's session handling.
type RPC struct {
	runner SQLRunner
	log    logrus.FieldLogger
}

// NewRPC returns an executor for the exec procedure.
func NewRPC(runner SQLRunner, log logrus.FieldLogger) *RPC {
	return &RPC{runner: runner, log: logger(log)}
}

func (e *RPC) Mode() Mode { return ModeRPC }

// Execute runs the script. A dry run only plans: nothing is sent, because the
// gateway cannot guarantee a later ROLLBACK undoes earlier calls.
func (e *RPC) Execute(ctx context.Context, script Script, opts Options) (*Outcome, error) {
	out := newOutcome(ModeRPC, script, opts)
	if len(script.Statements) == 0 {
		return finish(out), nil
	}
	if opts.DryRun {
		e.log.WithField("statements", len(script.Statements)).Info("dry run: statements planned, nothing sent")
		return finish(out), nil
	}

	if err := e.control(ctx, "BEGIN"); err != nil {
		return finish(out), err
	}

	aborted := false
	for i, stmt := range script.Statements {
		r := Result{Index: i + 1, StatementPreview: preview(stmt)}
		if opts.ContinueOnError {
			if err := e.control(ctx, "SAVEPOINT "+savepointName); err != nil {
				e.rollback(ctx)
				return finish(out), err
			}
		}

		start := time.Now()
		res, err := e.runner.ExecSQL(ctx, stmt.Text)
		r.DurationMs = time.Since(start).Milliseconds()

		switch {
		case err != nil:
			// Transport failures end the run regardless of ContinueOnError.
			r.Error = err.Error()
			out.record(r)
			if out.Failure == nil {
				out.Failure = &Failure{StatementIndex: i + 1, StatementPreview: r.StatementPreview, Error: r.Error}
			}
			e.log.WithField("statement", i+1).WithError(err).Error("exec call failed")
			e.rollback(ctx)
			return finish(out), nil
		case !res.Success:
			r.Error = res.Error
			out.record(r)
			if out.Failure == nil {
				out.Failure = &Failure{StatementIndex: i + 1, StatementPreview: r.StatementPreview, Error: r.Error}
			}
			e.log.WithField("statement", i+1).Error("statement failed: " + res.Error)
			if !opts.ContinueOnError {
				aborted = true
			} else if err := e.control(ctx, "ROLLBACK TO SAVEPOINT "+savepointName); err != nil {
				e.rollback(ctx)
				return finish(out), err
			}
		default:
			r.Success = true
			r.RowsAffected = res.RowsAffected
			out.record(r)
			e.log.WithField("statement", i+1).Debug("statement succeeded")
			if opts.ContinueOnError {
				if err := e.control(ctx, "RELEASE SAVEPOINT "+savepointName); err != nil {
					e.rollback(ctx)
					return finish(out), err
				}
			}
		}
		if aborted {
			break
		}
	}

	if aborted {
		e.rollback(ctx)
		return finish(out), nil
	}
	if err := e.control(ctx, "COMMIT"); err != nil {
		if out.Failure == nil {
			out.Failure = &Failure{Error: err.Error()}
		}
		return finish(out), nil
	}
	out.Committed = true
	return finish(out), nil
}

func (e *RPC) control(ctx context.Context, sql string) error {
	res, err := e.runner.ExecSQL(ctx, sql)
	if err != nil {
		return fmt.Errorf("%s failed: %w", sql, err)
	}
	if !res.Success {
		return fmt.Errorf("%s failed: %s", sql, res.Error)
	}
	return nil
}

func (e *RPC) rollback(ctx context.Context) {
	if err := e.control(ctx, "ROLLBACK"); err != nil {
		e.log.WithError(err).Warn("remote rollback failed")
	}
}
