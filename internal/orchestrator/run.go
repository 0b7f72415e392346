package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lockplane/schemasync/internal/classify"
	"github.com/lockplane/schemasync/internal/database"
	"github.com/lockplane/schemasync/internal/executor"
	"github.com/lockplane/schemasync/internal/locks"
	"github.com/lockplane/schemasync/internal/normalize"
	"github.com/lockplane/schemasync/internal/rollback"
	"github.com/lockplane/schemasync/internal/schema"
	"github.com/lockplane/schemasync/internal/sqlsplit"
	"github.com/lockplane/schemasync/internal/validation"
)

const applicationName = "schemasync"

type runOptions struct {
	destination     Destination
	skipValidation  bool
	preferCLI       bool
	reset           bool
	dryRun          bool
	continueOnError bool
	includeResults  bool
}

// prepared is a script that passed the pre-execution gates.
type prepared struct {
	script     executor.Script
	statements []classify.SQLStatement
	plan       rollback.Plan
}

// Clone exports SQL from the source and applies it to the destination.
func (o *Orchestrator) Clone(ctx context.Context, req CloneRequest) *Response {
	s := o.newSession(kindClone)
	s.destination = destinationLabel(req.Destination)

	opts := runOptions{
		destination:    req.Destination,
		skipValidation: req.SkipValidation,
		preferCLI:      o.Settings.PreferCLI,
		reset:          true,
	}
	if req.PreferCliExecution != nil {
		opts.preferCLI = *req.PreferCliExecution
	}
	if req.ResetDestination != nil {
		opts.reset = *req.ResetDestination
	}

	if o.Exporter == nil {
		s.fail(FailureExport, errors.New("no exporter configured"))
		return s.finish(ctx, o.History)
	}
	s.log.WithField("include_data", req.IncludeData).Info("exporting source")
	sql, err := o.Exporter.Export(ctx, req.Source, req.IncludeData)
	if err != nil {
		s.fail(FailureExport, fmt.Errorf("export failed: %w", err))
		return s.finish(ctx, o.History)
	}

	o.run(ctx, s, sql, opts)
	return s.finish(ctx, o.History)
}

// Import applies caller-supplied SQL to dest.
func (o *Orchestrator) Import(ctx context.Context, dest Destination, req ImportRequest) *Response {
	s := o.newSession(kindImport)
	s.destination = destinationLabel(dest)
	s.resp.DryRun = req.Options.DryRun

	o.run(ctx, s, req.SQL, runOptions{
		destination:     dest,
		skipValidation:  req.Options.SkipValidation,
		preferCLI:       o.Settings.PreferCLI,
		dryRun:          req.Options.DryRun,
		continueOnError: req.Options.ContinueOnError,
		includeResults:  true,
	})
	return s.finish(ctx, o.History)
}

func (o *Orchestrator) run(ctx context.Context, s *session, raw string, opts runOptions) {
	p, ok := o.prepare(s, raw, opts.skipValidation)
	if !ok {
		return
	}

	mode, err := selectMode(opts.destination, opts.preferCLI, opts.continueOnError)
	if err != nil {
		s.fail(FailureConnection, err)
		return
	}
	s.resp.ExecutionMode = mode
	s.log.WithField("mode", string(mode)).Info("execution mode selected")

	var exec executor.Executor
	switch mode {
	case executor.ModeRPC:
		remote := o.Remote(opts.destination.URL, opts.destination.ServiceKey)
		if opts.dryRun {
			exec = executor.NewRPC(remote, s.log)
			break
		}
		if opts.reset && !o.resetRemote(ctx, s, opts.destination) {
			return
		}
		if err := awaitExecProcedure(ctx, remote, o.Settings.BootstrapAttempts, o.Settings.BootstrapDelay, s.log); err != nil {
			s.fail(FailureBootstrap, err)
			return
		}
		exec = executor.NewRPC(remote, s.log)
	default:
		direct, err := o.Dial(ctx, database.ConnectionConfig{
			DatabaseType:    database.DatabaseTypePostgres,
			PostgresUrl:     opts.destination.DatabaseURL,
			ApplicationName: applicationName,
			ConnectTimeout:  o.Settings.ConnectTimeout,
			IdleTimeout:     o.Settings.IdleTimeout,
			CloseTimeout:    o.Settings.CloseTimeout,
		})
		if err != nil {
			s.fail(FailureConnection, fmt.Errorf("failed to connect to destination: %w", err))
			return
		}
		s.direct = direct
		s.log.Info("connected to destination")

		if opts.reset && !o.resetDirect(ctx, s) {
			return
		}
		if mode == executor.ModeBatch {
			exec = executor.NewBatch(direct, s.log)
		} else {
			exec = executor.NewStatements(direct, s.log)
		}
	}

	outcome, err := exec.Execute(ctx, p.script, executor.Options{
		ContinueOnError: opts.continueOnError,
		DryRun:          opts.dryRun,
	})
	if outcome != nil {
		o.report(s, p, outcome, opts)
	}
	if err != nil {
		s.fail(FailureConnection, err)
		return
	}
	if !outcome.Success() {
		msg := "one or more statements failed"
		if outcome.Failure != nil {
			msg = outcome.Failure.Error
		}
		s.fail(FailureExecution, errors.New(msg))
	}
}

// prepare normalizes, splits and screens raw. It returns false when the run
// was rejected.
func (o *Orchestrator) prepare(s *session, raw string, skipValidation bool) (prepared, bool) {
	if strings.TrimSpace(raw) == "" {
		s.resp.ValidationErrors = []string{ErrEmptySQL.Error()}
		s.fail(FailureRejected, ErrEmptySQL)
		return prepared{}, false
	}

	normalized := normalize.Normalize(raw)
	if normalized.Changed() {
		s.resp.ACLFixes = normalized.Fixes
		for _, fix := range normalized.Fixes {
			s.log.WithField("fix", fix).Warn("SQL auto-corrected")
		}
	}

	script := executor.NewScript(normalized.SQL)
	if len(script.Statements) == 0 {
		s.resp.ValidationErrors = []string{ErrEmptySQL.Error()}
		s.fail(FailureRejected, ErrEmptySQL)
		return prepared{}, false
	}
	s.resp.Statements.Total = len(script.Statements)

	statements := classify.ClassifyAll(sqlsplit.Texts(script.Statements))
	danger := classify.Safe
	for _, st := range statements {
		danger = classify.Max(danger, st.DangerLevel)
	}
	s.resp.DangerLevel = danger

	// The denylist applies even when validation is skipped.
	if critical := classify.CheckCritical(normalized.SQL); len(critical) > 0 {
		s.resp.ValidationErrors = critical
		s.fail(FailureRejected, fmt.Errorf("%w: %s", ErrRejected, strings.Join(critical, "; ")))
		return prepared{}, false
	}

	if skipValidation {
		s.log.Warn("validation skipped")
	} else if !o.validate(s, normalized.SQL) {
		return prepared{}, false
	}

	plan := rollback.Generate(statements)
	s.resp.Rollback = newRollbackReport(plan)
	if !plan.CanRollback {
		s.log.WithField("irreversible", len(plan.Irreversible())).Warn("rollback would be partial")
	}

	for _, l := range locks.Disruptive(locks.Analyze(sqlsplit.Texts(script.Statements))) {
		s.log.WithFields(logrus.Fields{
			"statement_index": l.Position + 1,
			"lock":            string(l.Mode),
		}).Debug(l.Explanation)
	}

	s.log.WithFields(logrus.Fields{
		"statements": len(script.Statements),
		"danger":     string(danger),
	}).Info("script prepared")
	return prepared{script: script, statements: statements, plan: plan}, true
}

// validate runs SQL screening (blocking) and schema validation (advisory).
func (o *Orchestrator) validate(s *session, sql string) bool {
	v := classify.ValidateSQL(sql, classify.ValidateOptions{})
	s.resp.ValidationWarnings = v.Warnings
	for _, w := range v.Warnings {
		s.log.WithField("warning", w).Warn("SQL validation warning")
	}
	if !v.Valid() {
		s.resp.ValidationErrors = v.Errors
		s.fail(FailureRejected, fmt.Errorf("%w: %s", ErrRejected, strings.Join(v.Errors, "; ")))
		return false
	}

	inv, err := schema.ParseInventory(sql)
	if err != nil {
		s.log.WithError(err).Warn("schema inventory unavailable, schema validation skipped")
		return true
	}
	result := validation.Validate(inv)
	s.resp.Validation = &ValidationSummary{
		Errors:   result.Summary.Errors,
		Warnings: result.Summary.Warnings,
		Infos:    result.Summary.Infos,
	}
	for _, issue := range result.Issues {
		entry := s.log.WithFields(logrus.Fields{
			"severity": string(issue.Severity),
			"category": string(issue.Category),
			"objects":  issue.AffectedObjects,
		})
		if issue.Severity == validation.SeverityInfo {
			entry.Info(issue.Message)
		} else {
			entry.Warn(issue.Message)
		}
	}
	return true
}

func (o *Orchestrator) resetDirect(ctx context.Context, s *session) bool {
	s.log.Info("resetting destination schema")
	if _, err := s.direct.ExecContext(ctx, ResetSQL); err != nil {
		s.fail(FailureExecution, fmt.Errorf("reset failed: %w", err))
		return false
	}
	s.resp.ResetExecuted = true
	return true
}

func (o *Orchestrator) resetRemote(ctx context.Context, s *session, dest Destination) bool {
	if o.Resetter == nil {
		s.fail(FailureExecution, errors.New("reset requested but no reset endpoint is configured"))
		return false
	}
	s.log.Info("requesting destination reset")
	if err := o.Resetter.Reset(ctx, dest.URL); err != nil {
		s.fail(FailureExecution, err)
		return false
	}
	s.resp.ResetExecuted = true
	return true
}

// report copies the executor outcome into the response.
func (o *Orchestrator) report(s *session, p prepared, out *executor.Outcome, opts runOptions) {
	s.resp.Statements = Counts{
		Total:      out.Total,
		Executed:   out.Executed,
		Successful: out.Successful,
		Failed:     out.Failed,
	}
	if opts.includeResults {
		s.resp.Results = out.Results
	}

	if f := out.Failure; f != nil {
		s.resp.StatementIndex = f.StatementIndex
		s.resp.StatementPreview = f.StatementPreview
		s.resp.SQLPosition = f.SQLPosition
		s.resp.ErrorContext = f.ErrorContext
	}

	// Under continue-on-error only the successful subset was committed.
	if opts.continueOnError && out.Committed {
		s.resp.PlannedRollback = newRollbackReport(p.plan)
		s.resp.Rollback = newRollbackReport(rollback.ForExecuted(p.statements, out.SucceededPositions()))
	}

	s.log.WithFields(logrus.Fields{
		"executed":   out.Executed,
		"successful": out.Successful,
		"failed":     out.Failed,
		"committed":  out.Committed,
	}).Info("execution finished")
}

// selectMode prefers a direct connection. Continue-on-error needs
// per-statement execution.
func selectMode(dest Destination, preferCLI, continueOnError bool) (executor.Mode, error) {
	switch {
	case dest.DatabaseURL != "":
		if preferCLI && !continueOnError {
			return executor.ModeBatch, nil
		}
		return executor.ModeStatements, nil
	case dest.URL != "":
		return executor.ModeRPC, nil
	}
	return "", errors.New("destination has neither a database URL nor an API URL")
}
