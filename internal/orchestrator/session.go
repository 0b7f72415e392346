package orchestrator

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lockplane/schemasync/internal/database/postgres"
	"github.com/lockplane/schemasync/internal/history"
	"github.com/lockplane/schemasync/internal/logging"
)

const (
	kindClone  = "clone"
	kindImport = "import"
)

// session is the state of one invocation. Nothing in it is shared.
type session struct {
	kind         string
	started      time.Time
	log          *logrus.Entry
	collector    *logging.Collector
	resp         *Response
	direct       Direct
	closeTimeout time.Duration
	destination  string
}

func (o *Orchestrator) newSession(kind string) *session {
	id := uuid.NewString()
	log, collector := logging.NewSession(o.Log, logrus.Fields{"session": id, "kind": kind})
	return &session{
		kind:         kind,
		started:      time.Now(),
		log:          log,
		collector:    collector,
		closeTimeout: o.Settings.CloseTimeout,
		resp: &Response{
			ID:      id,
			Failure: FailureNone,
			Logs:    []logging.Entry{},
		},
	}
}

// fail marks the response failed. The first failure wins.
func (s *session) fail(kind FailureKind, err error) {
	if s.resp.Failure == FailureNone {
		s.resp.Failure = kind
		s.resp.Error = err.Error()
	}
	s.resp.Success = false
	s.log.WithField("failure", string(kind)).WithError(err).Error(s.kind + " failed")
}

// finish closes the connection, then snapshots the log so the close is in it.
func (s *session) finish(ctx context.Context, recorder Recorder) *Response {
	if s.direct != nil {
		if err := postgres.CloseWithTimeout(s.direct, s.closeTimeout); err != nil {
			s.log.WithError(err).Warn("failed to close destination connection")
		} else {
			s.log.Debug("destination connection closed")
		}
		s.direct = nil
	}

	if s.resp.Failure == FailureNone {
		s.resp.Success = true
		s.log.WithField("statements", s.resp.Statements.Successful).Info(s.kind + " finished")
	}
	s.resp.DurationMs = time.Since(s.started).Milliseconds()

	if recorder != nil {
		if err := recorder.Record(ctx, s.run()); err != nil {
			s.log.WithError(err).Warn("failed to record run history")
		}
	}

	s.resp.Logs = s.collector.Entries()
	return s.resp
}

func (s *session) run() history.Run {
	r := s.resp
	run := history.Run{
		ID:          r.ID,
		Kind:        s.kind,
		Environment: s.destination,
		Mode:        string(r.ExecutionMode),
		Total:       r.Statements.Total,
		Successful:  r.Statements.Successful,
		Failed:      r.Statements.Failed,
		Success:     r.Success,
		DryRun:      r.DryRun,
		Error:       r.Error,
		StartedAt:   s.started,
		DurationMs:  r.DurationMs,
	}
	if r.Failure != FailureNone {
		run.Failure = string(r.Failure)
	}
	return run
}

// destinationLabel names a destination without credentials.
func destinationLabel(d Destination) string {
	raw := d.URL
	if raw == "" {
		raw = d.DatabaseURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}
