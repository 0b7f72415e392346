// Package api exposes clone and import over HTTP.
//
//	POST /api/clone   CloneRequest  -> Response
//	POST /api/import  ImportRequest -> Response
//
// Every response uses the same envelope and includes the session log. Status
// is 200 on success, 400 when the request or its SQL is rejected, and 500 for
// execution, connection, bootstrap and export failures.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/xeipuuv/gojsonschema"

	"github.com/lockplane/schemasync/internal/logging"
	"github.com/lockplane/schemasync/internal/orchestrator"
)

const maxBodyBytes = 64 << 20

// Runner is the part of the orchestrator the API calls.
type Runner interface {
	Clone(ctx context.Context, req orchestrator.CloneRequest) *orchestrator.Response
	Import(ctx context.Context, dest orchestrator.Destination, req orchestrator.ImportRequest) *orchestrator.Response
}

// Server routes requests to a Runner.
type Server struct {
	runner Runner
	// importDestination is used when an import request names none.
	importDestination orchestrator.Destination
	log               logrus.FieldLogger
}

func NewServer(runner Runner, importDestination orchestrator.Destination, log logrus.FieldLogger) *Server {
	return &Server{runner: runner, importDestination: importDestination, log: log}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Post("/clone", s.handleClone)
		r.Post("/import", s.handleImport)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type importBody struct {
	orchestrator.ImportRequest
	Destination *orchestrator.Destination `json:"destination,omitempty"`
}

func (s *Server) handleClone(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.CloneRequest
	if !s.decode(w, r, cloneSchema, &req) {
		return
	}
	s.respond(w, s.runner.Clone(r.Context(), req))
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var body importBody
	if !s.decode(w, r, importSchema, &body) {
		return
	}
	dest := s.importDestination
	if body.Destination != nil {
		dest = *body.Destination
	}
	s.respond(w, s.runner.Import(r.Context(), dest, body.ImportRequest))
}

// decode reads, schema-checks and unmarshals the body. It writes a 400 and
// returns false when the request is malformed.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, schema *gojsonschema.Schema, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.reject(w, []string{fmt.Sprintf("failed to read request body: %v", err)})
		return false
	}

	problems, err := validateBody(schema, body)
	if err != nil {
		s.reject(w, []string{fmt.Sprintf("invalid JSON: %v", err)})
		return false
	}
	if len(problems) > 0 {
		s.reject(w, problems)
		return false
	}

	if err := json.Unmarshal(body, v); err != nil {
		s.reject(w, []string{fmt.Sprintf("invalid request: %v", err)})
		return false
	}
	return true
}

func (s *Server) reject(w http.ResponseWriter, problems []string) {
	s.log.WithField("problems", problems).Warn("request rejected")
	writeJSON(w, http.StatusBadRequest, &orchestrator.Response{
		Failure:          orchestrator.FailureRejected,
		Error:            "invalid request",
		ValidationErrors: problems,
		Logs:             []logging.Entry{},
	})
}

func (s *Server) respond(w http.ResponseWriter, resp *orchestrator.Response) {
	writeJSON(w, StatusFor(resp), resp)
}

// StatusFor maps a response to its HTTP status.
func StatusFor(resp *orchestrator.Response) int {
	switch resp.Failure {
	case orchestrator.FailureNone:
		return http.StatusOK
	case orchestrator.FailureRejected:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Info("request")
	})
}
