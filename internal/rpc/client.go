// Package rpc talks to the SQL execution procedures a destination exposes
// over its REST gateway, and to the external destination reset endpoint.
//
// The destination must provide two procedures:
//
//	exec_sql(sql text)   returns {success, error, rows_affected}
//	exec_query(sql text) returns the result rows as a JSON array
//
// Both are called as POST {url}/rest/v1/rpc/{name} with {"sql": ...}.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrProcedureNotFound means the gateway does not (yet) know the procedure.
// It is expected right after the procedure was (re)installed.
var ErrProcedureNotFound = errors.New("remote procedure not found")

// Default procedure names.
const (
	ExecProcedure  = "exec_sql"
	QueryProcedure = "exec_query"
)

// APIError is a non-2xx gateway response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("rpc error %d (%s): %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Status, msg)
}

// Is reports procedure-not-found responses as ErrProcedureNotFound:
// PGRST202 from the gateway, 42883 (undefined_function) from Postgres, or a
// bare 404.
func (e *APIError) Is(target error) bool {
	if target != ErrProcedureNotFound {
		return false
	}
	switch e.Code {
	case "PGRST202", "42883":
		return true
	case "":
		return e.Status == http.StatusNotFound
	}
	return false
}

// ExecResult is the exec_sql return value. A false Success is a SQL failure
// inside the procedure, not a transport error.
type ExecResult struct {
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	RowsAffected *int64 `json:"rows_affected,omitempty"`
}

// Client calls the exec procedures of one destination.
type Client struct {
	baseURL        string
	serviceKey     string
	http           *http.Client
	execProcedure  string
	queryProcedure string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithProcedures overrides the procedure names.
func WithProcedures(exec, query string) Option {
	return func(c *Client) {
		if exec != "" {
			c.execProcedure = exec
		}
		if query != "" {
			c.queryProcedure = query
		}
	}
}

// NewClient returns a client for the destination at baseURL.
func NewClient(baseURL, serviceKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		serviceKey:     serviceKey,
		http:           &http.Client{Timeout: 60 * time.Second},
		execProcedure:  ExecProcedure,
		queryProcedure: QueryProcedure,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ExecSQL runs one statement through the exec procedure.
func (c *Client) ExecSQL(ctx context.Context, sql string) (ExecResult, error) {
	body, err := c.call(ctx, c.execProcedure, sql)
	if err != nil {
		return ExecResult{}, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ExecResult{Success: true}, nil
	}

	var result ExecResult
	if err := json.Unmarshal(trimmed, &result); err != nil {
		return ExecResult{}, fmt.Errorf("failed to decode %s response: %w", c.execProcedure, err)
	}
	return result, nil
}

// ExecQuery runs a query through the query procedure and returns its rows.
func (c *Client) ExecQuery(ctx context.Context, sql string) ([]map[string]any, error) {
	body, err := c.call(ctx, c.queryProcedure, sql)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var rows []map[string]any
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", c.queryProcedure, err)
	}
	return rows, nil
}

// Ping checks that the exec procedure is callable.
func (c *Client) Ping(ctx context.Context) error {
	result, err := c.ExecSQL(ctx, "SELECT 1")
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("%s is installed but failed: %s", c.execProcedure, result.Error)
	}
	return nil
}

func (c *Client) call(ctx context.Context, procedure, sql string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{"sql": sql})
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/rest/v1/rpc/" + procedure
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	setAuth(req, c.serviceKey)

	return do(c.http, req)
}

func setAuth(req *http.Request, key string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if key != "" {
		req.Header.Set("apikey", key)
		req.Header.Set("Authorization", "Bearer "+key)
	}
}

// do performs req and returns the body of a 2xx response or an *APIError.
func do(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(body, apiErr); jsonErr != nil {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return nil, apiErr
	}

	return body, nil
}
