package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestExecSQL(t *testing.T) {
	var gotSQL, gotKey, gotAuth, gotPath string
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotSQL = body["sql"]
		_, _ = w.Write([]byte(`{"success": true, "rows_affected": 3}`))
	})

	c := NewClient(srv.URL+"/", "secret")
	result, err := c.ExecSQL(context.Background(), "DELETE FROM t")
	require.NoError(t, err)

	assert.True(t, result.Success)
	require.NotNil(t, result.RowsAffected)
	assert.EqualValues(t, 3, *result.RowsAffected)
	assert.Equal(t, "/rest/v1/rpc/exec_sql", gotPath)
	assert.Equal(t, "DELETE FROM t", gotSQL)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestExecSQLFailureIsNotTransportError(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "error": "relation \"nope\" does not exist"}`))
	})

	result, err := NewClient(srv.URL, "k").ExecSQL(context.Background(), "SELECT * FROM nope")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "does not exist")
}

func TestExecSQLVoidResponse(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	result, err := NewClient(srv.URL, "k").ExecSQL(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestProcedureNotFound(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		notFound bool
	}{
		{"gateway code", http.StatusNotFound, `{"code":"PGRST202","message":"Could not find the function public.exec_sql(sql)"}`, true},
		{"undefined function", http.StatusBadRequest, `{"code":"42883","message":"function exec_sql(text) does not exist"}`, true},
		{"bare 404", http.StatusNotFound, `not found`, true},
		{"permission denied", http.StatusForbidden, `{"code":"42501","message":"permission denied"}`, false},
		{"server error", http.StatusInternalServerError, `{"code":"XX000","message":"internal"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			err := NewClient(srv.URL, "k").Ping(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.notFound, errors.Is(err, ErrProcedureNotFound))

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
		})
	}
}

func TestExecQuery(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/rpc/run_query", r.URL.Path)
		_, _ = w.Write([]byte(`[{"id": 1, "name": "a"}, {"id": 2, "name": "b"}]`))
	})

	c := NewClient(srv.URL, "k", WithProcedures("", "run_query"))
	rows, err := c.ExecQuery(context.Background(), "SELECT id, name FROM t")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[1]["name"])
}

func TestReset(t *testing.T) {
	var got ResetRequest
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"success": true}`))
	})

	err := NewResetClient(srv.URL, "k", nil).Reset(context.Background(), "https://dest.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://dest.example.com", got.DestinationURL)
}

func TestResetReportsFailure(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "error": "schema locked"}`))
	})

	err := NewResetClient(srv.URL, "k", nil).Reset(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema locked")

	assert.Error(t, NewResetClient("", "k", nil).Reset(context.Background(), "x"))
}
