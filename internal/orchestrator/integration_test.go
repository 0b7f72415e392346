package orchestrator

import (
	"context"
	"database/sql"
	"io"
	"os"
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockplane/schemasync/internal/executor"
	"github.com/lockplane/schemasync/internal/logging"
)

// liveDestination returns a destination for the test database or skips.
func liveDestination(t *testing.T) (Destination, *sql.DB) {
	t.Helper()

	dbURL := os.Getenv("SCHEMASYNC_TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("Skipping test: SCHEMASYNC_TEST_DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Skipf("Skipping test: cannot open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		t.Skipf("Skipping test: database not available: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return Destination{DatabaseURL: dbURL}, db
}

func liveOrchestrator(t *testing.T, preferCLI bool) *Orchestrator {
	t.Helper()
	base, err := logging.New("debug", "text", io.Discard)
	require.NoError(t, err)
	settings := DefaultSettings()
	settings.PreferCLI = preferCLI
	return New(settings, base)
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var found sql.NullString
	require.NoError(t, db.QueryRow("SELECT to_regclass($1)::text", name).Scan(&found))
	return found.Valid
}

func TestLiveFailureRollsBackEverything(t *testing.T) {
	dest, db := liveDestination(t)

	script := `CREATE TABLE public.schemasync_it_a (id int PRIMARY KEY);
CREATE TABLE public.schemasync_it_b (id int PRIMARY KEY);
INSERT INTO public.schemasync_it_a (id) VALUES (1);
INSERT INTO public.schemasync_it_missing (id) VALUES (1);`

	for _, tc := range []struct {
		name      string
		preferCLI bool
		mode      executor.Mode
	}{
		{"batch", true, executor.ModeBatch},
		{"per statement", false, executor.ModeStatements},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, _ = db.Exec("DROP TABLE IF EXISTS public.schemasync_it_a, public.schemasync_it_b")

			resp := liveOrchestrator(t, tc.preferCLI).Import(context.Background(), dest, ImportRequest{SQL: script})

			assert.False(t, resp.Success)
			assert.Equal(t, FailureExecution, resp.Failure)
			assert.Equal(t, tc.mode, resp.ExecutionMode)
			assert.Equal(t, 3, resp.Statements.Successful)
			assert.Equal(t, 1, resp.Statements.Failed)
			assert.Equal(t, 4, resp.StatementIndex)

			// Reported successes did not persist.
			assert.False(t, tableExists(t, db, "public.schemasync_it_a"))
			assert.False(t, tableExists(t, db, "public.schemasync_it_b"))
		})
	}
}

func TestLiveRerunIsRolledBack(t *testing.T) {
	dest, db := liveDestination(t)
	_, _ = db.Exec("DROP TABLE IF EXISTS public.foo")
	t.Cleanup(func() { _, _ = db.Exec("DROP TABLE IF EXISTS public.foo") })

	script := `CREATE TABLE IF NOT EXISTS public.foo(id uuid PRIMARY KEY DEFAULT gen_random_uuid(), name text NOT NULL);
INSERT INTO public.foo (id,name) VALUES ('11111111-1111-1111-1111-111111111111','x');`

	o := liveOrchestrator(t, false)

	first := o.Import(context.Background(), dest, ImportRequest{SQL: script})
	require.True(t, first.Success, first.Error)
	assert.Equal(t, 2, first.Statements.Successful)

	second := o.Import(context.Background(), dest, ImportRequest{SQL: script})
	assert.False(t, second.Success)
	assert.Equal(t, 1, second.Statements.Failed)
	assert.Equal(t, 2, second.StatementIndex)
	assert.NotEmpty(t, second.Logs)

	var rows int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM public.foo").Scan(&rows))
	assert.Equal(t, 1, rows)
}
