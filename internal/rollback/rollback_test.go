package rollback

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockplane/schemasync/internal/classify"
)

func TestReverse(t *testing.T) {
	tests := []struct {
		name       string
		sql        string
		wantSQL    string
		reversible bool
	}{
		{"create table", "CREATE TABLE t (id uuid primary key);", "DROP TABLE IF EXISTS t CASCADE;", true},
		{"create qualified table", `CREATE TABLE public."Orders" (id int);`, `DROP TABLE IF EXISTS public."Orders" CASCADE;`, true},
		{"reserved table name", `CREATE TABLE "order" (id int);`, `DROP TABLE IF EXISTS "order" CASCADE;`, true},
		{"add column", "ALTER TABLE users ADD COLUMN email text;", "ALTER TABLE users DROP COLUMN IF EXISTS email;", true},
		{"add columns", "ALTER TABLE users ADD COLUMN a int, ADD b text;", "ALTER TABLE users DROP COLUMN IF EXISTS b, DROP COLUMN IF EXISTS a;", true},
		{"add constraint", "ALTER TABLE ONLY public.users ADD CONSTRAINT users_email_key UNIQUE (email);", "ALTER TABLE public.users DROP CONSTRAINT IF EXISTS users_email_key;", true},
		{"enable rls", "ALTER TABLE posts ENABLE ROW LEVEL SECURITY;", "ALTER TABLE posts DISABLE ROW LEVEL SECURITY;", true},
		{"create index", "CREATE INDEX idx_users_email ON public.users (email);", "DROP INDEX IF EXISTS public.idx_users_email;", true},
		{"create function", "CREATE OR REPLACE FUNCTION public.add(a integer, b integer) RETURNS integer AS $$ SELECT a + b $$ LANGUAGE sql;", "DROP FUNCTION IF EXISTS public.add(a integer, b integer) CASCADE;", true},
		{"function with defaults", "CREATE FUNCTION f(a int DEFAULT 1) RETURNS int AS $$ SELECT a $$ LANGUAGE sql;", "DROP FUNCTION IF EXISTS f CASCADE;", true},
		{"create trigger", "CREATE TRIGGER trg BEFORE UPDATE ON public.users FOR EACH ROW EXECUTE FUNCTION touch();", "DROP TRIGGER IF EXISTS trg ON public.users;", true},
		{"create policy", "CREATE POLICY read_own ON public.posts FOR SELECT USING (auth.uid() = user_id);", "DROP POLICY IF EXISTS read_own ON public.posts;", true},
		{"drop table", "DROP TABLE users;", "", false},
		{"drop column", "ALTER TABLE users DROP COLUMN email;", "", false},
		{"drop index", "DROP INDEX idx;", "", false},
		{"insert", "INSERT INTO t VALUES (1);", "", false},
		{"update", "UPDATE t SET a = 1;", "", false},
		{"delete", "DELETE FROM t;", "", false},
		{"truncate", "TRUNCATE t;", "", false},
		{"unrecognized", "CREATE EXTENSION pgcrypto;", "", false},
		{"unrecognized alter", "ALTER TABLE t OWNER TO postgres;", "", false},
		{"identity column", "ALTER TABLE public.orders ALTER COLUMN id ADD GENERATED BY DEFAULT AS IDENTITY (SEQUENCE NAME public.orders_id_seq START WITH 1 INCREMENT BY 1 CACHE 1);", "", false},
		{"add column with unknown action", "ALTER TABLE users ADD COLUMN a int, ALTER COLUMN b SET DEFAULT 1;", "", false},
		{"bare drop column", "ALTER TABLE users DROP email CASCADE;", "", false},
		{"drop constraint", "ALTER TABLE users DROP CONSTRAINT users_email_key;", "", false},
		{"add column with default list", "ALTER TABLE users ADD COLUMN tags text[] DEFAULT ARRAY['a', 'b'], ADD COLUMN n numeric(10, 2);", "ALTER TABLE users DROP COLUMN IF EXISTS n, DROP COLUMN IF EXISTS tags;", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := reverse(classify.Classify(tt.sql, 0))
			assert.Equal(t, tt.reversible, step.CanRollback)
			assert.Equal(t, tt.sql, step.OriginalStatement)
			if tt.reversible {
				assert.Equal(t, tt.wantSQL, step.RollbackSQL)
				assert.Empty(t, step.Notes)
			} else {
				assert.True(t, strings.HasPrefix(step.RollbackSQL, "-- cannot roll back: "), step.RollbackSQL)
				assert.NotEmpty(t, step.Notes)
			}
		})
	}
}

func TestGeneratePartialRollback(t *testing.T) {
	stmts := classify.ClassifyAll([]string{
		"CREATE TABLE t (id int PRIMARY KEY);",
		"INSERT INTO t (id) VALUES (1), (2);",
	})

	plan := Generate(stmts)
	require.Len(t, plan.Steps, 2)
	assert.False(t, plan.CanRollback)

	script := plan.Script()
	assert.Contains(t, script, "DROP TABLE IF EXISTS t")
	assert.NotContains(t, script, "INSERT")
	assert.NotContains(t, script, "cannot roll back")

	irreversible := plan.Irreversible()
	require.Len(t, irreversible, 1)
	assert.Equal(t, 1, irreversible[0].Position)
}

func TestGenerateIdentityDumpIsPartial(t *testing.T) {
	stmts := classify.ClassifyAll([]string{
		"CREATE TABLE public.orders (id integer NOT NULL);",
		"ALTER TABLE public.orders ALTER COLUMN id ADD GENERATED BY DEFAULT AS IDENTITY (SEQUENCE NAME public.orders_id_seq);",
	})

	plan := Generate(stmts)
	require.Len(t, plan.Steps, 2)
	assert.False(t, plan.CanRollback)
	assert.NotContains(t, plan.Script(), "GENERATED")
}

func TestScriptReversesOrder(t *testing.T) {
	plan := Generate(classify.ClassifyAll([]string{
		"CREATE TABLE a (id int);",
		"CREATE INDEX idx_a ON a (id);",
		"ALTER TABLE a ADD COLUMN name text;",
	}))

	assert.True(t, plan.CanRollback)
	assert.Equal(t,
		"ALTER TABLE a DROP COLUMN IF EXISTS name;\n\nDROP INDEX IF EXISTS idx_a;\n\nDROP TABLE IF EXISTS a CASCADE;",
		plan.Script())
}

func TestGenerateEmpty(t *testing.T) {
	plan := Generate(nil)
	assert.True(t, plan.CanRollback)
	assert.Empty(t, plan.Steps)
	assert.Equal(t, "", plan.Script())
}

func TestForExecuted(t *testing.T) {
	stmts := classify.ClassifyAll([]string{
		"CREATE TABLE a (id int);",
		"CREATE TABLE b (id int);",
		"DELETE FROM c;",
		"CREATE TABLE d (id int);",
	})

	plan := ForExecuted(stmts, []int{0, 3})
	require.Len(t, plan.Steps, 2)
	assert.True(t, plan.CanRollback)
	assert.Equal(t, "DROP TABLE IF EXISTS d CASCADE;\n\nDROP TABLE IF EXISTS a CASCADE;", plan.Script())
}
