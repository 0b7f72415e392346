package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockplane/schemasync/internal/sqlsplit"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		sql        string
		wantType   StatementType
		wantLevel  DangerLevel
		wantSchema string
		wantTable  string
		wantObject string
	}{
		{
			name:      "create table",
			sql:       "CREATE TABLE t(id uuid primary key);",
			wantType:  CreateTable,
			wantLevel: Safe,
			wantTable: "t",
		},
		{
			name:       "create table if not exists qualified",
			sql:        `CREATE TABLE IF NOT EXISTS public."Users" (id int);`,
			wantType:   CreateTable,
			wantLevel:  Safe,
			wantSchema: "public",
			wantTable:  "Users",
		},
		{
			name:      "truncate is critical",
			sql:       "TRUNCATE users;",
			wantType:  Truncate,
			wantLevel: Critical,
			wantTable: "users",
		},
		{
			name:      "drop column is warning",
			sql:       "ALTER TABLE users DROP COLUMN email;",
			wantType:  AlterTable,
			wantLevel: Warning,
			wantTable: "users",
		},
		{
			name:      "add column is safe",
			sql:       "ALTER TABLE users ADD COLUMN email text;",
			wantType:  AlterTable,
			wantLevel: Safe,
			wantTable: "users",
		},
		{
			name:      "drop table is warning",
			sql:       "DROP TABLE IF EXISTS users;",
			wantType:  DropTable,
			wantLevel: Warning,
			wantTable: "users",
		},
		{
			name:      "drop protected schema is critical",
			sql:       "DROP SCHEMA auth CASCADE;",
			wantType:  Unknown,
			wantLevel: Critical,
		},
		{
			name:      "drop other schema is warning",
			sql:       "DROP SCHEMA reporting;",
			wantType:  Unknown,
			wantLevel: Warning,
		},
		{
			name:       "alter protected table is critical",
			sql:        "ALTER TABLE auth.users ADD COLUMN x int;",
			wantType:   AlterTable,
			wantLevel:  Critical,
			wantSchema: "auth",
			wantTable:  "users",
		},
		{
			name:      "drop database is critical",
			sql:       "DROP DATABASE postgres;",
			wantType:  Unknown,
			wantLevel: Critical,
		},
		{
			name:       "function",
			sql:        "CREATE OR REPLACE FUNCTION public.touch() RETURNS trigger AS $$ BEGIN RETURN NEW; END; $$ LANGUAGE plpgsql;",
			wantType:   CreateFunction,
			wantLevel:  Safe,
			wantSchema: "public",
			wantObject: "touch",
		},
		{
			name:       "trigger",
			sql:        "CREATE TRIGGER trg_touch BEFORE UPDATE ON public.users FOR EACH ROW EXECUTE FUNCTION touch();",
			wantType:   CreateTrigger,
			wantLevel:  Safe,
			wantSchema: "public",
			wantTable:  "users",
			wantObject: "trg_touch",
		},
		{
			name:       "index",
			sql:        "CREATE UNIQUE INDEX idx_users_email ON users (email);",
			wantType:   CreateIndex,
			wantLevel:  Safe,
			wantTable:  "users",
			wantObject: "idx_users_email",
		},
		{
			name:      "delete",
			sql:       "DELETE FROM users WHERE id = 1;",
			wantType:  Delete,
			wantLevel: Warning,
			wantTable: "users",
		},
		{
			name:      "insert",
			sql:       "INSERT INTO users (id) VALUES (1);",
			wantType:  Insert,
			wantLevel: Safe,
			wantTable: "users",
		},
		{
			name:      "unknown",
			sql:       "CREATE EXTENSION IF NOT EXISTS pgcrypto;",
			wantType:  Unknown,
			wantLevel: Safe,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.sql, 3)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantLevel, got.DangerLevel)
			assert.Equal(t, tt.wantSchema, got.SchemaName)
			assert.Equal(t, tt.wantTable, got.TableName)
			assert.Equal(t, tt.wantObject, got.ObjectName)
			assert.Equal(t, 3, got.Position)
			assert.Equal(t, tt.sql, got.RawContent)
		})
	}
}

func TestParseKeepsOrder(t *testing.T) {
	sql := `-- setup
CREATE TABLE a (id int);
/* seed */ INSERT INTO a VALUES (1);
TRUNCATE a;`

	stmts := Parse(sql, sqlsplit.Exact{})
	require.Len(t, stmts, 3)
	for i, s := range stmts {
		assert.Equal(t, i, s.Position)
	}
	assert.Equal(t, CreateTable, stmts[0].Type)
	assert.Equal(t, Insert, stmts[1].Type)
	assert.Equal(t, Truncate, stmts[2].Type)
}

func TestSplitQualified(t *testing.T) {
	tests := []struct {
		in         string
		wantSchema string
		wantName   string
	}{
		{"users", "", "users"},
		{"Users", "", "users"},
		{`"Users"`, "", "Users"},
		{`public.users`, "public", "users"},
		{`"my.schema"."odd""name"`, "my.schema", `odd"name`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			s, n := SplitQualified(tt.in)
			assert.Equal(t, tt.wantSchema, s)
			assert.Equal(t, tt.wantName, n)
		})
	}
}

func TestClassifyOperations(t *testing.T) {
	stmts := ClassifyAll([]string{
		"CREATE TABLE a (id int);",
		"DROP TABLE b;",
		"TRUNCATE c;",
		"CREATE INDEX i ON a (id);",
	})

	ops := ClassifyOperations(stmts)
	assert.Len(t, ops.Safe, 2)
	assert.Len(t, ops.Warning, 1)
	assert.Len(t, ops.Critical, 1)
	assert.Len(t, ops.ByFamily[FamilyCreate], 2)
	assert.Len(t, ops.ByFamily[FamilyDrop], 2)
	assert.Len(t, ops.ByFamily[FamilyIndex], 1)
	assert.Equal(t, "TRUNCATE c;", ops.Critical[0].RawContent)
}

func TestValidateSQL(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		v := ValidateSQL("  -- nothing\n", ValidateOptions{})
		assert.False(t, v.Valid())
		assert.Equal(t, []string{"SQL is empty"}, v.Errors)
	})

	t.Run("safe script", func(t *testing.T) {
		v := ValidateSQL("CREATE TABLE t (id uuid primary key); INSERT INTO t VALUES (gen_random_uuid());", ValidateOptions{})
		assert.True(t, v.Valid(), v.Errors)
		assert.Empty(t, v.Warnings)
		assert.Equal(t, Safe, v.DangerLevel)
		assert.Equal(t, []string{"t"}, v.AffectedTables)
		assert.Equal(t, 2, v.Statements)
	})

	t.Run("critical pattern rejects", func(t *testing.T) {
		v := ValidateSQL("CREATE TABLE t (id int);\nDROP SCHEMA auth CASCADE;", ValidateOptions{})
		assert.False(t, v.Valid())
		require.Len(t, v.Errors, 1)
		assert.Contains(t, v.Errors[0], "statement 2")
		assert.Equal(t, Critical, v.DangerLevel)
	})

	t.Run("destructive warnings", func(t *testing.T) {
		v := ValidateSQL(`DROP TABLE old_logs;
ALTER TABLE users DROP COLUMN legacy;
DELETE FROM sessions;
UPDATE users SET active = true WHERE id = 1;`, ValidateOptions{})
		assert.True(t, v.Valid(), v.Errors)
		assert.Len(t, v.Warnings, 3)
		assert.Equal(t, Warning, v.DangerLevel)
		assert.Equal(t, 3, v.DestructiveOps)
		assert.Equal(t, []string{"old_logs", "users", "sessions"}, v.AffectedTables)
	})

	t.Run("syntax error is advisory and localized", func(t *testing.T) {
		v := ValidateSQL("CREATE TABLE a (id int);\nCREATE TABLE t (id int;", ValidateOptions{})
		assert.True(t, v.Valid(), v.Errors)
		require.Len(t, v.SyntaxErrors, 1)
		assert.Equal(t, 2, v.SyntaxErrors[0].StatementIndex)
		assert.Contains(t, v.SyntaxErrors[0].Preview, "CREATE TABLE t")
		require.Len(t, v.Warnings, 1)
		assert.Contains(t, v.Warnings[0], "statement 2: syntax error")

		v = ValidateSQL("CREATE TABLE t (id int;", ValidateOptions{SkipSyntax: true})
		assert.True(t, v.Valid())
		assert.Empty(t, v.SyntaxErrors)
	})
}

func TestCheckCritical(t *testing.T) {
	assert.Empty(t, CheckCritical("CREATE TABLE t (id int);"))
	msgs := CheckCritical("SELECT 1; ALTER DATABASE postgres SET timezone = 'UTC';")
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "statement 2")
}

func TestCheckCriticalObjectLists(t *testing.T) {
	tests := []struct {
		sql      string
		critical bool
	}{
		{"DROP SCHEMA public, auth CASCADE;", true},
		{`DROP SCHEMA IF EXISTS app , "storage";`, true},
		{"DROP SCHEMA app, authors;", false},
		{"DROP TABLE public.a, auth.users;", true},
		{"DROP TABLE IF EXISTS a, b, vault.secrets CASCADE;", true},
		{"DROP TABLE public.a, public.auth_log;", false},
		{"ALTER TABLE ONLY auth . users ADD COLUMN x int;", true},
	}

	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			msgs := CheckCritical(tt.sql)
			if tt.critical {
				assert.NotEmpty(t, msgs)
				assert.Equal(t, Critical, Classify(tt.sql, 0).DangerLevel)
			} else {
				assert.Empty(t, msgs)
			}
		})
	}
}
