package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockplane/schemasync/internal/sqlsplit"
)

func TestNormalizeCompactACL(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		expected string
	}{
		{
			name:     "single grantee on tables",
			sql:      "GRANT r=arwdDxt/postgres ON TABLES TO postgres;",
			expected: "GRANT SELECT, INSERT, UPDATE, DELETE, TRUNCATE, REFERENCES, TRIGGER ON TABLES TO r;",
		},
		{
			name:     "missing grantee becomes PUBLIC",
			sql:      "GRANT =X/postgres ON FUNCTIONS TO postgres;",
			expected: "GRANT EXECUTE ON FUNCTIONS TO PUBLIC;",
		},
		{
			name:     "grant option markers are ignored",
			sql:      "GRANT anon=r*w*/postgres ON SEQUENCES TO anon;",
			expected: "GRANT SELECT, UPDATE ON SEQUENCES TO anon;",
		},
		{
			name:     "grantees sharing privileges are merged",
			sql:      "GRANT anon=rU/postgres,authenticated=rU/postgres ON SEQUENCES TO anon;",
			expected: "GRANT SELECT, USAGE ON SEQUENCES TO anon, authenticated;",
		},
		{
			name: "default privileges prefix is repeated per privilege set",
			sql:  "ALTER DEFAULT PRIVILEGES FOR ROLE postgres IN SCHEMA public GRANT anon=r/postgres,service_role=arwd/postgres ON TABLES TO anon;",
			expected: "ALTER DEFAULT PRIVILEGES FOR ROLE postgres IN SCHEMA public GRANT SELECT ON TABLES TO anon;\n" +
				"ALTER DEFAULT PRIVILEGES FOR ROLE postgres IN SCHEMA public GRANT SELECT, INSERT, UPDATE, DELETE ON TABLES TO service_role;",
		},
		{
			name:     "types use usage",
			sql:      "GRANT =U/postgres ON TYPES TO postgres ;",
			expected: "GRANT USAGE ON TYPES TO PUBLIC ;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Normalize(tt.sql)
			assert.Equal(t, tt.expected, result.SQL)
			assert.True(t, result.Changed())
			assert.Len(t, result.Fixes, 1)
		})
	}
}

func TestNormalizeDollarQuotes(t *testing.T) {
	sql := "CREATE FUNCTION f() RETURNS int AS $\nSELECT 1\n$;"
	result := Normalize(sql)

	assert.Equal(t, "CREATE FUNCTION f() RETURNS int AS $$\nSELECT 1\n$$;", result.SQL)
	assert.Len(t, result.Fixes, 2)
	assert.Len(t, sqlsplit.Split(result.SQL), 1)
}

func TestNormalizeLeavesValidSQLAlone(t *testing.T) {
	inputs := []string{
		"GRANT SELECT ON TABLE public.users TO anon;",
		"ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT SELECT ON TABLES TO anon;",
		"CREATE FUNCTION f() RETURNS int AS $$ SELECT 1 $$ LANGUAGE sql;",
		"CREATE FUNCTION g() RETURNS int AS $body$ SELECT $1 $body$ LANGUAGE sql;",
		"PREPARE p AS SELECT $1;",
		"INSERT INTO prices VALUES ('5 $');",
		"INSERT INTO notes (body) VALUES ('costs $;'); INSERT INTO notes (body) VALUES ('x AS $ y');",
		`COMMENT ON TABLE notes IS 'paid AS $ only';`,
		"CREATE FUNCTION h() RETURNS text AS $$ SELECT 'a $;' $$ LANGUAGE sql;",
		"SELECT 1; -- priced AS $ \n",
	}

	for _, sql := range inputs {
		result := Normalize(sql)
		assert.Equal(t, sql, result.SQL)
		assert.False(t, result.Changed(), "unexpected fixes for %q: %v", sql, result.Fixes)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	sql := `CREATE TABLE a (id int);
GRANT r=arwdDxt/postgres ON TABLES TO postgres;
ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT anon=r/postgres,=X/postgres ON FUNCTIONS TO anon;
CREATE FUNCTION f() RETURNS int AS $
SELECT 1
$;
INSERT INTO a VALUES (1);`

	first := Normalize(sql)
	require.True(t, first.Changed())

	second := Normalize(first.SQL)
	assert.False(t, second.Changed())
	assert.Equal(t, first.SQL, second.SQL)
}

func TestNormalizePreservesStatementCount(t *testing.T) {
	sql := "CREATE TABLE a (id int); GRANT r=arwdDxt/postgres ON TABLES TO postgres; INSERT INTO a VALUES (1);"
	result := Normalize(sql)

	assert.Len(t, sqlsplit.Split(result.SQL), len(sqlsplit.Split(sql)))
	assert.Contains(t, result.SQL, "CREATE TABLE a (id int); ")
	assert.Contains(t, result.SQL, " INSERT INTO a VALUES (1);")
}

func TestNormalizeDollarQuotesSkipsLiterals(t *testing.T) {
	sql := "INSERT INTO notes VALUES ('AS $ x $;');\nCREATE FUNCTION f() RETURNS int AS $\nSELECT 1\n$;"
	result := Normalize(sql)

	assert.Equal(t, "INSERT INTO notes VALUES ('AS $ x $;');\nCREATE FUNCTION f() RETURNS int AS $$\nSELECT 1\n$$;", result.SQL)
	assert.Len(t, result.Fixes, 2)
}
