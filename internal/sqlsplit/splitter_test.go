package sqlsplit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExactSplit(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		expected []string
	}{
		{
			name:     "semicolon inside string literal",
			sql:      `INSERT INTO t VALUES ('a;b');`,
			expected: []string{`INSERT INTO t VALUES ('a;b')`},
		},
		{
			name:     "doubled quote escape",
			sql:      `INSERT INTO t VALUES ('it''s; fine'); SELECT 1;`,
			expected: []string{`INSERT INTO t VALUES ('it''s; fine')`, `SELECT 1`},
		},
		{
			name:     "backslash escape in E string",
			sql:      `INSERT INTO t VALUES (E'a\';b'); SELECT 2;`,
			expected: []string{`INSERT INTO t VALUES (E'a\';b')`, `SELECT 2`},
		},
		{
			name:     "semicolon inside quoted identifier",
			sql:      `CREATE TABLE "a;b" (id int); SELECT 1`,
			expected: []string{`CREATE TABLE "a;b" (id int)`, `SELECT 1`},
		},
		{
			name: "function body with embedded semicolons",
			sql: `CREATE FUNCTION f() RETURNS trigger AS $$
BEGIN
  NEW.updated_at := now();
  RETURN NEW;
END;
$$ LANGUAGE plpgsql;
SELECT 1;`,
			expected: []string{
				"CREATE FUNCTION f() RETURNS trigger AS $$\nBEGIN\n  NEW.updated_at := now();\n  RETURN NEW;\nEND;\n$$ LANGUAGE plpgsql",
				"SELECT 1",
			},
		},
		{
			name:     "different tag inside open body is literal",
			sql:      `CREATE FUNCTION g() RETURNS text AS $body$ SELECT $$x;y$$ $body$ LANGUAGE sql; SELECT 3;`,
			expected: []string{`CREATE FUNCTION g() RETURNS text AS $body$ SELECT $$x;y$$ $body$ LANGUAGE sql`, `SELECT 3`},
		},
		{
			name:     "positional parameter is not a tag",
			sql:      `PREPARE p AS SELECT $1; SELECT 4;`,
			expected: []string{`PREPARE p AS SELECT $1`, `SELECT 4`},
		},
		{
			name:     "dollar inside identifier is not a tag",
			sql:      `SELECT a$b$ FROM t; SELECT 5;`,
			expected: []string{`SELECT a$b$ FROM t`, `SELECT 5`},
		},
		{
			name:     "trailing statement without terminator is flushed",
			sql:      "SELECT 1;\nSELECT 2",
			expected: []string{"SELECT 1", "SELECT 2"},
		},
		{
			name:     "empty segments are dropped",
			sql:      ";;  ;\n",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Texts(Exact{}.Split(tt.sql))
			if tt.expected == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestExactSplitReconstructsInput(t *testing.T) {
	sql := `CREATE TABLE a (id int);INSERT INTO a VALUES (1);CREATE FUNCTION f() RETURNS int AS $$ SELECT 1; $$ LANGUAGE sql;`
	statements := Exact{}.Split(sql)
	require.Len(t, statements, 3)

	assert.Equal(t, sql, strings.Join(Texts(statements), ";")+";")
	for _, s := range statements {
		assert.Equal(t, ModeExact, s.Mode)
		assert.Equal(t, s.Text, strings.TrimSpace(sql[s.Start:s.End]))
	}
}

func TestSplitStripsComments(t *testing.T) {
	sql := `-- header; with semicolon
CREATE TABLE a (id int); /* block; comment */
/* outer /* nested; */ still comment; */
INSERT INTO a VALUES ('-- not a comment');`

	statements := Split(sql)
	require.Len(t, statements, 2)
	assert.Equal(t, "CREATE TABLE a (id int)", statements[0].Text)
	assert.Equal(t, 2, statements[0].Line)
	assert.Equal(t, "INSERT INTO a VALUES ('-- not a comment')", statements[1].Text)
	assert.Equal(t, 4, statements[1].Line)
}

func TestStripCommentsKeepsDollarBodies(t *testing.T) {
	sql := "CREATE FUNCTION f() RETURNS int AS $fn$ -- kept\nSELECT 1 /* kept */ $fn$ LANGUAGE sql; -- dropped"
	stripped := StripComments(sql)

	assert.Contains(t, stripped, "-- kept")
	assert.Contains(t, stripped, "/* kept */")
	assert.NotContains(t, stripped, "dropped")
}

func TestIndexAt(t *testing.T) {
	sql := "SELECT 1; SELECT 2; SELECT 3;"
	statements := Exact{}.Split(sql)
	require.Len(t, statements, 3)

	assert.Equal(t, 0, IndexAt(statements, 0))
	assert.Equal(t, 1, IndexAt(statements, strings.Index(sql, "SELECT 2")))
	assert.Equal(t, 2, IndexAt(statements, len(sql)-2))
	assert.Equal(t, -1, IndexAt(statements, len(sql)+10))
}

func TestAdvisorySplit(t *testing.T) {
	sql := `CREATE TABLE a (id int);
CREATE OR REPLACE FUNCTION touch() RETURNS trigger AS $$
BEGIN
  NEW.updated_at = now();
  RETURN NEW;
END;
$$ LANGUAGE plpgsql;
INSERT INTO a VALUES (1);`

	var splitter Splitter = Advisory{}
	statements := splitter.Split(sql)
	require.Len(t, statements, 3)
	assert.Equal(t, ModeAdvisory, splitter.Mode())
	assert.Equal(t, "CREATE TABLE a (id int)", statements[0].Text)
	assert.True(t, strings.HasPrefix(statements[1].Text, "CREATE OR REPLACE FUNCTION touch()"))
	assert.True(t, strings.HasSuffix(statements[1].Text, "$$ LANGUAGE plpgsql"))
	assert.Equal(t, "INSERT INTO a VALUES (1)", statements[2].Text)
}

func TestAdvisoryDiffersFromExact(t *testing.T) {
	// Two statements on one line: the line heuristic sees one.
	sql := "SELECT 1; SELECT 2;\n"

	assert.Len(t, Exact{}.Split(sql), 2)
	assert.Len(t, Advisory{}.Split(sql), 1)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "CREATE TABLE t (id int)", Preview("CREATE TABLE t (\n\tid int\n)", PreviewLength))
	assert.Equal(t, "abc...", Preview("abcdef", 3))
	assert.Equal(t, "ééé...", Preview("éééé", 3))
	assert.Equal(t, "short", Preview("short", 0))
}

func TestOpaqueSpans(t *testing.T) {
	sql := `SELECT 'a$;' , "q$" /* c */ , $t$ body $t$ -- tail
, $1;`
	spans := OpaqueSpans(sql)
	require.Len(t, spans, 5)

	var got []string
	for _, s := range spans {
		got = append(got, sql[s.Start:s.End])
	}
	assert.Equal(t, []string{`'a$;'`, `"q$"`, `/* c */`, `$t$ body $t$`, "-- tail\n"}, got)

	assert.True(t, InSpans(spans, strings.Index(sql, "$;")))
	assert.False(t, InSpans(spans, strings.LastIndex(sql, "$1")))
}

func TestOpaqueSpansUnterminated(t *testing.T) {
	sql := "SELECT 'open"
	spans := OpaqueSpans(sql)
	require.Len(t, spans, 1)
	assert.Equal(t, Span{Start: 7, End: len(sql)}, spans[0])
}
