package classify

import "regexp"

// ProtectedSchemas are platform-owned schemas a migration must never drop or alter.
var ProtectedSchemas = []string{"auth", "storage", "realtime", "supabase_functions", "vault"}

const (
	protectedSchemaAlt = `"?(?:auth|storage|realtime|supabase_functions|vault)"?`
	// leading entries of a comma-separated object list
	precedingNames = `(?:` + identPart + `(?:\s*\.\s*` + identPart + `)?\s*,\s*)*`
)

// Rule is one entry of the danger table. A statement matching Pattern is
// raised to at least Severity.
type Rule struct {
	Code     string
	Pattern  *regexp.Regexp
	Severity DangerLevel
	Message  string
}

// Rules is the danger table, checked against raw statement text after type
// classification. Rules only ever raise a level.
var Rules = []Rule{
	{
		Code:     "drop_database",
		Pattern:  regexp.MustCompile(`(?i)\bDROP\s+DATABASE\b`),
		Severity: Critical,
		Message:  "DROP DATABASE is not allowed in a migration",
	},
	{
		Code:     "alter_database",
		Pattern:  regexp.MustCompile(`(?i)\bALTER\s+DATABASE\b`),
		Severity: Critical,
		Message:  "ALTER DATABASE is not allowed in a migration",
	},
	{
		Code:     "create_database",
		Pattern:  regexp.MustCompile(`(?i)\bCREATE\s+DATABASE\b`),
		Severity: Critical,
		Message:  "CREATE DATABASE is not allowed in a migration",
	},
	{
		Code:     "drop_protected_schema",
		Pattern:  regexp.MustCompile(`(?i)\bDROP\s+SCHEMA\s+(?:IF\s+EXISTS\s+)?` + precedingNames + protectedSchemaAlt + `(?:\s|;|,|$)`),
		Severity: Critical,
		Message:  "dropping a platform-managed schema (auth, storage, realtime, supabase_functions, vault) is not allowed",
	},
	{
		Code:     "alter_protected_table",
		Pattern:  regexp.MustCompile(`(?i)\b(?:ALTER|DROP)\s+TABLE\s+(?:IF\s+EXISTS\s+)?(?:ONLY\s+)?` + precedingNames + protectedSchemaAlt + `\s*\.`),
		Severity: Critical,
		Message:  "altering or dropping tables in a platform-managed schema is not allowed",
	},
	{
		Code:     "drop_schema",
		Pattern:  regexp.MustCompile(`(?i)\bDROP\s+SCHEMA\b`),
		Severity: Warning,
		Message:  "DROP SCHEMA removes every object in the schema",
	},
	{
		Code:     "drop_column",
		Pattern:  regexp.MustCompile(`(?is)\bALTER\s+TABLE\b.*\bDROP\s+COLUMN\b`),
		Severity: Warning,
		Message:  "DROP COLUMN permanently deletes the column's data",
	},
}

// CriticalRules returns the rules that reject a script outright.
func CriticalRules() []Rule {
	var out []Rule
	for _, r := range Rules {
		if r.Severity == Critical {
			out = append(out, r)
		}
	}
	return out
}

// Match returns every rule matching sql, in table order.
func Match(sql string) []Rule {
	var out []Rule
	for _, r := range Rules {
		if r.Pattern.MatchString(sql) {
			out = append(out, r)
		}
	}
	return out
}

const identPart = `(?:"[^"]+"|[A-Za-z_][A-Za-z0-9_$]*)`

// named wraps an optionally schema-qualified name in a named capture group.
func named(group string) string {
	return `(?P<` + group + `>` + identPart + `(?:\s*\.\s*` + identPart + `)?)`
}

// typePattern captures the affected table in group "table" and the created or
// dropped object (function, trigger, index) in group "object".
type typePattern struct {
	Type    StatementType
	Pattern *regexp.Regexp
}

// typePatterns are tried in order; the first match wins.
var typePatterns = []typePattern{
	{CreateTable, regexp.MustCompile(`(?is)^\s*CREATE\s+(?:(?:GLOBAL|LOCAL)\s+)?(?:(?:TEMP|TEMPORARY|UNLOGGED)\s+)?TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?` + named("table"))},
	{AlterTable, regexp.MustCompile(`(?is)^\s*ALTER\s+TABLE\s+(?:IF\s+EXISTS\s+)?(?:ONLY\s+)?` + named("table"))},
	{DropTable, regexp.MustCompile(`(?is)^\s*DROP\s+TABLE\s+(?:IF\s+EXISTS\s+)?` + named("table"))},
	{CreateFunction, regexp.MustCompile(`(?is)^\s*CREATE\s+(?:OR\s+REPLACE\s+)?FUNCTION\s+` + named("object"))},
	{DropFunction, regexp.MustCompile(`(?is)^\s*DROP\s+FUNCTION\s+(?:IF\s+EXISTS\s+)?` + named("object"))},
	{CreateTrigger, regexp.MustCompile(`(?is)^\s*CREATE\s+(?:OR\s+REPLACE\s+)?(?:CONSTRAINT\s+)?TRIGGER\s+` + named("object") + `\s.*?\bON\s+` + named("table"))},
	{DropTrigger, regexp.MustCompile(`(?is)^\s*DROP\s+TRIGGER\s+(?:IF\s+EXISTS\s+)?` + named("object") + `\s+ON\s+` + named("table"))},
	{CreateIndex, regexp.MustCompile(`(?is)^\s*CREATE\s+(?:UNIQUE\s+)?INDEX\s+(?:CONCURRENTLY\s+)?(?:IF\s+NOT\s+EXISTS\s+)?(?:` + named("object") + `\s+)?ON\s+(?:ONLY\s+)?` + named("table"))},
	{DropIndex, regexp.MustCompile(`(?is)^\s*DROP\s+INDEX\s+(?:CONCURRENTLY\s+)?(?:IF\s+EXISTS\s+)?` + named("object"))},
	{Insert, regexp.MustCompile(`(?is)^\s*INSERT\s+INTO\s+` + named("table"))},
	{Update, regexp.MustCompile(`(?is)^\s*UPDATE\s+(?:ONLY\s+)?` + named("table"))},
	{Delete, regexp.MustCompile(`(?is)^\s*DELETE\s+FROM\s+(?:ONLY\s+)?` + named("table"))},
	{Truncate, regexp.MustCompile(`(?is)^\s*TRUNCATE\s+(?:TABLE\s+)?(?:ONLY\s+)?` + named("table"))},
}

var dropColumnPattern = regexp.MustCompile(`(?is)\bDROP\s+COLUMN\b`)
