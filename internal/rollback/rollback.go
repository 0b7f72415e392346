// Package rollback synthesizes a best-effort reverse script for a migration.
//
// Only operations with an unambiguous inverse are reversed. Anything that
// destroys data or that is not recognized is reported as irreversible with a
// note; no undo is invented for it. A plan whose steps are not all reversible
// is partial and says so through CanRollback.
package rollback

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lockplane/schemasync/internal/classify"
	"github.com/lockplane/schemasync/internal/sqlsplit"
)

// Step pairs one statement with its inverse.
type Step struct {
	Position          int    `json:"position"`
	OriginalStatement string `json:"original_statement"`
	RollbackSQL       string `json:"rollback_sql"`
	CanRollback       bool   `json:"can_rollback"`
	Notes             string `json:"notes,omitempty"`
}

// Plan has exactly one step per input statement, in input order.
type Plan struct {
	Steps       []Step `json:"steps"`
	CanRollback bool   `json:"can_rollback"`
}

const identPattern = `(?:"(?:[^"]|"")+"|[A-Za-z_][A-Za-z0-9_$]*)`

var (
	qualifiedPattern = identPattern + `(?:\s*\.\s*` + identPattern + `)?`

	createPolicy  = regexp.MustCompile(`(?is)\bCREATE\s+POLICY\s+(` + identPattern + `)\s+ON\s+(` + qualifiedPattern + `)`)
	alterHead     = regexp.MustCompile(`(?is)^\s*ALTER\s+TABLE\s+(?:IF\s+EXISTS\s+)?(?:ONLY\s+)?` + qualifiedPattern + `\s*\*?`)
	addColumn     = regexp.MustCompile(`(?is)^ADD\s+(?:COLUMN\s+)?(?:IF\s+NOT\s+EXISTS\s+)?(` + identPattern + `)`)
	addConstraint = regexp.MustCompile(`(?is)^ADD\s+CONSTRAINT\s+(` + identPattern + `)`)
	enableRLS     = regexp.MustCompile(`(?is)^ENABLE\s+ROW\s+LEVEL\s+SECURITY$`)
	dropColumn    = regexp.MustCompile(`(?is)^DROP\s+(?:COLUMN\b|` + identPattern + `\s*(?:CASCADE|RESTRICT)?$)`)
	functionArgs  = regexp.MustCompile(`(?is)^\s*CREATE\s+(?:OR\s+REPLACE\s+)?FUNCTION\s+` + qualifiedPattern + `\s*\(`)
	simpleIdent   = regexp.MustCompile(`^[a-z_][a-z0-9_$]*$`)
)

// keywords that may follow ADD without naming a column
var addKeywords = map[string]bool{
	"constraint": true, "primary": true, "unique": true, "foreign": true,
	"check": true, "exclude": true, "column": true, "generated": true,
}

// Generate computes the rollback for every statement.
func Generate(statements []classify.SQLStatement) Plan {
	plan := Plan{Steps: make([]Step, 0, len(statements)), CanRollback: true}
	for _, s := range statements {
		step := reverse(s)
		plan.Steps = append(plan.Steps, step)
		plan.CanRollback = plan.CanRollback && step.CanRollback
	}
	return plan
}

// ForExecuted computes the rollback of only the statements at the given
// positions, for runs where not every statement took effect.
func ForExecuted(statements []classify.SQLStatement, positions []int) Plan {
	executed := make(map[int]bool, len(positions))
	for _, p := range positions {
		executed[p] = true
	}
	var subset []classify.SQLStatement
	for _, s := range statements {
		if executed[s.Position] {
			subset = append(subset, s)
		}
	}
	return Generate(subset)
}

// Script returns the reversible steps in reverse order, separated by blank
// lines. Irreversible steps are left out; check CanRollback before presenting
// the script as a full undo.
func (p Plan) Script() string {
	var parts []string
	for i := len(p.Steps) - 1; i >= 0; i-- {
		if p.Steps[i].CanRollback {
			parts = append(parts, p.Steps[i].RollbackSQL)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Irreversible returns the steps that could not be reversed.
func (p Plan) Irreversible() []Step {
	var out []Step
	for _, s := range p.Steps {
		if !s.CanRollback {
			out = append(out, s)
		}
	}
	return out
}

func reverse(s classify.SQLStatement) Step {
	step := Step{Position: s.Position, OriginalStatement: s.RawContent}

	if m := createPolicy.FindStringSubmatch(s.RawContent); m != nil {
		return reversible(step, fmt.Sprintf("DROP POLICY IF EXISTS %s ON %s;", m[1], normalizeSpace(m[2])))
	}

	table := qualified(s.SchemaName, s.TableName)

	switch s.Type {
	case classify.CreateTable:
		return reversible(step, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE;", table))

	case classify.AlterTable:
		return reverseAlter(step, s, table)

	case classify.CreateIndex:
		if s.ObjectName == "" {
			return irreversible(step, "index has no name; it cannot be dropped by name")
		}
		return reversible(step, fmt.Sprintf("DROP INDEX IF EXISTS %s;", qualified(s.SchemaName, s.ObjectName)))

	case classify.CreateFunction:
		name := qualified(s.SchemaName, s.ObjectName)
		if args, ok := signature(s.RawContent); ok {
			name += "(" + args + ")"
		}
		return reversible(step, fmt.Sprintf("DROP FUNCTION IF EXISTS %s CASCADE;", name))

	case classify.CreateTrigger:
		return reversible(step, fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s;", quoteIdent(s.ObjectName), table))

	case classify.DropTable:
		return irreversible(step, fmt.Sprintf("dropped table %s and its rows cannot be restored", s.QualifiedTable()))
	case classify.DropIndex:
		return irreversible(step, "dropped index definition is not known")
	case classify.DropFunction:
		return irreversible(step, "dropped function body is not known")
	case classify.DropTrigger:
		return irreversible(step, "dropped trigger definition is not known")
	case classify.Insert:
		return irreversible(step, "inserted rows cannot be identified for removal")
	case classify.Update:
		return irreversible(step, "previous values of updated rows are not known")
	case classify.Delete:
		return irreversible(step, "deleted rows cannot be restored")
	case classify.Truncate:
		return irreversible(step, "truncated rows cannot be restored")
	}

	return irreversible(step, "statement type has no known inverse")
}

// reverseAlter inverts an ALTER TABLE only when every action in it has a
// known inverse. One unrecognized action makes the whole statement
// irreversible.
func reverseAlter(step Step, s classify.SQLStatement, table string) Step {
	head := alterHead.FindStringIndex(s.RawContent)
	if head == nil {
		return irreversible(step, "ALTER TABLE form is not recognized")
	}

	var inverses []string
	for _, action := range splitActions(s.RawContent[head[1]:]) {
		switch {
		case dropColumn.MatchString(action):
			return irreversible(step, "dropped column data cannot be restored")
		case enableRLS.MatchString(action):
			inverses = append(inverses, "DISABLE ROW LEVEL SECURITY")
		default:
			if m := addConstraint.FindStringSubmatch(action); m != nil {
				inverses = append(inverses, "DROP CONSTRAINT IF EXISTS "+m[1])
				continue
			}
			m := addColumn.FindStringSubmatch(action)
			if m == nil || addKeywords[strings.ToLower(m[1])] {
				return irreversible(step, "ALTER TABLE action has no known inverse: "+firstWords(action, 3))
			}
			inverses = append(inverses, "DROP COLUMN IF EXISTS "+m[1])
		}
	}

	if len(inverses) == 0 {
		return irreversible(step, "ALTER TABLE action has no known inverse")
	}
	for i, j := 0, len(inverses)-1; i < j; i, j = i+1, j-1 {
		inverses[i], inverses[j] = inverses[j], inverses[i]
	}
	return reversible(step, fmt.Sprintf("ALTER TABLE %s %s;", table, strings.Join(inverses, ", ")))
}

// splitActions splits the action list of an ALTER TABLE on top-level commas.
// Commas nested in parentheses or brackets, or inside quotes, are kept.
func splitActions(body string) []string {
	body = strings.TrimSpace(body)
	body = strings.TrimSpace(strings.TrimSuffix(body, ";"))

	opaque := sqlsplit.OpaqueSpans(body)
	var actions []string
	depth, start := 0, 0
	for i := 0; i < len(body); i++ {
		if sqlsplit.InSpans(opaque, i) {
			continue
		}
		switch body[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				actions = append(actions, normalizeSpace(body[start:i]))
				start = i + 1
			}
		}
	}
	if last := normalizeSpace(body[start:]); last != "" {
		actions = append(actions, last)
	}
	return actions
}

func firstWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}

// signature returns the argument list of CREATE FUNCTION. Lists with default
// values are not valid in DROP FUNCTION and are skipped.
func signature(raw string) (string, bool) {
	loc := functionArgs.FindStringIndex(raw)
	if loc == nil {
		return "", false
	}
	depth := 1
	start := loc[1]
	for i := start; i < len(raw); i++ {
		switch raw[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				args := normalizeSpace(raw[start:i])
				upper := strings.ToUpper(args)
				if strings.Contains(upper, "DEFAULT") || strings.Contains(args, "=") {
					return "", false
				}
				return args, true
			}
		}
	}
	return "", false
}

func reversible(step Step, sql string) Step {
	step.RollbackSQL = sql
	step.CanRollback = true
	return step
}

func irreversible(step Step, note string) Step {
	step.RollbackSQL = "-- cannot roll back: " + note
	step.Notes = note
	return step
}

func qualified(schemaName, name string) string {
	if schemaName == "" {
		return quoteIdent(name)
	}
	return quoteIdent(schemaName) + "." + quoteIdent(name)
}

// reserved words commonly used as table or column names
var reserved = map[string]bool{
	"all": true, "and": true, "as": true, "asc": true, "case": true, "check": true,
	"column": true, "constraint": true, "default": true, "desc": true, "do": true,
	"else": true, "end": true, "false": true, "from": true, "grant": true, "group": true,
	"limit": true, "not": true, "null": true, "offset": true, "only": true, "or": true,
	"order": true, "primary": true, "references": true, "select": true, "table": true,
	"then": true, "to": true, "true": true, "union": true, "unique": true, "user": true,
	"using": true, "when": true, "where": true, "window": true, "with": true,
}

// quoteIdent quotes identifiers that Postgres would otherwise fold or reject.
func quoteIdent(name string) string {
	if simpleIdent.MatchString(name) && !reserved[name] {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
