package classify

import (
	"fmt"
	"regexp"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/lockplane/schemasync/internal/sqlsplit"
)

var whereClause = regexp.MustCompile(`(?is)\bWHERE\b`)

// SQLValidation is the script-level screening result.
type SQLValidation struct {
	Errors         []string      `json:"errors"`
	Warnings       []string      `json:"warnings"`
	DangerLevel    DangerLevel   `json:"danger_level"`
	AffectedTables []string      `json:"affected_tables"`
	DestructiveOps int           `json:"destructive_ops"`
	Statements     int           `json:"statements"`
	SyntaxErrors   []SyntaxError `json:"syntax_errors,omitempty"`
}

// SyntaxError is a statement the local parser rejected. It is advisory: the
// destination server has the final word and reports the failing statement
// itself.
type SyntaxError struct {
	StatementIndex int    `json:"statementIndex"` // 1-based
	Preview        string `json:"preview,omitempty"`
	Message        string `json:"message"`
}

// Valid reports whether no errors were found.
func (v SQLValidation) Valid() bool {
	return len(v.Errors) == 0
}

// ValidateOptions tunes ValidateSQL.
type ValidateOptions struct {
	// SkipSyntax disables the full PostgreSQL parse of the script.
	SkipSyntax bool
}

// ValidateSQL screens a script independently of Classify's per-statement
// levels: critical rules become errors, destructive operations and syntax
// errors become warnings. The batch level is the maximum statement level.
func ValidateSQL(sql string, opts ValidateOptions) SQLValidation {
	result := SQLValidation{DangerLevel: Safe}

	stripped := sqlsplit.StripComments(sql)
	if strings.TrimSpace(stripped) == "" {
		result.Errors = append(result.Errors, "SQL is empty")
		return result
	}

	statements := ClassifyAll(sqlsplit.Texts(sqlsplit.Exact{}.Split(stripped)))
	result.Statements = len(statements)

	seen := map[string]bool{}
	for _, s := range statements {
		n := s.Position + 1
		result.DangerLevel = Max(result.DangerLevel, s.DangerLevel)

		if table := s.QualifiedTable(); table != "" && !seen[table] {
			seen[table] = true
			result.AffectedTables = append(result.AffectedTables, table)
		}
		if s.IsDestructive() {
			result.DestructiveOps++
		}

		for _, rule := range Match(s.RawContent) {
			msg := fmt.Sprintf("statement %d: %s", n, rule.Message)
			if rule.Severity == Critical {
				result.Errors = append(result.Errors, msg)
			} else {
				result.Warnings = append(result.Warnings, msg)
			}
		}

		switch s.Type {
		case DropTable:
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("statement %d: DROP TABLE %s permanently deletes the table and its data", n, s.QualifiedTable()))
		case Truncate:
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("statement %d: TRUNCATE %s deletes every row", n, s.QualifiedTable()))
		case Delete:
			if !whereClause.MatchString(s.RawContent) {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("statement %d: DELETE without WHERE removes every row from %s", n, s.QualifiedTable()))
			}
		case Update:
			if !whereClause.MatchString(s.RawContent) {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("statement %d: UPDATE without WHERE rewrites every row of %s", n, s.QualifiedTable()))
			}
		}
	}

	if !opts.SkipSyntax {
		if _, err := pg_query.Parse(stripped); err != nil {
			result.SyntaxErrors = locateSyntaxErrors(statements, err)
			for _, se := range result.SyntaxErrors {
				msg := "syntax error: " + se.Message
				if se.StatementIndex > 0 {
					msg = fmt.Sprintf("statement %d: %s", se.StatementIndex, msg)
				}
				result.Warnings = append(result.Warnings, msg)
			}
		}
	}

	return result
}

// locateSyntaxErrors reparses statements one at a time to find which ones the
// script-level error came from. When none fails on its own the script error is
// returned unattributed.
func locateSyntaxErrors(statements []SQLStatement, scriptErr error) []SyntaxError {
	var out []SyntaxError
	for _, s := range statements {
		if _, err := pg_query.Parse(s.RawContent); err != nil {
			out = append(out, SyntaxError{
				StatementIndex: s.Position + 1,
				Preview:        sqlsplit.Preview(s.RawContent, 80),
				Message:        err.Error(),
			})
		}
	}
	if len(out) == 0 {
		out = append(out, SyntaxError{Message: scriptErr.Error()})
	}
	return out
}

// CheckCritical returns one message per critical rule hit. It is the part of
// validation that always runs, even when validation is skipped.
func CheckCritical(sql string) []string {
	var msgs []string
	for i, text := range sqlsplit.Texts(sqlsplit.Split(sql)) {
		for _, rule := range CriticalRules() {
			if rule.Pattern.MatchString(text) {
				msgs = append(msgs, fmt.Sprintf("statement %d: %s", i+1, rule.Message))
			}
		}
	}
	return msgs
}
