package locks

import (
	"strings"

	"github.com/lockplane/schemasync/internal/sqlsplit"
)

// noTableLock are statement prefixes that do not lock an existing user table.
var noTableLock = []string{
	"CREATE TABLE",
	"CREATE SCHEMA",
	"CREATE TYPE",
	"CREATE DOMAIN",
	"CREATE EXTENSION",
	"CREATE SEQUENCE",
	"CREATE FUNCTION",
	"CREATE OR REPLACE FUNCTION",
	"CREATE PROCEDURE",
	"CREATE OR REPLACE PROCEDURE",
	"CREATE VIEW",
	"CREATE OR REPLACE VIEW",
	"GRANT",
	"REVOKE",
	"COMMENT",
	"SET",
	"SELECT",
	"ALTER SEQUENCE",
	"ALTER DEFAULT PRIVILEGES",
	"ALTER FUNCTION",
	"ALTER TYPE",
	"ALTER SCHEMA",
}

// Detect returns the table lock mode a statement acquires. Unrecognized
// statements are assumed to take ACCESS EXCLUSIVE.
func Detect(statement string) LockMode {
	sqlUpper := strings.ToUpper(strings.Join(strings.Fields(statement), " "))
	if sqlUpper == "" {
		return AccessShare
	}

	switch {
	case strings.HasPrefix(sqlUpper, "CREATE INDEX"),
		strings.HasPrefix(sqlUpper, "CREATE UNIQUE INDEX"):
		if strings.Contains(sqlUpper, "CONCURRENTLY") {
			return ShareUpdateExclusive
		}
		return Share

	case strings.HasPrefix(sqlUpper, "ALTER TABLE"):
		if strings.Contains(sqlUpper, "VALIDATE CONSTRAINT") {
			return ShareUpdateExclusive
		}
		return AccessExclusive

	case strings.HasPrefix(sqlUpper, "CREATE TRIGGER"),
		strings.HasPrefix(sqlUpper, "CREATE OR REPLACE TRIGGER"),
		strings.HasPrefix(sqlUpper, "CREATE CONSTRAINT TRIGGER"):
		return ShareRowExclusive

	case strings.HasPrefix(sqlUpper, "INSERT"),
		strings.HasPrefix(sqlUpper, "UPDATE"),
		strings.HasPrefix(sqlUpper, "DELETE"),
		strings.HasPrefix(sqlUpper, "COPY"):
		return RowExclusive

	case strings.HasPrefix(sqlUpper, "SELECT") && strings.Contains(sqlUpper, " FOR UPDATE"):
		return RowShare
	}

	for _, prefix := range noTableLock {
		if strings.HasPrefix(sqlUpper, prefix) {
			return AccessShare
		}
	}
	return AccessExclusive
}

// Analyze returns the lock impact of every statement in order.
func Analyze(statements []string) []Impact {
	impacts := make([]Impact, 0, len(statements))
	for i, statement := range statements {
		impact := newImpact(i, sqlsplit.Preview(statement, 120), Detect(statement))
		impact.Explanation = explain(statement, impact.Mode)
		impacts = append(impacts, impact)
	}
	return impacts
}

// Disruptive filters impacts down to those that block writes or reads.
func Disruptive(impacts []Impact) []Impact {
	var out []Impact
	for _, impact := range impacts {
		if impact.Disruptive() {
			out = append(out, impact)
		}
	}
	return out
}

func explain(statement string, mode LockMode) string {
	sqlUpper := strings.ToUpper(strings.Join(strings.Fields(statement), " "))

	switch mode {
	case AccessExclusive:
		switch {
		case strings.HasPrefix(sqlUpper, "ALTER TABLE"):
			if strings.Contains(sqlUpper, "ADD COLUMN") && strings.Contains(sqlUpper, "DEFAULT") {
				return "ALTER TABLE ADD COLUMN with DEFAULT may rewrite the entire table"
			}
			if strings.Contains(sqlUpper, "ALTER COLUMN") && strings.Contains(sqlUpper, " TYPE ") {
				return "Changing column type may rewrite the entire table"
			}
			if strings.Contains(sqlUpper, "ADD CONSTRAINT") && !strings.Contains(sqlUpper, "NOT VALID") {
				return "ADD CONSTRAINT scans all existing rows to validate the constraint"
			}
			return "ALTER TABLE requires exclusive access to the table"
		case strings.HasPrefix(sqlUpper, "DROP"):
			return "DROP requires exclusive access to the object"
		case strings.HasPrefix(sqlUpper, "TRUNCATE"):
			return "TRUNCATE requires exclusive access to delete all rows"
		case strings.HasPrefix(sqlUpper, "CREATE POLICY"):
			return "CREATE POLICY requires exclusive access to the table"
		}
		return "Unrecognized statement; assuming exclusive table access"
	case ShareRowExclusive:
		return "CREATE TRIGGER blocks writes to the table"
	case Share:
		return "CREATE INDEX blocks writes during the index build"
	case ShareUpdateExclusive:
		return "Allows concurrent reads and writes"
	case RowExclusive:
		return "Normal DML operation"
	case RowShare:
		return "Row-level locks on selected rows"
	default:
		return "No table lock"
	}
}
