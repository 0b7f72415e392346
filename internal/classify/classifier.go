package classify

import (
	"strings"

	"github.com/lockplane/schemasync/internal/sqlsplit"
)

// Classify assigns a type and danger level to one statement.
//
// The type comes from the first matching entry in typePatterns. The default
// level follows the type; the danger table is then applied to the raw text
// and may only raise that level.
func Classify(raw string, position int) SQLStatement {
	stmt := SQLStatement{
		Type:        Unknown,
		RawContent:  raw,
		Position:    position,
		DangerLevel: Safe,
	}

	for _, tp := range typePatterns {
		m := tp.Pattern.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		stmt.Type = tp.Type
		if i := tp.Pattern.SubexpIndex("table"); i > 0 && m[i] != "" {
			stmt.SchemaName, stmt.TableName = SplitQualified(m[i])
		}
		if i := tp.Pattern.SubexpIndex("object"); i > 0 && m[i] != "" {
			schemaName, object := SplitQualified(m[i])
			stmt.ObjectName = object
			if stmt.SchemaName == "" {
				stmt.SchemaName = schemaName
			}
		}
		break
	}

	stmt.DangerLevel = defaultDanger(stmt)
	for _, rule := range Match(raw) {
		stmt.DangerLevel = Max(stmt.DangerLevel, rule.Severity)
	}

	return stmt
}

func defaultDanger(stmt SQLStatement) DangerLevel {
	switch stmt.Type {
	case Truncate:
		return Critical
	case Update, Delete, DropTable:
		return Warning
	case AlterTable:
		if dropColumnPattern.MatchString(stmt.RawContent) {
			return Warning
		}
	}
	return Safe
}

// ClassifyAll classifies statements keeping their order; Position is the index.
func ClassifyAll(statements []string) []SQLStatement {
	out := make([]SQLStatement, len(statements))
	for i, s := range statements {
		out[i] = Classify(s, i)
	}
	return out
}

// Parse strips comments, splits with the given splitter and classifies the
// result. Pass sqlsplit.Exact{} for anything that will be executed.
func Parse(sql string, splitter sqlsplit.Splitter) []SQLStatement {
	return ClassifyAll(sqlsplit.Texts(splitter.Split(sqlsplit.StripComments(sql))))
}

// SplitQualified splits schema.name and removes identifier quotes. Unquoted
// identifiers are folded to lower case the way Postgres folds them.
func SplitQualified(name string) (schemaName, object string) {
	parts := splitDotted(name)
	for i, p := range parts {
		parts[i] = unquoteIdent(p)
	}
	if len(parts) == 1 {
		return "", parts[0]
	}
	return parts[0], parts[1]
}

func splitDotted(name string) []string {
	var (
		parts   []string
		current strings.Builder
		quoted  bool
	)
	for _, r := range name {
		switch {
		case r == '"':
			quoted = !quoted
			current.WriteRune(r)
		case r == '.' && !quoted:
			parts = append(parts, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	return append(parts, strings.TrimSpace(current.String()))
}

func unquoteIdent(ident string) string {
	if len(ident) >= 2 && strings.HasPrefix(ident, `"`) && strings.HasSuffix(ident, `"`) {
		return strings.ReplaceAll(ident[1:len(ident)-1], `""`, `"`)
	}
	return strings.ToLower(ident)
}
