package sqlsplit

import (
	"regexp"
	"strings"
)

var (
	routineStart = regexp.MustCompile(`(?i)^\s*CREATE\s+(?:OR\s+REPLACE\s+)?(?:FUNCTION|PROCEDURE)\b`)
	routineEnd   = regexp.MustCompile(`(?i)(?:\$[A-Za-z_0-9]*\$[^;]*;|\bEND\s*;)\s*$`)
)

// Advisory is a line-oriented splitter for previews. A statement ends on a line
// whose trimmed text ends in `;`. Inside a CREATE FUNCTION/PROCEDURE it ends only
// on a line that closes a dollar quote before `;` or reads `END;`.
//
// Semicolons inside multi-line string literals, or two statements on one line,
// produce boundaries that differ from Exact. Use it for display only.
type Advisory struct{}

func (Advisory) Mode() Mode { return ModeAdvisory }

func (Advisory) Split(sql string) []Statement {
	var (
		statements []Statement
		inRoutine  bool
		start      int
		offset     int
	)

	lines := strings.SplitAfter(sql, "\n")
	for _, line := range lines {
		lineEnd := offset + len(line)
		trimmed := strings.TrimSpace(line)

		if !inRoutine && routineStart.MatchString(line) && strings.TrimSpace(sql[start:offset]) == "" {
			inRoutine = true
		}

		done := false
		switch {
		case inRoutine:
			// The opening line of a one-line function carries both tags.
			if routineEnd.MatchString(trimmed) && closesBody(sql[start:lineEnd]) {
				done = true
				inRoutine = false
			}
		case strings.HasSuffix(trimmed, ";"):
			done = true
		}

		if done {
			end := offset + strings.LastIndex(line, ";")
			if s, ok := newStatement(sql, start, end, ModeAdvisory); ok {
				statements = append(statements, s)
			}
			start = lineEnd
		}
		offset = lineEnd
	}

	if s, ok := newStatement(sql, start, len(sql), ModeAdvisory); ok {
		statements = append(statements, s)
	}
	return statements
}

// closesBody reports whether the text so far has an even number of `$$`-style
// tags, i.e. any dollar-quoted body it opened has been closed again.
func closesBody(text string) bool {
	if strings.Contains(strings.ToUpper(text), "BEGIN ATOMIC") {
		return true
	}
	tags := 0
	for i := 0; i < len(text); i++ {
		if tag, ok := dollarTagAt(text, i); ok {
			tags++
			i += len(tag) - 1
		}
	}
	return tags%2 == 0
}
