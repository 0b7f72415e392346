// Package sqlsplit turns a PostgreSQL script into discrete statements.
//
// Two splitters share the Splitter interface. Exact is a character-level state
// machine that understands string literals and dollar-quoted bodies; it is the
// only splitter whose boundaries may be used for execution. Advisory is a looser
// line-oriented heuristic kept for previews and classification screens. Its
// boundaries can disagree with Exact and callers must not assume otherwise.
package sqlsplit

import "strings"

// StripComments removes `--` line comments and `/* */` block comments that are
// outside string literals, quoted identifiers and dollar-quoted bodies.
// Newlines that terminated line comments are kept so line numbers stay stable.
func StripComments(sql string) string {
	var out strings.Builder
	out.Grow(len(sql))

	var (
		quote      byte   // active quote char, 0 when none
		escapes    bool   // backslash escapes are live (E'...' strings)
		delimiter  string // active dollar-quote tag, "" when none
		blockDepth int
	)

	for i := 0; i < len(sql); i++ {
		ch := sql[i]

		if blockDepth > 0 {
			// Postgres block comments nest.
			if ch == '/' && i+1 < len(sql) && sql[i+1] == '*' {
				blockDepth++
				i++
			} else if ch == '*' && i+1 < len(sql) && sql[i+1] == '/' {
				blockDepth--
				i++
				if blockDepth == 0 {
					out.WriteByte(' ')
				}
			} else if ch == '\n' {
				out.WriteByte('\n')
			}
			continue
		}

		if quote != 0 {
			out.WriteByte(ch)
			if escapes && ch == '\\' && i+1 < len(sql) {
				i++
				out.WriteByte(sql[i])
				continue
			}
			if ch == quote {
				quote = 0
			}
			continue
		}

		if delimiter != "" {
			if ch == '$' {
				if tag, ok := dollarTagAt(sql, i); ok && tag == delimiter {
					out.WriteString(tag)
					i += len(tag) - 1
					delimiter = ""
					continue
				}
			}
			out.WriteByte(ch)
			continue
		}

		switch {
		case ch == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			if i < len(sql) {
				out.WriteByte('\n')
			}
		case ch == '/' && i+1 < len(sql) && sql[i+1] == '*':
			blockDepth = 1
			i++
		case ch == '\'' || ch == '"':
			quote = ch
			escapes = ch == '\'' && isEscapePrefix(sql, i)
			out.WriteByte(ch)
		case ch == '$':
			if tag, ok := openingTagAt(sql, i); ok {
				delimiter = tag
				out.WriteString(tag)
				i += len(tag) - 1
				continue
			}
			out.WriteByte(ch)
		default:
			out.WriteByte(ch)
		}
	}

	return out.String()
}

// Span is a half-open byte range [Start, End) of a script.
type Span struct {
	Start, End int
}

// Contains reports whether offset falls inside the span.
func (s Span) Contains(offset int) bool {
	return offset >= s.Start && offset < s.End
}

// OpaqueSpans returns the ranges of sql that are not statement text: string
// literals, quoted identifiers, comments and well-formed dollar-quoted bodies.
// Each span covers its delimiters. An unterminated construct runs to the end.
func OpaqueSpans(sql string) []Span {
	var spans []Span
	for i := 0; i < len(sql); i++ {
		start := i
		ch := sql[i]
		switch {
		case ch == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
		case ch == '/' && i+1 < len(sql) && sql[i+1] == '*':
			depth := 1
			for i += 2; i < len(sql) && depth > 0; i++ {
				if sql[i] == '/' && i+1 < len(sql) && sql[i+1] == '*' {
					depth++
					i++
				} else if sql[i] == '*' && i+1 < len(sql) && sql[i+1] == '/' {
					depth--
					i++
				}
			}
			i--
		case ch == '\'' || ch == '"':
			escapes := ch == '\'' && isEscapePrefix(sql, i)
			for i++; i < len(sql) && sql[i] != ch; i++ {
				if escapes && sql[i] == '\\' {
					i++
				}
			}
		case ch == '$':
			tag, ok := openingTagAt(sql, i)
			if !ok {
				continue
			}
			end := strings.Index(sql[i+len(tag):], tag)
			if end < 0 {
				i = len(sql)
			} else {
				i += len(tag) + end + len(tag) - 1
			}
		default:
			continue
		}
		spans = append(spans, Span{Start: start, End: min(i+1, len(sql))})
	}
	return spans
}

// InSpans reports whether offset falls inside any of spans.
func InSpans(spans []Span, offset int) bool {
	for _, s := range spans {
		if s.Contains(offset) {
			return true
		}
	}
	return false
}

// dollarTagAt reports the dollar-quote tag ($$ or $ident$) starting at i.
// Positional parameters such as $1 are not tags.
func dollarTagAt(sql string, i int) (string, bool) {
	if i >= len(sql) || sql[i] != '$' {
		return "", false
	}
	j := i + 1
	for j < len(sql) {
		c := sql[j]
		if c == '$' {
			return sql[i : j+1], true
		}
		if isIdentStart(c) || (j > i+1 && isDigit(c)) {
			j++
			continue
		}
		return "", false
	}
	return "", false
}

// openingTagAt is dollarTagAt restricted to positions that can start a
// dollar quote; a `$` inside an identifier (foo$bar) never does.
func openingTagAt(sql string, i int) (string, bool) {
	if i > 0 && isIdentChar(sql[i-1]) {
		return "", false
	}
	return dollarTagAt(sql, i)
}

// isEscapePrefix reports whether the quote at i opens an E'...' string.
func isEscapePrefix(sql string, i int) bool {
	if i == 0 || (sql[i-1] != 'E' && sql[i-1] != 'e') {
		return false
	}
	return i == 1 || !isIdentChar(sql[i-2])
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
