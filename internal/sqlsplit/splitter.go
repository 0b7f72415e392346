package sqlsplit

import "strings"

// Mode labels which algorithm produced a statement boundary.
type Mode string

const (
	// ModeExact is the execution-accurate state machine.
	ModeExact Mode = "exact"
	// ModeAdvisory is the line heuristic. Never execute its output.
	ModeAdvisory Mode = "advisory"
)

// Statement is one statement of a script.
type Statement struct {
	// Text is the statement without its terminating semicolon, trimmed.
	Text string `json:"text"`
	// Start and End are byte offsets of the untrimmed segment in the
	// (comment-stripped) input. End excludes the terminator.
	Start int `json:"start"`
	End   int `json:"end"`
	// Line is the 1-based line on which Text begins.
	Line int  `json:"line"`
	Mode Mode `json:"mode"`
}

// Splitter splits a comment-stripped script into statements.
type Splitter interface {
	Mode() Mode
	Split(sql string) []Statement
}

// Exact splits on semicolons that are outside string literals, quoted
// identifiers and dollar-quoted bodies.
type Exact struct{}

func (Exact) Mode() Mode { return ModeExact }

// Split scans left to right keeping two pieces of state: the active quote
// character and the active dollar-quote tag. A tag opens a body when none is
// active and only the identical tag closes it; any other tag inside the body is
// literal text. Whitespace-only segments are dropped.
func (Exact) Split(sql string) []Statement {
	var (
		statements []Statement
		quote      byte
		escapes    bool
		delimiter  string
		start      int
	)

	flush := func(end int) {
		if s, ok := newStatement(sql, start, end, ModeExact); ok {
			statements = append(statements, s)
		}
	}

	for i := 0; i < len(sql); i++ {
		ch := sql[i]

		switch {
		case quote != 0:
			if escapes && ch == '\\' {
				i++
				continue
			}
			if ch == quote {
				quote = 0
			}
		case delimiter != "":
			if ch == '$' {
				if tag, ok := dollarTagAt(sql, i); ok && tag == delimiter {
					delimiter = ""
					i += len(tag) - 1
				}
			}
		case ch == '\'' || ch == '"':
			quote = ch
			escapes = ch == '\'' && isEscapePrefix(sql, i)
		case ch == '$':
			if tag, ok := openingTagAt(sql, i); ok {
				delimiter = tag
				i += len(tag) - 1
			}
		case ch == ';':
			flush(i)
			start = i + 1
		}
	}
	flush(len(sql))

	return statements
}

// Split is shorthand for Exact{}.Split(StripComments(sql)).
func Split(sql string) []Statement {
	return Exact{}.Split(StripComments(sql))
}

// Texts returns the Text of every statement.
func Texts(statements []Statement) []string {
	texts := make([]string, len(statements))
	for i, s := range statements {
		texts[i] = s.Text
	}
	return texts
}

// IndexAt returns the 0-based index of the statement whose segment contains
// the byte offset, or -1.
func IndexAt(statements []Statement, offset int) int {
	for i, s := range statements {
		// The terminator belongs to its statement.
		if offset >= s.Start && offset <= s.End {
			return i
		}
	}
	return -1
}

func newStatement(sql string, start, end int, mode Mode) (Statement, bool) {
	segment := sql[start:end]
	text := strings.TrimSpace(segment)
	if text == "" {
		return Statement{}, false
	}
	lead := strings.Index(segment, text)
	return Statement{
		Text:  text,
		Start: start,
		End:   end,
		Line:  1 + strings.Count(sql[:start+lead], "\n"),
		Mode:  mode,
	}, true
}

// PreviewLength is the default size of a statement preview.
const PreviewLength = 600

// Preview collapses whitespace and truncates to limit characters, marking the
// cut with "...".
func Preview(text string, limit int) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	runes := []rune(collapsed)
	if limit <= 0 || len(runes) <= limit {
		return collapsed
	}
	return string(runes[:limit]) + "..."
}
