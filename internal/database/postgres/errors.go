package postgres

import (
	"errors"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// ErrorPosition returns the 1-based character position the server reported
// for err, if any.
func ErrorPosition(err error) (int, bool) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Position == "" {
		return 0, false
	}
	pos, convErr := strconv.Atoi(pqErr.Position)
	if convErr != nil || pos < 1 {
		return 0, false
	}
	return pos, true
}

// ErrorCode returns the SQLSTATE of err, or "" for non-server errors.
func ErrorCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// Describe formats a server error with its detail and hint.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err.Error()
	}

	var b strings.Builder
	b.WriteString(pqErr.Message)
	if pqErr.Code != "" {
		b.WriteString(" (SQLSTATE ")
		b.WriteString(string(pqErr.Code))
		b.WriteString(")")
	}
	if pqErr.Detail != "" {
		b.WriteString(": ")
		b.WriteString(pqErr.Detail)
	}
	if pqErr.Hint != "" {
		b.WriteString(" hint: ")
		b.WriteString(pqErr.Hint)
	}
	return b.String()
}

// ContextWindow returns up to radius characters on each side of a 1-based
// character position in sql, clamped to the text. The position is counted in
// characters, not bytes.
func ContextWindow(sql string, position, radius int) string {
	runes := []rune(sql)
	if len(runes) == 0 {
		return ""
	}
	idx := position - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(runes) {
		idx = len(runes) - 1
	}

	start := idx - radius
	if start < 0 {
		start = 0
	}
	end := idx + radius
	if end > len(runes) {
		end = len(runes)
	}
	return string(runes[start:end])
}

// ByteOffset converts a 1-based character position into a byte offset in sql.
func ByteOffset(sql string, position int) int {
	if position <= 1 {
		return 0
	}
	n := 0
	for i := range sql {
		if n == position-1 {
			return i
		}
		n++
	}
	return len(sql)
}
