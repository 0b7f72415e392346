package normalize

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/lockplane/schemasync/internal/sqlsplit"
)

var (
	// `AS $` followed by whitespace: an opening tag that lost its second `$`.
	danglingOpen = regexp.MustCompile(`(?i)(\bAS\s+)\$\s`)
	// A lone `$` right before the terminating `;`: a closing tag that lost one.
	danglingClose = regexp.MustCompile(`([^$\w])\$\s*;`)
)

// repairDollarQuotes rewrites dangling single `$` delimiters into `$$`.
// A `$` inside a string literal, quoted identifier, comment or well-formed
// dollar-quoted body is never touched. Both patterns are matched against the
// input so a repaired opening tag cannot hide its closing partner.
func repairDollarQuotes(sql string) (string, []string) {
	opaque := sqlsplit.OpaqueSpans(sql)
	insert := make(map[int]bool)

	collect := func(re *regexp.Regexp) int {
		n := 0
		for _, m := range re.FindAllStringSubmatchIndex(sql, -1) {
			// group 1 always ends right before the dangling `$`
			at := m[3]
			if insert[at] || sqlsplit.InSpans(opaque, at) {
				continue
			}
			insert[at] = true
			n++
		}
		return n
	}
	opened := collect(danglingOpen)
	closed := collect(danglingClose)

	var fixes []string
	if opened > 0 {
		fixes = append(fixes, fmt.Sprintf("replaced %d dangling opening `$` after AS with `$$`", opened))
	}
	if closed > 0 {
		fixes = append(fixes, fmt.Sprintf("replaced %d dangling closing `$` before `;` with `$$`", closed))
	}
	if len(insert) == 0 {
		return sql, nil
	}

	positions := make([]int, 0, len(insert))
	for at := range insert {
		positions = append(positions, at)
	}
	sort.Ints(positions)

	var out strings.Builder
	out.Grow(len(sql) + len(positions))
	prev := 0
	for _, at := range positions {
		out.WriteString(sql[prev:at])
		out.WriteByte('$')
		prev = at
	}
	out.WriteString(sql[prev:])
	return out.String(), fixes
}

// Result is the outcome of Normalize.
type Result struct {
	SQL   string   `json:"sql"`
	Fixes []string `json:"fixes,omitempty"`
}

// Normalize repairs compact ACL grants and dangling dollar quotes. It is
// idempotent: normalizing its own output yields no fixes.
func Normalize(sql string) Result {
	fixed, aclFixes := rewriteACLGrants(sql)
	fixed, dollarFixes := repairDollarQuotes(fixed)

	fixes := append(aclFixes, dollarFixes...)
	if len(fixes) == 0 {
		// Keep the caller's string untouched byte for byte.
		return Result{SQL: sql}
	}
	return Result{SQL: fixed, Fixes: fixes}
}

// Changed reports whether any fix was applied.
func (r Result) Changed() bool {
	return len(r.Fixes) > 0
}

// Summary is a one-line description of the fixes for logs.
func (r Result) Summary() string {
	if !r.Changed() {
		return "no fixes needed"
	}
	return strings.Join(r.Fixes, "; ")
}
