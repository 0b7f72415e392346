package normalize

import (
	"fmt"
	"regexp"
	"strings"
)

// privilegeCodes maps aclitem letters to privileges, in canonical output order.
var privilegeCodes = []struct {
	code      byte
	privilege string
}{
	{'r', "SELECT"},
	{'a', "INSERT"},
	{'w', "UPDATE"},
	{'d', "DELETE"},
	{'D', "TRUNCATE"},
	{'x', "REFERENCES"},
	{'t', "TRIGGER"},
	{'X', "EXECUTE"},
	{'U', "USAGE"},
	{'C', "CREATE"},
	{'c', "CONNECT"},
	{'T', "TEMPORARY"},
}

const (
	aclRole  = `(?:"[^"]+"|[A-Za-z0-9_]*)`
	aclItem  = aclRole + `=[A-Za-z*]*(?:/` + aclRole + `)?`
	aclList  = aclItem + `(?:\s*,\s*` + aclItem + `)*`
	aclGrant = `(?is)(\bGRANT\s+)(` + aclList + `)(\s+ON\s+(?:TABLES|SEQUENCES|FUNCTIONS|TYPES)\s+TO\s+)([^;]+?)(\s*;)`
)

var (
	// Matches both plain GRANT and ALTER DEFAULT PRIVILEGES ... GRANT; the
	// prefix before GRANT is left in place.
	aclGrantPattern   = regexp.MustCompile(aclGrant)
	defaultPrivPrefix = regexp.MustCompile(`(?is)\bALTER\s+DEFAULT\s+PRIVILEGES\b[^;]*$`)
)

// aclEntry is one grantee=privileges/grantor item.
type aclEntry struct {
	grantee    string
	privileges []string
}

func parseACLList(list string) []aclEntry {
	var entries []aclEntry
	for _, raw := range strings.Split(list, ",") {
		raw = strings.TrimSpace(raw)
		eq := strings.Index(raw, "=")
		if eq < 0 {
			continue
		}
		grantee := raw[:eq]
		if grantee == "" {
			grantee = "PUBLIC"
		}
		codes := raw[eq+1:]
		if slash := strings.Index(codes, "/"); slash >= 0 {
			codes = codes[:slash]
		}
		entries = append(entries, aclEntry{
			grantee:    grantee,
			privileges: decodePrivileges(codes),
		})
	}
	return entries
}

// decodePrivileges expands aclitem letters in canonical order. Grant-option
// markers (*) and unknown letters are ignored.
func decodePrivileges(codes string) []string {
	var out []string
	for _, pc := range privilegeCodes {
		if strings.IndexByte(codes, pc.code) >= 0 {
			out = append(out, pc.privilege)
		}
	}
	return out
}

// rewriteACLGrants replaces compact ACL grants with canonical GRANT statements.
// Grantees that share a privilege set are merged into one statement, so a
// statement only multiplies when its grantees hold different privileges.
func rewriteACLGrants(sql string) (string, []string) {
	var fixes []string

	matches := aclGrantPattern.FindAllStringSubmatchIndex(sql, -1)
	if len(matches) == 0 {
		return sql, nil
	}

	var out strings.Builder
	last := 0
	for _, m := range matches {
		whole := sql[m[0]:m[1]]
		list := sql[m[4]:m[5]]
		onClause := sql[m[6]:m[7]]
		terminator := sql[m[10]:m[11]]

		entries := parseACLList(list)
		groups := groupByPrivileges(entries)
		if len(groups) == 0 {
			// Nothing decodable; leave it for the server to reject.
			out.WriteString(sql[last:m[1]])
			last = m[1]
			continue
		}

		// For ALTER DEFAULT PRIVILEGES the statement prefix must be repeated
		// on every emitted GRANT.
		stmtStart := statementStart(sql, m[0])
		prefix := ""
		if defaultPrivPrefix.MatchString(sql[stmtStart:m[0]]) {
			prefix = strings.TrimSpace(sql[stmtStart:m[0]]) + " "
		}

		out.WriteString(sql[last:m[0]])
		for i, g := range groups {
			if i > 0 {
				out.WriteString("\n")
				out.WriteString(prefix)
			}
			out.WriteString(sql[m[2]:m[3]])
			out.WriteString(strings.Join(g.privileges, ", "))
			out.WriteString(strings.TrimRight(onClause, " \t\r\n"))
			out.WriteString(" ")
			out.WriteString(strings.Join(g.grantees, ", "))
			if i < len(groups)-1 {
				out.WriteString(";")
			} else {
				out.WriteString(terminator)
			}
		}
		last = m[1]

		fixes = append(fixes, fmt.Sprintf("rewrote compact ACL grant %q into %d canonical GRANT statement(s)",
			strings.Join(strings.Fields(whole), " "), len(groups)))
	}
	out.WriteString(sql[last:])

	return out.String(), fixes
}

type grantGroup struct {
	privileges []string
	grantees   []string
}

func groupByPrivileges(entries []aclEntry) []grantGroup {
	var groups []grantGroup
	index := map[string]int{}
	for _, e := range entries {
		if len(e.privileges) == 0 {
			continue
		}
		key := strings.Join(e.privileges, ",")
		if i, ok := index[key]; ok {
			groups[i].grantees = appendUnique(groups[i].grantees, e.grantee)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, grantGroup{privileges: e.privileges, grantees: []string{e.grantee}})
	}
	return groups
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// statementStart finds the offset just after the previous `;` before pos.
func statementStart(sql string, pos int) int {
	return strings.LastIndex(sql[:pos], ";") + 1
}
