package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/lockplane/schemasync/internal/schema"
)

// BuiltinTriggerFunctions are shipped by common extensions and are never part
// of an exported schema.
var BuiltinTriggerFunctions = []string{
	"moddatetime",
	"autoinc",
	"insert_username",
	"check_primary_key",
	"check_foreign_key",
	"lo_manage",
	"suppress_redundant_updates_trigger",
	"tsvector_update_trigger",
	"tsvector_update_trigger_column",
	"http_request",
}

var (
	// columns filled by the application or a trigger
	exemptNotNullColumns = map[string]bool{"id": true, "created_at": true, "updated_at": true}
	conventionalSequence = regexp.MustCompile(`(?i)_seq$`)
	nextvalRef           = regexp.MustCompile(`(?i)nextval\(\s*'([^']+)'`)
	publicTableRef       = regexp.MustCompile(`(?i)\bpublic\s*\.\s*("[^"]+"|[a-z_][a-z0-9_$]*)(\s*\()?`)
)

func checkPrimaryKeys(inv *schema.Inventory) []ValidationIssue {
	var issues []ValidationIssue
	for _, t := range inv.Tables {
		if len(t.PrimaryKey) > 0 {
			continue
		}
		issues = append(issues, ValidationIssue{
			Severity:        SeverityWarning,
			Category:        CategoryPrimaryKey,
			Message:         fmt.Sprintf("table %s has no primary key", t.QualifiedName()),
			Details:         "rows cannot be addressed reliably for replication, updates or deduplication",
			AffectedObjects: []string{t.QualifiedName()},
		})
	}
	return issues
}

// checkForeignKeyCycles walks the reference graph from every table. A table
// seen again on the current path closes a cycle; each distinct cycle is
// reported once. Self references are allowed.
func checkForeignKeyCycles(inv *schema.Inventory) []ValidationIssue {
	graph := map[string][]string{}
	var roots []string
	for _, t := range inv.Tables {
		roots = append(roots, t.QualifiedName())
	}
	for _, fk := range inv.ForeignKeys {
		from := schema.Qualify(fk.Schema, fk.Table)
		to := schema.Qualify(fk.ReferencedSchema, fk.ReferencedTable)
		if from == to {
			continue
		}
		graph[from] = appendUnique(graph[from], to)
	}
	for from := range graph {
		sort.Strings(graph[from])
	}

	var (
		issues   []ValidationIssue
		reported = map[string]bool{}
	)

	for _, root := range roots {
		visited := map[string]bool{}
		var path []string
		onPath := map[string]int{}

		var visit func(node string)
		visit = func(node string) {
			if start, ok := onPath[node]; ok {
				cycle := append(append([]string{}, path[start:]...), node)
				key := cycleKey(cycle[:len(cycle)-1])
				if !reported[key] {
					reported[key] = true
					issues = append(issues, ValidationIssue{
						Severity:        SeverityWarning,
						Category:        CategoryForeignKeyCycle,
						Message:         fmt.Sprintf("circular foreign key dependency: %s", strings.Join(cycle, " -> ")),
						Details:         "tables in a cycle cannot be loaded without deferring constraints or adding them after the data",
						AffectedObjects: cycle[:len(cycle)-1],
					})
				}
				return
			}
			if visited[node] {
				return
			}
			visited[node] = true
			onPath[node] = len(path)
			path = append(path, node)

			for _, next := range graph[node] {
				visit(next)
			}

			path = path[:len(path)-1]
			delete(onPath, node)
		}
		visit(root)
	}

	return issues
}

// cycleKey identifies a cycle independent of where the walk entered it.
func cycleKey(nodes []string) string {
	sorted := append([]string{}, nodes...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

func checkDuplicateConstraints(inv *schema.Inventory) []ValidationIssue {
	var issues []ValidationIssue
	names, tables := groupByName(len(inv.Constraints), func(i int) (string, string) {
		c := inv.Constraints[i]
		return c.Name, schema.Qualify(c.Schema, c.Table)
	})
	for _, name := range names {
		if len(tables[name]) < 2 {
			continue
		}
		issues = append(issues, ValidationIssue{
			Severity:        SeverityError,
			Category:        CategoryConstraintName,
			Message:         fmt.Sprintf("constraint name %q is used by %d tables: %s", name, len(tables[name]), strings.Join(tables[name], ", ")),
			Details:         "constraint names must be unique so they can be dropped and recreated unambiguously",
			AffectedObjects: tables[name],
		})
	}
	return issues
}

func checkDuplicateIndexes(inv *schema.Inventory) []ValidationIssue {
	var issues []ValidationIssue
	names, tables := groupByName(len(inv.Indexes), func(i int) (string, string) {
		idx := inv.Indexes[i]
		return idx.Name, schema.Qualify(idx.Schema, idx.Table)
	})
	for _, name := range names {
		if len(tables[name]) < 2 {
			continue
		}
		issues = append(issues, ValidationIssue{
			Severity:        SeverityWarning,
			Category:        CategoryIndexName,
			Message:         fmt.Sprintf("index name %q is used on %d tables: %s", name, len(tables[name]), strings.Join(tables[name], ", ")),
			Details:         "index names share a namespace with tables; the second CREATE INDEX fails in the same schema",
			AffectedObjects: tables[name],
		})
	}
	return issues
}

// groupByName returns names in first-seen order and the distinct tables using each.
func groupByName(n int, at func(i int) (name, table string)) ([]string, map[string][]string) {
	var names []string
	tables := map[string][]string{}
	for i := 0; i < n; i++ {
		name, table := at(i)
		if name == "" {
			continue
		}
		if _, seen := tables[name]; !seen {
			names = append(names, name)
		}
		tables[name] = appendUnique(tables[name], table)
	}
	return names, tables
}

func checkTriggerFunctions(inv *schema.Inventory) []ValidationIssue {
	known := map[string]bool{}
	for _, fn := range inv.Functions {
		known[strings.ToLower(fn.Name)] = true
	}
	for _, fn := range BuiltinTriggerFunctions {
		known[fn] = true
	}

	var issues []ValidationIssue
	for _, tg := range inv.Triggers {
		if known[strings.ToLower(tg.Function)] {
			continue
		}
		fn := tg.Function
		if tg.FunctionSchema != "" {
			fn = tg.FunctionSchema + "." + fn
		}
		issues = append(issues, ValidationIssue{
			Severity:        SeverityError,
			Category:        CategoryTriggerFunction,
			Message:         fmt.Sprintf("trigger %s on %s calls unknown function %s", tg.Name, schema.Qualify(tg.Schema, tg.Table), fn),
			Details:         "the function must be created before the trigger",
			AffectedObjects: []string{tg.Name, fn},
		})
	}
	return issues
}

func checkPolicyTables(inv *schema.Inventory) []ValidationIssue {
	var issues []ValidationIssue
	for _, p := range inv.Policies {
		if inv.FindTable(p.Schema, p.Table) != nil {
			continue
		}
		table := schema.Qualify(p.Schema, p.Table)
		issues = append(issues, ValidationIssue{
			Severity:        SeverityError,
			Category:        CategoryPolicyTable,
			Message:         fmt.Sprintf("policy %s references unknown table %s", p.Name, table),
			AffectedObjects: []string{p.Name, table},
		})
	}
	return issues
}

func checkNotNullDefaults(inv *schema.Inventory) []ValidationIssue {
	var issues []ValidationIssue
	for _, t := range inv.Tables {
		for _, c := range t.Columns {
			if c.Nullable || c.Default != nil || c.Identity || exemptColumn(c.Name) {
				continue
			}
			issues = append(issues, ValidationIssue{
				Severity:        SeverityInfo,
				Category:        CategoryNotNullDefault,
				Message:         fmt.Sprintf("column %s.%s is NOT NULL without a DEFAULT", t.QualifiedName(), c.Name),
				Details:         "inserts must always supply a value",
				AffectedObjects: []string{t.QualifiedName() + "." + c.Name},
			})
		}
	}
	return issues
}

func exemptColumn(name string) bool {
	name = strings.ToLower(name)
	return exemptNotNullColumns[name] || strings.HasSuffix(name, "_id")
}

func checkOrphanSequences(inv *schema.Inventory) []ValidationIssue {
	referenced := map[string]bool{}
	for _, t := range inv.Tables {
		for _, c := range t.Columns {
			if c.Default == nil {
				continue
			}
			for _, m := range nextvalRef.FindAllStringSubmatch(*c.Default, -1) {
				_, name := splitQualified(m[1])
				referenced[name] = true
			}
		}
	}

	var issues []ValidationIssue
	for _, seq := range inv.Sequences {
		name := strings.ToLower(seq.Name)
		if seq.OwnedBy != "" || referenced[name] || conventionalSequence.MatchString(name) {
			continue
		}
		issues = append(issues, ValidationIssue{
			Severity:        SeverityInfo,
			Category:        CategoryOrphanSequence,
			Message:         fmt.Sprintf("sequence %s is not used by any column default", schema.Qualify(seq.Schema, seq.Name)),
			AffectedObjects: []string{schema.Qualify(seq.Schema, seq.Name)},
		})
	}
	return issues
}

// checkViewReferences is a text scan of view definitions; it tolerates false
// positives such as aliases named like tables.
func checkViewReferences(inv *schema.Inventory) []ValidationIssue {
	known := map[string]bool{}
	for _, t := range inv.Tables {
		if t.Schema == "" || t.Schema == schema.DefaultSchema {
			known[strings.ToLower(t.Name)] = true
		}
	}
	for _, v := range inv.Views {
		if v.Schema == "" || v.Schema == schema.DefaultSchema {
			known[strings.ToLower(v.Name)] = true
		}
	}

	var issues []ValidationIssue
	for _, v := range inv.Views {
		var missing []string
		for _, m := range publicTableRef.FindAllStringSubmatch(v.Definition, -1) {
			if m[2] != "" {
				continue // function call
			}
			name := strings.ToLower(strings.Trim(m[1], `"`))
			if known[name] {
				continue
			}
			missing = appendUnique(missing, "public."+name)
		}
		if len(missing) == 0 {
			continue
		}
		view := schema.Qualify(v.Schema, v.Name)
		issues = append(issues, ValidationIssue{
			Severity:        SeverityInfo,
			Category:        CategoryViewReference,
			Message:         fmt.Sprintf("view %s references unrecognized tables: %s", view, strings.Join(missing, ", ")),
			Details:         "the table may live outside the exported schema",
			AffectedObjects: append([]string{view}, missing...),
		})
	}
	return issues
}

func splitQualified(name string) (string, string) {
	name = strings.ToLower(strings.ReplaceAll(name, `"`, ""))
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
