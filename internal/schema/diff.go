package schema

import (
	"regexp"
	"slices"
	"sort"
	"strings"
)

// InventoryDiff lists how an actual inventory departs from an expected one.
// Missing objects are expected but absent; extra tables exist but were not
// expected. Only tables are reported as extra.
type InventoryDiff struct {
	MissingTables    []string    `json:"missing_tables,omitempty"`
	ExtraTables      []string    `json:"extra_tables,omitempty"`
	ModifiedTables   []TableDiff `json:"modified_tables,omitempty"`
	MissingIndexes   []string    `json:"missing_indexes,omitempty"`
	MissingFunctions []string    `json:"missing_functions,omitempty"`
	MissingTriggers  []string    `json:"missing_triggers,omitempty"`
	MissingPolicies  []string    `json:"missing_policies,omitempty"`
	MissingSequences []string    `json:"missing_sequences,omitempty"`
	MissingViews     []string    `json:"missing_views,omitempty"`
}

// TableDiff represents changes to a single table
type TableDiff struct {
	Table           string       `json:"table"`
	MissingColumns  []string     `json:"missing_columns,omitempty"`
	ExtraColumns    []string     `json:"extra_columns,omitempty"`
	ModifiedColumns []ColumnDiff `json:"modified_columns,omitempty"`
}

// ColumnDiff represents changes to a single column
type ColumnDiff struct {
	Column   string   `json:"column"`
	Expected Column   `json:"expected"`
	Actual   Column   `json:"actual"`
	Changes  []string `json:"changes"` // "type", "nullable"
}

// Diff compares the expected inventory with the actual one.
func Diff(expected, actual *Inventory) *InventoryDiff {
	diff := &InventoryDiff{}

	actualTables := make(map[string]*Table, len(actual.Tables))
	for i := range actual.Tables {
		actualTables[actual.Tables[i].QualifiedName()] = &actual.Tables[i]
	}
	expectedTables := make(map[string]bool, len(expected.Tables))

	for i := range expected.Tables {
		want := &expected.Tables[i]
		name := want.QualifiedName()
		expectedTables[name] = true

		got, ok := actualTables[name]
		if !ok {
			diff.MissingTables = append(diff.MissingTables, name)
			continue
		}
		if td := diffTables(want, got); !td.IsEmpty() {
			diff.ModifiedTables = append(diff.ModifiedTables, *td)
		}
	}
	for name := range actualTables {
		if !expectedTables[name] {
			diff.ExtraTables = append(diff.ExtraTables, name)
		}
	}
	sort.Strings(diff.ExtraTables)

	diff.MissingIndexes = missing(expected.Indexes, actual.Indexes, func(i Index) string { return Qualify(i.Schema, i.Name) })
	diff.MissingFunctions = missing(expected.Functions, actual.Functions, func(f Function) string { return Qualify(f.Schema, f.Name) })
	diff.MissingTriggers = missing(expected.Triggers, actual.Triggers, func(t Trigger) string { return t.Name + " on " + Qualify(t.Schema, t.Table) })
	diff.MissingPolicies = missing(expected.Policies, actual.Policies, func(p Policy) string { return p.Name + " on " + Qualify(p.Schema, p.Table) })
	diff.MissingSequences = missing(expected.Sequences, actual.Sequences, func(s Sequence) string { return Qualify(s.Schema, s.Name) })
	diff.MissingViews = missing(expected.Views, actual.Views, func(v View) string { return Qualify(v.Schema, v.Name) })

	return diff
}

func missing[T any](expected, actual []T, key func(T) string) []string {
	have := make(map[string]bool, len(actual))
	for _, item := range actual {
		have[key(item)] = true
	}
	var out []string
	for _, item := range expected {
		if k := key(item); !have[k] && !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	return out
}

// diffTables compares two tables and returns their differences
func diffTables(expected, actual *Table) *TableDiff {
	diff := &TableDiff{Table: expected.QualifiedName()}

	actualCols := make(map[string]*Column, len(actual.Columns))
	for i := range actual.Columns {
		actualCols[actual.Columns[i].Name] = &actual.Columns[i]
	}
	expectedCols := make(map[string]bool, len(expected.Columns))

	for i := range expected.Columns {
		want := expected.Columns[i]
		expectedCols[want.Name] = true
		// serial, identity and primary key columns are implicitly NOT NULL
		if want.Identity || slices.Contains(expected.PrimaryKey, want.Name) {
			want.Nullable = false
		}

		got, ok := actualCols[want.Name]
		if !ok {
			diff.MissingColumns = append(diff.MissingColumns, want.Name)
			continue
		}
		if cd := diffColumns(want, *got); cd != nil {
			diff.ModifiedColumns = append(diff.ModifiedColumns, *cd)
		}
	}
	for i := range actual.Columns {
		if name := actual.Columns[i].Name; !expectedCols[name] {
			diff.ExtraColumns = append(diff.ExtraColumns, name)
		}
	}
	return diff
}

func diffColumns(expected, actual Column) *ColumnDiff {
	var changes []string
	if !sameType(expected.Type, actual.Type) {
		changes = append(changes, "type")
	}
	if expected.Nullable != actual.Nullable {
		changes = append(changes, "nullable")
	}
	if len(changes) == 0 {
		return nil
	}
	return &ColumnDiff{Column: expected.Name, Expected: expected, Actual: actual, Changes: changes}
}

// IsEmpty returns true if the table has no differences
func (d *TableDiff) IsEmpty() bool {
	return len(d.MissingColumns) == 0 && len(d.ExtraColumns) == 0 && len(d.ModifiedColumns) == 0
}

// IsEmpty returns true if the inventories match
func (d *InventoryDiff) IsEmpty() bool {
	return len(d.MissingTables) == 0 &&
		len(d.ExtraTables) == 0 &&
		len(d.ModifiedTables) == 0 &&
		len(d.MissingIndexes) == 0 &&
		len(d.MissingFunctions) == 0 &&
		len(d.MissingTriggers) == 0 &&
		len(d.MissingPolicies) == 0 &&
		len(d.MissingSequences) == 0 &&
		len(d.MissingViews) == 0
}

var typeModifiers = regexp.MustCompile(`\s*\([^)]*\)`)

// logicalTypes maps declared spellings to information_schema.columns.data_type.
var logicalTypes = map[string]string{
	"varchar":     "character varying",
	"char":        "character",
	"serial":      "integer",
	"bigserial":   "bigint",
	"smallserial": "smallint",
	"timestamp":   "timestamp without time zone",
	"time":        "time without time zone",
	"decimal":     "numeric",
	"int":         "integer",
}

func logicalType(t string) string {
	t = strings.ToLower(strings.TrimSpace(typeModifiers.ReplaceAllString(t, "")))
	if strings.HasSuffix(t, "[]") {
		return "array"
	}
	if mapped, ok := logicalTypes[t]; ok {
		return mapped
	}
	return t
}

// sameType compares a declared type with an introspected one. Enum and
// domain columns are reported as USER-DEFINED and always match.
func sameType(declared, introspected string) bool {
	if strings.EqualFold(introspected, "USER-DEFINED") {
		return true
	}
	return logicalType(declared) == logicalType(introspected)
}
