// Package schema describes the schema objects a migration creates and
// extracts them either from DDL text or from a live Postgres catalog.
package schema

import "strings"

// DefaultSchema is assumed for unqualified names.
const DefaultSchema = "public"

// Inventory is the set of schema objects the cross-object validator works on.
// Constraints, foreign keys and indexes are kept flat with their owning table
// so that name clashes across tables are easy to find.
type Inventory struct {
	Tables      []Table      `json:"tables"`
	Constraints []Constraint `json:"constraints,omitempty"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
	Indexes     []Index      `json:"indexes,omitempty"`
	Functions   []Function   `json:"functions,omitempty"`
	Triggers    []Trigger    `json:"triggers,omitempty"`
	Policies    []Policy     `json:"policies,omitempty"`
	Sequences   []Sequence   `json:"sequences,omitempty"`
	Views       []View       `json:"views,omitempty"`
}

// Table represents a database table
type Table struct {
	Schema     string   `json:"schema"`
	Name       string   `json:"name"`
	Columns    []Column `json:"columns"`
	PrimaryKey []string `json:"primary_key,omitempty"`
}

// Column represents a table column
type Column struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Nullable bool    `json:"nullable"`
	Default  *string `json:"default,omitempty"`
	Identity bool    `json:"identity,omitempty"`
}

// ConstraintKind mirrors pg_constraint.contype.
type ConstraintKind string

const (
	ConstraintPrimaryKey ConstraintKind = "primary_key"
	ConstraintUnique     ConstraintKind = "unique"
	ConstraintCheck      ConstraintKind = "check"
	ConstraintForeignKey ConstraintKind = "foreign_key"
	ConstraintExclusion  ConstraintKind = "exclusion"
)

// Constraint is a named table constraint.
type Constraint struct {
	Name   string         `json:"name"`
	Kind   ConstraintKind `json:"kind"`
	Schema string         `json:"schema"`
	Table  string         `json:"table"`
}

// ForeignKey represents a foreign key constraint
type ForeignKey struct {
	Name              string   `json:"name,omitempty"`
	Schema            string   `json:"schema"`
	Table             string   `json:"table"`
	Columns           []string `json:"columns,omitempty"`
	ReferencedSchema  string   `json:"referenced_schema"`
	ReferencedTable   string   `json:"referenced_table"`
	ReferencedColumns []string `json:"referenced_columns,omitempty"`
}

// Index represents a table index
type Index struct {
	Name    string   `json:"name"`
	Schema  string   `json:"schema"`
	Table   string   `json:"table"`
	Columns []string `json:"columns,omitempty"`
	Unique  bool     `json:"unique"`
}

type Function struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
}

// Trigger records the table it fires on and the function it calls.
type Trigger struct {
	Name           string `json:"name"`
	Schema         string `json:"schema"`
	Table          string `json:"table"`
	FunctionSchema string `json:"function_schema,omitempty"`
	Function       string `json:"function"`
}

type Policy struct {
	Name   string `json:"name"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

type Sequence struct {
	Schema  string `json:"schema"`
	Name    string `json:"name"`
	OwnedBy string `json:"owned_by,omitempty"` // table.column
}

type View struct {
	Schema     string `json:"schema"`
	Name       string `json:"name"`
	Definition string `json:"definition"`
}

// Qualify joins schema and name, filling in DefaultSchema.
func Qualify(schemaName, name string) string {
	if schemaName == "" {
		schemaName = DefaultSchema
	}
	return schemaName + "." + name
}

// QualifiedName returns schema.name.
func (t Table) QualifiedName() string {
	return Qualify(t.Schema, t.Name)
}

// HasColumn reports whether the table declares a column with the given name.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// FindTable looks a table up by schema and name.
func (inv *Inventory) FindTable(schemaName, name string) *Table {
	want := Qualify(schemaName, name)
	for i := range inv.Tables {
		if inv.Tables[i].QualifiedName() == want {
			return &inv.Tables[i]
		}
	}
	return nil
}

// Merge appends other's objects to inv. Tables already present by qualified
// name are extended rather than duplicated.
func (inv *Inventory) Merge(other *Inventory) {
	if other == nil {
		return
	}
	for _, t := range other.Tables {
		if existing := inv.FindTable(t.Schema, t.Name); existing != nil {
			existing.Columns = append(existing.Columns, t.Columns...)
			existing.PrimaryKey = append(existing.PrimaryKey, t.PrimaryKey...)
			continue
		}
		inv.Tables = append(inv.Tables, t)
	}
	inv.Constraints = append(inv.Constraints, other.Constraints...)
	inv.ForeignKeys = append(inv.ForeignKeys, other.ForeignKeys...)
	inv.Indexes = append(inv.Indexes, other.Indexes...)
	inv.Functions = append(inv.Functions, other.Functions...)
	inv.Triggers = append(inv.Triggers, other.Triggers...)
	inv.Policies = append(inv.Policies, other.Policies...)
	inv.Sequences = append(inv.Sequences, other.Sequences...)
	inv.Views = append(inv.Views, other.Views...)
}
