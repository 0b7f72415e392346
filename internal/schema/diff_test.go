package schema

import (
	"testing"
)

func TestDiff_UsesLogicalTypes(t *testing.T) {
	expected, err := ParseInventory(`
		CREATE TABLE todos (
			id serial PRIMARY KEY,
			title varchar(200) NOT NULL,
			tags text[],
			created_at timestamp
		);`)
	if err != nil {
		t.Fatalf("ParseInventory returned error: %v", err)
	}

	actual := &Inventory{
		Tables: []Table{{
			Schema: "public",
			Name:   "todos",
			Columns: []Column{
				{Name: "id", Type: "integer", Nullable: false},
				{Name: "title", Type: "character varying", Nullable: false},
				{Name: "tags", Type: "ARRAY", Nullable: true},
				{Name: "created_at", Type: "timestamp without time zone", Nullable: true},
			},
		}},
	}

	diff := Diff(expected, actual)
	if !diff.IsEmpty() {
		t.Fatalf("expected diff to be empty when logical types match, got %#v", diff)
	}
}

func TestDiff_ReportsMissingAndChangedObjects(t *testing.T) {
	expected, err := ParseInventory(`
		CREATE TABLE users (id bigint PRIMARY KEY, email text NOT NULL);
		CREATE TABLE posts (id bigint PRIMARY KEY);
		CREATE INDEX users_email_idx ON users (email);
		CREATE POLICY users_read ON users USING (true);`)
	if err != nil {
		t.Fatalf("ParseInventory returned error: %v", err)
	}

	actual := &Inventory{
		Tables: []Table{
			{Schema: "public", Name: "users", Columns: []Column{
				{Name: "id", Type: "bigint"},
				{Name: "email", Type: "text", Nullable: true},
				{Name: "legacy", Type: "text", Nullable: true},
			}},
			{Schema: "public", Name: "audit", Columns: []Column{{Name: "id", Type: "bigint"}}},
		},
	}

	diff := Diff(expected, actual)
	if diff.IsEmpty() {
		t.Fatal("expected differences")
	}

	if len(diff.MissingTables) != 1 || diff.MissingTables[0] != "public.posts" {
		t.Errorf("expected public.posts missing, got %v", diff.MissingTables)
	}
	if len(diff.ExtraTables) != 1 || diff.ExtraTables[0] != "public.audit" {
		t.Errorf("expected public.audit extra, got %v", diff.ExtraTables)
	}
	if len(diff.ModifiedTables) != 1 {
		t.Fatalf("expected one modified table, got %d", len(diff.ModifiedTables))
	}

	td := diff.ModifiedTables[0]
	if len(td.ExtraColumns) != 1 || td.ExtraColumns[0] != "legacy" {
		t.Errorf("expected legacy as extra column, got %v", td.ExtraColumns)
	}
	if len(td.ModifiedColumns) != 1 || td.ModifiedColumns[0].Column != "email" {
		t.Fatalf("expected email modified, got %#v", td.ModifiedColumns)
	}
	if changes := td.ModifiedColumns[0].Changes; len(changes) != 1 || changes[0] != "nullable" {
		t.Errorf("expected nullable change, got %v", changes)
	}

	if len(diff.MissingIndexes) != 1 || diff.MissingIndexes[0] != "public.users_email_idx" {
		t.Errorf("expected users_email_idx missing, got %v", diff.MissingIndexes)
	}
	if len(diff.MissingPolicies) != 1 || diff.MissingPolicies[0] != "users_read on public.users" {
		t.Errorf("expected users_read policy missing, got %v", diff.MissingPolicies)
	}
}
