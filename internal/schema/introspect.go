package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Queryer is the subset of *sql.DB and *sql.Tx used for introspection.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// systemSchemaFilter excludes catalog schemas from every introspection query.
const systemSchemaFilter = `NOT IN ('pg_catalog', 'information_schema', 'pg_toast') AND %s NOT LIKE 'pg_temp_%%' AND %s NOT LIKE 'pg_toast_temp_%%'`

func notSystem(column string) string {
	return column + " " + fmt.Sprintf(systemSchemaFilter, column, column)
}

// Introspect reads the same inventory ParseInventory builds from DDL out of a
// live Postgres catalog.
func Introspect(ctx context.Context, db Queryer) (*Inventory, error) {
	inv := &Inventory{}

	steps := []struct {
		name string
		fn   func(context.Context, Queryer, *Inventory) error
	}{
		{"tables", introspectTables},
		{"primary keys", introspectPrimaryKeys},
		{"constraints", introspectConstraints},
		{"indexes", introspectIndexes},
		{"functions", introspectFunctions},
		{"triggers", introspectTriggers},
		{"policies", introspectPolicies},
		{"sequences", introspectSequences},
		{"views", introspectViews},
	}
	for _, step := range steps {
		if err := step.fn(ctx, db, inv); err != nil {
			return nil, fmt.Errorf("failed to introspect %s: %w", step.name, err)
		}
	}

	return inv, nil
}

// scanRows runs query and calls scan once per row.
func scanRows(ctx context.Context, db Queryer, query string, scan func(*sql.Rows) error) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func introspectTables(ctx context.Context, db Queryer, inv *Inventory) error {
	query := `
		SELECT c.table_schema, c.table_name, c.column_name, c.data_type,
		       c.is_nullable, c.column_default, c.is_identity
		FROM information_schema.columns c
		JOIN information_schema.tables t
		  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE t.table_type = 'BASE TABLE'
		  AND ` + notSystem("c.table_schema") + `
		ORDER BY c.table_schema, c.table_name, c.ordinal_position`

	return scanRows(ctx, db, query, func(rows *sql.Rows) error {
		var (
			schemaName, tableName, nullable, identity string
			col                                       Column
			defaultVal                                sql.NullString
		)
		if err := rows.Scan(&schemaName, &tableName, &col.Name, &col.Type, &nullable, &defaultVal, &identity); err != nil {
			return err
		}
		col.Type = strings.TrimSpace(col.Type)
		col.Nullable = nullable == "YES"
		col.Identity = identity == "YES"
		if defaultVal.Valid {
			def := defaultVal.String
			col.Default = &def
		}

		table := inv.FindTable(schemaName, tableName)
		if table == nil {
			inv.Tables = append(inv.Tables, Table{Schema: schemaName, Name: tableName})
			table = &inv.Tables[len(inv.Tables)-1]
		}
		table.Columns = append(table.Columns, col)
		return nil
	})
}

func introspectPrimaryKeys(ctx context.Context, db Queryer, inv *Inventory) error {
	query := `
		SELECT tc.table_schema, tc.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		 AND tc.table_name = kcu.table_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND ` + notSystem("tc.table_schema") + `
		ORDER BY tc.table_schema, tc.table_name, kcu.ordinal_position`

	return scanRows(ctx, db, query, func(rows *sql.Rows) error {
		var schemaName, tableName, column string
		if err := rows.Scan(&schemaName, &tableName, &column); err != nil {
			return err
		}
		if table := inv.FindTable(schemaName, tableName); table != nil {
			table.PrimaryKey = append(table.PrimaryKey, column)
		}
		return nil
	})
}

var contypeKinds = map[string]ConstraintKind{
	"p": ConstraintPrimaryKey,
	"u": ConstraintUnique,
	"c": ConstraintCheck,
	"f": ConstraintForeignKey,
	"x": ConstraintExclusion,
}

func introspectConstraints(ctx context.Context, db Queryer, inv *Inventory) error {
	query := `
		SELECT n.nspname, c.relname, con.conname, con.contype,
		       COALESCE(rn.nspname, ''), COALESCE(rc.relname, '')
		FROM pg_constraint con
		JOIN pg_class c ON c.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_class rc ON rc.oid = con.confrelid
		LEFT JOIN pg_namespace rn ON rn.oid = rc.relnamespace
		WHERE ` + notSystem("n.nspname") + `
		  AND con.contype IN ('p', 'u', 'c', 'f', 'x')
		ORDER BY n.nspname, c.relname, con.conname`

	return scanRows(ctx, db, query, func(rows *sql.Rows) error {
		var schemaName, tableName, name, contype, refSchema, refTable string
		if err := rows.Scan(&schemaName, &tableName, &name, &contype, &refSchema, &refTable); err != nil {
			return err
		}
		kind := contypeKinds[contype]
		inv.Constraints = append(inv.Constraints, Constraint{
			Name:   name,
			Kind:   kind,
			Schema: schemaName,
			Table:  tableName,
		})
		if kind == ConstraintForeignKey {
			inv.ForeignKeys = append(inv.ForeignKeys, ForeignKey{
				Name:             name,
				Schema:           schemaName,
				Table:            tableName,
				ReferencedSchema: refSchema,
				ReferencedTable:  refTable,
			})
		}
		return nil
	})
}

// introspectIndexes skips indexes backing primary key and unique constraints;
// those are already reported as constraints.
func introspectIndexes(ctx context.Context, db Queryer, inv *Inventory) error {
	query := `
		SELECT n.nspname, t.relname, i.relname, ix.indisunique
		FROM pg_index ix
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE ` + notSystem("n.nspname") + `
		  AND NOT EXISTS (SELECT 1 FROM pg_constraint con WHERE con.conindid = ix.indexrelid)
		ORDER BY n.nspname, t.relname, i.relname`

	return scanRows(ctx, db, query, func(rows *sql.Rows) error {
		var idx Index
		if err := rows.Scan(&idx.Schema, &idx.Table, &idx.Name, &idx.Unique); err != nil {
			return err
		}
		inv.Indexes = append(inv.Indexes, idx)
		return nil
	})
}

func introspectFunctions(ctx context.Context, db Queryer, inv *Inventory) error {
	query := `
		SELECT DISTINCT n.nspname, p.proname
		FROM pg_proc p
		JOIN pg_namespace n ON n.oid = p.pronamespace
		WHERE ` + notSystem("n.nspname") + `
		ORDER BY n.nspname, p.proname`

	return scanRows(ctx, db, query, func(rows *sql.Rows) error {
		var fn Function
		if err := rows.Scan(&fn.Schema, &fn.Name); err != nil {
			return err
		}
		inv.Functions = append(inv.Functions, fn)
		return nil
	})
}

func introspectTriggers(ctx context.Context, db Queryer, inv *Inventory) error {
	query := `
		SELECT tg.tgname, n.nspname, c.relname, pn.nspname, p.proname
		FROM pg_trigger tg
		JOIN pg_class c ON c.oid = tg.tgrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_proc p ON p.oid = tg.tgfoid
		JOIN pg_namespace pn ON pn.oid = p.pronamespace
		WHERE NOT tg.tgisinternal
		  AND ` + notSystem("n.nspname") + `
		ORDER BY n.nspname, c.relname, tg.tgname`

	return scanRows(ctx, db, query, func(rows *sql.Rows) error {
		var tg Trigger
		if err := rows.Scan(&tg.Name, &tg.Schema, &tg.Table, &tg.FunctionSchema, &tg.Function); err != nil {
			return err
		}
		inv.Triggers = append(inv.Triggers, tg)
		return nil
	})
}

func introspectPolicies(ctx context.Context, db Queryer, inv *Inventory) error {
	query := `
		SELECT schemaname, tablename, policyname
		FROM pg_policies
		WHERE ` + notSystem("schemaname") + `
		ORDER BY schemaname, tablename, policyname`

	return scanRows(ctx, db, query, func(rows *sql.Rows) error {
		var p Policy
		if err := rows.Scan(&p.Schema, &p.Table, &p.Name); err != nil {
			return err
		}
		inv.Policies = append(inv.Policies, p)
		return nil
	})
}

// introspectSequences reports OWNED BY as table.column, matching the DDL form.
func introspectSequences(ctx context.Context, db Queryer, inv *Inventory) error {
	query := `
		SELECT n.nspname, s.relname, COALESCE(t.relname || '.' || a.attname, '')
		FROM pg_class s
		JOIN pg_namespace n ON n.oid = s.relnamespace
		LEFT JOIN pg_depend d
		  ON d.objid = s.oid AND d.classid = 'pg_class'::regclass AND d.deptype IN ('a', 'i')
		LEFT JOIN pg_class t ON t.oid = d.refobjid
		LEFT JOIN pg_attribute a ON a.attrelid = d.refobjid AND a.attnum = d.refobjsubid
		WHERE s.relkind = 'S'
		  AND ` + notSystem("n.nspname") + `
		ORDER BY n.nspname, s.relname`

	return scanRows(ctx, db, query, func(rows *sql.Rows) error {
		var seq Sequence
		if err := rows.Scan(&seq.Schema, &seq.Name, &seq.OwnedBy); err != nil {
			return err
		}
		inv.Sequences = append(inv.Sequences, seq)
		return nil
	})
}

func introspectViews(ctx context.Context, db Queryer, inv *Inventory) error {
	query := `
		SELECT schemaname, viewname, definition
		FROM pg_views
		WHERE ` + notSystem("schemaname") + `
		ORDER BY schemaname, viewname`

	return scanRows(ctx, db, query, func(rows *sql.Rows) error {
		var v View
		if err := rows.Scan(&v.Schema, &v.Name, &v.Definition); err != nil {
			return err
		}
		inv.Views = append(inv.Views, v)
		return nil
	})
}
