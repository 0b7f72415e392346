package schema

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// ParseInventory parses DDL via pg_query and collects the schema objects it
// creates. Statements that create nothing (DML, grants, comments) are ignored.
func ParseInventory(sql string) (*Inventory, error) {
	tree, err := pg_query.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SQL: %w", err)
	}

	inv := &Inventory{}

	for _, raw := range tree.Stmts {
		if raw.Stmt == nil {
			continue
		}

		switch node := raw.Stmt.Node.(type) {
		case *pg_query.Node_CreateStmt:
			if err := inv.addCreateTable(node.CreateStmt); err != nil {
				return nil, fmt.Errorf("failed to parse CREATE TABLE: %w", err)
			}

		case *pg_query.Node_AlterTableStmt:
			inv.addAlterTable(node.AlterTableStmt)

		case *pg_query.Node_IndexStmt:
			stmt := node.IndexStmt
			if stmt.Relation == nil || stmt.Idxname == "" {
				continue
			}
			idx := Index{
				Name:   stmt.Idxname,
				Schema: schemaOf(stmt.Relation),
				Table:  stmt.Relation.Relname,
				Unique: stmt.Unique,
			}
			for _, p := range stmt.IndexParams {
				if elem, ok := p.Node.(*pg_query.Node_IndexElem); ok && elem.IndexElem.Name != "" {
					idx.Columns = append(idx.Columns, elem.IndexElem.Name)
				}
			}
			inv.Indexes = append(inv.Indexes, idx)

		case *pg_query.Node_CreateFunctionStmt:
			schemaName, name := splitNameList(node.CreateFunctionStmt.Funcname)
			inv.Functions = append(inv.Functions, Function{Schema: schemaName, Name: name})

		case *pg_query.Node_CreateTrigStmt:
			stmt := node.CreateTrigStmt
			if stmt.Relation == nil {
				continue
			}
			var fnSchema string
			fnName := stringList(stmt.Funcname)
			if len(fnName) > 1 {
				fnSchema = fnName[len(fnName)-2]
			}
			inv.Triggers = append(inv.Triggers, Trigger{
				Name:           stmt.Trigname,
				Schema:         schemaOf(stmt.Relation),
				Table:          stmt.Relation.Relname,
				FunctionSchema: fnSchema,
				Function:       lastOf(fnName),
			})

		case *pg_query.Node_CreatePolicyStmt:
			stmt := node.CreatePolicyStmt
			if stmt.Table == nil {
				continue
			}
			inv.Policies = append(inv.Policies, Policy{
				Name:   stmt.PolicyName,
				Schema: schemaOf(stmt.Table),
				Table:  stmt.Table.Relname,
			})

		case *pg_query.Node_CreateSeqStmt:
			stmt := node.CreateSeqStmt
			if stmt.Sequence == nil {
				continue
			}
			inv.Sequences = append(inv.Sequences, Sequence{
				Schema:  schemaOf(stmt.Sequence),
				Name:    stmt.Sequence.Relname,
				OwnedBy: ownedBy(stmt.Options),
			})

		case *pg_query.Node_AlterSeqStmt:
			stmt := node.AlterSeqStmt
			if stmt.Sequence == nil {
				continue
			}
			owner := ownedBy(stmt.Options)
			if owner == "" {
				continue
			}
			if strings.EqualFold(owner, "none") {
				owner = ""
			}
			want := Qualify(schemaOf(stmt.Sequence), stmt.Sequence.Relname)
			for i := range inv.Sequences {
				if Qualify(inv.Sequences[i].Schema, inv.Sequences[i].Name) == want {
					inv.Sequences[i].OwnedBy = owner
				}
			}

		case *pg_query.Node_ViewStmt:
			stmt := node.ViewStmt
			if stmt.View == nil {
				continue
			}
			inv.Views = append(inv.Views, View{
				Schema:     schemaOf(stmt.View),
				Name:       stmt.View.Relname,
				Definition: statementText(sql, raw),
			})
		}
	}

	return inv, nil
}

func (inv *Inventory) addCreateTable(stmt *pg_query.CreateStmt) error {
	if stmt.Relation == nil {
		return fmt.Errorf("CREATE TABLE missing relation")
	}

	table := Table{
		Schema:  schemaOf(stmt.Relation),
		Name:    stmt.Relation.Relname,
		Columns: []Column{},
	}

	var constraints []*pg_query.Constraint
	for _, elt := range stmt.TableElts {
		if elt.Node == nil {
			continue
		}

		switch node := elt.Node.(type) {
		case *pg_query.Node_ColumnDef:
			col, err := parseColumnDef(node.ColumnDef)
			if err != nil {
				return err
			}
			table.Columns = append(table.Columns, *col)
			for _, c := range node.ColumnDef.Constraints {
				cons, ok := c.Node.(*pg_query.Node_Constraint)
				if !ok {
					continue
				}
				if cons.Constraint.Contype == pg_query.ConstrType_CONSTR_PRIMARY {
					table.PrimaryKey = append(table.PrimaryKey, col.Name)
				}
				inv.addConstraint(table.Schema, table.Name, cons.Constraint, []string{col.Name})
			}

		case *pg_query.Node_Constraint:
			constraints = append(constraints, node.Constraint)
		}
	}

	inv.Tables = append(inv.Tables, table)
	for _, c := range constraints {
		inv.addConstraint(table.Schema, table.Name, c, nil)
	}
	return nil
}

func (inv *Inventory) addAlterTable(stmt *pg_query.AlterTableStmt) {
	if stmt.Relation == nil {
		return
	}
	schemaName := schemaOf(stmt.Relation)
	tableName := stmt.Relation.Relname

	for _, c := range stmt.Cmds {
		cmdNode, ok := c.Node.(*pg_query.Node_AlterTableCmd)
		if !ok {
			continue
		}
		cmd := cmdNode.AlterTableCmd

		switch cmd.Subtype {
		case pg_query.AlterTableType_AT_AddConstraint:
			if cons, ok := cmd.GetDef().GetNode().(*pg_query.Node_Constraint); ok {
				inv.addConstraint(schemaName, tableName, cons.Constraint, nil)
			}

		case pg_query.AlterTableType_AT_ColumnDefault:
			// pg_dump sets serial defaults after CREATE TABLE
			if col := inv.findColumn(schemaName, tableName, cmd.Name); col != nil {
				col.Default = nil
				if cmd.Def != nil {
					def := formatExpr(cmd.Def)
					col.Default = &def
				}
			}

		case pg_query.AlterTableType_AT_AddIdentity:
			if col := inv.findColumn(schemaName, tableName, cmd.Name); col != nil {
				col.Identity = true
				col.Nullable = false
			}

		case pg_query.AlterTableType_AT_SetNotNull, pg_query.AlterTableType_AT_DropNotNull:
			if col := inv.findColumn(schemaName, tableName, cmd.Name); col != nil {
				col.Nullable = cmd.Subtype == pg_query.AlterTableType_AT_DropNotNull
			}

		case pg_query.AlterTableType_AT_AddColumn:
			def, ok := cmd.GetDef().GetNode().(*pg_query.Node_ColumnDef)
			if !ok {
				continue
			}
			col, err := parseColumnDef(def.ColumnDef)
			if err != nil {
				continue
			}
			if table := inv.FindTable(schemaName, tableName); table != nil {
				table.Columns = append(table.Columns, *col)
			}
			for _, n := range def.ColumnDef.Constraints {
				if cons, ok := n.Node.(*pg_query.Node_Constraint); ok {
					inv.addConstraint(schemaName, tableName, cons.Constraint, []string{col.Name})
				}
			}
		}
	}
}

func (inv *Inventory) findColumn(schemaName, tableName, column string) *Column {
	table := inv.FindTable(schemaName, tableName)
	if table == nil {
		return nil
	}
	for i := range table.Columns {
		if table.Columns[i].Name == column {
			return &table.Columns[i]
		}
	}
	return nil
}

// addConstraint records named constraints, primary keys and foreign keys.
// columns is set for column-level constraints, whose Keys list is empty.
func (inv *Inventory) addConstraint(schemaName, tableName string, c *pg_query.Constraint, columns []string) {
	kind, tracked := constraintKinds[c.Contype]
	if !tracked {
		return
	}

	if kind == ConstraintPrimaryKey && columns == nil {
		if table := inv.FindTable(schemaName, tableName); table != nil {
			table.PrimaryKey = append(table.PrimaryKey, stringList(c.Keys)...)
		}
	}

	if kind == ConstraintForeignKey && c.Pktable != nil {
		fkCols := stringList(c.FkAttrs)
		if len(fkCols) == 0 {
			fkCols = columns
		}
		inv.ForeignKeys = append(inv.ForeignKeys, ForeignKey{
			Name:              c.Conname,
			Schema:            schemaName,
			Table:             tableName,
			Columns:           fkCols,
			ReferencedSchema:  schemaOf(c.Pktable),
			ReferencedTable:   c.Pktable.Relname,
			ReferencedColumns: stringList(c.PkAttrs),
		})
	}

	if c.Conname != "" {
		inv.Constraints = append(inv.Constraints, Constraint{
			Name:   c.Conname,
			Kind:   kind,
			Schema: schemaName,
			Table:  tableName,
		})
	}
}

var constraintKinds = map[pg_query.ConstrType]ConstraintKind{
	pg_query.ConstrType_CONSTR_PRIMARY:   ConstraintPrimaryKey,
	pg_query.ConstrType_CONSTR_UNIQUE:    ConstraintUnique,
	pg_query.ConstrType_CONSTR_CHECK:     ConstraintCheck,
	pg_query.ConstrType_CONSTR_FOREIGN:   ConstraintForeignKey,
	pg_query.ConstrType_CONSTR_EXCLUSION: ConstraintExclusion,
}

// parseColumnDef converts a ColumnDef AST node to a Column
func parseColumnDef(colDef *pg_query.ColumnDef) (*Column, error) {
	if colDef.Colname == "" {
		return nil, fmt.Errorf("column missing name")
	}

	col := &Column{
		Name:     colDef.Colname,
		Nullable: true,
	}
	if colDef.TypeName != nil {
		col.Type = formatTypeName(colDef.TypeName)
	}

	for _, constraint := range colDef.Constraints {
		cons, ok := constraint.Node.(*pg_query.Node_Constraint)
		if !ok {
			continue
		}
		switch cons.Constraint.Contype {
		case pg_query.ConstrType_CONSTR_NOTNULL, pg_query.ConstrType_CONSTR_PRIMARY:
			col.Nullable = false
		case pg_query.ConstrType_CONSTR_NULL:
			col.Nullable = true
		case pg_query.ConstrType_CONSTR_DEFAULT:
			if cons.Constraint.RawExpr != nil {
				def := formatExpr(cons.Constraint.RawExpr)
				col.Default = &def
			}
		case pg_query.ConstrType_CONSTR_IDENTITY, pg_query.ConstrType_CONSTR_GENERATED:
			col.Identity = true
		}
	}

	// serial types carry an implicit sequence default
	switch strings.ToLower(col.Type) {
	case "serial", "smallserial", "bigserial", "serial2", "serial4", "serial8":
		col.Identity = true
	}

	return col, nil
}

// formatTypeName renders a TypeName with modifiers and array bounds.
func formatTypeName(typeName *pg_query.TypeName) string {
	parts := stringList(typeName.Names)
	if len(parts) == 0 {
		return ""
	}

	typeStr := strings.Join(parts, ".")
	if len(parts) > 1 && parts[0] == "pg_catalog" {
		typeStr = parts[len(parts)-1]
	}
	if normalized, ok := typeMap[strings.ToLower(typeStr)]; ok {
		typeStr = normalized
	}

	var mods []string
	for _, mod := range typeName.Typmods {
		if constNode, ok := mod.Node.(*pg_query.Node_AConst); ok {
			if ival := constNode.AConst.GetIval(); ival != nil {
				mods = append(mods, fmt.Sprintf("%d", ival.Ival))
			}
		}
	}
	if len(mods) > 0 {
		typeStr = fmt.Sprintf("%s(%s)", typeStr, strings.Join(mods, ","))
	}
	if len(typeName.ArrayBounds) > 0 {
		typeStr += "[]"
	}
	return typeStr
}

// pg_query reports internal type names; map them back to the SQL spelling.
var typeMap = map[string]string{
	"int2":        "smallint",
	"int4":        "integer",
	"int8":        "bigint",
	"serial4":     "serial",
	"serial8":     "bigserial",
	"serial2":     "smallserial",
	"bool":        "boolean",
	"bpchar":      "char",
	"float4":      "real",
	"float8":      "double precision",
	"timestamptz": "timestamp with time zone",
	"timetz":      "time with time zone",
}

// formatExpr renders the default expressions the validator cares about:
// constants, function calls such as nextval('seq') and casts.
func formatExpr(node *pg_query.Node) string {
	if node == nil {
		return ""
	}

	switch expr := node.Node.(type) {
	case *pg_query.Node_AConst:
		if ival := expr.AConst.GetIval(); ival != nil {
			return fmt.Sprintf("%d", ival.Ival)
		}
		if fval := expr.AConst.GetFval(); fval != nil {
			return fval.Fval
		}
		if sval := expr.AConst.GetSval(); sval != nil {
			return fmt.Sprintf("'%s'", sval.Sval)
		}
		if bval := expr.AConst.GetBoolval(); bval != nil {
			return fmt.Sprintf("%t", bval.Boolval)
		}
		if expr.AConst.Isnull {
			return "NULL"
		}

	case *pg_query.Node_FuncCall:
		_, name := splitNameList(expr.FuncCall.Funcname)
		var args []string
		for _, arg := range expr.FuncCall.Args {
			args = append(args, formatExpr(arg))
		}
		return fmt.Sprintf("%s(%s)", name, strings.Join(args, ", "))

	case *pg_query.Node_TypeCast:
		return formatExpr(expr.TypeCast.Arg)

	case *pg_query.Node_SqlvalueFunction:
		return strings.TrimPrefix(expr.SqlvalueFunction.Op.String(), "SVFOP_")
	}

	return "EXPRESSION"
}

func schemaOf(rv *pg_query.RangeVar) string {
	if rv.Schemaname == "" {
		return DefaultSchema
	}
	return rv.Schemaname
}

// splitNameList splits a qualified name list such as a function name.
func splitNameList(nodes []*pg_query.Node) (schemaName, name string) {
	parts := stringList(nodes)
	switch len(parts) {
	case 0:
		return DefaultSchema, ""
	case 1:
		return DefaultSchema, parts[0]
	default:
		return parts[len(parts)-2], parts[len(parts)-1]
	}
}

func lastOf(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

func stringList(nodes []*pg_query.Node) []string {
	var out []string
	for _, n := range nodes {
		if s, ok := n.Node.(*pg_query.Node_String_); ok {
			out = append(out, s.String_.Sval)
		}
	}
	return out
}

// ownedBy extracts the OWNED BY table.column option of CREATE SEQUENCE.
func ownedBy(options []*pg_query.Node) string {
	for _, opt := range options {
		def, ok := opt.Node.(*pg_query.Node_DefElem)
		if !ok || def.DefElem.Defname != "owned_by" || def.DefElem.Arg == nil {
			continue
		}
		if list, ok := def.DefElem.Arg.Node.(*pg_query.Node_List); ok {
			return strings.Join(stringList(list.List.Items), ".")
		}
	}
	return ""
}

// statementText slices a statement's source text out of the script.
func statementText(sql string, raw *pg_query.RawStmt) string {
	start := int(raw.StmtLocation)
	if start < 0 || start > len(sql) {
		return ""
	}
	end := len(sql)
	if raw.StmtLen > 0 && start+int(raw.StmtLen) <= len(sql) {
		end = start + int(raw.StmtLen)
	}
	return strings.TrimSpace(sql[start:end])
}
