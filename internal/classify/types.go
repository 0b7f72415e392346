// Package classify assigns an operation type and danger level to statements
// and screens whole scripts for destructive or forbidden operations.
package classify

// StatementType is the operation a statement performs.
type StatementType string

const (
	CreateTable    StatementType = "CREATE_TABLE"
	AlterTable     StatementType = "ALTER_TABLE"
	DropTable      StatementType = "DROP_TABLE"
	CreateFunction StatementType = "CREATE_FUNCTION"
	DropFunction   StatementType = "DROP_FUNCTION"
	CreateTrigger  StatementType = "CREATE_TRIGGER"
	DropTrigger    StatementType = "DROP_TRIGGER"
	CreateIndex    StatementType = "CREATE_INDEX"
	DropIndex      StatementType = "DROP_INDEX"
	Insert         StatementType = "INSERT"
	Update         StatementType = "UPDATE"
	Delete         StatementType = "DELETE"
	Truncate       StatementType = "TRUNCATE"
	Unknown        StatementType = "UNKNOWN"
)

// DangerLevel is an advisory risk rating.
type DangerLevel string

const (
	Safe     DangerLevel = "safe"
	Warning  DangerLevel = "warning"
	Critical DangerLevel = "critical"
)

func (d DangerLevel) rank() int {
	switch d {
	case Critical:
		return 2
	case Warning:
		return 1
	default:
		return 0
	}
}

// Max returns the more dangerous of two levels.
func Max(a, b DangerLevel) DangerLevel {
	if b.rank() > a.rank() {
		return b
	}
	if a == "" {
		return Safe
	}
	return a
}

// SQLStatement is a classified statement. Values are never mutated after
// Classify returns them.
type SQLStatement struct {
	Type        StatementType `json:"type"`
	RawContent  string        `json:"raw_content"`
	TableName   string        `json:"table_name,omitempty"`
	SchemaName  string        `json:"schema_name,omitempty"`
	ObjectName  string        `json:"object_name,omitempty"` // function, trigger or index name
	Position    int           `json:"position"`              // 0-based ordinal in the script
	DangerLevel DangerLevel   `json:"danger_level"`
}

// QualifiedTable returns schema.table, or just the table when no schema was given.
func (s SQLStatement) QualifiedTable() string {
	if s.SchemaName == "" {
		return s.TableName
	}
	return s.SchemaName + "." + s.TableName
}
