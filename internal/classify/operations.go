package classify

// Family groups statement types by what they do to the schema or data.
type Family string

const (
	FamilyCreate  Family = "create"
	FamilyAlter   Family = "alter"
	FamilyDrop    Family = "drop"
	FamilyData    Family = "data"
	FamilyRoutine Family = "routine" // functions and triggers
	FamilyIndex   Family = "index"
	FamilyOther   Family = "other"
)

var typeFamilies = map[StatementType][]Family{
	CreateTable:    {FamilyCreate},
	AlterTable:     {FamilyAlter},
	DropTable:      {FamilyDrop},
	CreateFunction: {FamilyCreate, FamilyRoutine},
	DropFunction:   {FamilyDrop, FamilyRoutine},
	CreateTrigger:  {FamilyCreate, FamilyRoutine},
	DropTrigger:    {FamilyDrop, FamilyRoutine},
	CreateIndex:    {FamilyCreate, FamilyIndex},
	DropIndex:      {FamilyDrop, FamilyIndex},
	Insert:         {FamilyData},
	Update:         {FamilyData},
	Delete:         {FamilyData},
	Truncate:       {FamilyData, FamilyDrop},
}

// Families returns the families a statement belongs to.
func (s SQLStatement) Families() []Family {
	if f, ok := typeFamilies[s.Type]; ok {
		return f
	}
	return []Family{FamilyOther}
}

// Operations buckets statements by danger level and by family. A statement
// appears in exactly one level bucket and in one or more family buckets.
type Operations struct {
	Safe     []SQLStatement            `json:"safe"`
	Warning  []SQLStatement            `json:"warning"`
	Critical []SQLStatement            `json:"critical"`
	ByFamily map[Family][]SQLStatement `json:"by_family"`
}

// ClassifyOperations buckets already-classified statements, preserving order
// inside every bucket.
func ClassifyOperations(statements []SQLStatement) Operations {
	ops := Operations{ByFamily: map[Family][]SQLStatement{}}
	for _, s := range statements {
		switch s.DangerLevel {
		case Critical:
			ops.Critical = append(ops.Critical, s)
		case Warning:
			ops.Warning = append(ops.Warning, s)
		default:
			ops.Safe = append(ops.Safe, s)
		}
		for _, f := range s.Families() {
			ops.ByFamily[f] = append(ops.ByFamily[f], s)
		}
	}
	return ops
}

// IsDestructive reports whether the statement removes schema objects or rows.
func (s SQLStatement) IsDestructive() bool {
	switch s.Type {
	case DropTable, DropFunction, DropTrigger, DropIndex, Truncate, Delete:
		return true
	case AlterTable:
		return dropColumnPattern.MatchString(s.RawContent)
	}
	return false
}
