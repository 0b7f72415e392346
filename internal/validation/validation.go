// Package validation runs cross-object structural checks over a schema
// inventory.
//
// The checks look at how objects relate to each other rather than at any
// single statement: foreign key cycles, names that clash across tables,
// triggers calling functions that do not exist, policies on unknown tables
// and similar. Findings are advisory; a result is only invalid when at least
// one error-severity issue was found.
package validation

import (
	"github.com/lockplane/schemasync/internal/schema"
)

// Severity of a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Category groups issues by the check that raised them.
type Category string

const (
	CategoryPrimaryKey      Category = "primary_key"
	CategoryForeignKeyCycle Category = "foreign_key_cycle"
	CategoryConstraintName  Category = "duplicate_constraint"
	CategoryIndexName       Category = "duplicate_index"
	CategoryTriggerFunction Category = "trigger_function"
	CategoryPolicyTable     Category = "policy_table"
	CategoryNotNullDefault  Category = "not_null_default"
	CategoryOrphanSequence  Category = "orphan_sequence"
	CategoryViewReference   Category = "view_reference"
)

// ValidationIssue is a single finding.
type ValidationIssue struct {
	Severity        Severity `json:"severity"`
	Category        Category `json:"category"`
	Message         string   `json:"message"`
	Details         string   `json:"details,omitempty"`
	AffectedObjects []string `json:"affected_objects"`
}

// Summary counts issues by severity.
type Summary struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Infos    int `json:"infos"`
}

// Result is the outcome of validating an inventory.
type Result struct {
	IsValid bool              `json:"is_valid"`
	Issues  []ValidationIssue `json:"issues"`
	Summary Summary           `json:"summary"`
}

// Check is one structural rule.
type Check struct {
	Name string
	Run  func(inv *schema.Inventory) []ValidationIssue
}

// Checks run in this order; issues are reported in the same order.
var Checks = []Check{
	{"primary keys", checkPrimaryKeys},
	{"foreign key cycles", checkForeignKeyCycles},
	{"duplicate constraint names", checkDuplicateConstraints},
	{"duplicate index names", checkDuplicateIndexes},
	{"trigger functions", checkTriggerFunctions},
	{"policy tables", checkPolicyTables},
	{"not null defaults", checkNotNullDefaults},
	{"orphan sequences", checkOrphanSequences},
	{"view references", checkViewReferences},
}

// Validate runs every check over inv.
func Validate(inv *schema.Inventory) Result {
	result := Result{Issues: []ValidationIssue{}}
	if inv == nil {
		result.IsValid = true
		return result
	}

	for _, check := range Checks {
		result.Issues = append(result.Issues, check.Run(inv)...)
	}

	for _, issue := range result.Issues {
		switch issue.Severity {
		case SeverityError:
			result.Summary.Errors++
		case SeverityWarning:
			result.Summary.Warnings++
		case SeverityInfo:
			result.Summary.Infos++
		}
	}
	result.IsValid = result.Summary.Errors == 0

	return result
}

// Filter returns the issues of one severity.
func (r Result) Filter(severity Severity) []ValidationIssue {
	var out []ValidationIssue
	for _, issue := range r.Issues {
		if issue.Severity == severity {
			out = append(out, issue)
		}
	}
	return out
}
