package store

import (
	"fmt"
	"strings"
)

// Placeholder renders the n-th (1-based) bind parameter for a SQL dialect
type Placeholder func(n int) string

// QuestionMark is the SQLite placeholder style
func QuestionMark(int) string { return "?" }

// Dollar is the PostgreSQL placeholder style
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

// BuildEntityExistsQuery builds the existence probe used by EntityNameExists.
// The id filter is applied only when excludeID is set, the scope filter only when
// the table is scoped and scopeID is set.
func BuildEntityExistsQuery(t EntityTable, name string, excludeID, scopeID *int64, ph Placeholder) (string, []any) {
	var b strings.Builder
	args := []any{name}

	fmt.Fprintf(&b, "SELECT 1 FROM %s WHERE %s = %s", t.Table, t.NameField(), ph(len(args)))
	if excludeID != nil {
		args = append(args, *excludeID)
		fmt.Fprintf(&b, " AND id != %s", ph(len(args)))
	}
	if t.ScopeColumn != "" && scopeID != nil {
		args = append(args, *scopeID)
		fmt.Fprintf(&b, " AND %s = %s", t.ScopeColumn, ph(len(args)))
	}
	b.WriteString(" LIMIT 1")

	return b.String(), args
}

// BuildEntityInsertQuery builds the insert used by CreateEntity
func BuildEntityInsertQuery(t EntityTable, name string, scopeID *int64, ph Placeholder) (string, []any) {
	if t.ScopeColumn == "" {
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.Table, t.NameField(), ph(1)), []any{name}
	}

	var scope any
	if scopeID != nil {
		scope = *scopeID
	}
	return fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s, %s)",
		t.Table, t.NameField(), t.ScopeColumn, ph(1), ph(2)), []any{name, scope}
}
