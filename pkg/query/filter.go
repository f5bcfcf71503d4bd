package query

import (
	"fmt"
	"strings"
	"time"
)

// Filter is one node of the composable filter tree. Clause returns a
// parameterized SQL fragment (using "?" placeholders, as GORM expects) and
// its bound arguments in order.
type Filter interface {
	Clause() (string, []interface{})
}

// Eq matches rows where Column equals Value exactly.
type Eq struct {
	Column Column
	Value  interface{}
}

func (f Eq) Clause() (string, []interface{}) {
	return f.Column.Qualified() + " = ?", []interface{}{f.Value}
}

// Contains matches rows where Column contains Value as a substring
// (case-insensitive).
type Contains struct {
	Column Column
	Value  string
}

func (f Contains) Clause() (string, []interface{}) {
	return "LOWER(" + f.Column.Qualified() + ") LIKE ?", []interface{}{"%" + strings.ToLower(f.Value) + "%"}
}

// StartsWith matches rows where Column begins with Value (case-insensitive).
type StartsWith struct {
	Column Column
	Value  string
}

func (f StartsWith) Clause() (string, []interface{}) {
	return "LOWER(" + f.Column.Qualified() + ") LIKE ?", []interface{}{strings.ToLower(f.Value) + "%"}
}

// comparison is the shared shape behind the four numeric/date operators.
type comparison struct {
	Column Column
	Value  interface{}
	op     string
}

func (f comparison) Clause() (string, []interface{}) {
	return fmt.Sprintf("%s %s ?", f.Column.Qualified(), f.op), []interface{}{f.Value}
}

// Gt, Gte, Lt, Lte build a strict/inclusive numeric or date comparison.
func Gt(col Column, v interface{}) Filter  { return comparison{Column: col, Value: v, op: ">"} }
func Gte(col Column, v interface{}) Filter { return comparison{Column: col, Value: v, op: ">="} }
func Lt(col Column, v interface{}) Filter  { return comparison{Column: col, Value: v, op: "<"} }
func Lte(col Column, v interface{}) Filter { return comparison{Column: col, Value: v, op: "<="} }

// DateRange matches rows where Column falls within [From, To] inclusive.
type DateRange struct {
	Column   Column
	From, To time.Time
}

func (f DateRange) Clause() (string, []interface{}) {
	q := f.Column.Qualified()
	return fmt.Sprintf("%s >= ? AND %s <= ?", q, q), []interface{}{f.From, f.To}
}

// In matches rows where Column is one of Values.
type In struct {
	Column Column
	Values []interface{}
}

func (f In) Clause() (string, []interface{}) {
	if len(f.Values) == 0 {
		return "1 = 0", nil // an empty IN-list matches nothing, never everything
	}
	placeholders := strings.Repeat("?,", len(f.Values))
	placeholders = placeholders[:len(placeholders)-1]
	return fmt.Sprintf("%s IN (%s)", f.Column.Qualified(), placeholders), f.Values
}

// IsNull matches rows where Column is (or, negated, is not) NULL.
type IsNull struct {
	Column Column
	Negate bool
}

func (f IsNull) Clause() (string, []interface{}) {
	if f.Negate {
		return f.Column.Qualified() + " IS NOT NULL", nil
	}
	return f.Column.Qualified() + " IS NULL", nil
}

// And requires every sub-filter to match.
type And struct{ Filters []Filter }

func (f And) Clause() (string, []interface{}) { return joinFilters(f.Filters, "AND") }

// Or requires at least one sub-filter to match.
type Or struct{ Filters []Filter }

func (f Or) Clause() (string, []interface{}) { return joinFilters(f.Filters, "OR") }

func joinFilters(filters []Filter, sep string) (string, []interface{}) {
	if len(filters) == 0 {
		return "1 = 1", nil
	}
	var clauses []string
	var args []interface{}
	for _, sub := range filters {
		c, a := sub.Clause()
		clauses = append(clauses, "("+c+")")
		args = append(args, a...)
	}
	return strings.Join(clauses, " "+sep+" "), args
}

// Not negates a single sub-filter.
type Not struct{ Filter Filter }

func (f Not) Clause() (string, []interface{}) {
	c, a := f.Filter.Clause()
	return "NOT (" + c + ")", a
}
