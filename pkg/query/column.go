// Package query implements the read-side search framework: a composable
// filter tree, a typed column abstraction, a request builder (offset,
// limit, sort), and a SQL assembler that turns the two into a parameterized
// WHERE/ORDER BY/LIMIT/OFFSET clause against GORM.
package query

import "fmt"

// Column carries a table-qualified column name so filters can't silently
// collide across joined projection tables.
type Column struct {
	Table string
	Name  string
}

// Col is a constructor shorthand for Column.
func Col(table, name string) Column { return Column{Table: table, Name: name} }

// Qualified returns "table.column".
func (c Column) Qualified() string { return fmt.Sprintf("%s.%s", c.Table, c.Name) }
