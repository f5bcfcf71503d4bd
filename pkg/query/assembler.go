package query

import "gorm.io/gorm"

// Apply assembles Request into db's WHERE/ORDER BY/LIMIT/OFFSET clauses and
// returns the resulting scope, ready for a terminal Find/Count. The query
// layer only ever reads through this path — nothing here issues a write.
func Apply(db *gorm.DB, req Request) *gorm.DB {
	scoped := db
	if req.Filter != nil {
		clause, args := req.Filter.Clause()
		scoped = scoped.Where(clause, args...)
	}
	for _, s := range req.Sort {
		dir := s.Direction
		if dir == "" {
			dir = Asc
		}
		scoped = scoped.Order(s.Column.Qualified() + " " + string(dir))
	}
	return scoped.Offset(req.Offset).Limit(req.ClampedLimit())
}
