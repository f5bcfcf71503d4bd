// Package domain holds the concrete write-model aggregates the identity
// instance exercises: organizations, human users, org memberships, and the
// label/login policies used by the query layer's inheritance walk. Each
// aggregate embeds pkg/aggregate.WriteModel and supplies its own reducer
// table.
package domain

// State is the lifecycle of an aggregate that can be deactivated and
// reactivated before eventual removal. Not every aggregate in this package
// uses it: org memberships and the label/login policies track removal with
// a Removed flag instead.
type State int

const (
	StateUnspecified State = iota
	StateActive
	StateInactive
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	case StateRemoved:
		return "removed"
	default:
		return "unspecified"
	}
}
