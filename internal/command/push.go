package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/haloiam/core/pkg/apperrors"
	"github.com/haloiam/core/pkg/eventstore"
)

// writeModel is the subset of pkg/aggregate.WriteModel's public API every
// concrete aggregate in internal/domain exposes by embedding it. push uses
// it to stay generic across Organization, HumanUser, OrgMember,
// LabelPolicy, and LoginPolicy without a type switch.
type writeModel interface {
	ID() string
	InstanceID() string
	AggregateType() string
	Version() int64
	UncommittedEvents() []eventstore.NewEvent
	ClearUncommitted()
}

// push appends wm's buffered events to store in a single call, stamping
// creator (the issuing subject) on each, translating eventstore's sentinel
// errors into the apperrors taxonomy, and clears wm's buffer once they are
// committed. The events were already reduced onto wm when they were
// recorded, so wm is up to date without a second reduce.
func push(ctx context.Context, store eventstore.EventStore, creator string, wm writeModel, uniqueOps ...eventstore.UniqueOp) ([]eventstore.Event, error) {
	events := wm.UncommittedEvents()
	if len(events) == 0 {
		return nil, nil
	}
	for i := range events {
		if events[i].Creator == "" {
			events[i].Creator = creator
		}
	}

	expectedVersion := wm.Version()
	if expectedVersion == 0 {
		expectedVersion = -1
	}

	committed, err := store.Push(ctx, wm.InstanceID(), wm.ID(), wm.AggregateType(), expectedVersion, events, uniqueOps...)
	if err != nil {
		return nil, translatePushError(wm, err)
	}
	wm.ClearUncommitted()
	return committed, nil
}

func translatePushError(wm writeModel, err error) error {
	switch {
	case errors.Is(err, eventstore.ErrConcurrencyConflict):
		return apperrors.FailedPrecondition("COMMAND-Push01",
			fmt.Sprintf("%s %s changed concurrently", wm.AggregateType(), wm.ID()), err)
	case errors.Is(err, eventstore.ErrUniqueViolation):
		return apperrors.AlreadyExists("COMMAND-Push02",
			fmt.Sprintf("%s %s conflicts with an existing unique claim", wm.AggregateType(), wm.ID()), err)
	case errors.Is(err, eventstore.ErrInvalidEvent):
		return apperrors.InvalidArgument("COMMAND-Push03", "malformed event", err)
	default:
		return apperrors.Unavailable("COMMAND-Push04", "eventstore unavailable", err)
	}
}

// lastEventDetails derives ObjectDetails from the last committed event.
// fallbackOwner covers the no-event idempotent path, where there is no
// committed event to read the resource owner off.
func lastEventDetails(events []eventstore.Event, fallbackOwner string) ObjectDetails {
	if len(events) == 0 {
		return ObjectDetails{ResourceOwner: fallbackOwner}
	}
	last := events[len(events)-1]
	owner := last.Owner
	if owner == "" {
		owner = fallbackOwner
	}
	return ObjectDetails{
		Sequence:      last.Version,
		EventDate:     last.CreatedAt,
		ResourceOwner: owner,
	}
}
