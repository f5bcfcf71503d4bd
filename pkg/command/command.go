// Package command implements the generic seven-step template every command
// handler in the system follows: validate the request shape, authorize the
// caller, load the aggregate, check domain invariants against it, apply the
// change, append the resulting events, and run any after-commit side
// effects such as logging or a cache bust.
package command

import (
	"context"
	"fmt"

	"github.com/haloiam/core/pkg/apperrors"
	"github.com/haloiam/core/pkg/eventstore"
	"github.com/haloiam/core/pkg/logging"
)

// Command is the marker interface every command payload implements, purely
// so handler registries can key off a stable type name.
type Command interface {
	CommandType() string
}

// AuthContext carries the caller identity a command executes under: which
// instance it is scoped to, which subject issued it, and the subject's
// resolved roles for the permission check.
type AuthContext struct {
	InstanceID string
	SubjectID  string
	Roles      []string
}

// Checker is the step-2 permission gate. internal/command's casbin-backed
// implementation is the production Checker; tests can supply a stub.
type Checker interface {
	CheckPermission(ctx context.Context, auth AuthContext, resource, action string) (bool, error)
}

// Commander runs the seven-step template for one command type C against an
// aggregate type A. Each step is a plain function so concrete command
// handlers can be built by filling in this struct literal, the same way
// the underlying aggregate logic is built from reducer tables.
type Commander[C Command, A any] struct {
	Resource string // casbin resource name checked in step 2
	Action   string // casbin action name checked in step 2

	Validate        func(cmd C) error
	LoadAggregate   func(ctx context.Context, auth AuthContext, cmd C) (A, error)
	CheckInvariants func(ctx context.Context, agg A, cmd C) error
	Apply           func(agg A, cmd C) error
	Append          func(ctx context.Context, auth AuthContext, agg A) ([]eventstore.Event, error)
	AfterCommit     func(ctx context.Context, agg A, events []eventstore.Event)
}

// Execute runs the template in order, short-circuiting on the first
// failing step, and returns the events the command committed.
func (c Commander[C, A]) Execute(ctx context.Context, checker Checker, logger logging.Logger, auth AuthContext, cmd C) ([]eventstore.Event, error) {
	// step 1: validate
	if c.Validate != nil {
		if err := c.Validate(cmd); err != nil {
			return nil, apperrors.InvalidArgument("COMMAND-Val01", err.Error(), err)
		}
	}

	// step 2: authorize (check_permission)
	if checker != nil {
		allowed, err := checker.CheckPermission(ctx, auth, c.Resource, c.Action)
		if err != nil {
			return nil, apperrors.Internal("COMMAND-Auth01", "permission check failed", err)
		}
		if !allowed {
			return nil, apperrors.PermissionDenied("COMMAND-Auth02",
				fmt.Sprintf("subject %s may not %s on %s", auth.SubjectID, c.Action, c.Resource), nil)
		}
	}

	// step 3: load aggregate
	if c.LoadAggregate == nil {
		return nil, apperrors.Internal("COMMAND-Impl01", "command has no LoadAggregate step", nil)
	}
	agg, err := c.LoadAggregate(ctx, auth, cmd)
	if err != nil {
		return nil, err
	}

	// step 4: check invariants
	if c.CheckInvariants != nil {
		if err := c.CheckInvariants(ctx, agg, cmd); err != nil {
			return nil, err
		}
	}

	// step 5: apply
	if c.Apply == nil {
		return nil, apperrors.Internal("COMMAND-Impl02", "command has no Apply step", nil)
	}
	if err := c.Apply(agg, cmd); err != nil {
		return nil, apperrors.FailedPrecondition("COMMAND-App01", err.Error(), err)
	}

	// step 6: append
	if c.Append == nil {
		return nil, apperrors.Internal("COMMAND-Impl03", "command has no Append step", nil)
	}
	events, err := c.Append(ctx, auth, agg)
	if err != nil {
		return nil, err
	}

	// step 7: after-commit side effects (logging, metrics, cache invalidation)
	if logger != nil {
		logger.Info("command committed", "command_type", cmd.CommandType(), "subject", auth.SubjectID, "event_count", len(events))
	}
	if c.AfterCommit != nil {
		c.AfterCommit(ctx, agg, events)
	}

	return events, nil
}
