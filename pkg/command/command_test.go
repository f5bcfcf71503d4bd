package command

import (
	"context"
	"errors"
	"testing"

	"github.com/haloiam/core/pkg/apperrors"
	"github.com/haloiam/core/pkg/eventstore"
	"github.com/haloiam/core/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type createOrg struct{ Name string }

func (createOrg) CommandType() string { return "org.create" }

type stubChecker struct{ allow bool }

func (s stubChecker) CheckPermission(context.Context, AuthContext, string, string) (bool, error) {
	return s.allow, nil
}

type fakeAggregate struct{ applied bool }

func baseCommander() Commander[createOrg, *fakeAggregate] {
	return Commander[createOrg, *fakeAggregate]{
		Resource: "org",
		Action:   "create",
		Validate: func(cmd createOrg) error {
			if cmd.Name == "" {
				return errors.New("name required")
			}
			return nil
		},
		LoadAggregate: func(context.Context, AuthContext, createOrg) (*fakeAggregate, error) {
			return &fakeAggregate{}, nil
		},
		Apply: func(agg *fakeAggregate, cmd createOrg) error {
			agg.applied = true
			return nil
		},
		Append: func(context.Context, AuthContext, *fakeAggregate) ([]eventstore.Event, error) {
			return []eventstore.Event{{EventType: "org.created"}}, nil
		},
	}
}

func TestExecuteHappyPath(t *testing.T) {
	c := baseCommander()
	events, err := c.Execute(context.Background(), stubChecker{allow: true}, logging.New("error", "text"),
		AuthContext{SubjectID: "alice", InstanceID: "inst-1"}, createOrg{Name: "acme"})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestExecuteRejectsInvalidArgument(t *testing.T) {
	c := baseCommander()
	_, err := c.Execute(context.Background(), stubChecker{allow: true}, logging.New("error", "text"),
		AuthContext{SubjectID: "alice"}, createOrg{Name: ""})
	require.Error(t, err)
	kind, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindInvalidArgument, kind)
}

func TestExecuteDeniesPermission(t *testing.T) {
	c := baseCommander()
	_, err := c.Execute(context.Background(), stubChecker{allow: false}, logging.New("error", "text"),
		AuthContext{SubjectID: "mallory"}, createOrg{Name: "acme"})
	require.Error(t, err)
	kind, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindPermissionDenied, kind)
}
