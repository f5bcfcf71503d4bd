// Command demo wires up a haloiam/core instance process via fxapp.Module
// and drives the org-bootstrap flow end to end against an embedded sqlite
// database: create an organization together with its first admin user,
// then re-run the same command to show the already_exists failure it
// must produce on replay.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/haloiam/core/internal/api"
	"github.com/haloiam/core/internal/fxapp"
	"github.com/haloiam/core/pkg/apperrors"
	cmdfw "github.com/haloiam/core/pkg/command"
	"go.uber.org/fx"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "demo failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	setDefaultEnv("HALOIAM_INSTANCE_ID", "demo-instance")
	setDefaultEnv("HALOIAM_DATABASE_DRIVER", "sqlite")
	setDefaultEnv("HALOIAM_DATABASE_DSN", "file:haloiam-demo.db?cache=shared&mode=rwc")
	setDefaultEnv("HALOIAM_LOGGING_LEVEL", "info")

	done := make(chan error, 1)

	app := fx.New(
		fxapp.Module,
		fx.Invoke(func(dispatcher *api.Dispatcher) {
			done <- runOrgBootstrap(dispatcher)
		}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("starting app: %w", err)
	}

	result := <-done

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		return fmt.Errorf("stopping app: %w", err)
	}
	return result
}

// setDefaultEnv sets an environment variable only if it isn't already set,
// so a deployment can still override these via its own environment.
func setDefaultEnv(key, value string) {
	if _, ok := os.LookupEnv(key); !ok {
		os.Setenv(key, value)
	}
}

func runOrgBootstrap(dispatcher *api.Dispatcher) error {
	ctx := context.Background()
	auth := cmdfw.AuthContext{InstanceID: "demo-instance", SubjectID: "demo-admin", Roles: []string{"demo-admin"}}

	req := api.CreateOrganizationWithAdminRequest{
		OrgID: "acme",
		Name:  "Acme",
		Admin: api.HumanUserRequest{
			Username:  "alice",
			Email:     "alice@acme.com",
			FirstName: "Al",
			LastName:  "Ice",
			Password:  "correct horse battery staple",
		},
	}

	details, err := dispatcher.CreateOrganizationWithAdmin(ctx, auth, req)
	if err != nil {
		return fmt.Errorf("creating organization: %w", err)
	}
	fmt.Printf("organization created: owner=%s sequence=%d at=%s\n", details.ResourceOwner, details.Sequence, details.EventDate.Format(time.RFC3339))

	if _, err := dispatcher.CreateOrganizationWithAdmin(ctx, auth, req); err != nil {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) && appErr.Kind == apperrors.KindAlreadyExists {
			fmt.Printf("re-running the same command failed as expected: %s\n", appErr.Message)
		} else {
			return fmt.Errorf("expected already_exists on replay, got: %w", err)
		}
	} else {
		return fmt.Errorf("expected replay to fail, it succeeded")
	}

	return nil
}
