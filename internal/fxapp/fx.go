// Package fxapp wires every layer of a haloiam instance process together
// with go.uber.org/fx: one fx.Provide per constructor, lifecycle hooks
// registered through fx.Invoke rather than called directly, so main can
// stay a one-liner that builds and runs an fx.App.
package fxapp

import (
	"context"
	"fmt"

	"github.com/haloiam/core/internal/api"
	"github.com/haloiam/core/internal/command"
	"github.com/haloiam/core/internal/projection"
	"github.com/haloiam/core/pkg/config"
	"github.com/haloiam/core/pkg/eventstore"
	"github.com/haloiam/core/pkg/logging"
	"github.com/haloiam/core/pkg/metrics"
	projectionpkg "github.com/haloiam/core/pkg/projection"
	"github.com/haloiam/core/pkg/security"
	"github.com/haloiam/core/pkg/snowflake"

	"github.com/casbin/casbin/v3"
	casbinmodel "github.com/casbin/casbin/v3/model"
	fileadapter "github.com/casbin/casbin/v3/persist/file-adapter"
	cmdfw "github.com/haloiam/core/pkg/command"
	"github.com/glebarez/sqlite"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Module provides every dependency a haloiam instance process needs and
// registers the lifecycle hooks that start/stop them: fx.Provide for
// constructors, fx.Invoke for side-effecting lifecycle registration.
var Module = fx.Options(
	fx.Provide(
		config.Load,
		LoggerProvider,
		DatabaseProvider,
		SnowflakeProvider,
		MetricsProvider,
		EventStoreProvider,
		CheckerProvider,
		ErrorHandlerProvider,
		RecoveryProvider,
		ProjectionRegistryProvider,
		command.NewService,
		api.NewDispatcher,
		AuthProvider,
	),
	fx.Invoke(
		registerDatabaseLifecycle,
		registerProjectionLifecycle,
	),
)

// LoggerProvider builds the process-wide logging.Logger from config.
func LoggerProvider(cfg *config.Config) logging.Logger {
	return logging.New(cfg.Logging.Level, cfg.Logging.Format)
}

// DatabaseProvider opens the GORM connection selected by
// cfg.Database.Driver — sqlite backed by glebarez/sqlite (pure Go, no
// cgo), since the rest of this stack already depends on it for embedded
// deployments.
func DatabaseProvider(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.Database.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.Database.DSN)
	default:
		return nil, fmt.Errorf("fxapp: unsupported database driver: %s", cfg.Database.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("fxapp: opening database: %w", err)
	}
	return db, nil
}

// SnowflakeProvider builds the id generator commands use for ids a caller
// didn't supply. Machine id 0 is correct for a single-process deployment;
// a fleet assigns distinct ids per process out of band.
func SnowflakeProvider() (*snowflake.Generator, error) {
	return snowflake.NewGenerator(0)
}

// MetricsProvider builds the OpenTelemetry instruments the eventstore and
// projection layers record against, off a no-exporter MeterProvider — a
// deployment that wants these shipped somewhere wires its own
// sdkmetric.Reader ahead of this provider; absent that, the instruments
// still work, they just have nowhere to export to.
func MetricsProvider() (*metrics.Metrics, error) {
	mp := sdkmetric.NewMeterProvider()
	return metrics.New(mp.Meter("github.com/haloiam/core"))
}

// EventStoreProvider builds the eventstore on top of the shared database
// connection, auto-migrating its tables and starting its in-process
// subscription router.
func EventStoreProvider(db *gorm.DB, logger logging.Logger, m *metrics.Metrics) (eventstore.EventStore, error) {
	store, err := eventstore.New(db, logger)
	if err != nil {
		return nil, err
	}
	return store.WithMetrics(m), nil
}

// CheckerProvider loads a casbin RBAC enforcer over an in-process model:
// (subject, instance, resource, action) request tuples against
// (subject/role, instance, resource, action) policy rows, with g for
// role inheritance. Policies are read once, at construction, from the CSV
// adapter file at policyAdapterPath; no watcher is attached, so later edits
// to the file are not picked up by a running process.
func CheckerProvider() (cmdfw.Checker, error) {
	m, err := casbinmodel.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("fxapp: parsing casbin model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m, fileadapter.NewAdapter(policyAdapterPath))
	if err != nil {
		return nil, fmt.Errorf("fxapp: loading casbin enforcer: %w", err)
	}
	return cmdfw.NewCasbinChecker(enforcer), nil
}

// policyAdapterPath is the CSV policy file casbin loads grants from,
// colocated with the running process.
const policyAdapterPath = "policy.csv"

// rbacModel is casbin's standard RBAC-with-domains model text, matching
// CasbinChecker.CheckPermission's (subject, instance, resource, action)
// enforce calls and falling through to role grants via g.
const rbacModel = `
[request_definition]
r = sub, dom, obj, act

[policy_definition]
p = sub, dom, obj, act

[role_definition]
g = _, _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub, r.dom) && r.dom == p.dom && r.obj == p.obj && r.act == p.act
`

// ErrorHandlerProvider builds the process-wide security.ErrorHandler that
// sanitizes errors before they are logged or returned to a caller.
func ErrorHandlerProvider(logger logging.Logger) *security.ErrorHandler {
	return security.NewErrorHandler(logger)
}

// RecoveryProvider builds the process-wide security.Recovery used to turn a
// panic inside a projector's Apply into an ordinary tick error.
func RecoveryProvider(logger logging.Logger) *security.Recovery {
	return security.NewRecovery(logger)
}

// ProjectionRegistryProvider registers every read-model projector against
// a checkpoint-backed Worker and returns the Registry that runs them, the
// same one-worker-per-projection shape pkg/projection.Registry expects.
func ProjectionRegistryProvider(db *gorm.DB, store eventstore.EventStore, cfg *config.Config, logger logging.Logger, m *metrics.Metrics, eh *security.ErrorHandler, rec *security.Recovery) (*projectionpkg.Registry, error) {
	if err := projection.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("fxapp: migrating projections: %w", err)
	}
	checkpoints, err := projectionCheckpointStore(db, cfg)
	if err != nil {
		return nil, err
	}

	registry := projectionpkg.NewRegistry(logger)
	for _, p := range []projectionpkg.Projector{
		&projection.OrganizationProjector{},
		&projection.HumanUserProjector{},
		&projection.OrgMemberProjector{},
		&projection.LabelPolicyProjector{},
		&projection.LoginPolicyProjector{},
	} {
		registry.Register(&projectionpkg.Worker{
			InstanceID:    cfg.InstanceID,
			Store:         store,
			Checkpoints:   checkpoints,
			Projector:     p,
			Owner:         "haloiam-core",
			LeaseDuration: cfg.Projection.LeaseDuration,
			BatchSize:     cfg.Projection.BatchSize,
			MaxRetries:    cfg.Projection.MaxRetries,
			Logger:        logger,
			Metrics:       m,
			Recovery:      rec,
			ErrorHandler:  eh,
		})
	}

	// Newly pushed events wake the pollers instead of waiting out a full
	// interval. The subscription is an optimization only — a dropped
	// notification just means the next scheduled poll picks the events up.
	if err := store.Subscribe(context.Background(), "*", func(context.Context, eventstore.Event) error {
		registry.WakeAll()
		return nil
	}); err != nil {
		return nil, fmt.Errorf("fxapp: subscribing projection wake-up: %w", err)
	}

	return registry, nil
}

func projectionCheckpointStore(db *gorm.DB, cfg *config.Config) (projectionpkg.CheckpointStore, error) {
	switch cfg.Projection.CheckpointStore {
	case "gorm", "":
		return projectionpkg.NewGormCheckpointStore(db)
	case "dynamodb":
		return nil, fmt.Errorf("fxapp: dynamodb checkpoint store requires an AWS config section not yet exposed here")
	default:
		return nil, fmt.Errorf("fxapp: unsupported checkpoint store: %s", cfg.Projection.CheckpointStore)
	}
}

// AuthProvider builds the C8 facade's bearer-token verifier from config.
func AuthProvider(cfg *config.Config) *api.TokenVerifier {
	return api.NewTokenVerifier([]byte(cfg.Auth.JWTSigningKey))
}

// registerDatabaseLifecycle pings the database on start and closes the
// underlying connection on stop.
func registerDatabaseLifecycle(lc fx.Lifecycle, db *gorm.DB, logger logging.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return fmt.Errorf("fxapp: getting underlying sql.DB: %w", err)
			}
			if err := sqlDB.PingContext(ctx); err != nil {
				return fmt.Errorf("fxapp: pinging database: %w", err)
			}
			logger.Info("database connection established")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return fmt.Errorf("fxapp: getting underlying sql.DB: %w", err)
			}
			logger.Info("closing database connection")
			return sqlDB.Close()
		},
	})
}

// registerProjectionLifecycle starts every registered projection worker on
// OnStart and cancels them on OnStop.
func registerProjectionLifecycle(lc fx.Lifecycle, registry *projectionpkg.Registry, cfg *config.Config, logger logging.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			registry.Start(context.Background(), cfg.Projection.PollInterval)
			logger.Info("projection workers started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			registry.Stop()
			logger.Info("projection workers stopped")
			return nil
		},
	})
}
