package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/haloiam/core/pkg/eventstore"
	"github.com/haloiam/core/pkg/logging"
	"golang.org/x/sync/errgroup"
)

// Registry owns every Worker in the process and runs them concurrently.
type Registry struct {
	workers []*Worker
	cancel  context.CancelFunc
	logger  logging.Logger
}

// NewRegistry builds an empty Registry.
func NewRegistry(logger logging.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds a worker to the registry. Call before Start.
func (r *Registry) Register(w *Worker) {
	r.workers = append(r.workers, w)
}

// Start launches every registered worker's Run loop in its own goroutine.
// It returns immediately; call Stop to shut them down.
func (r *Registry) Start(ctx context.Context, pollInterval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	for _, w := range r.workers {
		w := w
		go func() {
			if err := w.Run(ctx, pollInterval); err != nil && ctx.Err() == nil && r.logger != nil {
				r.logger.Error("projection worker exited", "projection", w.Projector.Name(), "err", err)
			}
		}()
	}
}

// Stop cancels every worker's Run loop.
func (r *Registry) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

// WakeAll nudges every registered worker to poll now. Wired to the
// eventstore's subscription fan-out so a fresh append is picked up
// without waiting out a full poll interval; delivery of the nudge is
// best-effort, the poll remains the source of truth.
func (r *Registry) WakeAll() {
	for _, w := range r.workers {
		w.Wake()
	}
}

// CatchUp blocks until every named projection's checkpoint has reached (or
// passed) target, or timeout elapses. It is meant for tests and for
// request paths that need read-your-writes consistency against a
// projection that normally only needs to be eventually consistent — poll
// each name in parallel via errgroup rather than serially, since the
// slowest projection shouldn't gate the others.
func (r *Registry) CatchUp(ctx context.Context, instanceID string, names []string, target eventstore.Position, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	byName := make(map[string]*Worker, len(r.workers))
	for _, w := range r.workers {
		byName[w.Projector.Name()] = w
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		w, ok := byName[name]
		if !ok {
			return fmt.Errorf("projection: no registered worker named %q", name)
		}
		g.Go(func() error {
			return waitForPosition(ctx, w.Checkpoints, instanceID, name, target)
		})
	}
	return g.Wait()
}

func waitForPosition(ctx context.Context, store CheckpointStore, instanceID, name string, target eventstore.Position) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		cp, err := store.Get(ctx, instanceID, name)
		if err != nil {
			return err
		}
		if !cp.Position.Less(target) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("projection: timed out waiting for %q to reach position %+v: %w", name, target, ctx.Err())
		case <-ticker.C:
		}
	}
}
