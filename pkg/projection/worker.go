package projection

import (
	"context"
	"sync"
	"time"

	"github.com/haloiam/core/pkg/eventstore"
	"github.com/haloiam/core/pkg/logging"
	"github.com/haloiam/core/pkg/metrics"
	"github.com/haloiam/core/pkg/security"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("github.com/haloiam/core/pkg/projection")

func metricAttr(key, value string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String(key, value))
}

// Projector applies a batch of events to a read model. Apply must be
// idempotent: a worker crash between a successful Apply and its checkpoint
// advance means the same batch is redelivered, and the read model must end
// up in the same state either way (upserts keyed by aggregate ID, not
// blind inserts).
//
// tx is non-nil when the checkpoint store backing the Worker supports
// combining the apply and the checkpoint advance in one transaction
// (GormCheckpointStore); a projector that writes to the same database the
// checkpoint lives in should join tx rather than opening its own
// connection, so the two can never diverge. tx is nil for checkpoint
// stores that cannot offer that guarantee (DynamoDBCheckpointStore), in
// which case the projector is responsible for its own write consistency.
type Projector interface {
	Name() string
	Apply(ctx context.Context, tx *gorm.DB, events []eventstore.Event) error
}

// TypeFilter is optionally implemented by a Projector to declare the
// aggregate and event types it cares about. A Worker hands a filtering
// projector only matching events, while still advancing the checkpoint
// over the full fetched batch so unrelated events don't stall it. An
// empty slice from either method means "no restriction on that axis".
type TypeFilter interface {
	AggregateTypes() []string
	EventTypes() []string
}

// Worker polls the eventstore for one projection and keeps its checkpoint
// advancing. Multiple Worker instances for the same projection name can run
// concurrently (e.g. one per process in a fleet) — the checkpoint's lease
// ensures only one makes progress at a time.
type Worker struct {
	InstanceID    string
	Store         eventstore.EventStore
	Checkpoints   CheckpointStore
	Projector     Projector
	Owner         string
	LeaseDuration time.Duration
	BatchSize     int
	// MaxRetries caps how many consecutive tick failures a checkpoint
	// tolerates before it is marked failed and stops being retried — see
	// handleFailure.
	MaxRetries int
	Logger     logging.Logger
	Metrics    *metrics.Metrics
	// Recovery, if set, wraps each Projector.Apply call so a panic inside a
	// projector (a nil read-model row, a malformed payload an older version
	// never rejected) becomes a tick error instead of taking the whole
	// worker down.
	Recovery *security.Recovery
	// ErrorHandler, if set, sanitizes and logs tick failures instead of
	// Run logging them raw.
	ErrorHandler *security.ErrorHandler

	wakeOnce sync.Once
	wake     chan struct{}
}

func (w *Worker) wakeCh() chan struct{} {
	w.wakeOnce.Do(func() { w.wake = make(chan struct{}, 1) })
	return w.wake
}

// Wake nudges the worker to poll immediately instead of waiting out the
// rest of its tick interval. Best-effort and non-blocking: if a wake is
// already pending the new one is dropped, since the pending poll will see
// whatever this one would have. This is how subscription notifications
// reach workers — the poll stays the source of truth.
func (w *Worker) Wake() {
	select {
	case w.wakeCh() <- struct{}{}:
	default:
	}
}

// filterEvents narrows a fetched batch to what the projector declared
// interest in, when it declares anything at all.
func (w *Worker) filterEvents(events []eventstore.Event) []eventstore.Event {
	tf, ok := w.Projector.(TypeFilter)
	if !ok {
		return events
	}
	aggTypes := toSet(tf.AggregateTypes())
	evTypes := toSet(tf.EventTypes())
	if aggTypes == nil && evTypes == nil {
		return events
	}
	matched := make([]eventstore.Event, 0, len(events))
	for _, ev := range events {
		if aggTypes != nil && !aggTypes[ev.AggregateType] {
			continue
		}
		if evTypes != nil && !evTypes[ev.EventType] {
			continue
		}
		matched = append(matched, ev)
	}
	return matched
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func (w *Worker) batchSize() int {
	if w.BatchSize <= 0 {
		return 200
	}
	return w.BatchSize
}

func (w *Worker) lease() time.Duration {
	if w.LeaseDuration <= 0 {
		return 30 * time.Second
	}
	return w.LeaseDuration
}

func (w *Worker) maxRetries() int {
	if w.MaxRetries <= 0 {
		return 5
	}
	return w.MaxRetries
}

// applyProjector runs the projector's Apply step, through Recovery when one
// is configured so a panic surfaces as an ordinary tick error.
func (w *Worker) applyProjector(ctx context.Context, tx *gorm.DB, events []eventstore.Event) error {
	if w.Recovery == nil {
		return w.Projector.Apply(ctx, tx, events)
	}
	return w.Recovery.SafeExecute("projection."+w.Projector.Name(), func() error {
		return w.Projector.Apply(ctx, tx, events)
	})
}

// handleFailure checks the checkpoint's retry count after a failed tick and
// marks it failed once it has exceeded the worker's retry budget, so a
// poison event stops being retried forever.
func (w *Worker) handleFailure(ctx context.Context, tickErr error) {
	cp, err := w.Checkpoints.Get(ctx, w.InstanceID, w.Projector.Name())
	if err != nil {
		if w.Logger != nil {
			w.Logger.Error("reading checkpoint after failed tick", "projection", w.Projector.Name(), "err", err)
		}
		return
	}
	if cp.Failed || cp.RetryCount < w.maxRetries() {
		return
	}
	if err := w.Checkpoints.MarkFailed(ctx, w.InstanceID, w.Projector.Name(), w.Owner, tickErr); err != nil {
		if w.Logger != nil {
			w.Logger.Error("marking checkpoint failed", "projection", w.Projector.Name(), "err", err)
		}
		return
	}
	if w.Metrics != nil {
		w.Metrics.ProjectionErrors.Add(ctx, 1, metricAttr("projection", w.Projector.Name()))
	}
	if w.Logger != nil {
		w.Logger.Error("projection checkpoint failed after max retries, manual intervention required",
			"projection", w.Projector.Name(), "retry_count", cp.RetryCount, "last_error", tickErr.Error())
	}
}

// Tick runs one poll/apply/advance cycle and reports how many events were
// applied. Zero with a nil error means either another owner holds the
// lease, or there was nothing new to apply.
func (w *Worker) Tick(ctx context.Context) (int, error) {
	applied, _, err := w.poll(ctx)
	return applied, err
}

// poll is Tick plus a full-page indicator: full is true when the fetch
// came back with a complete batch, meaning more events are likely waiting
// behind it and the caller should poll again immediately instead of
// sleeping out the rest of its interval.
func (w *Worker) poll(ctx context.Context) (applied int, full bool, err error) {
	ctx, span := tracer.Start(ctx, "projection.Tick", trace.WithAttributes(
		attribute.String("projection", w.Projector.Name()),
	))
	defer span.End()
	start := time.Now()

	applied, fetched, err := w.tick(ctx)

	if w.Metrics != nil {
		w.Metrics.ApplyDuration.Record(ctx, time.Since(start).Seconds(), metricAttr("projection", w.Projector.Name()))
		if err != nil {
			w.Metrics.ProjectionErrors.Add(ctx, 1, metricAttr("projection", w.Projector.Name()))
		} else if applied > 0 {
			w.Metrics.LeaseAcquired.Add(ctx, 1, metricAttr("projection", w.Projector.Name()))
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.handleFailure(ctx, err)
	}
	return applied, fetched == w.batchSize(), err
}

// tick reports both how many events the projector applied and how many the
// fetch returned — the two differ for type-filtered projectors, and it is
// the fetched count that tells Run whether a backlog remains.
func (w *Worker) tick(ctx context.Context) (applied, fetched int, err error) {
	if tcs, ok := w.Checkpoints.(*GormCheckpointStore); ok {
		_, _, err := tcs.RunInTransaction(ctx, w.InstanceID, w.Projector.Name(), w.Owner, w.lease(),
			func(tx *gorm.DB, current eventstore.Position) (eventstore.Position, error) {
				events, err := w.Store.EventsAfterPosition(ctx, w.InstanceID, current, w.batchSize())
				if err != nil {
					return current, err
				}
				fetched = len(events)
				if len(events) == 0 {
					return current, nil
				}
				matched := w.filterEvents(events)
				if len(matched) > 0 {
					if err := w.applyProjector(ctx, tx, matched); err != nil {
						return current, err
					}
				}
				applied = len(matched)
				// Advance over the full fetched batch, matched or not, so
				// events this projection doesn't care about never stall it.
				return events[len(events)-1].Position, nil
			})
		return applied, fetched, err
	}

	return w.tickNonTransactional(ctx)
}

// tickNonTransactional is the fallback path for checkpoint stores that
// cannot combine apply and advance atomically (DynamoDBCheckpointStore):
// acquire, apply with no shared transaction, then advance.
func (w *Worker) tickNonTransactional(ctx context.Context) (int, int, error) {
	cp, acquired, err := w.Checkpoints.Acquire(ctx, w.InstanceID, w.Projector.Name(), w.Owner, w.lease())
	if err != nil {
		return 0, 0, err
	}
	if !acquired {
		return 0, 0, nil
	}

	events, err := w.Store.EventsAfterPosition(ctx, w.InstanceID, cp.Position, w.batchSize())
	if err != nil {
		return 0, 0, err
	}
	if len(events) == 0 {
		return 0, 0, nil
	}

	matched := w.filterEvents(events)
	if len(matched) > 0 {
		if err := w.applyProjector(ctx, nil, matched); err != nil {
			if rerr := w.Checkpoints.RecordFailure(ctx, w.InstanceID, w.Projector.Name(), w.Owner, err); rerr != nil && w.Logger != nil {
				w.Logger.Error("recording projection failure", "projection", w.Projector.Name(), "err", rerr)
			}
			return 0, len(events), err
		}
	}

	newPos := events[len(events)-1].Position
	if err := w.Checkpoints.Advance(ctx, w.InstanceID, w.Projector.Name(), w.Owner, newPos); err != nil {
		return 0, len(events), err
	}
	return len(matched), len(events), nil
}

// Run polls on the given interval — or sooner, when Wake is called — until
// ctx is cancelled. A poll that drained a full batch loops immediately: a
// backlog (catch-up after downtime, a burst of writes) is worked off
// continuously rather than one batch per interval; the worker only sleeps
// once a fetch comes back short.
func (w *Worker) Run(ctx context.Context, pollInterval time.Duration) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if w.Logger != nil {
				w.Logger.Info("projection worker stopping", "projection", w.Projector.Name())
			}
			return ctx.Err()
		case <-ticker.C:
		case <-w.wakeCh():
		}

		for ctx.Err() == nil {
			n, full, err := w.poll(ctx)
			if err != nil {
				if w.ErrorHandler != nil {
					w.ErrorHandler.HandleSystemError(err, "projection."+w.Projector.Name())
				} else if w.Logger != nil {
					w.Logger.Error("projection tick failed", "projection", w.Projector.Name(), "err", err)
				}
				break
			}
			if n > 0 && w.Logger != nil {
				w.Logger.Debug("projection applied batch", "projection", w.Projector.Name(), "events", n)
			}
			if !full {
				break
			}
		}
	}
}
