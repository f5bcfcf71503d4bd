package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/haloiam/core/pkg/logging"
)

const subscriptionTopic = "events"

// subscriptions is the best-effort, in-process fan-out layer: every pushed
// event is published once to a single watermill gochannel topic, and each
// Subscribe call adds a router handler that discards events not matching
// its pattern. Delivery here is never the source of truth for a projection
// — a dropped message only delays EventsAfterPosition polling from picking
// it up, it never loses it.
type subscriptions struct {
	pubSub  *gochannel.GoChannel
	router  *message.Router
	logger  logging.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	counter int64
}

func newSubscriptions(logger logging.Logger) (*subscriptions, error) {
	wmLogger := watermillLoggerAdapter{logger}
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, wmLogger)

	ctx, cancel := context.WithCancel(context.Background())
	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		cancel()
		return nil, err
	}

	go func() {
		if err := router.Run(ctx); err != nil {
			logger.Error("subscription router stopped", "error", err)
		}
	}()
	<-router.Running()

	return &subscriptions{pubSub: pubSub, router: router, logger: logger, ctx: ctx, cancel: cancel}, nil
}

func (s *subscriptions) publish(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Warn("failed to serialize event for subscription fan-out", "event_id", ev.ID, "error", err)
		return
	}
	msg := message.NewMessage(ev.ID, payload)
	msg.Metadata.Set("event_type", ev.EventType)
	if err := s.pubSub.Publish(subscriptionTopic, msg); err != nil {
		s.logger.Warn("failed to publish event to subscription topic", "event_id", ev.ID, "error", err)
	}
}

func (s *subscriptions) subscribe(ctx context.Context, pattern string, handler func(context.Context, Event) error) error {
	id := atomic.AddInt64(&s.counter, 1)
	name := fmt.Sprintf("sub-%s-%d", pattern, id)

	s.router.AddNoPublisherHandler(name, subscriptionTopic, s.pubSub, func(msg *message.Message) error {
		var ev Event
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return fmt.Errorf("deserializing event for subscriber %s: %w", name, err)
		}
		if !patternMatches(pattern, ev.EventType) {
			return nil
		}
		return handler(ctx, ev)
	})
	// The router is already running by the time any Subscribe call can
	// happen, so handlers added here stay dormant until explicitly started.
	if err := s.router.RunHandlers(s.ctx); err != nil {
		return fmt.Errorf("starting subscriber %s: %w", name, err)
	}
	return nil
}

func (s *subscriptions) close() error {
	s.cancel()
	return s.router.Close()
}

// watermillLoggerAdapter routes watermill's internal logging through our
// own structured logger instead of introducing a second log format.
type watermillLoggerAdapter struct {
	l logging.Logger
}

func (a watermillLoggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.l.Error(msg, flatten(fields, "error", err)...)
}
func (a watermillLoggerAdapter) Info(msg string, fields watermill.LogFields) {
	a.l.Debug(msg, flatten(fields)...)
}
func (a watermillLoggerAdapter) Debug(msg string, fields watermill.LogFields) {
	a.l.Debug(msg, flatten(fields)...)
}
func (a watermillLoggerAdapter) Trace(msg string, fields watermill.LogFields) {
	a.l.Debug(msg, flatten(fields)...)
}
func (a watermillLoggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return a
}

func flatten(fields watermill.LogFields, extra ...interface{}) []interface{} {
	out := make([]interface{}, 0, len(fields)*2+len(extra))
	for k, v := range fields {
		out = append(out, k, v)
	}
	out = append(out, extra...)
	return out
}
