package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/storymint/mint-pipeline/internal/domain"
)

// OutboxStore is the dispatcher's view of the outbox.
type OutboxStore interface {
	ClaimNext(ctx context.Context) (*domain.OutboxEvent, error)
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id string, errMsg string, maxRetries int) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
}

// Handler processes one claimed event's payload.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Dispatcher is the single sequential worker of the pipeline: it
// claims one pending outbox event at a time, routes it by event type,
// and reconciles the event's terminal status. Handler errors never
// stop the loop; only context cancellation does.
type Dispatcher struct {
	store        OutboxStore
	handlers     map[string]Handler
	logger       *slog.Logger
	pollInterval time.Duration
	maxRetries   int
}

// NewDispatcher creates a dispatcher polling at the given interval.
func NewDispatcher(store OutboxStore, pollInterval time.Duration, maxRetries int, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:        store,
		handlers:     make(map[string]Handler),
		logger:       logger,
		pollInterval: pollInterval,
		maxRetries:   maxRetries,
	}
}

// Register routes an event type to a handler.
func (d *Dispatcher) Register(eventType string, h Handler) {
	d.handlers[eventType] = h
}

// Start begins the polling loop. It runs until the context is
// cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("dispatcher started", "poll_interval", d.pollInterval.String())

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping")
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

// drain processes claimed events one at a time until the queue is
// empty or the context is cancelled.
func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !d.processNext(ctx) {
			return
		}
	}
}

// processNext claims and processes a single event. Returns false when
// no pending event was available.
func (d *Dispatcher) processNext(ctx context.Context) bool {
	event, err := d.store.ClaimNext(ctx)
	if err != nil {
		d.logger.Error("failed to claim outbox event", "error", err)
		return false
	}
	if event == nil {
		return false
	}

	err = d.handle(ctx, event)
	if err == nil {
		if err := d.store.Complete(ctx, event.ID); err != nil {
			d.logger.Error("failed to complete outbox event", "event_id", event.ID, "error", err)
		}
		d.logger.Info("outbox event completed",
			"event_id", event.ID,
			"event_type", event.EventType,
			"attempts", event.Attempts+1,
		)
		return true
	}

	d.logger.Error("outbox event handler failed",
		"event_id", event.ID,
		"event_type", event.EventType,
		"attempts", event.Attempts+1,
		"error_kind", string(domain.KindOf(err)),
		"error", err,
	)

	if domain.KindOf(err) == domain.KindFatal {
		// Retrying cannot fix this; skip the remaining attempts.
		if err := d.store.MarkFailed(ctx, event.ID, err.Error()); err != nil {
			d.logger.Error("failed to terminally fail outbox event", "event_id", event.ID, "error", err)
		}
		return true
	}

	if err := d.store.Fail(ctx, event.ID, err.Error(), d.maxRetries); err != nil {
		d.logger.Error("failed to record outbox failure", "event_id", event.ID, "error", err)
	}
	return true
}

// handle routes the event and converts handler panics into errors so
// a misbehaving handler can never take the loop down.
func (d *Dispatcher) handle(ctx context.Context, event *domain.OutboxEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	h, ok := d.handlers[event.EventType]
	if !ok {
		return domain.Fatalf(nil, "no handler registered for event type %q", event.EventType)
	}
	return h(ctx, event.Payload)
}
