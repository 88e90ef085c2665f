package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/storymint/mint-pipeline/internal/domain"
)

// fakeOutbox is an in-memory outbox with the store's claim/fail
// semantics.
type fakeOutbox struct {
	events []*domain.OutboxEvent
	nextID int
}

func (f *fakeOutbox) enqueue(eventType string, payload string) *domain.OutboxEvent {
	f.nextID++
	e := &domain.OutboxEvent{
		ID:        fmt.Sprintf("evt_%d", f.nextID),
		EventType: eventType,
		Payload:   json.RawMessage(payload),
		Status:    domain.OutboxPending,
		CreatedAt: time.Now(),
	}
	f.events = append(f.events, e)
	return e
}

func (f *fakeOutbox) ClaimNext(ctx context.Context) (*domain.OutboxEvent, error) {
	for _, e := range f.events {
		if e.Status == domain.OutboxPending {
			e.Status = domain.OutboxProcessing
			now := time.Now()
			e.ProcessedAt = &now
			claimed := *e
			return &claimed, nil
		}
	}
	return nil, nil
}

func (f *fakeOutbox) Complete(ctx context.Context, id string) error {
	f.find(id).Status = domain.OutboxCompleted
	return nil
}

func (f *fakeOutbox) Fail(ctx context.Context, id string, errMsg string, maxRetries int) error {
	e := f.find(id)
	e.Attempts++
	e.LastError = &errMsg
	if e.Attempts >= maxRetries {
		e.Status = domain.OutboxFailed
	} else {
		e.Status = domain.OutboxPending
	}
	return nil
}

func (f *fakeOutbox) MarkFailed(ctx context.Context, id string, errMsg string) error {
	e := f.find(id)
	e.Attempts++
	e.LastError = &errMsg
	e.Status = domain.OutboxFailed
	return nil
}

func (f *fakeOutbox) find(id string) *domain.OutboxEvent {
	for _, e := range f.events {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func setupDispatcher(t *testing.T) (*Dispatcher, *fakeOutbox) {
	t.Helper()
	outbox := &fakeOutbox{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDispatcher(outbox, 10*time.Millisecond, 5, logger), outbox
}

func TestDispatcher_CompletesSuccessfulEvent(t *testing.T) {
	d, outbox := setupDispatcher(t)
	event := outbox.enqueue("MintRequested", `{}`)

	var handled int
	d.Register("MintRequested", func(ctx context.Context, payload json.RawMessage) error {
		handled++
		return nil
	})

	if !d.processNext(context.Background()) {
		t.Fatal("expected an event to be processed")
	}
	if handled != 1 {
		t.Errorf("expected handler called once, got %d", handled)
	}
	if event.Status != domain.OutboxCompleted {
		t.Errorf("expected status %q, got %q", domain.OutboxCompleted, event.Status)
	}
}

func TestDispatcher_RetryBound(t *testing.T) {
	d, outbox := setupDispatcher(t)
	event := outbox.enqueue("MintRequested", `{}`)

	var handled int
	d.Register("MintRequested", func(ctx context.Context, payload json.RawMessage) error {
		handled++
		return errors.New("datastore unavailable")
	})

	// Drive claim/fail cycles well past the retry limit.
	for i := 0; i < 10; i++ {
		d.processNext(context.Background())
	}

	if handled != 5 {
		t.Errorf("expected exactly 5 attempts, got %d", handled)
	}
	if event.Status != domain.OutboxFailed {
		t.Errorf("expected terminal status %q, got %q", domain.OutboxFailed, event.Status)
	}
	if event.Attempts != 5 {
		t.Errorf("expected attempts == 5, got %d", event.Attempts)
	}
	if event.LastError == nil || *event.LastError == "" {
		t.Error("expected last error recorded")
	}
}

func TestDispatcher_FatalErrorSkipsRemainingRetries(t *testing.T) {
	d, outbox := setupDispatcher(t)
	event := outbox.enqueue("MintRequested", `{}`)

	var handled int
	d.Register("MintRequested", func(ctx context.Context, payload json.RawMessage) error {
		handled++
		return domain.Fatalf(nil, "mint transaction reverted on-chain")
	})

	for i := 0; i < 5; i++ {
		d.processNext(context.Background())
	}

	if handled != 1 {
		t.Errorf("fatal error must not be retried, handler called %d times", handled)
	}
	if event.Status != domain.OutboxFailed {
		t.Errorf("expected terminal status %q, got %q", domain.OutboxFailed, event.Status)
	}
}

func TestDispatcher_UnknownEventTypeIsTerminal(t *testing.T) {
	d, outbox := setupDispatcher(t)
	event := outbox.enqueue("SomethingElse", `{}`)

	d.processNext(context.Background())

	if event.Status != domain.OutboxFailed {
		t.Errorf("expected unroutable event failed, got %q", event.Status)
	}
}

func TestDispatcher_HandlerPanicIsCaught(t *testing.T) {
	d, outbox := setupDispatcher(t)
	event := outbox.enqueue("MintRequested", `{}`)

	d.Register("MintRequested", func(ctx context.Context, payload json.RawMessage) error {
		panic("boom")
	})

	d.processNext(context.Background())

	if event.Status != domain.OutboxPending {
		t.Errorf("panic should count as a retryable failure, got %q", event.Status)
	}
	if event.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", event.Attempts)
	}
}

func TestDispatcher_ProcessesOldestFirst(t *testing.T) {
	d, outbox := setupDispatcher(t)
	first := outbox.enqueue("MintRequested", `{"n":1}`)
	second := outbox.enqueue("MintRequested", `{"n":2}`)

	var order []string
	d.Register("MintRequested", func(ctx context.Context, payload json.RawMessage) error {
		var p struct {
			N int `json:"n"`
		}
		json.Unmarshal(payload, &p)
		order = append(order, fmt.Sprintf("%d", p.N))
		return nil
	})

	d.processNext(context.Background())
	d.processNext(context.Background())

	if len(order) != 2 || order[0] != "1" || order[1] != "2" {
		t.Errorf("expected oldest-first processing, got %v", order)
	}
	if first.Status != domain.OutboxCompleted || second.Status != domain.OutboxCompleted {
		t.Error("expected both events completed")
	}
}

func TestDispatcher_StopsOnContextCancel(t *testing.T) {
	d, _ := setupDispatcher(t)
	d.Register("MintRequested", func(ctx context.Context, payload json.RawMessage) error {
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop on context cancellation")
	}
}
