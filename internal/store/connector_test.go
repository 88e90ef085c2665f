package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeDB struct {
	mu      sync.Mutex
	pingErr error
	closed  bool
}

func (f *fakeDB) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeDB) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeDB) setPingErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingErr = err
}

func (f *fakeDB) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func testConnector(t *testing.T, cfg ConnectorConfig, dial DialFunc) *Connector {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewConnector(cfg, logger)
	c.dial = dial
	return c
}

func TestConnector_SucceedsFirstAttempt(t *testing.T) {
	db := &fakeDB{}
	var dials atomic.Int32
	c := testConnector(t, ConnectorConfig{URL: "test", MaxRetries: 3, RetryDelay: time.Millisecond},
		func(ctx context.Context, url string) (DB, error) {
			dials.Add(1)
			return db, nil
		})

	got, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != db {
		t.Error("expected the dialed handle")
	}
	if dials.Load() != 1 {
		t.Errorf("expected 1 dial, got %d", dials.Load())
	}
	if !c.Connected() {
		t.Error("connector should report connected")
	}
}

func TestConnector_BackoffScheduleAndErrorWrapping(t *testing.T) {
	dialErr := errors.New("connection refused")
	c := testConnector(t, ConnectorConfig{URL: "test", MaxRetries: 3, RetryDelay: 100 * time.Millisecond},
		func(ctx context.Context, url string) (DB, error) {
			return nil, dialErr
		})

	start := time.Now()
	_, err := c.Connect(context.Background())
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected failure after exhausting retries")
	}
	// Exponential schedule: 100ms before attempt 2, 200ms before attempt 3.
	if elapsed < 300*time.Millisecond {
		t.Errorf("expected total wait >= 300ms, got %v", elapsed)
	}
	if !errors.Is(err, dialErr) {
		t.Errorf("expected error to wrap the last dial error, got %v", err)
	}
	if c.Connected() {
		t.Error("connector should not report connected after failure")
	}
	if c.LastError() == nil {
		t.Error("expected LastError to be set")
	}
}

func TestConnector_ClosesHalfOpenHandleOnPingFailure(t *testing.T) {
	bad := &fakeDB{pingErr: errors.New("ping timeout")}
	good := &fakeDB{}
	var dials atomic.Int32
	c := testConnector(t, ConnectorConfig{URL: "test", MaxRetries: 2, RetryDelay: time.Millisecond},
		func(ctx context.Context, url string) (DB, error) {
			if dials.Add(1) == 1 {
				return bad, nil
			}
			return good, nil
		})

	got, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != good {
		t.Error("expected the second handle")
	}
	if !bad.isClosed() {
		t.Error("the handle that failed its liveness probe must be closed")
	}
}

func TestConnector_SharesInFlightAttempt(t *testing.T) {
	gate := make(chan struct{})
	var dials atomic.Int32
	db := &fakeDB{}
	c := testConnector(t, ConnectorConfig{URL: "test", MaxRetries: 1, RetryDelay: time.Millisecond},
		func(ctx context.Context, url string) (DB, error) {
			dials.Add(1)
			<-gate
			return db, nil
		})

	const callers = 8
	var wg sync.WaitGroup
	results := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = c.Connect(context.Background())
		}(i)
	}

	// Let everyone pile up on the single in-flight dial.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	if dials.Load() != 1 {
		t.Errorf("expected exactly 1 dial for %d concurrent callers, got %d", callers, dials.Load())
	}
	for i, err := range results {
		if err != nil {
			t.Errorf("caller %d: unexpected error: %v", i, err)
		}
	}
}

func TestConnector_MeasureLatencyDemotesOnFailure(t *testing.T) {
	db := &fakeDB{}
	c := testConnector(t, ConnectorConfig{URL: "test", MaxRetries: 1, RetryDelay: time.Millisecond},
		func(ctx context.Context, url string) (DB, error) {
			return db, nil
		})

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	latency, err := c.MeasureLatency(context.Background())
	if err != nil {
		t.Fatalf("unexpected probe error: %v", err)
	}
	if latency < 0 {
		t.Errorf("expected non-negative latency, got %v", latency)
	}

	db.setPingErr(fmt.Errorf("connection reset"))
	if _, err := c.MeasureLatency(context.Background()); err == nil {
		t.Fatal("expected probe failure")
	}
	if c.Connected() {
		t.Error("failed probe must demote the connector to disconnected")
	}
	if !db.isClosed() {
		t.Error("failed probe must dispose the handle")
	}
}

func TestConnector_ReconnectsAfterDemotion(t *testing.T) {
	first := &fakeDB{}
	second := &fakeDB{}
	var dials atomic.Int32
	c := testConnector(t, ConnectorConfig{URL: "test", MaxRetries: 1, RetryDelay: time.Millisecond},
		func(ctx context.Context, url string) (DB, error) {
			if dials.Add(1) == 1 {
				return first, nil
			}
			return second, nil
		})

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first.setPingErr(errors.New("connection reset"))
	if _, err := c.MeasureLatency(context.Background()); err == nil {
		t.Fatal("expected latency check to fail")
	}

	// Consumers resolve the handle through Connect on every operation,
	// so the demotion heals on the next call.
	got, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("unexpected error on reconnect: %v", err)
	}
	if got != second {
		t.Error("expected a freshly dialed handle, not the disposed one")
	}
	if dials.Load() != 2 {
		t.Errorf("expected 2 dials, got %d", dials.Load())
	}
	if !first.isClosed() {
		t.Error("disposed handle should be closed")
	}
	if !c.Connected() {
		t.Error("connector should report connected after reconnect")
	}
}
