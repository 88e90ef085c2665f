package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the connection handle the connector manages. *pgxpool.Pool
// satisfies it; tests substitute fakes through DialFunc.
type DB interface {
	Ping(ctx context.Context) error
	Close()
}

// DialFunc opens a new connection handle. The connector pings the
// handle itself, so implementations should not.
type DialFunc func(ctx context.Context, url string) (DB, error)

// ConnectorConfig controls the retry behavior of Connect.
type ConnectorConfig struct {
	URL        string
	MaxRetries int
	RetryDelay time.Duration
}

// Connector owns the single shared database connection. Concurrent
// Connect calls while a dial is in flight wait on the same attempt
// instead of starting parallel connection storms.
type Connector struct {
	cfg    ConnectorConfig
	dial   DialFunc
	logger *slog.Logger

	mu      sync.Mutex
	db      DB
	lastErr error
	pending chan struct{}

	hookOnce sync.Once
}

// NewConnector creates a connector that dials Postgres via pgxpool.
func NewConnector(cfg ConnectorConfig, logger *slog.Logger) *Connector {
	return &Connector{
		cfg:    cfg,
		logger: logger,
		dial: func(ctx context.Context, url string) (DB, error) {
			return pgxpool.New(ctx, url)
		},
	}
}

// Connect returns the shared connection, establishing it if needed.
// If another goroutine is already connecting, the call waits for that
// attempt's outcome rather than dialing again.
func (c *Connector) Connect(ctx context.Context) (DB, error) {
	c.mu.Lock()
	if c.db != nil {
		db := c.db
		c.mu.Unlock()
		return db, nil
	}
	if c.pending != nil {
		ch := c.pending
		c.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		c.mu.Lock()
		db, err := c.db, c.lastErr
		c.mu.Unlock()
		if db != nil {
			return db, nil
		}
		return nil, err
	}
	ch := make(chan struct{})
	c.pending = ch
	c.mu.Unlock()

	db, err := c.establish(ctx)

	c.mu.Lock()
	c.db = db
	c.lastErr = err
	c.pending = nil
	c.mu.Unlock()
	close(ch)

	return db, err
}

// establish dials and pings up to MaxRetries times with exponential
// backoff: the delay before attempt n+1 is RetryDelay × 2^(n-1). A
// handle that dials but fails the liveness probe is closed before the
// next attempt.
func (c *Connector) establish(ctx context.Context) (DB, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			delay := c.cfg.RetryDelay << (attempt - 2)
			c.logger.Warn("retrying database connection",
				"attempt", attempt,
				"delay_ms", delay.Milliseconds(),
				"error", lastErr,
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		db, err := c.dial(ctx, c.cfg.URL)
		if err != nil {
			lastErr = err
			continue
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			lastErr = err
			continue
		}
		return db, nil
	}
	return nil, fmt.Errorf("connecting to database after %d attempts: %w", c.cfg.MaxRetries, lastErr)
}

// Connected reports whether a live handle is currently held.
func (c *Connector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db != nil
}

// LastError returns the most recent connection or probe error.
func (c *Connector) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// MeasureLatency performs a timed liveness probe. A failed probe
// demotes the connector to disconnected and disposes the handle.
func (c *Connector) MeasureLatency(ctx context.Context) (time.Duration, error) {
	c.mu.Lock()
	db := c.db
	c.mu.Unlock()
	if db == nil {
		return 0, fmt.Errorf("not connected")
	}

	start := time.Now()
	if err := db.Ping(ctx); err != nil {
		c.mu.Lock()
		if c.db == db {
			c.db = nil
		}
		c.lastErr = err
		c.mu.Unlock()
		db.Close()
		return 0, fmt.Errorf("liveness probe failed: %w", err)
	}
	return time.Since(start), nil
}

// Close disposes the current handle, if any.
func (c *Connector) Close() {
	c.mu.Lock()
	db := c.db
	c.db = nil
	c.mu.Unlock()
	if db != nil {
		db.Close()
	}
}

// RegisterShutdownHook installs SIGINT/SIGTERM handlers that close the
// connection before exit. Safe to call multiple times; the handlers
// are installed exactly once.
func (c *Connector) RegisterShutdownHook() {
	c.hookOnce.Do(func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-ch
			c.logger.Info("closing database connection", "signal", sig.String())
			c.Close()
		}()
	})
}
