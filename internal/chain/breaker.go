package chain

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storymint/mint-pipeline/internal/domain"
)

// Circuit breaker states
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

// Breaker is a circuit breaker for the chain RPC endpoint, shared
// across dispatcher processes through Redis.
// State transitions: closed → open → half-open → closed
//
//   - Closed: RPC calls proceed. Failures are counted.
//   - Open: calls are rejected without touching the endpoint.
//     Transitions to half-open after the cooldown.
//   - Half-Open: one probe call is allowed. Success → closed,
//     failure → open.
type Breaker struct {
	redisClient      *redis.Client
	logger           *slog.Logger
	endpoint         string
	failureThreshold int
	cooldownPeriod   time.Duration
}

// BreakerState is the introspectable state of the breaker.
type BreakerState struct {
	State        string `json:"state"`
	Failures     int    `json:"failures"`
	LastFailedAt string `json:"last_failed_at,omitempty"`
}

func NewBreaker(redisClient *redis.Client, endpoint string, logger *slog.Logger) *Breaker {
	return &Breaker{
		redisClient:      redisClient,
		logger:           logger,
		endpoint:         endpoint,
		failureThreshold: 5,
		cooldownPeriod:   30 * time.Second,
	}
}

// DialBreaker connects to Redis and returns a breaker owning the
// client. This is the pipeline's only Redis consumer, so the breaker's
// Close tears the connection down with it.
func DialBreaker(ctx context.Context, redisURL, endpoint string, logger *slog.Logger) (*Breaker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return NewBreaker(client, endpoint, logger), nil
}

// Close releases the breaker's Redis client.
func (b *Breaker) Close() error {
	return b.redisClient.Close()
}

func (b *Breaker) key() string {
	return fmt.Sprintf("chain_cb:%s", b.endpoint)
}

// Allow reports whether an RPC call may proceed.
func (b *Breaker) Allow(ctx context.Context) (string, bool) {
	key := b.key()

	data, err := b.redisClient.HGetAll(ctx, key).Result()
	if err != nil || len(data) == 0 {
		// No state yet, or Redis itself is down. The breaker protects
		// the RPC endpoint, not Redis; default to allowing the call.
		return StateClosed, true
	}

	state := data["state"]
	lastFailedAt, _ := strconv.ParseInt(data["last_failed_at"], 10, 64)

	switch state {
	case StateOpen:
		if time.Now().Unix()-lastFailedAt >= int64(b.cooldownPeriod.Seconds()) {
			b.redisClient.HSet(ctx, key, "state", StateHalfOpen)
			b.logger.Info("chain rpc breaker half-open", "endpoint", b.endpoint)
			return StateHalfOpen, true
		}
		return StateOpen, false

	case StateHalfOpen:
		return StateHalfOpen, true

	default:
		return StateClosed, true
	}
}

// RecordSuccess resets the breaker to closed.
func (b *Breaker) RecordSuccess(ctx context.Context) {
	key := b.key()

	state, _ := b.redisClient.HGet(ctx, key, "state").Result()

	b.redisClient.HSet(ctx, key,
		"state", StateClosed,
		"failures", 0,
	)

	if state == StateHalfOpen {
		b.logger.Info("chain rpc breaker closed (recovered)", "endpoint", b.endpoint)
	}
}

// RecordFailure counts an RPC failure and opens the breaker at the
// threshold.
func (b *Breaker) RecordFailure(ctx context.Context) {
	key := b.key()

	failures, err := b.redisClient.HIncrBy(ctx, key, "failures", 1).Result()
	if err != nil {
		b.logger.Error("failed to record chain rpc failure", "error", err)
		return
	}

	b.redisClient.HSet(ctx, key, "last_failed_at", time.Now().Unix())

	state, _ := b.redisClient.HGet(ctx, key, "state").Result()

	if state == StateHalfOpen {
		b.redisClient.HSet(ctx, key, "state", StateOpen)
		b.logger.Warn("chain rpc breaker re-opened (probe failed)", "endpoint", b.endpoint)
	} else if failures >= int64(b.failureThreshold) {
		b.redisClient.HSet(ctx, key, "state", StateOpen)
		b.logger.Warn("chain rpc breaker opened",
			"endpoint", b.endpoint,
			"failures", failures,
			"threshold", b.failureThreshold,
		)
	} else if state == "" {
		b.redisClient.HSet(ctx, key, "state", StateClosed)
	}
}

// State returns the current breaker state for introspection.
func (b *Breaker) State(ctx context.Context) BreakerState {
	data, err := b.redisClient.HGetAll(ctx, b.key()).Result()
	if err != nil || len(data) == 0 {
		return BreakerState{State: StateClosed}
	}
	failures, _ := strconv.Atoi(data["failures"])
	return BreakerState{
		State:        data["state"],
		Failures:     failures,
		LastFailedAt: data["last_failed_at"],
	}
}

// GuardedClient wraps a chain client with the breaker. An open
// breaker surfaces as a transient error so the dispatcher's retry
// loop backs off without hammering a struggling endpoint.
type GuardedClient struct {
	inner   Client
	breaker *Breaker
}

func NewGuardedClient(inner Client, breaker *Breaker) *GuardedClient {
	return &GuardedClient{inner: inner, breaker: breaker}
}

func (g *GuardedClient) SubmitMint(ctx context.Context, wallet, metadataURI string) (string, error) {
	if state, ok := g.breaker.Allow(ctx); !ok {
		return "", domain.Transientf(nil, "chain rpc circuit %s", state)
	}
	txHash, err := g.inner.SubmitMint(ctx, wallet, metadataURI)
	g.record(ctx, err)
	return txHash, err
}

func (g *GuardedClient) CheckTxStatus(ctx context.Context, txHash string) (*TxStatus, error) {
	if state, ok := g.breaker.Allow(ctx); !ok {
		return nil, domain.Transientf(nil, "chain rpc circuit %s", state)
	}
	status, err := g.inner.CheckTxStatus(ctx, txHash)
	g.record(ctx, err)
	return status, err
}

// record only counts transport-level failures against the breaker. A
// reverted or still-pending transaction is a healthy RPC answer.
func (g *GuardedClient) record(ctx context.Context, err error) {
	if err == nil {
		g.breaker.RecordSuccess(ctx)
		return
	}
	if domain.KindOf(err) == domain.KindTransient {
		g.breaker.RecordFailure(ctx)
	}
}
