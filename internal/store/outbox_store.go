package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/storymint/mint-pipeline/internal/domain"
)

const outboxColumns = "id, event_type, payload, status, attempts, last_error, created_at, processed_at"

// Enqueue durably appends a pending event. It never blocks on
// downstream processing.
func (s *PostgresStore) Enqueue(ctx context.Context, eventType string, payload []byte) (*domain.OutboxEvent, error) {
	pool, err := s.db(ctx)
	if err != nil {
		return nil, err
	}

	var event domain.OutboxEvent
	err = pool.QueryRow(ctx, `
		INSERT INTO outbox_events (event_type, payload)
		VALUES ($1, $2)
		RETURNING `+outboxColumns+`
	`, eventType, payload).Scan(
		&event.ID, &event.EventType, &event.Payload, &event.Status,
		&event.Attempts, &event.LastError, &event.CreatedAt, &event.ProcessedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting outbox event: %w", err)
	}
	return &event, nil
}

// ClaimNext atomically selects the oldest pending event and moves it
// to processing, stamping processed_at. The SKIP LOCKED subselect is
// the only cross-process lock in the pipeline: two dispatchers can
// never claim the same event. Returns nil when the queue is empty.
func (s *PostgresStore) ClaimNext(ctx context.Context) (*domain.OutboxEvent, error) {
	pool, err := s.db(ctx)
	if err != nil {
		return nil, err
	}

	var event domain.OutboxEvent
	err = pool.QueryRow(ctx, `
		UPDATE outbox_events
		SET status = 'processing', processed_at = NOW()
		WHERE id = (
			SELECT id FROM outbox_events
			WHERE status = 'pending'
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+outboxColumns+`
	`).Scan(
		&event.ID, &event.EventType, &event.Payload, &event.Status,
		&event.Attempts, &event.LastError, &event.CreatedAt, &event.ProcessedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("claiming outbox event: %w", err)
	}
	return &event, nil
}

// Complete marks an event completed. Terminal.
func (s *PostgresStore) Complete(ctx context.Context, id string) error {
	pool, err := s.db(ctx)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		UPDATE outbox_events SET status = 'completed' WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("completing outbox event: %w", err)
	}
	return nil
}

// Fail records a failed attempt. The event returns to pending for a
// later poll unless attempts has reached maxRetries, in which case it
// is terminally failed.
func (s *PostgresStore) Fail(ctx context.Context, id string, errMsg string, maxRetries int) error {
	pool, err := s.db(ctx)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		UPDATE outbox_events
		SET attempts = attempts + 1,
		    last_error = $2,
		    status = CASE WHEN attempts + 1 >= $3 THEN 'failed' ELSE 'pending' END
		WHERE id = $1
	`, id, errMsg, maxRetries)
	if err != nil {
		return fmt.Errorf("failing outbox event: %w", err)
	}
	return nil
}

// MarkFailed terminally fails an event regardless of its attempt
// count. Used for errors a retry cannot fix, such as a reverted mint
// transaction, and for operator intervention.
func (s *PostgresStore) MarkFailed(ctx context.Context, id string, errMsg string) error {
	pool, err := s.db(ctx)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		UPDATE outbox_events
		SET attempts = attempts + 1, last_error = $2, status = 'failed'
		WHERE id = $1
	`, id, errMsg)
	if err != nil {
		return fmt.Errorf("terminally failing outbox event: %w", err)
	}
	return nil
}

// GetOutboxEvent returns a single event by id, or nil if absent.
func (s *PostgresStore) GetOutboxEvent(ctx context.Context, id string) (*domain.OutboxEvent, error) {
	pool, err := s.db(ctx)
	if err != nil {
		return nil, err
	}

	var event domain.OutboxEvent
	err = pool.QueryRow(ctx, `
		SELECT `+outboxColumns+` FROM outbox_events WHERE id = $1
	`, id).Scan(
		&event.ID, &event.EventType, &event.Payload, &event.Status,
		&event.Attempts, &event.LastError, &event.CreatedAt, &event.ProcessedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying outbox event: %w", err)
	}
	return &event, nil
}

// ListOutboxEvents returns events newest-first, optionally filtered by
// status.
func (s *PostgresStore) ListOutboxEvents(ctx context.Context, status string, limit int) ([]domain.OutboxEvent, error) {
	pool, err := s.db(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + outboxColumns + ` FROM outbox_events`
	args := []interface{}{}
	argIdx := 1

	if status != "" {
		query += fmt.Sprintf(" WHERE status = $%d", argIdx)
		args = append(args, status)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying outbox events: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		var e domain.OutboxEvent
		err := rows.Scan(
			&e.ID, &e.EventType, &e.Payload, &e.Status,
			&e.Attempts, &e.LastError, &e.CreatedAt, &e.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning outbox event: %w", err)
		}
		events = append(events, e)
	}

	if events == nil {
		events = []domain.OutboxEvent{}
	}

	return events, nil
}
