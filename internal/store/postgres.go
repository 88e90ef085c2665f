package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore exposes the durable state of the mint pipeline: the
// outbox, mint intents, the story projection, and the royalty ledger.
type PostgresStore struct {
	connector *Connector
	logger    *slog.Logger
}

// NewPostgres wraps the connector in a store and verifies it can
// produce a pool. The handle is never cached here: every operation
// resolves it through the connector, so a demotion (failed liveness
// probe) heals on the next call instead of leaving the store holding a
// disposed pool.
func NewPostgres(ctx context.Context, connector *Connector, logger *slog.Logger) (*PostgresStore, error) {
	s := &PostgresStore{connector: connector, logger: logger}
	if _, err := s.db(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// db resolves the current pool through the connector. When the
// connection is live this is a cache hit under a mutex; when it has
// been demoted the connector re-establishes it.
func (s *PostgresStore) db(ctx context.Context) (*pgxpool.Pool, error) {
	handle, err := s.connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	pool, ok := handle.(*pgxpool.Pool)
	if !ok {
		return nil, fmt.Errorf("connector did not yield a pgx pool")
	}
	return pool, nil
}

func (s *PostgresStore) Close() {
	s.connector.Close()
}

func (s *PostgresStore) Connector() *Connector {
	return s.connector
}

// warnIfUnapplied logs when a guarded UPDATE matched no rows. The
// status guards keep state transitions forward-only; a zero-row
// outcome means a concurrent replay won the race, which operators
// should be able to see.
func (s *PostgresStore) warnIfUnapplied(tag pgconn.CommandTag, msg string, args ...any) {
	if tag.RowsAffected() == 0 {
		s.logger.Warn(msg, args...)
	}
}

// RunMigrations applies every .up.sql file under dir in lexical
// order, tracking applied versions in schema_migrations.
func (s *PostgresStore) RunMigrations(ctx context.Context, dir string) error {
	pool, err := s.db(ctx)
	if err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading migrations dir %s: %w", dir, err)
	}

	var versions []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".up.sql") {
			versions = append(versions, entry.Name())
		}
	}
	sort.Strings(versions)

	for _, version := range versions {
		var applied bool
		err := pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version,
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("checking migration %s: %w", version, err)
		}
		if applied {
			continue
		}

		sql, err := os.ReadFile(filepath.Join(dir, version))
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", version, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("applying migration %s: %w", version, err)
		}
		if _, err := pool.Exec(ctx,
			`INSERT INTO schema_migrations (version) VALUES ($1)`, version,
		); err != nil {
			return fmt.Errorf("recording migration %s: %w", version, err)
		}

		s.logger.Info("migration applied", "version", version)
	}

	return nil
}
