// Package audit persists a durable record of completed remote
// invocations for post-hoc inspection, independent of the in-memory
// counters kept by internal/metrics.
//
// # Design rationale
//
// Metrics answer "how is the session doing right now"; the audit log
// answers "what exactly happened to invocation X" after the process
// that served it is long gone. The two are deliberately separate
// stores: metrics stay in-process and cheap, the audit log is an
// optional sink a deployment can point at Postgres when it needs the
// durability.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InvocationRecord is one completed remote invocation.
type InvocationRecord struct {
	ID           string
	ObjectID     uint64
	TypeName     string
	Method       string
	DurationMs   int64
	Success      bool
	Async        bool
	FailureClass string
	ErrorMessage string
	CreatedAt    time.Time
}

// Store is a durable, queryable invocation audit log backed by
// PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Open dials dsn, verifies connectivity, and ensures the audit schema
// exists before returning.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("audit: postgres DSN is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: create postgres pool: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Ping verifies the store can reach PostgreSQL.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("audit: store not initialized")
	}
	return s.pool.Ping(ctx)
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS invocation_audit (
			id TEXT PRIMARY KEY,
			object_id BIGINT NOT NULL,
			type_name TEXT NOT NULL,
			method TEXT NOT NULL,
			duration_ms BIGINT NOT NULL,
			success BOOLEAN NOT NULL,
			async BOOLEAN NOT NULL DEFAULT FALSE,
			failure_class TEXT,
			error_message TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invocation_audit_object_id ON invocation_audit(object_id)`,
		`CREATE INDEX IF NOT EXISTS idx_invocation_audit_created_at ON invocation_audit(created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS dgc_round_audit (
			id BIGSERIAL PRIMARY KEY,
			reclaimed INTEGER NOT NULL,
			error_message TEXT,
			observed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("audit: ensure schema: %w", err)
		}
	}
	return nil
}

// Log records one completed invocation. A duplicate ID is silently
// dropped, so callers may retry after a transient write failure.
func (s *Store) Log(ctx context.Context, rec InvocationRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("audit: invocation record id is required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO invocation_audit
			(id, object_id, type_name, method, duration_ms, success, async, failure_class, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, int64(rec.ObjectID), rec.TypeName, rec.Method, rec.DurationMs, rec.Success, rec.Async,
		nullIfEmpty(rec.FailureClass), nullIfEmpty(rec.ErrorMessage), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit: log invocation: %w", err)
	}
	return nil
}

// LogDGCRound records the outcome of one distributed-GC live-set
// exchange round.
func (s *Store) LogDGCRound(ctx context.Context, reclaimed int, roundErr error) error {
	var msg *string
	if roundErr != nil {
		s := roundErr.Error()
		msg = &s
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dgc_round_audit (reclaimed, error_message)
		VALUES ($1, $2)
	`, reclaimed, msg)
	if err != nil {
		return fmt.Errorf("audit: log dgc round: %w", err)
	}
	return nil
}

// RecentForObject returns the most recent invocations against
// objectID, newest first.
func (s *Store) RecentForObject(ctx context.Context, objectID uint64, limit int) ([]InvocationRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, object_id, type_name, method, duration_ms, success, async, failure_class, error_message, created_at
		FROM invocation_audit
		WHERE object_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, int64(objectID), limit)
	if err != nil {
		return nil, fmt.Errorf("audit: recent for object: %w", err)
	}
	defer rows.Close()
	return scanInvocationRows(rows)
}

// Recent returns the most recent invocations across all objects,
// newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]InvocationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, object_id, type_name, method, duration_ms, success, async, failure_class, error_message, created_at
		FROM invocation_audit
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	defer rows.Close()
	return scanInvocationRows(rows)
}

func scanInvocationRows(rows pgx.Rows) ([]InvocationRecord, error) {
	var out []InvocationRecord
	for rows.Next() {
		var rec InvocationRecord
		var objectID int64
		var failureClass, errorMessage *string
		if err := rows.Scan(&rec.ID, &objectID, &rec.TypeName, &rec.Method, &rec.DurationMs,
			&rec.Success, &rec.Async, &failureClass, &errorMessage, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan invocation: %w", err)
		}
		rec.ObjectID = uint64(objectID)
		if failureClass != nil {
			rec.FailureClass = *failureClass
		}
		if errorMessage != nil {
			rec.ErrorMessage = *errorMessage
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: recent rows: %w", err)
	}
	return out, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
