package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/seedmix/internal/shared"
)

// SessionRecord is a stored session row. Data is the serialized session values.
type SessionRecord struct {
	ID        string
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// SessionRepository persists [SessionRecord] rows.
type SessionRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSessionRepository creates a new [SessionRepository] with the given database connection
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db, now: time.Now}
}

// Save inserts the record or replaces the data and expiry of an existing row with the same id.
func (r *SessionRepository) Save(ctx context.Context, rec *SessionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: session id", shared.ErrMissingArgument)
	}

	now := r.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	query := `
		INSERT INTO sessions (id, data, created_at, updated_at, expires_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at, expires_at = excluded.expires_at
	`

	_, err := r.db.ExecContext(ctx, query, rec.ID, rec.Data, rec.CreatedAt, rec.UpdatedAt, rec.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID. Missing and expired rows both report [shared.ErrSessionNotFound].
func (r *SessionRepository) Get(ctx context.Context, id string) (*SessionRecord, error) {
	query := `
		SELECT id, data, created_at, updated_at, expires_at
		FROM sessions
		WHERE id = ?
	`

	var rec SessionRecord
	err := r.db.QueryRowContext(ctx, query, id).Scan(&rec.ID, &rec.Data, &rec.CreatedAt, &rec.UpdatedAt, &rec.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", shared.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	if !r.now().Before(rec.ExpiresAt) {
		return nil, fmt.Errorf("%w: %s expired", shared.ErrSessionNotFound, id)
	}
	return &rec, nil
}

// Delete removes a session by ID. Deleting a missing row is not an error.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// PurgeExpired deletes every row whose expiry is at or before now and returns the number removed.
func (r *SessionRepository) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows, nil
}

// Count returns the number of stored rows, expired or not.
func (r *SessionRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}
