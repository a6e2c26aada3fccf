package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"parcel-tracker/internal/domain"
	"parcel-tracker/internal/repository"
)

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) repository.SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Init(ctx context.Context) error {
	return checkTable(ctx, r.db, "sessions")
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO sessions (id, user_id, dark_mode, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5)`,
		s.ID, nullInt64(s.UserID), s.DarkMode, s.CreatedAt.UTC(), s.ExpiresAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert session: %w", repository.ErrDuplicate)
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	var (
		s      domain.Session
		userID sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
SELECT id, user_id, dark_mode, created_at, expires_at
FROM sessions
WHERE id = $1`,
		id,
	).Scan(&s.ID, &userID, &s.DarkMode, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if userID.Valid {
		uid := userID.Int64
		s.UserID = &uid
	}
	return &s, nil
}

func (r *SessionRepository) Update(ctx context.Context, s *domain.Session) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET user_id = $2, dark_mode = $3 WHERE id = $1`,
		s.ID, nullInt64(s.UserID), s.DarkMode,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session rows: %w", err)
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions rows: %w", err)
	}
	return n, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
