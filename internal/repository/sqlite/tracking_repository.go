package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"parcel-tracker/internal/domain"
	"parcel-tracker/internal/repository"
)

const createTrackingTable = `
CREATE TABLE IF NOT EXISTS tracking_numbers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	tracking_number TEXT NOT NULL UNIQUE,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tracking_numbers_user_id ON tracking_numbers(user_id);
`

const selectTracking = `SELECT id, user_id, tracking_number, status, created_at FROM tracking_numbers`

type TrackingRepository struct {
	db *sql.DB
}

func NewTrackingRepository(db *sql.DB) repository.TrackingRepository {
	return &TrackingRepository{db: db}
}

func (r *TrackingRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createTrackingTable); err != nil {
		return fmt.Errorf("create tracking_numbers table: %w", err)
	}
	return nil
}

func (r *TrackingRepository) Add(ctx context.Context, ownerID int64, code string) (*domain.TrackingNumber, error) {
	tn := &domain.TrackingNumber{
		OwnerUserID:    ownerID,
		TrackingNumber: code,
		Status:         domain.TrackingStatusPending,
		CreatedAt:      time.Now().UTC(),
	}

	res, err := r.db.ExecContext(ctx, `
INSERT INTO tracking_numbers (user_id, tracking_number, status, created_at)
VALUES (?, ?, ?, ?)`,
		tn.OwnerUserID,
		tn.TrackingNumber,
		string(tn.Status),
		tn.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert tracking number %q: %w", code, repository.ErrDuplicate)
		}
		return nil, fmt.Errorf("insert tracking number: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("tracking number last insert id: %w", err)
	}
	tn.ID = id
	return tn, nil
}

func (r *TrackingRepository) ListByUser(ctx context.Context, ownerID int64) ([]domain.TrackingNumber, error) {
	rows, err := r.db.QueryContext(ctx, selectTracking+`
WHERE user_id = ?
ORDER BY created_at DESC, id DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tracking numbers: %w", err)
	}
	defer rows.Close()

	result := []domain.TrackingNumber{}
	for rows.Next() {
		tn, err := scanTracking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *tn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracking numbers: %w", err)
	}
	return result, nil
}

func (r *TrackingRepository) Delete(ctx context.Context, code string) (*domain.TrackingNumber, error) {
	var deleted *domain.TrackingNumber
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		tn, err := scanTracking(tx.QueryRowContext(ctx, selectTracking+` WHERE tracking_number = ?`, code))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tracking_numbers WHERE id = ?`, tn.ID); err != nil {
			return fmt.Errorf("delete tracking number: %w", err)
		}
		deleted = tn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (r *TrackingRepository) Status(ctx context.Context, code string) (domain.TrackingStatus, error) {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM tracking_numbers WHERE tracking_number = ?`, code).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("get tracking status: %w", err)
	}
	return domain.TrackingStatus(status), nil
}

func (r *TrackingRepository) UpdateStatus(ctx context.Context, code string, status domain.TrackingStatus) (*domain.TrackingNumber, error) {
	var updated *domain.TrackingNumber
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE tracking_numbers SET status = ? WHERE tracking_number = ?`, string(status), code)
		if err != nil {
			return fmt.Errorf("update tracking status: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update tracking status rows: %w", err)
		}
		if affected == 0 {
			return repository.ErrNotFound
		}
		updated, err = scanTracking(tx.QueryRowContext(ctx, selectTracking+` WHERE tracking_number = ?`, code))
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *TrackingRepository) DormInfo(ctx context.Context, code string) (*domain.DormInfo, error) {
	var info domain.DormInfo
	err := r.db.QueryRowContext(ctx, `
SELECT u.username, u.dorm_number
FROM tracking_numbers tn
JOIN users u ON tn.user_id = u.id
WHERE tn.tracking_number = ?
LIMIT 1`,
		code,
	).Scan(&info.Username, &info.DormNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get dorm info: %w", err)
	}
	return &info, nil
}

func (r *TrackingRepository) ListAll(ctx context.Context) ([]domain.TrackingEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT tn.id, tn.user_id, tn.tracking_number, tn.status, tn.created_at, u.username, u.dorm_number
FROM tracking_numbers tn
JOIN users u ON tn.user_id = u.id
ORDER BY tn.created_at DESC, tn.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list all tracking numbers: %w", err)
	}
	defer rows.Close()

	entries := []domain.TrackingEntry{}
	for rows.Next() {
		var (
			entry  domain.TrackingEntry
			status string
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.OwnerUserID,
			&entry.TrackingNumber.TrackingNumber,
			&status,
			&entry.CreatedAt,
			&entry.Username,
			&entry.DormNumber,
		); err != nil {
			return nil, fmt.Errorf("scan tracking entry: %w", err)
		}
		entry.Status = domain.TrackingStatus(status)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracking entries: %w", err)
	}
	return entries, nil
}

func (r *TrackingRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func scanTracking(row scanner) (*domain.TrackingNumber, error) {
	var (
		tn     domain.TrackingNumber
		status string
	)
	if err := row.Scan(&tn.ID, &tn.OwnerUserID, &tn.TrackingNumber, &status, &tn.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan tracking number: %w", err)
	}
	tn.Status = domain.TrackingStatus(status)
	return &tn, nil
}
