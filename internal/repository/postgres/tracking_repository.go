package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"parcel-tracker/internal/domain"
	"parcel-tracker/internal/repository"
)

type TrackingRepository struct {
	db DBTX
}

func NewTrackingRepository(db DBTX) repository.TrackingRepository {
	return &TrackingRepository{db: db}
}

func (r *TrackingRepository) Init(ctx context.Context) error {
	return checkTable(ctx, r.db, "tracking_numbers")
}

func (r *TrackingRepository) Add(ctx context.Context, ownerID int64, code string) (*domain.TrackingNumber, error) {
	row := r.db.QueryRowContext(ctx, `
INSERT INTO tracking_numbers (user_id, tracking_number)
VALUES ($1, $2)
RETURNING id, user_id, tracking_number, status, created_at`,
		ownerID, code,
	)
	tn, err := scanTracking(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert tracking number %q: %w", code, repository.ErrDuplicate)
		}
		return nil, err
	}
	return tn, nil
}

func (r *TrackingRepository) ListByUser(ctx context.Context, ownerID int64) ([]domain.TrackingNumber, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, tracking_number, status, created_at
FROM tracking_numbers
WHERE user_id = $1
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
	return scanTracking(r.db.QueryRowContext(ctx, `
DELETE FROM tracking_numbers
WHERE tracking_number = $1
RETURNING id, user_id, tracking_number, status, created_at`,
		code,
	))
}

func (r *TrackingRepository) Status(ctx context.Context, code string) (domain.TrackingStatus, error) {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM tracking_numbers WHERE tracking_number = $1`, code).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("get tracking status: %w", err)
	}
	return domain.TrackingStatus(status), nil
}

func (r *TrackingRepository) UpdateStatus(ctx context.Context, code string, status domain.TrackingStatus) (*domain.TrackingNumber, error) {
	return scanTracking(r.db.QueryRowContext(ctx, `
UPDATE tracking_numbers
SET status = $2
WHERE tracking_number = $1
RETURNING id, user_id, tracking_number, status, created_at`,
		code, string(status),
	))
}

func (r *TrackingRepository) DormInfo(ctx context.Context, code string) (*domain.DormInfo, error) {
	var info domain.DormInfo
	err := r.db.QueryRowContext(ctx, `
SELECT u.username, u.dorm_number
FROM tracking_numbers tn
JOIN users u ON tn.user_id = u.id
WHERE tn.tracking_number = $1
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

func scanTracking(row scanner) (*domain.TrackingNumber, error) {
	var (
		tn     domain.TrackingNumber
		status string
	)
	if err := row.Scan(&tn.ID, &tn.OwnerUserID, &tn.TrackingNumber, &status, &tn.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, err
		}
		return nil, fmt.Errorf("scan tracking number: %w", err)
	}
	tn.Status = domain.TrackingStatus(status)
	return &tn, nil
}
