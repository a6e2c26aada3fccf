package repository

import (
	"context"

	"parcel-tracker/internal/domain"
)

// TrackingRepository exposes persistence operations for tracking numbers.
// Tracking numbers are unique across all users, so code-only lookups are
// unambiguous.
type TrackingRepository interface {
	Init(ctx context.Context) error
	Add(ctx context.Context, ownerID int64, code string) (*domain.TrackingNumber, error)
	ListByUser(ctx context.Context, ownerID int64) ([]domain.TrackingNumber, error)
	Delete(ctx context.Context, code string) (*domain.TrackingNumber, error)
	Status(ctx context.Context, code string) (domain.TrackingStatus, error)
	UpdateStatus(ctx context.Context, code string, status domain.TrackingStatus) (*domain.TrackingNumber, error)
	DormInfo(ctx context.Context, code string) (*domain.DormInfo, error)
	ListAll(ctx context.Context) ([]domain.TrackingEntry, error)
}
