package service

import (
	"context"
	"errors"
	"strings"

	"parcel-tracker/internal/domain"
	"parcel-tracker/internal/repository"
)

// TrackingService coordinates tracking number operations.
type TrackingService interface {
	Add(ctx context.Context, ownerID int64, code string) (*domain.TrackingNumber, error)
	ListByUser(ctx context.Context, ownerID int64) ([]domain.TrackingNumber, error)
	Delete(ctx context.Context, code string) (*domain.TrackingNumber, error)
	Status(ctx context.Context, code string) (domain.TrackingStatus, error)
	UpdateStatus(ctx context.Context, code, status string) (*domain.TrackingNumber, error)
	DormInfo(ctx context.Context, code string) (*domain.DormInfo, error)
	ListAll(ctx context.Context) ([]domain.TrackingEntry, error)
}

type trackingService struct {
	tracking repository.TrackingRepository
}

func NewTrackingService(tracking repository.TrackingRepository) TrackingService {
	return &trackingService{tracking: tracking}
}

func (s *trackingService) Add(ctx context.Context, ownerID int64, code string) (*domain.TrackingNumber, error) {
	code = strings.TrimSpace(code)
	if ownerID <= 0 || code == "" {
		return nil, domain.Invalid("Missing fields")
	}
	tn, err := s.tracking.Add(ctx, ownerID, code)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, domain.ErrDuplicateTracking
		}
		return nil, err
	}
	return tn, nil
}

func (s *trackingService) ListByUser(ctx context.Context, ownerID int64) ([]domain.TrackingNumber, error) {
	if ownerID <= 0 {
		return nil, domain.Invalid("Invalid or missing user ID")
	}
	return s.tracking.ListByUser(ctx, ownerID)
}

func (s *trackingService) Delete(ctx context.Context, code string) (*domain.TrackingNumber, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.Invalid("Missing tracking number")
	}
	tn, err := s.tracking.Delete(ctx, code)
	return tn, translateNotFound(err)
}

func (s *trackingService) Status(ctx context.Context, code string) (domain.TrackingStatus, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", domain.Invalid("Missing tracking number")
	}
	status, err := s.tracking.Status(ctx, code)
	return status, translateNotFound(err)
}

func (s *trackingService) UpdateStatus(ctx context.Context, code, status string) (*domain.TrackingNumber, error) {
	code = strings.TrimSpace(code)
	status = strings.TrimSpace(status)
	if code == "" || status == "" {
		return nil, domain.Invalid("Missing fields")
	}
	tn, err := s.tracking.UpdateStatus(ctx, code, domain.TrackingStatus(status))
	return tn, translateNotFound(err)
}

func (s *trackingService) DormInfo(ctx context.Context, code string) (*domain.DormInfo, error) {
	info, err := s.tracking.DormInfo(ctx, code)
	return info, translateNotFound(err)
}

func (s *trackingService) ListAll(ctx context.Context) ([]domain.TrackingEntry, error) {
	return s.tracking.ListAll(ctx)
}

func translateNotFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return domain.ErrNotFound
	}
	return err
}
