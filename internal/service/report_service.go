package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/oklog/ulid/v2"

	"parcel-tracker/internal/domain"
	"parcel-tracker/internal/storage"
)

// ErrStorageDisabled is returned when no export bucket is configured.
var ErrStorageDisabled = errors.New("report storage is not configured")

// ReportOptions locates exports in the bucket.
type ReportOptions struct {
	Bucket     string
	KeyPrefix  string
	PresignTTL time.Duration
}

// ExportResult points at an uploaded tracking report.
type ExportResult struct {
	Location  string
	URL       string
	Entries   int
	CreatedAt time.Time
}

type reportEntry struct {
	TrackingNumber string `json:"tracking_number"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
	Username       string `json:"username"`
	DormNumber     string `json:"dorm_number"`
}

// ReportService archives the admin tracking listing to object storage.
type ReportService struct {
	tracking TrackingService
	storage  storage.Service
	opts     ReportOptions
	now      func() time.Time
}

// NewReportService accepts a nil store; exports then fail with ErrStorageDisabled.
func NewReportService(tracking TrackingService, store storage.Service, opts ReportOptions) *ReportService {
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	return &ReportService{
		tracking: tracking,
		storage:  store,
		opts:     opts,
		now:      time.Now,
	}
}

func (s *ReportService) Enabled() bool {
	return s.storage != nil && s.opts.Bucket != ""
}

func (s *ReportService) ExportTracking(ctx context.Context) (*ExportResult, error) {
	if !s.Enabled() {
		return nil, ErrStorageDisabled
	}

	entries, err := s.tracking.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	body, err := json.Marshal(toReportEntries(entries))
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}

	key := path.Join(s.opts.KeyPrefix, fmt.Sprintf("tracking-%s-%s.json", now.Format("20060102T150405Z"), ulid.Make()))
	location, err := s.storage.PutObject(ctx, s.opts.Bucket, key, bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, err
	}
	url, err := s.storage.GetObjectURL(ctx, s.opts.Bucket, key, s.opts.PresignTTL)
	if err != nil {
		return nil, err
	}

	return &ExportResult{
		Location:  location,
		URL:       url,
		Entries:   len(entries),
		CreatedAt: now,
	}, nil
}

func (s *ReportService) ListExports(ctx context.Context) ([]storage.ObjectInfo, error) {
	if !s.Enabled() {
		return nil, ErrStorageDisabled
	}
	prefix := s.opts.KeyPrefix
	if prefix != "" {
		prefix += "/"
	}
	return s.storage.ListObjects(ctx, s.opts.Bucket, prefix)
}

func toReportEntries(entries []domain.TrackingEntry) []reportEntry {
	out := make([]reportEntry, len(entries))
	for i, e := range entries {
		out[i] = reportEntry{
			TrackingNumber: e.TrackingNumber.TrackingNumber,
			Status:         string(e.Status),
			CreatedAt:      e.CreatedAt.UTC().Format(time.RFC3339),
			Username:       e.Username,
			DormNumber:     e.DormNumber,
		}
	}
	return out
}
