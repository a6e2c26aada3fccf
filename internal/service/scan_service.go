package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"parcel-tracker/internal/domain"
	"parcel-tracker/internal/qr"
)

const (
	// LabelNoCode is reported when the QR service saw no code.
	LabelNoCode = -2
	// LabelUnknown is reported for codes that cannot be routed to a dorm.
	LabelUnknown = -1
)

// ScanResult is what the sorting hardware receives for one scan.
type ScanResult struct {
	QRText      string
	MappedLabel int
}

// ScanService resolves scanned parcels to the dorm they should be routed to.
type ScanService struct {
	decoder  qr.Decoder
	tracking TrackingService
	logger   *logrus.Logger
}

func NewScanService(decoder qr.Decoder, tracking TrackingService, logger *logrus.Logger) *ScanService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ScanService{
		decoder:  decoder,
		tracking: tracking,
		logger:   logger,
	}
}

// Resolve asks the QR service for the current code and maps it to a dorm.
func (s *ScanService) Resolve(ctx context.Context) (*ScanResult, error) {
	text, err := s.decoder.Decode(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	return s.ResolveCode(ctx, text)
}

// ResolveCode marks a known tracking number as scanned and returns the owning
// dorm number as the label.
func (s *ScanService) ResolveCode(ctx context.Context, text string) (*ScanResult, error) {
	result := &ScanResult{QRText: text}
	if !qr.Detected(text) {
		result.MappedLabel = LabelNoCode
		return result, nil
	}

	if _, err := s.tracking.Status(ctx, text); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.WithField("tracking_number", text).Info("scanned code is not registered")
			result.MappedLabel = LabelUnknown
			return result, nil
		}
		return nil, err
	}

	if _, err := s.tracking.UpdateStatus(ctx, text, string(domain.TrackingStatusScanned)); err != nil {
		return nil, err
	}

	info, err := s.tracking.DormInfo(ctx, text)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			result.MappedLabel = LabelUnknown
			return result, nil
		}
		return nil, err
	}

	result.MappedLabel = ParseDormLabel(info.DormNumber)
	s.logger.WithFields(logrus.Fields{
		"tracking_number": text,
		"dorm":            info.DormNumber,
		"label":           result.MappedLabel,
	}).Info("parcel scanned")
	return result, nil
}

// ParseDormLabel reads the leading decimal digits of a dorm number, so "12A"
// maps to 12. Labels without leading digits map to LabelUnknown.
func ParseDormLabel(dorm string) int {
	dorm = strings.TrimSpace(dorm)
	end := 0
	for end < len(dorm) && dorm[end] >= '0' && dorm[end] <= '9' {
		end++
	}
	if end == 0 {
		return LabelUnknown
	}
	n, err := strconv.Atoi(dorm[:end])
	if err != nil {
		return LabelUnknown
	}
	return n
}
