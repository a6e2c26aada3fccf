package domain

import "time"

// TrackingStatus is free-form; pending and scanned are the values the
// application itself writes.
type TrackingStatus string

const (
	TrackingStatusPending TrackingStatus = "pending"
	TrackingStatusScanned TrackingStatus = "scanned"
)

// TrackingNumber is a courier code a resident registered for an expected parcel.
type TrackingNumber struct {
	ID             int64
	OwnerUserID    int64
	TrackingNumber string
	Status         TrackingStatus
	CreatedAt      time.Time
}

// DormInfo resolves which resident and dorm a tracking number belongs to.
type DormInfo struct {
	Username   string
	DormNumber string
}

// TrackingEntry is a tracking row joined with its owner, used by the admin view.
type TrackingEntry struct {
	TrackingNumber
	Username   string
	DormNumber string
}
