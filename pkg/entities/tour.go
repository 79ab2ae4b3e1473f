package entities

import (
	"fmt"
	"time"
)

// TourTypeID identifies a tour type bucket. The empty id means none.
type TourTypeID string

// TourID is assigned by the store on first persistence.
type TourID string

// TourRecord is one decoded activity session.
type TourRecord struct {
	DeviceID       string
	Start          time.Time
	Duration       time.Duration
	DistanceMeters float64
	Title          string
	SourceFile     string
	TourTypeID     TourTypeID
}

// Key is the natural key used for idempotent persistence.
func (t TourRecord) Key() string {
	return fmt.Sprintf("%s_%d", t.DeviceID, t.Start.Unix())
}

// AverageSpeedKmh returns distance over duration in km/h, 0 without duration.
func (t TourRecord) AverageSpeedKmh() float64 {
	if t.Duration <= 0 {
		return 0
	}
	return (t.DistanceMeters / 1000) / t.Duration.Hours()
}

// DeviceData carries what the acquiring side knows about a transfer.
type DeviceData struct {
	DeviceID     string
	TransferTime time.Time
}
