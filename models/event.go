package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Event status constants, computed from wall-clock time against the
// event's [StartTime, EndTime] window.
const (
	StatusUpcoming = "UPCOMING"
	StatusOngoing  = "ONGOING"
	StatusEnded    = "ENDED"
)

// EventHeader is the on-chain event record, immutable after creation.
// The encrypted attendance counter is deliberately not part of the
// header; it is read separately as an opaque ciphertext handle.
type EventHeader struct {
	ID          int64          `json:"id"`
	Organizer   common.Address `json:"organizer"`
	MetadataCID string         `json:"metadata_cid"`
	StartTime   int64          `json:"start_time"` // Unix timestamp
	EndTime     int64          `json:"end_time"`   // Unix timestamp
	MintPOAP    bool           `json:"mint_poap"`
}

// Status classifies the event relative to the given instant.
func (h *EventHeader) Status(now time.Time) string {
	ts := now.Unix()
	switch {
	case ts < h.StartTime:
		return StatusUpcoming
	case ts > h.EndTime:
		return StatusEnded
	default:
		return StatusOngoing
	}
}

// IsOngoing reports whether sign-in is currently allowed for the event.
func (h *EventHeader) IsOngoing(now time.Time) bool {
	return h.Status(now) == StatusOngoing
}

// EventMetadata is the off-chain descriptive record fetched from the
// content-addressed store. All fields are optional; the gateway is an
// independent service and metadata may simply be missing.
type EventMetadata struct {
	Title       string `json:"title,omitempty"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
}

// IndexedEvent combines the on-chain header with its temporal
// classification and best-effort metadata.
type IndexedEvent struct {
	EventHeader
	Status      string `json:"status"`
	Title       string `json:"title,omitempty"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
}

// EventDetail is the single-event read model: the header plus the
// current encrypted-counter handle. The handle changes on every
// accepted sign-in, so it must be re-read after each confirmation.
type EventDetail struct {
	EventHeader
	Status      string `json:"status"`
	CountHandle string `json:"count_handle"`
}

// Buckets partitions events into ongoing/upcoming/ended groups. It is a
// pure filter over an existing scan result; callers re-invoke it with a
// fresh instant instead of re-reading the ledger.
type Buckets struct {
	Ongoing  []IndexedEvent `json:"ongoing"`
	Upcoming []IndexedEvent `json:"upcoming"`
	Ended    []IndexedEvent `json:"ended"`
}

func BucketEvents(events []IndexedEvent, now time.Time) Buckets {
	var b Buckets
	for _, e := range events {
		switch e.EventHeader.Status(now) {
		case StatusOngoing:
			b.Ongoing = append(b.Ongoing, e)
		case StatusUpcoming:
			b.Upcoming = append(b.Upcoming, e)
		default:
			b.Ended = append(b.Ended, e)
		}
	}
	return b
}

// CreateEventRequest carries organizer input for event creation.
type CreateEventRequest struct {
	MetadataCID string `json:"metadata_cid" binding:"required"`
	StartTime   int64  `json:"start_time" binding:"required"`
	EndTime     int64  `json:"end_time" binding:"required"`
	MintPOAP    bool   `json:"mint_poap"`
}
