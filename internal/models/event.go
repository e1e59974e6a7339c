package models

import (
	"time"

	"github.com/google/uuid"
)

// EnrollmentEvent is published to NATS on every terminal enrollment or
// deletion outcome and broadcast to dashboard WebSocket clients.
// Transient states (syncing) are never published.
type EnrollmentEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"` // enrollment_saved, enrollment_failed, fingerprint_deleted, deletion_failed
	UserID    uuid.UUID `json:"user_id"`
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`

	FingerIndex *int   `json:"finger_index,omitempty"`
	FingerName  string `json:"finger_name,omitempty"`

	// DeviceSynced is false when the database leg succeeded but the
	// device leg did not; Warning carries the device-side error.
	DeviceSynced     bool   `json:"device_synced"`
	DeletedTemplates int    `json:"deleted_templates,omitempty"`
	Message          string `json:"message,omitempty"`
	Warning          string `json:"warning,omitempty"`
}

const (
	EventEnrollmentSaved    = "enrollment_saved"
	EventEnrollmentFailed   = "enrollment_failed"
	EventFingerprintDeleted = "fingerprint_deleted"
	EventDeletionFailed     = "deletion_failed"
)
