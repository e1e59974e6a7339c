package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// FingerprintRecord is one enrolled finger for one user. The template
// payloads are opaque vendor blobs; this service never interprets them.
type FingerprintRecord struct {
	ID           uuid.UUID `json:"id" db:"id"`
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	DeviceUserID int       `json:"device_user_id" db:"device_user_id"`
	FingerIndex  int       `json:"finger_index" db:"finger_index"`
	FingerName   string    `json:"finger_name" db:"finger_name"`
	Template     []byte    `json:"template" db:"template"`

	// Redundant encodings of the same finger for different matching
	// strategies. Any of them may be absent.
	PrimaryTemplate      []byte `json:"primary_template,omitempty" db:"primary_template"`
	VerificationTemplate []byte `json:"verification_template,omitempty" db:"verification_template"`
	BackupTemplate       []byte `json:"backup_template,omitempty" db:"backup_template"`
	CombinedTemplate     []byte `json:"combined_template,omitempty" db:"combined_template"`

	AverageQuality int             `json:"average_quality,omitempty" db:"average_quality"`
	CaptureCount   int             `json:"capture_count,omitempty" db:"capture_count"`
	CaptureTimeMs  int             `json:"capture_time_ms,omitempty" db:"capture_time_ms"`
	DeviceInfo     json.RawMessage `json:"device_info,omitempty" db:"device_info"`
	SDKVersion     string          `json:"sdk_version,omitempty" db:"sdk_version"`

	EnrolledAt time.Time `json:"enrolled_at" db:"enrolled_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedBy  string    `json:"updated_by,omitempty" db:"updated_by"`
}

// DeviceIdentity is the device-local addressing info recovered from a
// stored record when the in-memory session no longer has it.
type DeviceIdentity struct {
	DeviceUserID int    `json:"device_user_id"`
	FingerIndex  int    `json:"finger_index"`
	FingerName   string `json:"finger_name"`
}
