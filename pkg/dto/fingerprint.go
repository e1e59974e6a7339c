package dto

import (
	"github.com/google/uuid"

	"github.com/your-org/biosync/internal/models"
)

// FingerprintEnvelope is the record store's response body for both
// success and failure. Clients also accept an empty 204 body as
// success.
type FingerprintEnvelope struct {
	Data         *models.FingerprintRecord `json:"data,omitempty"`
	DeletedCount *int                      `json:"deleted_count,omitempty"`
	Error        string                    `json:"error,omitempty"`
	Message      string                    `json:"message,omitempty"`
}

// FingerprintSummary is a record without the template blobs, for list
// endpoints.
type FingerprintSummary struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	DeviceUserID   int       `json:"device_user_id"`
	FingerIndex    int       `json:"finger_index"`
	FingerName     string    `json:"finger_name"`
	AverageQuality int       `json:"average_quality"`
	CaptureCount   int       `json:"capture_count"`
	SDKVersion     string    `json:"sdk_version,omitempty"`
	EnrolledAt     string    `json:"enrolled_at"`
	CreatedAt      string    `json:"created_at"`
}

type FingerprintListResponse struct {
	Fingerprints []FingerprintSummary `json:"fingerprints"`
	Total        int                  `json:"total"`
}

type MappingResponse struct {
	UserID       uuid.UUID `json:"user_id"`
	DeviceID     string    `json:"device_id"`
	DeviceUserID int       `json:"device_user_id"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    string    `json:"created_at"`
	UpdatedAt    string    `json:"updated_at"`
}
