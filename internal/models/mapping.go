package models

import (
	"time"

	"github.com/google/uuid"
)

// DeviceUserMapping cross-references the application's user identity
// with the small integer the physical device addresses users by.
// Exactly one active row exists per (user_id, device_id) pair.
type DeviceUserMapping struct {
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	DeviceID     string    `json:"device_id" db:"device_id"`
	DeviceUserID int       `json:"device_user_id" db:"device_user_id"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
