package enroll

import "github.com/your-org/biosync/internal/models"

// Status is the client-visible state of one enrollment interaction.
type Status string

const (
	StatusNone     Status = "none"
	StatusCaptured Status = "captured"
	StatusSaving   Status = "saving"
	StatusSaved    Status = "saved"
	StatusError    Status = "error"
)

// SyncStatus tracks the device-side leg independently of the overall
// status, so a caller can show "saved, device pending" distinctly from
// "fully saved".
type SyncStatus string

const (
	SyncIdle    SyncStatus = "idle"
	SyncSyncing SyncStatus = "syncing"
	SyncSuccess SyncStatus = "success"
	SyncError   SyncStatus = "error"
)

// session is the coordinator's working state. In-memory only, one per
// user, never shared across users.
type session struct {
	status     Status
	syncStatus SyncStatus

	deviceUserID int
	fingerIndex  *int
	fingerName   string

	message string
	lastErr string

	pending *models.FingerprintRecord
}

func newSession() session {
	return session{status: StatusNone, syncStatus: SyncIdle}
}

// SessionView is an immutable snapshot of the session handed to
// callers; the live state stays behind the coordinator's lock.
type SessionView struct {
	Status       Status     `json:"status"`
	SyncStatus   SyncStatus `json:"sync_status"`
	DeviceUserID int        `json:"device_user_id,omitempty"`
	FingerIndex  *int       `json:"finger_index,omitempty"`
	FingerName   string     `json:"finger_name,omitempty"`
	Message      string     `json:"message,omitempty"`
	Error        string     `json:"error,omitempty"`
	HasPending   bool       `json:"has_pending"`
}

func (s *session) view() *SessionView {
	v := &SessionView{
		Status:       s.status,
		SyncStatus:   s.syncStatus,
		DeviceUserID: s.deviceUserID,
		FingerName:   s.fingerName,
		Message:      s.message,
		Error:        s.lastErr,
		HasPending:   s.pending != nil,
	}
	if s.fingerIndex != nil {
		idx := *s.fingerIndex
		v.FingerIndex = &idx
	}
	return v
}
