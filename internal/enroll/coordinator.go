package enroll

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/biosync/internal/device"
	"github.com/your-org/biosync/internal/models"
	"github.com/your-org/biosync/internal/observability"
)

// RecordStore is the durable source-of-truth side: the Persistence
// Client in production.
type RecordStore interface {
	Write(ctx context.Context, rec *models.FingerprintRecord) (*models.FingerprintRecord, error)
	Delete(ctx context.Context, userID uuid.UUID, fingerIndex *int) (int, error)
	Lookup(ctx context.Context, userID uuid.UUID) (*models.DeviceIdentity, error)
}

// MappingRegistry upserts the user-to-device identity association.
type MappingRegistry interface {
	Upsert(ctx context.Context, userID uuid.UUID, deviceID string, deviceUserID int) error
	Deactivate(ctx context.Context, userID uuid.UUID, deviceID string) error
}

// DeviceSyncer pushes templates to, and deletes them from, the
// physical device.
type DeviceSyncer interface {
	SyncTemplate(ctx context.Context, rec *models.FingerprintRecord, displayName string) (*device.SyncResult, error)
	DeleteTemplate(ctx context.Context, deviceUserID int, userID uuid.UUID, fingerIndex *int) (*device.DeleteResult, error)
}

// EventSink receives exactly one event per terminal outcome. Optional.
type EventSink interface {
	PublishEnrollment(ctx context.Context, ev *models.EnrollmentEvent) error
}

const (
	defaultCommitErrorClear = 5 * time.Second
	defaultDeleteQuiesce    = 8 * time.Second
)

// Deps wires a coordinator. Records, Mappings and Device are required;
// Events is optional. Zero clear durations take the defaults;
// DisableAutoClear turns the banner timers off entirely for callers
// that manage their own display lifecycle.
type Deps struct {
	Records  RecordStore
	Mappings MappingRegistry
	Device   DeviceSyncer
	Events   EventSink

	DeviceID string

	CommitErrorClear time.Duration
	DeleteQuiesce    time.Duration
	DisableAutoClear bool
}

// Coordinator owns the enrollment state machine for one user context.
// It sequences the persistence, mapping and device legs, classifies
// what is fatal versus best-effort, and exposes a resumable session
// snapshot. Construct one per active enrollment interaction.
type Coordinator struct {
	userID uuid.UUID
	deps   Deps

	mu         sync.Mutex
	sess       session
	clearTimer *time.Timer
}

func NewCoordinator(userID uuid.UUID, deps Deps) *Coordinator {
	if deps.CommitErrorClear == 0 {
		deps.CommitErrorClear = defaultCommitErrorClear
	}
	if deps.DeleteQuiesce == 0 {
		deps.DeleteQuiesce = defaultDeleteQuiesce
	}
	return &Coordinator{
		userID: userID,
		deps:   deps,
		sess:   newSession(),
	}
}

// CaptureInput carries one captured finger from the capture SDK.
type CaptureInput struct {
	Template     []byte          `json:"template"`
	DeviceUserID int             `json:"device_user_id"`
	FingerIndex  int             `json:"finger_index"`
	FingerName   string          `json:"finger_name"`
	Primary      []byte          `json:"primary_template,omitempty"`
	Verification []byte          `json:"verification_template,omitempty"`
	Backup       []byte          `json:"backup_template,omitempty"`
	Combined     []byte          `json:"combined_template,omitempty"`
	Quality      int             `json:"average_quality,omitempty"`
	CaptureCount int             `json:"capture_count,omitempty"`
	CaptureTime  int             `json:"capture_time_ms,omitempty"`
	DeviceInfo   json.RawMessage `json:"device_info,omitempty"`
	SDKVersion   string          `json:"sdk_version,omitempty"`
}

// Capture validates the input and stores it as pending data awaiting a
// user-confirmed commit. No database or device call happens here;
// capture and commit are decoupled so the caller can review first.
// Re-capturing replaces the previous pending data: last capture wins.
// While a commit or deletion is in flight the session is locked down
// and Capture returns ErrSyncInProgress, so a late capture cannot be
// swallowed by the commit clearing pending data.
func (c *Coordinator) Capture(input CaptureInput) (*SessionView, error) {
	if len(input.Template) == 0 {
		return nil, &ValidationError{Field: "template", Reason: "must not be empty"}
	}
	if input.DeviceUserID <= 0 {
		return nil, &ValidationError{Field: "device_user_id", Reason: "is required"}
	}
	if !ValidFingerIndex(input.FingerIndex) {
		return nil, &ValidationError{Field: "finger_index", Reason: "must be between 0 and 9"}
	}

	fingerName := input.FingerName
	if fingerName == "" {
		fingerName = FingerName(input.FingerIndex)
	}

	combined := input.Combined
	if combined == nil {
		combined = input.Template
	}

	rec := &models.FingerprintRecord{
		UserID:               c.userID,
		DeviceUserID:         input.DeviceUserID,
		FingerIndex:          input.FingerIndex,
		FingerName:           fingerName,
		Template:             input.Template,
		PrimaryTemplate:      input.Primary,
		VerificationTemplate: input.Verification,
		BackupTemplate:       input.Backup,
		CombinedTemplate:     combined,
		AverageQuality:       input.Quality,
		CaptureCount:         input.CaptureCount,
		CaptureTimeMs:        input.CaptureTime,
		DeviceInfo:           input.DeviceInfo,
		SDKVersion:           input.SDKVersion,
		EnrolledAt:           time.Now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess.syncStatus == SyncSyncing {
		return nil, ErrSyncInProgress
	}

	idx := input.FingerIndex
	c.sess.status = StatusCaptured
	c.sess.syncStatus = SyncIdle
	c.sess.deviceUserID = input.DeviceUserID
	c.sess.fingerIndex = &idx
	c.sess.fingerName = fingerName
	c.sess.message = fmt.Sprintf("%s captured, pending commit", fingerName)
	c.sess.lastErr = ""
	c.sess.pending = rec

	slog.Info("fingerprint captured",
		"user_id", c.userID,
		"device_user_id", input.DeviceUserID,
		"finger_index", input.FingerIndex,
		"finger_name", fingerName,
	)
	return c.sess.view(), nil
}

// CommitResult reports a durable enrollment. Warning is set when a
// best-effort leg (mapping upsert or device sync) failed while the
// database write already succeeded.
type CommitResult struct {
	DeviceUserID int    `json:"device_user_id"`
	FingerName   string `json:"finger_name"`
	Warning      string `json:"warning,omitempty"`
}

// Commit persists the pending capture, upserts the device mapping and
// pushes the template to hardware, in that order. Only the database
// write is fatal: a mapping or device failure surfaces as a warning on
// an otherwise successful commit, and the database state stays
// authoritative.
func (c *Coordinator) Commit(ctx context.Context, displayName string) (*CommitResult, error) {
	c.mu.Lock()
	if c.sess.syncStatus == SyncSyncing {
		c.mu.Unlock()
		return nil, ErrSyncInProgress
	}
	if c.sess.status != StatusCaptured || c.sess.pending == nil {
		c.mu.Unlock()
		return nil, ErrNoPendingCapture
	}
	rec := c.sess.pending
	c.sess.status = StatusSaving
	c.sess.syncStatus = SyncSyncing
	c.mu.Unlock()

	stored, err := c.deps.Records.Write(ctx, rec)
	if err != nil {
		c.mu.Lock()
		c.sess.status = StatusError
		c.sess.syncStatus = SyncIdle
		c.sess.lastErr = err.Error()
		c.sess.message = ""
		c.scheduleClearLocked(c.deps.CommitErrorClear)
		c.mu.Unlock()

		observability.EnrollmentsCommitted.WithLabelValues("failed").Inc()
		c.publish(ctx, &models.EnrollmentEvent{
			Type:        models.EventEnrollmentFailed,
			FingerIndex: &rec.FingerIndex,
			FingerName:  rec.FingerName,
			Message:     "enrollment failed: database write did not succeed",
			Warning:     err.Error(),
		})
		return nil, err
	}

	result := &CommitResult{DeviceUserID: stored.DeviceUserID, FingerName: stored.FingerName}

	// The record is durable from here on; nothing below may fail the
	// commit or roll it back.
	if err := c.deps.Mappings.Upsert(ctx, c.userID, c.deps.DeviceID, stored.DeviceUserID); err != nil {
		slog.Warn("device mapping upsert failed",
			"user_id", c.userID,
			"device_id", c.deps.DeviceID,
			"error", err,
		)
		result.Warning = fmt.Sprintf("mapping registry update failed: %v", err)
	}

	syncRes, syncErr := c.deps.Device.SyncTemplate(ctx, stored, displayName)

	c.mu.Lock()
	c.sess.status = StatusSaved
	c.sess.pending = nil
	if syncErr != nil {
		c.sess.syncStatus = SyncError
		c.sess.lastErr = fmt.Sprintf("enrolled, device sync failed: %v", syncErr)
		c.sess.message = ""
	} else {
		c.sess.syncStatus = SyncSuccess
		c.sess.lastErr = ""
		c.sess.message = fmt.Sprintf("%s enrolled and synced to device %d", stored.FingerName, syncRes.DeviceUserID)
	}
	c.mu.Unlock()

	outcome := "saved"
	if syncErr != nil {
		outcome = "saved_device_pending"
		if result.Warning != "" {
			result.Warning += "; "
		}
		result.Warning += fmt.Sprintf("device sync failed: %v", syncErr)
	}
	observability.EnrollmentsCommitted.WithLabelValues(outcome).Inc()

	c.publish(ctx, &models.EnrollmentEvent{
		Type:         models.EventEnrollmentSaved,
		FingerIndex:  &stored.FingerIndex,
		FingerName:   stored.FingerName,
		DeviceSynced: syncErr == nil,
		Message:      fmt.Sprintf("%s enrolled for device user %d", stored.FingerName, stored.DeviceUserID),
		Warning:      result.Warning,
	})

	slog.Info("enrollment committed",
		"user_id", c.userID,
		"device_user_id", stored.DeviceUserID,
		"finger_index", stored.FingerIndex,
		"device_synced", syncErr == nil,
	)
	return result, nil
}

// DeleteResult reports a deletion. DeletedRecords counts database
// rows; DeviceDeletedTemplates and UserFullyDeleted are what the
// device itself reported, surfaced separately because device success
// does not imply "all gone".
type DeleteResult struct {
	DeletedRecords         int    `json:"deleted_records"`
	DeviceDeletedTemplates int    `json:"device_deleted_templates"`
	UserFullyDeleted       bool   `json:"user_fully_deleted"`
	Warning                string `json:"warning,omitempty"`
}

// DeleteOne removes a single finger. A nil fingerIndex resolves the
// finger from the session or the stored record.
func (c *Coordinator) DeleteOne(ctx context.Context, fingerIndex *int) (*DeleteResult, error) {
	return c.delete(ctx, fingerIndex, false)
}

// DeleteAll removes every finger for the user, from the database first
// and then best-effort from the device.
func (c *Coordinator) DeleteAll(ctx context.Context) (*DeleteResult, error) {
	return c.delete(ctx, nil, true)
}

func (c *Coordinator) delete(ctx context.Context, fingerIndex *int, all bool) (*DeleteResult, error) {
	c.mu.Lock()
	if c.sess.syncStatus == SyncSyncing {
		c.mu.Unlock()
		return nil, ErrSyncInProgress
	}
	c.sess.syncStatus = SyncSyncing
	c.sess.lastErr = ""
	c.sess.message = ""

	// Prefer the in-memory session's identity; fall back to the stored
	// record below.
	deviceUserID := 0
	if c.sess.pending != nil {
		deviceUserID = c.sess.pending.DeviceUserID
		if fingerIndex == nil && !all {
			idx := c.sess.pending.FingerIndex
			fingerIndex = &idx
		}
	} else if c.sess.deviceUserID > 0 {
		deviceUserID = c.sess.deviceUserID
		if fingerIndex == nil && !all {
			fingerIndex = c.sess.fingerIndex
		}
	}
	c.mu.Unlock()

	if deviceUserID == 0 {
		if ident, err := c.deps.Records.Lookup(ctx, c.userID); err == nil {
			deviceUserID = ident.DeviceUserID
			if fingerIndex == nil && !all {
				idx := ident.FingerIndex
				fingerIndex = &idx
			}
		} else {
			slog.Warn("device identity lookup failed", "user_id", c.userID, "error", err)
		}
	}

	var dbIndex *int
	if !all {
		dbIndex = fingerIndex
	}

	deleted, err := c.deps.Records.Delete(ctx, c.userID, dbIndex)
	if err != nil {
		c.mu.Lock()
		c.sess.status = StatusError
		c.sess.syncStatus = SyncIdle
		c.sess.lastErr = err.Error()
		c.scheduleClearLocked(c.deps.DeleteQuiesce)
		c.mu.Unlock()

		c.publish(ctx, &models.EnrollmentEvent{
			Type:        models.EventDeletionFailed,
			FingerIndex: dbIndex,
			Message:     "deletion failed: database delete did not succeed",
			Warning:     err.Error(),
		})
		return nil, err
	}

	result := &DeleteResult{DeletedRecords: deleted}

	// Database cleanliness is the guarantee; the device leg is
	// best-effort from here.
	if deviceUserID > 0 {
		devRes, devErr := c.deps.Device.DeleteTemplate(ctx, deviceUserID, c.userID, fingerIndex)
		if devErr != nil {
			result.Warning = fmt.Sprintf("deleted from database, device deletion failed: %v", devErr)
		} else {
			result.DeviceDeletedTemplates = devRes.DeletedTemplates
			result.UserFullyDeleted = devRes.UserFullyDeleted
		}
	} else {
		result.Warning = "deleted from database; device identity unknown, device deletion skipped"
	}

	if all {
		if err := c.deps.Mappings.Deactivate(ctx, c.userID, c.deps.DeviceID); err != nil {
			slog.Warn("mapping deactivation failed", "user_id", c.userID, "device_id", c.deps.DeviceID, "error", err)
		}
	}

	c.mu.Lock()
	c.sess.status = StatusNone
	c.sess.pending = nil
	c.sess.deviceUserID = 0
	c.sess.fingerIndex = nil
	c.sess.fingerName = ""
	if result.Warning != "" {
		c.sess.syncStatus = SyncError
		c.sess.lastErr = result.Warning
	} else {
		c.sess.syncStatus = SyncSuccess
		c.sess.message = fmt.Sprintf("fingerprints deleted (%d from database, %d from device)", deleted, result.DeviceDeletedTemplates)
	}
	c.scheduleClearLocked(c.deps.DeleteQuiesce)
	c.mu.Unlock()

	scope := "one"
	if all {
		scope = "all"
	}
	observability.FingerprintsDeleted.WithLabelValues(scope).Inc()

	c.publish(ctx, &models.EnrollmentEvent{
		Type:             models.EventFingerprintDeleted,
		FingerIndex:      fingerIndex,
		DeviceSynced:     result.Warning == "",
		DeletedTemplates: result.DeviceDeletedTemplates,
		Message:          fmt.Sprintf("%d fingerprint record(s) deleted", deleted),
		Warning:          result.Warning,
	})

	slog.Info("fingerprints deleted",
		"user_id", c.userID,
		"scope", scope,
		"db_deleted", deleted,
		"device_deleted", result.DeviceDeletedTemplates,
	)
	return result, nil
}

// Reset clears the session unconditionally. Memory only; no database
// or device calls.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clearTimer != nil {
		c.clearTimer.Stop()
		c.clearTimer = nil
	}
	c.sess = newSession()
}

// Session returns a snapshot of the current state.
func (c *Coordinator) Session() *SessionView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.view()
}

// scheduleClearLocked arms the banner quiescence timer: after d, the
// diagnostic strings are wiped and an error status falls back to none
// so stale banners do not persist in the caller's view. Callers must
// hold c.mu.
func (c *Coordinator) scheduleClearLocked(d time.Duration) {
	if c.deps.DisableAutoClear || d <= 0 {
		return
	}
	if c.clearTimer != nil {
		c.clearTimer.Stop()
	}
	c.clearTimer = time.AfterFunc(d, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.sess.lastErr = ""
		c.sess.message = ""
		if c.sess.status == StatusError {
			c.sess.status = StatusNone
		}
		if c.sess.syncStatus != SyncSyncing {
			c.sess.syncStatus = SyncIdle
		}
	})
}

func (c *Coordinator) publish(ctx context.Context, ev *models.EnrollmentEvent) {
	if c.deps.Events == nil {
		return
	}
	ev.ID = uuid.New()
	ev.UserID = c.userID
	ev.DeviceID = c.deps.DeviceID
	ev.Timestamp = time.Now()
	if err := c.deps.Events.PublishEnrollment(ctx, ev); err != nil {
		slog.Warn("publish enrollment event", "type", ev.Type, "error", err)
	}
}
