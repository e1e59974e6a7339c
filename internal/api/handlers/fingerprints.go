package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/biosync/internal/models"
	"github.com/your-org/biosync/internal/storage"
	"github.com/your-org/biosync/pkg/dto"
)

// FingerprintHandler serves the record store API that enrollment
// clients write through.
type FingerprintHandler struct {
	db      *storage.PostgresStore
	archive *storage.TemplateArchive
}

func NewFingerprintHandler(db *storage.PostgresStore, archive *storage.TemplateArchive) *FingerprintHandler {
	return &FingerprintHandler{db: db, archive: archive}
}

// Save stores a fingerprint record. Re-enrolling the same finger
// supersedes the previous row.
func (h *FingerprintHandler) Save(c *gin.Context) {
	var rec models.FingerprintRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, dto.FingerprintEnvelope{Error: err.Error()})
		return
	}
	if rec.UserID == uuid.Nil {
		c.JSON(http.StatusBadRequest, dto.FingerprintEnvelope{Error: "user_id is required"})
		return
	}
	if len(rec.Template) == 0 {
		c.JSON(http.StatusBadRequest, dto.FingerprintEnvelope{Error: "template is required"})
		return
	}
	if rec.FingerIndex < 0 || rec.FingerIndex > 9 {
		c.JSON(http.StatusBadRequest, dto.FingerprintEnvelope{Error: "finger_index must be between 0 and 9"})
		return
	}
	if rec.EnrolledAt.IsZero() {
		rec.EnrolledAt = time.Now()
	}

	stored, err := h.db.SaveFingerprint(c.Request.Context(), &rec)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.FingerprintEnvelope{Error: err.Error()})
		return
	}

	if h.archive != nil {
		if err := h.archive.Archive(c.Request.Context(), stored); err != nil {
			slog.Warn("template archive failed", "user_id", stored.UserID, "finger_index", stored.FingerIndex, "error", err)
		}
	}

	c.JSON(http.StatusCreated, dto.FingerprintEnvelope{Data: stored})
}

// Delete removes one finger (fingerIndex) or all of a user's records
// (deleteAll=true).
func (h *FingerprintHandler) Delete(c *gin.Context) {
	userID, err := uuid.Parse(c.Query("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.FingerprintEnvelope{Error: "invalid userId"})
		return
	}

	var fingerIndex *int
	switch {
	case c.Query("fingerIndex") != "":
		idx, err := strconv.Atoi(c.Query("fingerIndex"))
		if err != nil || idx < 0 || idx > 9 {
			c.JSON(http.StatusBadRequest, dto.FingerprintEnvelope{Error: "invalid fingerIndex"})
			return
		}
		fingerIndex = &idx
	case c.Query("deleteAll") == "true":
		// whole-user delete
	default:
		c.JSON(http.StatusBadRequest, dto.FingerprintEnvelope{Error: "fingerIndex or deleteAll=true is required"})
		return
	}

	deleted, err := h.db.DeleteFingerprints(c.Request.Context(), userID, fingerIndex)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.FingerprintEnvelope{Error: err.Error()})
		return
	}

	if h.archive != nil {
		var archErr error
		if fingerIndex != nil {
			archErr = h.archive.Remove(c.Request.Context(), userID, *fingerIndex)
		} else {
			archErr = h.archive.RemoveUser(c.Request.Context(), userID)
		}
		if archErr != nil {
			slog.Warn("template archive cleanup failed", "user_id", userID, "error", archErr)
		}
	}

	c.JSON(http.StatusOK, dto.FingerprintEnvelope{DeletedCount: &deleted})
}

// Get answers the device identity lookup (getDeviceId=true), a single
// record fetch (fingerIndex) or the plain record listing for a user.
func (h *FingerprintHandler) Get(c *gin.Context) {
	userID, err := uuid.Parse(c.Query("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.FingerprintEnvelope{Error: "invalid userId"})
		return
	}

	if raw := c.Query("fingerIndex"); raw != "" {
		idx, err := strconv.Atoi(raw)
		if err != nil || idx < 0 || idx > 9 {
			c.JSON(http.StatusBadRequest, dto.FingerprintEnvelope{Error: "invalid fingerIndex"})
			return
		}
		rec, err := h.db.GetFingerprint(c.Request.Context(), userID, idx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, dto.FingerprintEnvelope{Error: err.Error()})
			return
		}
		if rec == nil {
			c.JSON(http.StatusNotFound, dto.FingerprintEnvelope{Error: "fingerprint not found"})
			return
		}
		c.JSON(http.StatusOK, dto.FingerprintEnvelope{Data: rec})
		return
	}

	if c.Query("getDeviceId") == "true" {
		ident, err := h.db.GetDeviceIdentity(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, dto.FingerprintEnvelope{Error: err.Error()})
			return
		}
		if ident == nil {
			c.JSON(http.StatusNotFound, dto.FingerprintEnvelope{Error: "no fingerprints enrolled"})
			return
		}
		c.JSON(http.StatusOK, ident)
		return
	}

	records, err := h.db.ListFingerprints(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.FingerprintEnvelope{Error: err.Error()})
		return
	}

	resp := make([]dto.FingerprintSummary, 0, len(records))
	for _, rec := range records {
		resp = append(resp, dto.FingerprintSummary{
			ID:             rec.ID,
			UserID:         rec.UserID,
			DeviceUserID:   rec.DeviceUserID,
			FingerIndex:    rec.FingerIndex,
			FingerName:     rec.FingerName,
			AverageQuality: rec.AverageQuality,
			CaptureCount:   rec.CaptureCount,
			SDKVersion:     rec.SDKVersion,
			EnrolledAt:     rec.EnrolledAt.Format(time.RFC3339),
			CreatedAt:      rec.CreatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, dto.FingerprintListResponse{Fingerprints: resp, Total: len(resp)})
}

// Template streams the archived template blob back, for restoring a
// record whose binary payload was pruned from the database listing.
func (h *FingerprintHandler) Template(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusServiceUnavailable, dto.FingerprintEnvelope{Error: "template archive is not configured"})
		return
	}

	userID, err := uuid.Parse(c.Query("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.FingerprintEnvelope{Error: "invalid userId"})
		return
	}
	idx, err := strconv.Atoi(c.Query("fingerIndex"))
	if err != nil || idx < 0 || idx > 9 {
		c.JSON(http.StatusBadRequest, dto.FingerprintEnvelope{Error: "invalid fingerIndex"})
		return
	}

	data, err := h.archive.Fetch(c.Request.Context(), userID, idx)
	if err != nil {
		c.JSON(http.StatusNotFound, dto.FingerprintEnvelope{Error: "archived template not found"})
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}
