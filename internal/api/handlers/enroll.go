package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/biosync/internal/device"
	"github.com/your-org/biosync/internal/enroll"
	"github.com/your-org/biosync/internal/persistence"
	"github.com/your-org/biosync/pkg/dto"
)

// EnrollHandler drives per-user enrollment sessions.
type EnrollHandler struct {
	sessions *enroll.Manager
}

func NewEnrollHandler(sessions *enroll.Manager) *EnrollHandler {
	return &EnrollHandler{sessions: sessions}
}

func (h *EnrollHandler) userID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return uuid.Nil, false
	}
	return id, true
}

// Capture stores scanned template data as pending, awaiting commit.
func (h *EnrollHandler) Capture(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var input enroll.CaptureInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.sessions.Session(userID).Capture(input)
	if err != nil {
		if enroll.IsValidation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": view})
}

// Commit persists the pending capture and pushes it to the device.
func (h *EnrollHandler) Commit(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req dto.CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	coord := h.sessions.Session(userID)
	result, err := coord.Commit(c.Request.Context(), req.DisplayName)
	if err != nil {
		h.writeEnrollError(c, coord, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result, "session": coord.Session()})
}

// Delete removes fingerprints: one finger, or everything with
// delete_all.
func (h *EnrollHandler) Delete(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	req := dto.DeleteRequest{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.FingerIndex != nil && (*req.FingerIndex < 0 || *req.FingerIndex > 9) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "finger_index must be between 0 and 9"})
		return
	}

	coord := h.sessions.Session(userID)
	var result *enroll.DeleteResult
	var err error
	if req.DeleteAll {
		result, err = coord.DeleteAll(c.Request.Context())
	} else {
		result, err = coord.DeleteOne(c.Request.Context(), req.FingerIndex)
	}
	if err != nil {
		h.writeEnrollError(c, coord, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result, "session": coord.Session()})
}

// Reset discards the session without touching the database or device.
func (h *EnrollHandler) Reset(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	h.sessions.Release(userID)
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// Session returns the current session snapshot.
func (h *EnrollHandler) Session(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	if coord, ok := h.sessions.Peek(userID); ok {
		c.JSON(http.StatusOK, gin.H{"session": coord.Session()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": nil})
}

func (h *EnrollHandler) writeEnrollError(c *gin.Context, coord *enroll.Coordinator, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, enroll.ErrSyncInProgress), errors.Is(err, enroll.ErrNoPendingCapture):
		status = http.StatusConflict
	case enroll.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, persistence.ErrDuplicateFinger):
		status = http.StatusConflict
	case errors.Is(err, persistence.ErrUnknownUser):
		status = http.StatusNotFound
	case errors.Is(err, persistence.ErrConnectivity),
		errors.Is(err, device.ErrProtocolTimeout),
		errors.Is(err, device.ErrConnectionLost),
		errors.Is(err, device.ErrConnectFailed):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error(), "session": coord.Session()})
}
