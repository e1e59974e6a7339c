package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/biosync/internal/models"
	"github.com/your-org/biosync/pkg/dto"
)

// MappingLister reads active device-user mappings.
type MappingLister interface {
	ListByDevice(ctx context.Context, deviceID string) ([]models.DeviceUserMapping, error)
}

type MappingHandler struct {
	registry MappingLister
}

func NewMappingHandler(registry MappingLister) *MappingHandler {
	return &MappingHandler{registry: registry}
}

// List returns the active mappings for one device.
func (h *MappingHandler) List(c *gin.Context) {
	deviceID := c.Param("deviceId")
	if deviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device id required"})
		return
	}

	mappings, err := h.registry.ListByDevice(c.Request.Context(), deviceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.MappingResponse, 0, len(mappings))
	for _, m := range mappings {
		resp = append(resp, dto.MappingResponse{
			UserID:       m.UserID,
			DeviceID:     m.DeviceID,
			DeviceUserID: m.DeviceUserID,
			IsActive:     m.IsActive,
			CreatedAt:    m.CreatedAt.Format(time.RFC3339),
			UpdatedAt:    m.UpdatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{"mappings": resp, "total": len(resp)})
}
