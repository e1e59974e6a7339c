package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/biosync/internal/models"
)

// MemoryRegistry keeps mappings in memory. Used in tests and when no
// registry database is configured.
type MemoryRegistry struct {
	mu   sync.RWMutex
	rows map[mappingKey]*models.DeviceUserMapping
}

type mappingKey struct {
	userID   uuid.UUID
	deviceID string
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{rows: make(map[mappingKey]*models.DeviceUserMapping)}
}

func (r *MemoryRegistry) Upsert(ctx context.Context, userID uuid.UUID, deviceID string, deviceUserID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := mappingKey{userID: userID, deviceID: deviceID}
	now := time.Now()

	if existing, ok := r.rows[key]; ok {
		existing.DeviceUserID = deviceUserID
		existing.IsActive = true
		existing.UpdatedAt = now
		return nil
	}

	r.rows[key] = &models.DeviceUserMapping{
		UserID:       userID,
		DeviceID:     deviceID,
		DeviceUserID: deviceUserID,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return nil
}

func (r *MemoryRegistry) Deactivate(ctx context.Context, userID uuid.UUID, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.rows[mappingKey{userID: userID, deviceID: deviceID}]; ok {
		existing.IsActive = false
		existing.UpdatedAt = time.Now()
	}
	return nil
}

func (r *MemoryRegistry) ListByDevice(ctx context.Context, deviceID string) ([]models.DeviceUserMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var mappings []models.DeviceUserMapping
	for key, m := range r.rows {
		if key.deviceID == deviceID && m.IsActive {
			mappings = append(mappings, *m)
		}
	}
	return mappings, nil
}

// Get returns the mapping for a (user, device) pair, active or not.
func (r *MemoryRegistry) Get(userID uuid.UUID, deviceID string) (*models.DeviceUserMapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.rows[mappingKey{userID: userID, deviceID: deviceID}]
	if !ok {
		return nil, false
	}
	copied := *m
	return &copied, true
}

// Len reports how many rows exist, including inactive ones.
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}
