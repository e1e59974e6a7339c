package registry

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const deviceID = "F22_001"

func TestUpsertIsIdempotent(t *testing.T) {
	reg := NewMemoryRegistry()
	userID := uuid.New()
	ctx := context.Background()

	require.NoError(t, reg.Upsert(ctx, userID, deviceID, 7))
	require.NoError(t, reg.Upsert(ctx, userID, deviceID, 7))

	assert.Equal(t, 1, reg.Len())
	m, ok := reg.Get(userID, deviceID)
	require.True(t, ok)
	assert.Equal(t, 7, m.DeviceUserID)
	assert.True(t, m.IsActive)
}

func TestUpsertUpdatesInPlace(t *testing.T) {
	reg := NewMemoryRegistry()
	userID := uuid.New()
	ctx := context.Background()

	require.NoError(t, reg.Upsert(ctx, userID, deviceID, 7))
	require.NoError(t, reg.Upsert(ctx, userID, deviceID, 7))
	require.NoError(t, reg.Upsert(ctx, userID, deviceID, 9))

	assert.Equal(t, 1, reg.Len())
	m, _ := reg.Get(userID, deviceID)
	assert.Equal(t, 9, m.DeviceUserID)
}

func TestUpsertScopedPerDevice(t *testing.T) {
	reg := NewMemoryRegistry()
	userID := uuid.New()
	ctx := context.Background()

	require.NoError(t, reg.Upsert(ctx, userID, "F22_001", 7))
	require.NoError(t, reg.Upsert(ctx, userID, "F22_002", 12))

	assert.Equal(t, 2, reg.Len())
}

func TestDeactivate(t *testing.T) {
	reg := NewMemoryRegistry()
	userID := uuid.New()
	ctx := context.Background()

	require.NoError(t, reg.Upsert(ctx, userID, deviceID, 7))
	require.NoError(t, reg.Deactivate(ctx, userID, deviceID))

	m, ok := reg.Get(userID, deviceID)
	require.True(t, ok)
	assert.False(t, m.IsActive)

	active, err := reg.ListByDevice(ctx, deviceID)
	require.NoError(t, err)
	assert.Empty(t, active)

	// Re-enrollment resurrects the same row.
	require.NoError(t, reg.Upsert(ctx, userID, deviceID, 8))
	m, _ = reg.Get(userID, deviceID)
	assert.True(t, m.IsActive)
	assert.Equal(t, 8, m.DeviceUserID)
	assert.Equal(t, 1, reg.Len())
}
