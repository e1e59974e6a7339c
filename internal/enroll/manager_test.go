package enroll

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerSessionLifecycle(t *testing.T) {
	m := NewManager(Deps{
		Records:          &fakeRecords{},
		Mappings:         &fakeMappings{},
		Device:           &fakeDevice{},
		DeviceID:         "F22_001",
		DisableAutoClear: true,
	})

	userA := uuid.New()
	userB := uuid.New()

	a := m.Session(userA)
	require.NotNil(t, a)
	assert.Same(t, a, m.Session(userA), "repeat lookups return the same coordinator")
	assert.NotSame(t, a, m.Session(userB))
	assert.Equal(t, 2, m.Len())

	_, ok := m.Peek(uuid.New())
	assert.False(t, ok, "peek must not create sessions")

	_, err := a.Capture(validCapture())
	require.NoError(t, err)

	m.Release(userA)
	assert.Equal(t, 1, m.Len())
	_, ok = m.Peek(userA)
	assert.False(t, ok)

	fresh := m.Session(userA)
	assert.Equal(t, StatusNone, fresh.Session().Status, "released sessions do not leak state")
}
