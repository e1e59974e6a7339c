package enroll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/biosync/internal/device"
	"github.com/your-org/biosync/internal/models"
)

type fakeRecords struct {
	mu          sync.Mutex
	writeErr    error
	writeBlock  chan struct{} // when set, Write waits until closed
	writeStarts chan struct{} // signaled when Write begins
	writeCalls  int

	deleteErr   error
	deleteCount int
	deleteCalls int
	deleteIndex *int

	lookupIdent *models.DeviceIdentity
	lookupErr   error
	lookupCalls int
}

func (f *fakeRecords) Write(ctx context.Context, rec *models.FingerprintRecord) (*models.FingerprintRecord, error) {
	f.mu.Lock()
	f.writeCalls++
	starts, block := f.writeStarts, f.writeBlock
	f.mu.Unlock()
	if starts != nil {
		starts <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	return rec, nil
}

func (f *fakeRecords) Delete(ctx context.Context, userID uuid.UUID, fingerIndex *int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	f.deleteIndex = fingerIndex
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	return f.deleteCount, nil
}

func (f *fakeRecords) Lookup(ctx context.Context, userID uuid.UUID) (*models.DeviceIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookupCalls++
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.lookupIdent, nil
}

type fakeMappings struct {
	upsertErr   error
	upsertCalls int
	deactivated int
}

func (f *fakeMappings) Upsert(ctx context.Context, userID uuid.UUID, deviceID string, deviceUserID int) error {
	f.upsertCalls++
	return f.upsertErr
}

func (f *fakeMappings) Deactivate(ctx context.Context, userID uuid.UUID, deviceID string) error {
	f.deactivated++
	return nil
}

type fakeDevice struct {
	syncErr   error
	syncCalls int

	deleteErr    error
	deleteRes    device.DeleteResult
	deleteCalls  int
	deleteIndex  *int
	deleteUserID int
}

func (f *fakeDevice) SyncTemplate(ctx context.Context, rec *models.FingerprintRecord, displayName string) (*device.SyncResult, error) {
	f.syncCalls++
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	return &device.SyncResult{DeviceUserID: rec.DeviceUserID, FingerName: rec.FingerName}, nil
}

func (f *fakeDevice) DeleteTemplate(ctx context.Context, deviceUserID int, userID uuid.UUID, fingerIndex *int) (*device.DeleteResult, error) {
	f.deleteCalls++
	f.deleteUserID = deviceUserID
	f.deleteIndex = fingerIndex
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	res := f.deleteRes
	return &res, nil
}

type fakeSink struct {
	mu     sync.Mutex
	events []*models.EnrollmentEvent
}

func (f *fakeSink) PublishEnrollment(ctx context.Context, ev *models.EnrollmentEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

type fixture struct {
	coord    *Coordinator
	records  *fakeRecords
	mappings *fakeMappings
	device   *fakeDevice
	sink     *fakeSink
}

func newFixture(mutate ...func(*Deps)) *fixture {
	f := &fixture{
		records:  &fakeRecords{deleteCount: 1},
		mappings: &fakeMappings{},
		device:   &fakeDevice{},
		sink:     &fakeSink{},
	}
	deps := Deps{
		Records:          f.records,
		Mappings:         f.mappings,
		Device:           f.device,
		Events:           f.sink,
		DeviceID:         "F22_001",
		DisableAutoClear: true,
	}
	for _, m := range mutate {
		m(&deps)
	}
	f.coord = NewCoordinator(uuid.New(), deps)
	return f
}

func validCapture() CaptureInput {
	return CaptureInput{
		Template:     []byte("T1"),
		DeviceUserID: 7,
		FingerIndex:  2,
		FingerName:   "Right Middle",
	}
}

func TestCaptureThenResetHasNoSideEffects(t *testing.T) {
	f := newFixture()

	view, err := f.coord.Capture(validCapture())
	require.NoError(t, err)
	assert.Equal(t, StatusCaptured, view.Status)
	assert.True(t, view.HasPending)

	f.coord.Reset()

	view = f.coord.Session()
	assert.Equal(t, StatusNone, view.Status)
	assert.Equal(t, SyncIdle, view.SyncStatus)
	assert.False(t, view.HasPending)
	assert.Zero(t, f.records.writeCalls)
	assert.Zero(t, f.mappings.upsertCalls)
	assert.Zero(t, f.device.syncCalls)
}

func TestCaptureRejectsOutOfRangeFingerIndex(t *testing.T) {
	f := newFixture()

	input := validCapture()
	input.FingerIndex = 12
	_, err := f.coord.Capture(input)
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	view := f.coord.Session()
	assert.Equal(t, StatusNone, view.Status)
	assert.False(t, view.HasPending)
}

func TestCaptureRejectsEmptyTemplate(t *testing.T) {
	f := newFixture()

	input := validCapture()
	input.Template = nil
	_, err := f.coord.Capture(input)
	assert.True(t, IsValidation(err))
}

func TestCaptureRejectsMissingDeviceUserID(t *testing.T) {
	f := newFixture()

	input := validCapture()
	input.DeviceUserID = 0
	_, err := f.coord.Capture(input)
	assert.True(t, IsValidation(err))
}

func TestRecaptureReplacesPendingSilently(t *testing.T) {
	f := newFixture()

	_, err := f.coord.Capture(validCapture())
	require.NoError(t, err)

	second := validCapture()
	second.FingerIndex = 4
	second.FingerName = ""
	view, err := f.coord.Capture(second)
	require.NoError(t, err)
	assert.Equal(t, StatusCaptured, view.Status)
	assert.Equal(t, "Right Pinky", view.FingerName)
}

func TestCommitWithoutCapture(t *testing.T) {
	f := newFixture()

	_, err := f.coord.Commit(context.Background(), "Jane Doe")
	assert.ErrorIs(t, err, ErrNoPendingCapture)
}

func TestCommitHappyPath(t *testing.T) {
	f := newFixture()

	_, err := f.coord.Capture(validCapture())
	require.NoError(t, err)

	result, err := f.coord.Commit(context.Background(), "Jane Doe")
	require.NoError(t, err)
	assert.Equal(t, 7, result.DeviceUserID)
	assert.Equal(t, "Right Middle", result.FingerName)
	assert.Empty(t, result.Warning)

	view := f.coord.Session()
	assert.Equal(t, StatusSaved, view.Status)
	assert.Equal(t, SyncSuccess, view.SyncStatus)
	assert.False(t, view.HasPending)

	assert.Equal(t, 1, f.records.writeCalls)
	assert.Equal(t, 1, f.mappings.upsertCalls)
	assert.Equal(t, 1, f.device.syncCalls)

	require.Len(t, f.sink.events, 1)
	ev := f.sink.events[0]
	assert.Equal(t, models.EventEnrollmentSaved, ev.Type)
	assert.True(t, ev.DeviceSynced)
}

func TestCommitPersistenceFailureIsFatal(t *testing.T) {
	f := newFixture()
	f.records.writeErr = errors.New("database unavailable")

	_, err := f.coord.Capture(validCapture())
	require.NoError(t, err)

	_, err = f.coord.Commit(context.Background(), "Jane Doe")
	require.Error(t, err)

	view := f.coord.Session()
	assert.Equal(t, StatusError, view.Status)
	assert.Equal(t, SyncIdle, view.SyncStatus)
	assert.True(t, view.HasPending, "pending capture must survive a failed commit")

	assert.Zero(t, f.mappings.upsertCalls)
	assert.Zero(t, f.device.syncCalls)

	require.Len(t, f.sink.events, 1)
	assert.Equal(t, models.EventEnrollmentFailed, f.sink.events[0].Type)
}

func TestCommitDeviceFailureIsWarningOnly(t *testing.T) {
	f := newFixture()
	f.device.syncErr = device.ErrProtocolTimeout

	_, err := f.coord.Capture(validCapture())
	require.NoError(t, err)

	result, err := f.coord.Commit(context.Background(), "Jane Doe")
	require.NoError(t, err, "device failure must not fail the commit")
	assert.Contains(t, result.Warning, "device sync failed")

	view := f.coord.Session()
	assert.Equal(t, StatusSaved, view.Status)
	assert.Equal(t, SyncError, view.SyncStatus)
	assert.False(t, view.HasPending)

	require.Len(t, f.sink.events, 1)
	ev := f.sink.events[0]
	assert.Equal(t, models.EventEnrollmentSaved, ev.Type)
	assert.False(t, ev.DeviceSynced)
}

func TestCommitMappingFailureIsWarningOnly(t *testing.T) {
	f := newFixture()
	f.mappings.upsertErr = errors.New("registry offline")

	_, err := f.coord.Capture(validCapture())
	require.NoError(t, err)

	result, err := f.coord.Commit(context.Background(), "Jane Doe")
	require.NoError(t, err)
	assert.Contains(t, result.Warning, "mapping registry")

	view := f.coord.Session()
	assert.Equal(t, StatusSaved, view.Status)
	assert.Equal(t, SyncSuccess, view.SyncStatus)
	assert.Equal(t, 1, f.device.syncCalls, "device sync still runs after a mapping failure")
}

func TestConcurrentCommitRejected(t *testing.T) {
	f := newFixture()
	f.records.writeBlock = make(chan struct{})
	f.records.writeStarts = make(chan struct{}, 1)

	_, err := f.coord.Capture(validCapture())
	require.NoError(t, err)

	firstDone := make(chan error, 1)
	go func() {
		_, err := f.coord.Commit(context.Background(), "Jane Doe")
		firstDone <- err
	}()

	<-f.records.writeStarts

	_, err = f.coord.Commit(context.Background(), "Jane Doe")
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(f.records.writeBlock)
	require.NoError(t, <-firstDone, "first commit's outcome must be unaffected")
	assert.Equal(t, 1, f.records.writeCalls)
}

func TestCaptureRejectedWhileCommitInFlight(t *testing.T) {
	f := newFixture()
	f.records.writeBlock = make(chan struct{})
	f.records.writeStarts = make(chan struct{}, 1)

	_, err := f.coord.Capture(validCapture())
	require.NoError(t, err)

	firstDone := make(chan error, 1)
	go func() {
		_, err := f.coord.Commit(context.Background(), "Jane Doe")
		firstDone <- err
	}()

	<-f.records.writeStarts

	late := validCapture()
	late.FingerIndex = 5
	_, err = f.coord.Capture(late)
	assert.ErrorIs(t, err, ErrSyncInProgress, "a capture landing mid-commit must be rejected, not silently discarded")

	close(f.records.writeBlock)
	require.NoError(t, <-firstDone)
	assert.Equal(t, 1, f.records.writeCalls)
}

func TestDeleteAllReportsBothCounts(t *testing.T) {
	f := newFixture()
	f.records.deleteCount = 3
	f.records.lookupIdent = &models.DeviceIdentity{DeviceUserID: 7, FingerIndex: 2, FingerName: "Right Middle"}
	f.device.deleteRes = device.DeleteResult{DeletedTemplates: 3, UserFullyDeleted: true}

	result, err := f.coord.DeleteAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.DeletedRecords)
	assert.Equal(t, 3, result.DeviceDeletedTemplates)
	assert.True(t, result.UserFullyDeleted)
	assert.Empty(t, result.Warning)

	assert.Nil(t, f.records.deleteIndex, "delete-all must not scope to one finger")
	assert.Nil(t, f.device.deleteIndex)
	assert.Equal(t, 7, f.device.deleteUserID)
	assert.Equal(t, 1, f.mappings.deactivated)

	view := f.coord.Session()
	assert.Equal(t, StatusNone, view.Status)
}

func TestDeleteWithUnresolvedDeviceIdentity(t *testing.T) {
	f := newFixture()
	f.records.lookupErr = errors.New("not found")

	result, err := f.coord.DeleteAll(context.Background())
	require.NoError(t, err, "database cleanliness is the primary guarantee")
	assert.Equal(t, 1, result.DeletedRecords)
	assert.Contains(t, result.Warning, "device deletion skipped")
	assert.Zero(t, f.device.deleteCalls)
}

func TestDeleteOneUsesPendingIdentity(t *testing.T) {
	f := newFixture()

	_, err := f.coord.Capture(validCapture())
	require.NoError(t, err)

	_, err = f.coord.DeleteOne(context.Background(), nil)
	require.NoError(t, err)

	assert.Zero(t, f.records.lookupCalls, "pending session data takes priority over a store lookup")
	require.NotNil(t, f.records.deleteIndex)
	assert.Equal(t, 2, *f.records.deleteIndex)
	assert.Equal(t, 7, f.device.deleteUserID)
	require.NotNil(t, f.device.deleteIndex)
	assert.Equal(t, 2, *f.device.deleteIndex)
}

func TestDeleteDatabaseFailureIsFatal(t *testing.T) {
	f := newFixture()
	f.records.deleteErr = errors.New("database unavailable")
	f.records.lookupIdent = &models.DeviceIdentity{DeviceUserID: 7}

	_, err := f.coord.DeleteAll(context.Background())
	require.Error(t, err)
	assert.Zero(t, f.device.deleteCalls, "device deletion must not run after a database failure")

	view := f.coord.Session()
	assert.Equal(t, StatusError, view.Status)

	require.Len(t, f.sink.events, 1)
	ev := f.sink.events[0]
	assert.Equal(t, models.EventDeletionFailed, ev.Type)
	assert.Contains(t, ev.Warning, "database unavailable")
}

func TestDeleteDeviceFailureIsWarningOnly(t *testing.T) {
	f := newFixture()
	f.records.lookupIdent = &models.DeviceIdentity{DeviceUserID: 7, FingerIndex: 2}
	f.device.deleteErr = device.ErrConnectionLost

	result, err := f.coord.DeleteAll(context.Background())
	require.NoError(t, err)
	assert.Contains(t, result.Warning, "device deletion failed")

	view := f.coord.Session()
	assert.Equal(t, SyncError, view.SyncStatus)
}

func TestCommitErrorBannerAutoClears(t *testing.T) {
	f := newFixture(func(d *Deps) {
		d.DisableAutoClear = false
		d.CommitErrorClear = 20 * time.Millisecond
	})
	f.records.writeErr = errors.New("database unavailable")

	_, err := f.coord.Capture(validCapture())
	require.NoError(t, err)
	_, err = f.coord.Commit(context.Background(), "Jane Doe")
	require.Error(t, err)

	assert.Equal(t, StatusError, f.coord.Session().Status)

	assert.Eventually(t, func() bool {
		view := f.coord.Session()
		return view.Status == StatusNone && view.Error == ""
	}, time.Second, 10*time.Millisecond)
}
