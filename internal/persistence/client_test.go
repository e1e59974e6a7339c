package persistence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/biosync/internal/models"
	"github.com/your-org/biosync/internal/retry"
)

func fastClient(baseURL string) *Client {
	return NewClient(baseURL, WithRetry(3, retry.Linear(time.Millisecond)))
}

func testRecord() *models.FingerprintRecord {
	return &models.FingerprintRecord{
		UserID:       uuid.New(),
		DeviceUserID: 7,
		FingerIndex:  2,
		FingerName:   "Right Middle",
		Template:     []byte("T1"),
		EnrolledAt:   time.Now(),
	}
}

func TestWriteNoContentEchoesRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/fingerprints", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	rec := testRecord()
	stored, err := fastClient(srv.URL).Write(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, rec, stored)
}

func TestWriteReturnsStoredForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rec models.FingerprintRecord
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
		rec.ID = uuid.New()
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"data": rec})
	}))
	defer srv.Close()

	stored, err := fastClient(srv.URL).Write(context.Background(), testRecord())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, stored.ID)
}

func TestWriteRetriesThenSucceeds(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "temporarily unavailable"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	_, err := fastClient(srv.URL).Write(context.Background(), testRecord())
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWriteClassifiesDuplicate(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error": `duplicate key value violates unique constraint "fingerprints_user_finger_key"`,
		})
	}))
	defer srv.Close()

	_, err := fastClient(srv.URL).Write(context.Background(), testRecord())
	assert.ErrorIs(t, err, ErrDuplicateFinger)
	assert.Equal(t, 3, calls)
}

func TestWriteClassifiesUnknownUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error": `insert violates foreign key constraint "fingerprints_user_id_fkey"`,
		})
	}))
	defer srv.Close()

	_, err := fastClient(srv.URL).Write(context.Background(), testRecord())
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestWriteClassifiesConnectivity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	_, err := fastClient(srv.URL).Write(context.Background(), testRecord())
	assert.ErrorIs(t, err, ErrConnectivity)
}

func TestDeleteOneFinger(t *testing.T) {
	userID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, userID.String(), r.URL.Query().Get("userId"))
		assert.Equal(t, "2", r.URL.Query().Get("fingerIndex"))
		assert.Empty(t, r.URL.Query().Get("deleteAll"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	idx := 2
	count, err := fastClient(srv.URL).Delete(context.Background(), userID, &idx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDeleteAllReportsCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("deleteAll"))
		_ = json.NewEncoder(w).Encode(map[string]int{"deleted_count": 3})
	}))
	defer srv.Close()

	count, err := fastClient(srv.URL).Delete(context.Background(), uuid.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestLookupReturnsDeviceIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("getDeviceId"))
		_ = json.NewEncoder(w).Encode(models.DeviceIdentity{
			DeviceUserID: 7,
			FingerIndex:  2,
			FingerName:   "Right Middle",
		})
	}))
	defer srv.Close()

	ident, err := fastClient(srv.URL).Lookup(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 7, ident.DeviceUserID)
	assert.Equal(t, 2, ident.FingerIndex)
}

func TestAPIKeySentOnEveryRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Method == http.MethodGet {
			_ = json.NewEncoder(w).Encode(models.DeviceIdentity{DeviceUserID: 7})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRetry(1, retry.Linear(time.Millisecond)), WithAPIKey("secret"))

	_, err := c.Write(context.Background(), testRecord())
	require.NoError(t, err)

	_, err = c.Delete(context.Background(), uuid.New(), nil)
	require.NoError(t, err)

	_, err = c.Lookup(context.Background(), uuid.New())
	require.NoError(t, err)
}

func TestLookupNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := fastClient(srv.URL).Lookup(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
