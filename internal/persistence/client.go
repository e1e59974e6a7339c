package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/your-org/biosync/internal/models"
	"github.com/your-org/biosync/internal/observability"
	"github.com/your-org/biosync/internal/retry"
)

// Classified failures of the fingerprint store. Callers match with
// errors.Is; the wrapped error keeps the underlying detail.
var (
	ErrDuplicateFinger = errors.New("a fingerprint already exists for this user and finger")
	ErrUnknownUser     = errors.New("user not found in database")
	ErrConnectivity    = errors.New("database connection error")
	ErrNotFound        = errors.New("fingerprint not found")
)

const (
	defaultAttempts = 3
	defaultBackoff  = time.Second
	defaultTimeout  = 10 * time.Second
)

// Client performs durable create/delete/lookup of fingerprint records
// against the source-of-truth store.
type Client struct {
	http     *resty.Client
	attempts int
	backoff  retry.BackoffFunc
}

type Option func(*Client)

// WithRetry overrides the attempt count and backoff. Tests use a
// zero-duration backoff.
func WithRetry(attempts int, backoff retry.BackoffFunc) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.backoff = backoff
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.SetTimeout(d)
	}
}

// WithAPIKey attaches the store's API key to every request. An empty
// key leaves the client unauthenticated for stores with auth disabled.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if key != "" {
			c.http.SetHeader("X-API-Key", key)
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(defaultTimeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
		attempts: defaultAttempts,
		backoff:  retry.Linear(defaultBackoff),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the store's response body for both success and failure.
// Stores may answer with no body at all (204), which is success.
type envelope struct {
	Data         *models.FingerprintRecord `json:"data"`
	DeletedCount *int                      `json:"deleted_count"`
	Error        string                    `json:"error"`
	Message      string                    `json:"message"`
}

// Write persists a fingerprint record, retrying transient failures.
// An empty-body success echoes the request payload back as the result;
// the store is not assumed to return the canonical stored form.
func (c *Client) Write(ctx context.Context, rec *models.FingerprintRecord) (*models.FingerprintRecord, error) {
	var stored *models.FingerprintRecord

	err := retry.Do(ctx, c.attempts, c.backoff, func(ctx context.Context) error {
		observability.PersistenceAttempts.WithLabelValues("write").Inc()

		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(rec).
			Post("/fingerprints")
		if err != nil {
			return fmt.Errorf("post fingerprint: %w", err)
		}

		if resp.StatusCode() == http.StatusNoContent || len(resp.Body()) == 0 {
			if resp.IsSuccess() {
				stored = rec
				return nil
			}
			return fmt.Errorf("HTTP %d", resp.StatusCode())
		}

		var env envelope
		if jsonErr := json.Unmarshal(resp.Body(), &env); jsonErr != nil {
			env = envelope{}
		}

		if !resp.IsSuccess() {
			return errors.New(responseError(env, resp.StatusCode()))
		}

		if env.Data != nil {
			stored = env.Data
		} else {
			stored = rec
		}
		return nil
	})
	if err != nil {
		slog.Error("fingerprint write failed", "user_id", rec.UserID, "finger_index", rec.FingerIndex, "error", err)
		return nil, classify(err)
	}
	return stored, nil
}

// Delete removes the record for one finger, or every finger for the
// user when fingerIndex is nil. Returns the number of deleted records.
func (c *Client) Delete(ctx context.Context, userID uuid.UUID, fingerIndex *int) (int, error) {
	deleted := 0

	err := retry.Do(ctx, c.attempts, c.backoff, func(ctx context.Context) error {
		observability.PersistenceAttempts.WithLabelValues("delete").Inc()

		req := c.http.R().
			SetContext(ctx).
			SetQueryParam("userId", userID.String())
		if fingerIndex != nil {
			req.SetQueryParam("fingerIndex", strconv.Itoa(*fingerIndex))
		} else {
			req.SetQueryParam("deleteAll", "true")
		}

		resp, err := req.Delete("/fingerprints")
		if err != nil {
			return fmt.Errorf("delete fingerprint: %w", err)
		}

		var env envelope
		if len(resp.Body()) > 0 {
			if jsonErr := json.Unmarshal(resp.Body(), &env); jsonErr != nil {
				env = envelope{}
			}
		}

		if !resp.IsSuccess() {
			return errors.New(responseError(env, resp.StatusCode()))
		}

		if env.DeletedCount != nil {
			deleted = *env.DeletedCount
		} else {
			deleted = 1
		}
		return nil
	})
	if err != nil {
		slog.Error("fingerprint delete failed", "user_id", userID, "error", err)
		return 0, classify(err)
	}
	return deleted, nil
}

// Lookup recovers the device-local identity from a stored record.
// Single attempt: a miss is a terminal answer, not a transient fault.
func (c *Client) Lookup(ctx context.Context, userID uuid.UUID) (*models.DeviceIdentity, error) {
	var ident models.DeviceIdentity
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("userId", userID.String()).
		SetQueryParam("getDeviceId", "true").
		SetResult(&ident).
		Get("/fingerprints")
	if err != nil {
		return nil, classify(fmt.Errorf("lookup fingerprint: %w", err))
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if !resp.IsSuccess() {
		var env envelope
		_ = json.Unmarshal(resp.Body(), &env)
		return nil, classify(errors.New(responseError(env, resp.StatusCode())))
	}
	return &ident, nil
}

func responseError(env envelope, status int) string {
	if env.Error != "" {
		return env.Error
	}
	if env.Message != "" {
		return env.Message
	}
	return fmt.Sprintf("HTTP %d", status)
}

// classify maps heterogeneous store failures onto the client's error
// taxonomy by matching the failure text; anything unrecognized passes
// through verbatim.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint"):
		return fmt.Errorf("%w: %v", ErrDuplicateFinger, err)
	case strings.Contains(msg, "foreign key"):
		return fmt.Errorf("%w: %v", ErrUnknownUser, err)
	case strings.Contains(msg, "network"), strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"), strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"):
		return fmt.Errorf("%w: %v", ErrConnectivity, err)
	default:
		return err
	}
}
