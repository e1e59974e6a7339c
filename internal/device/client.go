package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/your-org/biosync/internal/models"
	"github.com/your-org/biosync/internal/observability"
)

var (
	ErrProtocolTimeout = errors.New("device exchange timed out")
	ErrConnectionLost  = errors.New("device connection lost")
	ErrConnectFailed   = errors.New("device refused connect handshake")
)

const defaultExchangeTimeout = 15 * time.Second

// Config locates the hardware control endpoint.
type Config struct {
	URL        string
	DeviceType string
	DeviceID   string
	// Timeout bounds one whole exchange, channel-open to final
	// response. Zero means the 15s default.
	Timeout time.Duration
}

// Client pushes fingerprint templates to the physical access-control
// device over its asynchronous control channel. Each call opens a
// fresh channel, performs the connect handshake, issues one command
// and waits for the correlated terminal response.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultExchangeTimeout
	}
	return &Client{cfg: cfg, dialer: websocket.DefaultDialer}
}

// SyncResult is the normalized outcome of a template push.
type SyncResult struct {
	DeviceUserID int
	FingerName   string
	Message      string
}

// DeleteResult is the normalized outcome of a device-side deletion.
// The device reports how many templates it actually removed and
// whether the user record itself was purged; success alone does not
// imply "all gone".
type DeleteResult struct {
	DeletedTemplates int
	UserFullyDeleted bool
}

// SyncTemplate writes one finger's template to the device under the
// given display name.
func (c *Client) SyncTemplate(ctx context.Context, rec *models.FingerprintRecord, displayName string) (*SyncResult, error) {
	if displayName == "" {
		displayName = fmt.Sprintf("USR%d", rec.DeviceUserID)
	}

	command := Message{
		Type:   "device",
		Action: "sync_fingerprint",
		Data: mustMarshal(syncData{
			DeviceType:   c.cfg.DeviceType,
			DeviceID:     c.cfg.DeviceID,
			UserID:       rec.UserID.String(),
			DeviceUserID: rec.DeviceUserID,
			Templates: []templateEntry{{
				FingerIndex: rec.FingerIndex,
				Template:    rec.Template,
				Primary:     true,
			}},
			UserName: displayName,
			UserInfo: userInfo{FullName: displayName},
		}),
	}

	start := time.Now()
	result := &SyncResult{DeviceUserID: rec.DeviceUserID, FingerName: rec.FingerName}

	err := c.exchange(ctx, command, func(msg Message) (bool, error) {
		if !isSyncResult(msg) {
			return false, nil
		}
		var data resultData
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				return true, fmt.Errorf("malformed sync result: %w", err)
			}
		}
		if !data.ok() {
			return true, errors.New(data.errText())
		}
		result.DeviceUserID = data.deviceUserID(rec.DeviceUserID)
		result.Message = data.Message
		return true, nil
	})

	observability.DeviceSyncDuration.WithLabelValues("sync_fingerprint", outcomeLabel(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	slog.Info("template synced to device",
		"device_id", c.cfg.DeviceID,
		"device_user_id", result.DeviceUserID,
		"finger_index", rec.FingerIndex,
	)
	return result, nil
}

// DeleteTemplate removes one finger's template, or every template for
// the device-local identity when fingerIndex is nil.
func (c *Client) DeleteTemplate(ctx context.Context, deviceUserID int, userID uuid.UUID, fingerIndex *int) (*DeleteResult, error) {
	command := Message{
		Type:   "device",
		Action: "delete_fingerprint",
		Data: mustMarshal(deleteData{
			DeviceType:   c.cfg.DeviceType,
			DeviceID:     c.cfg.DeviceID,
			DeviceUserID: deviceUserID,
			UserID:       userID.String(),
			FingerIndex:  fingerIndex,
			DeleteAll:    fingerIndex == nil,
		}),
	}

	start := time.Now()
	result := &DeleteResult{}

	err := c.exchange(ctx, command, func(msg Message) (bool, error) {
		if !isDeleteResult(msg) {
			return false, nil
		}
		var data resultData
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				return true, fmt.Errorf("malformed delete result: %w", err)
			}
		}
		if !data.ok() {
			return true, errors.New(data.errText())
		}
		result.DeletedTemplates = data.deletedTemplates()
		result.UserFullyDeleted = data.userFullyDeleted()
		return true, nil
	})

	observability.DeviceSyncDuration.WithLabelValues("delete_fingerprint", outcomeLabel(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	slog.Info("templates deleted from device",
		"device_id", c.cfg.DeviceID,
		"device_user_id", deviceUserID,
		"deleted_templates", result.DeletedTemplates,
		"user_fully_deleted", result.UserFullyDeleted,
	)
	return result, nil
}

// exchange runs one request/response conversation: open the channel,
// send connect, send the command once the device acknowledges, then
// feed every further message to handle until it reports terminal.
// Exactly one outcome wins; the single return path is the one-shot
// guard, and the timer bounds the whole exchange regardless of
// channel state.
func (c *Client) exchange(ctx context.Context, command Message, handle func(Message) (bool, error)) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	conn, _, err := c.dialer.DialContext(dialCtx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	defer conn.Close()

	deadline := time.NewTimer(c.cfg.Timeout)
	defer deadline.Stop()

	connect := Message{
		Type:   "device",
		Action: "connect",
		Data:   mustMarshal(connectData{DeviceType: c.cfg.DeviceType, DeviceID: c.cfg.DeviceID}),
	}
	if err := conn.WriteJSON(connect); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	type readResult struct {
		msg Message
		err error
	}
	msgs := make(chan readResult)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(msgs)
		for {
			var msg Message
			readErr := conn.ReadJSON(&msg)
			select {
			case msgs <- readResult{msg: msg, err: readErr}:
			case <-done:
				return
			}
			if readErr != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w after %s", ErrProtocolTimeout, c.cfg.Timeout)
		case r, ok := <-msgs:
			if !ok {
				// Reader is gone; only the timer can end the wait now.
				msgs = nil
				continue
			}
			if r.err != nil {
				if websocket.IsCloseError(r.err, websocket.CloseNormalClosure) {
					// A clean close without a terminal response is not an
					// answer; keep waiting for the deadline.
					continue
				}
				return fmt.Errorf("%w: %v", ErrConnectionLost, r.err)
			}

			switch {
			case isErrorMessage(r.msg):
				return errors.New(errorText(r.msg))
			case isConnectAck(r.msg):
				var ack resultData
				if len(r.msg.Data) > 0 {
					_ = json.Unmarshal(r.msg.Data, &ack)
				}
				if !ack.ok() {
					return ErrConnectFailed
				}
				if err := conn.WriteJSON(command); err != nil {
					return fmt.Errorf("%w: %v", ErrConnectionLost, err)
				}
			default:
				done, err := handle(r.msg)
				if done {
					return err
				}
				// Unrelated chatter (welcome banners etc.) is ignored.
			}
		}
	}
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrProtocolTimeout):
		return "timeout"
	case errors.Is(err, ErrConnectionLost):
		return "connection_lost"
	default:
		return "error"
	}
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
