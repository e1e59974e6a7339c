package agent

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/biosync/internal/observability"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// message mirrors the control channel envelope: {type, action, data}.
type message struct {
	Type    string          `json:"type"`
	Action  string          `json:"action,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type syncPayload struct {
	DeviceID     string `json:"deviceId"`
	UserID       string `json:"userId"`
	DeviceUserID int    `json:"deviceUserId"`
	Templates    []struct {
		FingerIndex int    `json:"fingerIndex"`
		Template    []byte `json:"template"`
	} `json:"templates"`
	UserName string `json:"userName"`
}

type deletePayload struct {
	DeviceID     string `json:"deviceId"`
	DeviceUserID int    `json:"deviceUserId"`
	FingerIndex  *int   `json:"fingerIndex"`
	DeleteAll    bool   `json:"deleteAll"`
}

// Server speaks the device control protocol over WebSocket, backed by
// an in-memory Controller instead of hardware. One goroutine per
// connection; the controller does the locking.
type Server struct {
	deviceID   string
	controller *Controller
}

func NewServer(deviceID string, controller *Controller) *Server {
	return &Server{deviceID: deviceID, controller: controller}
}

// Router builds the agent's HTTP surface: the control channel plus
// health and metrics.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/ws/", s.HandleWS)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "device_id": s.deviceID})
	})
	return r
}

// HandleWS runs one control channel conversation.
func (s *Server) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Devices announce themselves before any command arrives.
	welcome := message{
		Type:    "welcome",
		Message: "Device agent ready",
	}
	if err := conn.WriteJSON(welcome); err != nil {
		return
	}

	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("control channel closed", "error", err)
			}
			return
		}

		if msg.Type != "device" {
			continue
		}

		observability.AgentCommands.WithLabelValues(msg.Action).Inc()

		var reply message
		switch msg.Action {
		case "connect":
			reply = s.handleConnect()
		case "sync_fingerprint":
			reply = s.handleSync(msg.Data)
		case "delete_fingerprint":
			reply = s.handleDelete(msg.Data)
		default:
			reply = message{
				Type:    "command_error",
				Message: "unknown action: " + msg.Action,
			}
		}

		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}

func (s *Server) handleConnect() message {
	return message{
		Type:   "device",
		Action: "connect",
		Data:   mustMarshal(map[string]any{"success": true, "deviceId": s.deviceID}),
	}
}

func (s *Server) handleSync(data json.RawMessage) message {
	var payload syncPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return commandError("malformed sync payload: " + err.Error())
	}
	if len(payload.Templates) == 0 {
		return commandError("no templates in sync payload")
	}

	for _, tpl := range payload.Templates {
		if err := s.controller.Enroll(payload.DeviceUserID, payload.UserName, tpl.FingerIndex, tpl.Template); err != nil {
			return message{
				Type:   "sync_result",
				Action: "sync_fingerprint",
				Data:   mustMarshal(map[string]any{"success": false, "error": err.Error()}),
			}
		}
	}

	slog.Info("templates enrolled",
		"device_user_id", payload.DeviceUserID,
		"templates", len(payload.Templates),
		"user_name", payload.UserName,
	)
	return message{
		Type:   "sync_result",
		Action: "sync_fingerprint",
		Data: mustMarshal(map[string]any{
			"success":      true,
			"deviceUserId": payload.DeviceUserID,
			"message":      "fingerprint stored",
		}),
	}
}

func (s *Server) handleDelete(data json.RawMessage) message {
	var payload deletePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return commandError("malformed delete payload: " + err.Error())
	}

	var fingerIndex *int
	if !payload.DeleteAll {
		fingerIndex = payload.FingerIndex
	}
	deleted, userDeleted := s.controller.Delete(payload.DeviceUserID, fingerIndex)

	slog.Info("templates deleted",
		"device_user_id", payload.DeviceUserID,
		"deleted_templates", deleted,
		"user_deleted", userDeleted,
	)
	return message{
		Type:   "delete_fingerprint_result",
		Action: "delete_fingerprint",
		Data: mustMarshal(map[string]any{
			"success":           true,
			"deleted_templates": deleted,
			"user_deleted":      userDeleted,
		}),
	}
}

func commandError(text string) message {
	return message{Type: "command_error", Message: text}
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
