package device

import "encoding/json"

// Message is the envelope of the device control channel. Everything on
// the wire is {type, action, data}.
type Message struct {
	Type    string          `json:"type"`
	Action  string          `json:"action,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type connectData struct {
	DeviceType string `json:"deviceType"`
	DeviceID   string `json:"deviceId"`
}

type templateEntry struct {
	FingerIndex int    `json:"fingerIndex"`
	Template    []byte `json:"template"`
	Primary     bool   `json:"primary"`
}

type userInfo struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	FullName  string `json:"fullName"`
}

type syncData struct {
	DeviceType   string          `json:"deviceType"`
	DeviceID     string          `json:"deviceId"`
	UserID       string          `json:"userId"`
	DeviceUserID int             `json:"deviceUserId"`
	Templates    []templateEntry `json:"templates"`
	UserName     string          `json:"userName"`
	UserInfo     userInfo        `json:"userInfo"`
}

type deleteData struct {
	DeviceType   string `json:"deviceType"`
	DeviceID     string `json:"deviceId"`
	DeviceUserID int    `json:"deviceUserId"`
	UserID       string `json:"userId"`
	FingerIndex  *int   `json:"fingerIndex"`
	DeleteAll    bool   `json:"deleteAll"`
}

// resultData absorbs every response-payload variant the device agents
// emit. The accessor methods fold the variants into one shape so
// nothing outside this package pattern-matches on wire spelling.
type resultData struct {
	Success   *bool `json:"success"`
	IsSuccess *bool `json:"isSuccess"`

	UID          *int `json:"uid"`
	DeviceUserID *int `json:"deviceUserId"`

	DeletedTemplates      *int `json:"deletedTemplates"`
	DeletedTemplatesSnake *int `json:"deleted_templates"`
	DeletedCount          *int `json:"deletedCount"`
	DeletedCountSnake     *int `json:"deleted_count"`

	UserDeleted      *bool `json:"userDeleted"`
	UserDeletedSnake *bool `json:"user_deleted"`

	Message string `json:"message"`
	Error   string `json:"error"`
}

func (d resultData) ok() bool {
	if d.Success != nil {
		return *d.Success
	}
	if d.IsSuccess != nil {
		return *d.IsSuccess
	}
	return false
}

func (d resultData) deviceUserID(fallback int) int {
	if d.DeviceUserID != nil {
		return *d.DeviceUserID
	}
	if d.UID != nil {
		return *d.UID
	}
	return fallback
}

func (d resultData) deletedTemplates() int {
	for _, v := range []*int{d.DeletedTemplates, d.DeletedTemplatesSnake, d.DeletedCount, d.DeletedCountSnake} {
		if v != nil {
			return *v
		}
	}
	return 0
}

func (d resultData) userFullyDeleted() bool {
	if d.UserDeleted != nil {
		return *d.UserDeleted
	}
	if d.UserDeletedSnake != nil {
		return *d.UserDeletedSnake
	}
	return false
}

func (d resultData) errText() string {
	if d.Error != "" {
		return d.Error
	}
	if d.Message != "" {
		return d.Message
	}
	return "device reported an unspecified error"
}

// isSyncResult reports whether msg is a terminal answer to a
// sync_fingerprint command, across the known type aliases.
func isSyncResult(msg Message) bool {
	switch msg.Type {
	case "sync_result", "fingerprint_sync_result":
		return true
	case "device":
		return msg.Action == "sync_fingerprint"
	}
	return false
}

// isDeleteResult reports whether msg is a terminal answer to a
// delete_fingerprint command.
func isDeleteResult(msg Message) bool {
	switch msg.Type {
	case "delete_fingerprint_result", "delete_user_result", "device_response":
		return true
	case "device":
		return msg.Action == "delete_fingerprint"
	}
	return false
}

func isErrorMessage(msg Message) bool {
	return msg.Type == "error" || msg.Type == "command_error"
}

func isConnectAck(msg Message) bool {
	return msg.Type == "device" && msg.Action == "connect"
}

func errorText(msg Message) string {
	if msg.Message != "" {
		return msg.Message
	}
	if msg.Error != "" {
		return msg.Error
	}
	var data resultData
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &data); err == nil {
			return data.errText()
		}
	}
	return "device reported an unspecified error"
}
