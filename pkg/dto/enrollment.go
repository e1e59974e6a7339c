package dto

// CommitRequest confirms a pending capture. DisplayName is what the
// device screen shows for the enrolled user.
type CommitRequest struct {
	DisplayName string `json:"display_name"`
}

// DeleteRequest scopes a fingerprint deletion. With neither field set,
// the finger is resolved from the active session.
type DeleteRequest struct {
	FingerIndex *int `json:"finger_index,omitempty"`
	DeleteAll   bool `json:"delete_all,omitempty"`
}
