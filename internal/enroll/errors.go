package enroll

import "errors"

var (
	// ErrNoPendingCapture rejects a commit without a captured template.
	ErrNoPendingCapture = errors.New("no pending fingerprint capture to commit")

	// ErrSyncInProgress rejects a capture, commit or deletion against a
	// session that is already syncing. Callers should not retry
	// immediately.
	ErrSyncInProgress = errors.New("a sync operation is already in progress for this session")
)

// ValidationError reports malformed capture input. It is never retried
// and leaves the session unchanged.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid capture: " + e.Field + " " + e.Reason
}

// IsValidation reports whether err is a capture validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
