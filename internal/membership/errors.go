package membership

import (
	"errors"
	"net/http"
)

const (
	MsgJoinFailed    = "Failed to join server. Please try again."
	MsgLeaveDenied   = "Cannot leave server. You might be the server owner or admin."
	MsgLeaveNotFound = "Server not found or you're not a member."
	MsgLeaveFailed   = "Failed to leave server. Please try again."
)

// ErrDenied matches an *ActionError caused by an ownership or permission conflict.
var ErrDenied = errors.New("membership change denied")

// ActionError is a join or leave failure with a message fit for the user.
type ActionError struct {
	Action     string
	ServerID   int
	StatusCode int
	Message    string
	Err        error
}

func (e *ActionError) Error() string { return e.Message }

func (e *ActionError) Unwrap() error { return e.Err }

func (e *ActionError) Is(target error) bool {
	return target == ErrDenied && (e.StatusCode == http.StatusForbidden || e.StatusCode == http.StatusConflict)
}
