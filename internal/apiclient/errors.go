package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies a non-2xx backend response.
type Kind int

const (
	KindServer Kind = iota
	KindAuthorization
	KindPermission
	KindNotFound
	KindConflict
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindPermission:
		return "permission"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	}
	return "server"
}

// Sentinels for errors.Is matching against a *StatusError.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
)

// TransportError means no response was received at all.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError carries a non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
	Method     string
	Path       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
}

func (e *StatusError) Kind() Kind {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return KindAuthorization
	case http.StatusForbidden:
		return KindPermission
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	}
	return KindServer
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Kind() == KindAuthorization
	case ErrForbidden:
		return e.Kind() == KindPermission
	case ErrNotFound:
		return e.Kind() == KindNotFound
	case ErrConflict:
		return e.Kind() == KindConflict
	case ErrValidation:
		return e.Kind() == KindValidation
	}
	return false
}

// StatusCode extracts the HTTP status from err: 200 for nil, the response
// status for a *StatusError and 500 for everything else.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return http.StatusInternalServerError
}

// Message returns the server-provided message for err, or err.Error().
func Message(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func newStatusError(method, path string, code int, body []byte) *StatusError {
	return &StatusError{StatusCode: code, Message: errorMessage(code, body), Method: method, Path: path}
}

// errorMessage reads {"error": ...} or {"detail": ...}; validation responses
// keyed by field are flattened into "field: message" pairs.
func errorMessage(code int, body []byte) string {
	var payload map[string]any
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		for _, k := range []string{"error", "detail", "message"} {
			if s, ok := payload[k].(string); ok && s != "" {
				return s
			}
		}
		var parts []string
		for field, v := range payload {
			switch m := v.(type) {
			case string:
				parts = append(parts, field+": "+m)
			case []any:
				for _, item := range m {
					if s, ok := item.(string); ok {
						parts = append(parts, field+": "+s)
					}
				}
			}
		}
		if len(parts) > 0 {
			sort.Strings(parts)
			return strings.Join(parts, "; ")
		}
	}
	if t := http.StatusText(code); t != "" {
		return t
	}
	return "unexpected status"
}
