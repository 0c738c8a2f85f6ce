package platform

import (
	"fmt"
	"net/http"
)

// ErrorKind is the closed set of failure categories a submit call can produce.
// The delivery classifier matches on this union exhaustively; new kinds must
// be added here, not modelled as new error types.
type ErrorKind string

const (
	KindRateLimit  ErrorKind = "rate_limit"
	KindAuth       ErrorKind = "auth"
	KindServer     ErrorKind = "server"
	KindNetwork    ErrorKind = "network"
	KindValidation ErrorKind = "validation"
	KindUnknown    ErrorKind = "unknown"
)

// APIError is the classified failure of a single submit call.
type APIError struct {
	Kind       ErrorKind
	HTTPStatus int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("platform api error (%s, HTTP %d): %s", e.Kind, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("platform api error (%s): %s", e.Kind, e.Message)
}

// KindFromStatus maps an HTTP response status to an ErrorKind.
//
// Mapping:
//   - 429 → rate_limit
//   - 401, 403 → auth
//   - 408 → network (timeout surfaced as a status)
//   - other 4xx → validation (malformed request, will not self-correct)
//   - 5xx → server
//   - anything else → unknown
func KindFromStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusRequestTimeout:
		return KindNetwork
	case status >= 400 && status < 500:
		return KindValidation
	case status >= 500 && status < 600:
		return KindServer
	default:
		return KindUnknown
	}
}
