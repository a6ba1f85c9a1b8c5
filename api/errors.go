package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

var (
	// ErrUnreachable means the request never got an HTTP response
	ErrUnreachable = errors.New("network error: cannot reach backend")

	// ErrValidation means a 2xx response was malformed or lacked a field
	// the caller depends on
	ErrValidation = errors.New("invalid response")

	// ErrPrecondition means the call was refused locally before any request
	// was made
	ErrPrecondition = errors.New("precondition failed")
)

// HTTPError is a non-2xx response from the backend
type HTTPError struct {
	Op         string
	StatusCode int
	// Body is the raw response body
	Body string
	// Message is the error message parsed out of a JSON body, if any
	Message string
}

func (e *HTTPError) Error() string {
	detail := e.Message
	if detail == "" {
		detail = e.Body
	}
	if detail == "" {
		detail = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s: %d - %s", e.Op, e.StatusCode, detail)
}

// messageFields are tried in order when pulling a message out of an error body
var messageFields = []string{"message", "detail", "error"}

func newHTTPError(op string, status int, body []byte) *HTTPError {
	e := &HTTPError{Op: op, StatusCode: status, Body: string(body)}
	if gjson.ValidBytes(body) {
		for _, field := range messageFields {
			if r := gjson.GetBytes(body, field); r.Type == gjson.String && r.Str != "" {
				e.Message = r.Str
				break
			}
		}
	}
	return e
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// IsNoIndex reports whether err is the index info call answering 404 or 500,
// which the backend does for a project that has nothing indexed yet
func IsNoIndex(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.Op != opIndexInfo {
		return false
	}
	return httpErr.StatusCode == http.StatusNotFound ||
		httpErr.StatusCode == http.StatusInternalServerError
}
