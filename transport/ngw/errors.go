package ngw

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Server error classes the sync code reacts to. Values are the final
// component of the NGW exception class name.
var (
	ErrVersioningNotEnabled = errors.New("FVersioningNotEnabled")
	ErrResourceNotFound     = errors.New("ResourceNotFound")
)

// errorCodes maps explicit server error codes to the sentinel classes.
var errorCodes = map[string]error{
	"versioning_not_enabled": ErrVersioningNotEnabled,
	"resource_not_found":     ErrResourceNotFound,
}

// ServerError is a non-2xx answer decoded from the NGW error body.
type ServerError struct {
	StatusCode int    `json:"status_code"`
	Exception  string `json:"exception"`
	ErrorCode  string `json:"error_code,omitempty"`
	Title      string `json:"title"`
	Message    string `json:"message"`
	URL        string `json:"-"`
}

func (e *ServerError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Title
	}
	if msg == "" {
		msg = "server error"
	}
	if name := e.ExceptionName(); name != "" {
		return fmt.Sprintf("%s (status %d, %s)", msg, e.StatusCode, name)
	}
	return fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
}

// ExceptionName returns the class name without its module path, e.g.
// "FVersioningNotEnabled" for "nextgisweb.feature_layer.versioning.FVersioningNotEnabled".
func (e *ServerError) ExceptionName() string {
	if e.Exception == "" {
		return ""
	}
	return e.Exception[strings.LastIndex(e.Exception, ".")+1:]
}

// Is matches the sentinel classes. An explicit error code takes precedence
// over the exception class; the class must match exactly.
func (e *ServerError) Is(target error) bool {
	if e.ErrorCode != "" {
		if sentinel, ok := errorCodes[e.ErrorCode]; ok {
			return sentinel == target
		}
	}
	for _, sentinel := range errorCodes {
		if sentinel == target {
			return e.ExceptionName() == target.Error()
		}
	}
	return false
}

func decodeServerError(status int, url string, body []byte) *ServerError {
	serverErr := &ServerError{}
	if err := json.Unmarshal(body, serverErr); err != nil || (serverErr.Exception == "" && serverErr.Message == "") {
		serverErr = &ServerError{Message: strings.TrimSpace(string(body))}
	}
	serverErr.StatusCode = status
	serverErr.URL = url
	return serverErr
}
