package miniapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// HTTPError is a non-2xx response from the Mini App backend.
type HTTPError struct {
	Status  int
	Code    string
	Message string
	// Details is the decoded response body, if any.
	Details any
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("miniapp: HTTP %d (%s): %s", e.Status, e.Code, e.Message)
}

// IsRetryable reports server-side failures and rate limiting.
func (e *HTTPError) IsRetryable() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// IsInvalidInitData reports the backend rejecting the auth context. Older
// backends send the code as {"error": "invalid_init_data"}.
func (e *HTTPError) IsInvalidInitData() bool {
	return e.Code == CodeInvalidInitData || e.Message == CodeInvalidInitData
}

const CodeInvalidInitData = "invalid_init_data"

// AsHTTPError unwraps err to an *HTTPError.
func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// newHTTPError resolves code and message from the body: a JSON object may
// carry "code" and "message" (or "error"); a plain-text body becomes the
// message; otherwise a generic message is used.
func newHTTPError(status int, raw []byte) *HTTPError {
	e := &HTTPError{
		Status:  status,
		Code:    fmt.Sprintf("http_%d", status),
		Message: fmt.Sprintf("HTTP error %d", status),
	}
	body, isJSON := decodeBody(raw)
	e.Details = body

	switch v := body.(type) {
	case map[string]any:
		if code, ok := v["code"].(string); ok {
			e.Code = code
		}
		if msg, ok := v["message"].(string); ok {
			e.Message = msg
		} else if msg, ok := v["error"].(string); ok {
			e.Message = msg
		}
	case string:
		if !isJSON && strings.TrimSpace(v) != "" {
			e.Message = v
		}
	}
	return e
}

// decodeBody returns nil for an empty body, the decoded value for JSON and
// the text itself otherwise.
func decodeBody(raw []byte) (any, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw), false
	}
	return v, true
}
