package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrValidation marks input rejected before any request was sent.
var ErrValidation = errors.New("validation failed")

// Error is a non-2xx response from the analysis backend. Message is the
// server-provided detail when there is one, otherwise the HTTP status line.
// History calls always report "Failed to ...: <status text>".
type Error struct {
	StatusCode int
	Detail     string
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

// responseError reads resp and builds the normalized error. prefix, when
// set, always yields "prefix: <status text>"; the server detail is still
// kept in Detail.
func responseError(resp *http.Response, prefix string) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	detail := extractDetail(body)

	statusText := http.StatusText(resp.StatusCode)
	e := &Error{StatusCode: resp.StatusCode, Detail: detail}
	switch {
	case prefix != "":
		e.Message = fmt.Sprintf("%s: %s", prefix, statusText)
	case detail != "":
		e.Message = detail
	default:
		e.Message = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, statusText)
	}
	return e
}

// extractDetail pulls the FastAPI-style "detail" field out of an error body.
// Validation errors carry a list of objects with "msg" fields.
func extractDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(payload.Detail, &items); err == nil {
		var msgs []string
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

// FieldError reports a missing or malformed form field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return ErrValidation
}
