// Package envelope decodes the platform API's response wrapper.
package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Envelope is the platform response wrapper. Some endpoints return the payload bare.
type Envelope struct {
	Success *bool           `json:"success,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Payload returns the wrapped data, or the whole body when it is not wrapped.
func Payload(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty response body")
	}
	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("decode response failed: %w", err)
	}
	if env.Success != nil && !*env.Success {
		return nil, fmt.Errorf("%s", FailureMessage(trimmed, 0))
	}
	if len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		return env.Data, nil
	}
	return json.RawMessage(trimmed), nil
}

// FailureMessage picks message, then error, from a failure body, falling back to "HTTP <status>".
func FailureMessage(body []byte, status int) string {
	var env Envelope
	if err := json.Unmarshal(bytes.TrimSpace(body), &env); err == nil {
		if msg := strings.TrimSpace(env.Message); msg != "" {
			return msg
		}
		if msg := strings.TrimSpace(env.Error); msg != "" {
			return msg
		}
	}
	if status == 0 {
		return "request failed"
	}
	return fmt.Sprintf("HTTP %d", status)
}
