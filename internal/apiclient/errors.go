package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	appErr "github.com/devJinesh/DocuQuery/internal/pkg/errors"
)

// APIError is a failure the backend reported with a response.
type APIError struct {
	StatusCode int
	Detail     string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Detail)
}

func (e *APIError) ErrorDetail() string {
	return e.Detail
}

func (e *APIError) Is(target error) bool {
	return target == appErr.ErrNotFound && e.StatusCode == http.StatusNotFound
}

// TransportError means no response reached the client.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Transport() bool {
	return true
}

type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

type validationItem struct {
	Msg string `json:"msg"`
}

// parseDetail extracts the most specific message from an error body. It
// understands {"detail": "..."}, {"detail": [{"msg": ...}]}, {"error": ...}
// and short plain-text bodies.
func parseDetail(contentType string, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if msg := detailFromRaw(eb.Detail); msg != "" {
			return msg
		}
		if eb.Error != "" {
			return eb.Error
		}
		return eb.Message
	}
	if strings.HasPrefix(contentType, "text/plain") && len(trimmed) <= 512 {
		return trimmed
	}
	return ""
}

func detailFromRaw(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var items []validationItem
	if err := json.Unmarshal(raw, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if item.Msg != "" {
				msgs = append(msgs, item.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	var item validationItem
	if err := json.Unmarshal(raw, &item); err == nil {
		return item.Msg
	}
	return ""
}
