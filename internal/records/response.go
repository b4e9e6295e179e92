package records

import (
	"bytes"
	"encoding/json"
	"net/http"

	"writline/internal/apperr"
)

// envelope is the wrapper some endpoints use. Its status field can report a
// failure inside an HTTP 200 response.
type envelope struct {
	Status  json.RawMessage `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func classify(status int, body []byte) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperr.Auth(status, serverMessage(body))
	case status < 200 || status >= 300:
		return apperr.Transport(status, serverMessage(body), nil)
	}
	return nil
}

// unwrap returns the payload of a successful response. Bodies that are not an
// envelope with a numeric status are returned as-is.
func unwrap(httpStatus int, body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed, nil
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, apperr.Transport(httpStatus, "", err)
	}
	var code int
	if len(env.Status) == 0 || json.Unmarshal(env.Status, &code) != nil {
		return trimmed, nil
	}
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return nil, apperr.Auth(code, env.Message)
	case code != http.StatusOK:
		return nil, apperr.Transport(code, env.Message, nil)
	}
	return env.Data, nil
}

// serverMessage extracts a human message from an error body, if it has one.
func serverMessage(body []byte) string {
	var shaped struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &shaped); err != nil {
		return ""
	}
	if shaped.Message != "" {
		return shaped.Message
	}
	if len(shaped.Error) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(shaped.Error, &s) == nil {
		return s
	}
	var nested struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(shaped.Error, &nested) == nil {
		return nested.Message
	}
	return ""
}
