package session

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	ErrMissingParams  = errors.New("missing required parameters")
	ErrInvalidPayload = errors.New("invalid JSON payload")
)

// StartParams is the validated configuration structure for a load-test
// run. Host, NumUsers and SpawnRate are required; the rest are optional
// with documented defaults.
type StartParams struct {
	Host       string  `json:"host"`
	NumUsers   int     `json:"num_users"`
	SpawnRate  int     `json:"spawn_rate"`
	HTTPMethod string  `json:"http_method"` // default GET
	Route      string  `json:"route"`       // default "/"
	WaitTime   float64 `json:"wait_time"`   // default 1.0s
	// JSONPayload is the raw body string supplied by the client; parsed
	// and validated before a worker is launched.
	JSONPayload string `json:"json_payload"`
	BearerToken string `json:"bearer_token"`
}

// validate checks the required fields and parses the optional JSON
// payload. Validation failures are reported to the caller and never start
// a worker.
func (p *StartParams) validate() (map[string]any, error) {
	if p.Host == "" || p.NumUsers <= 0 || p.SpawnRate <= 0 {
		return nil, ErrMissingParams
	}

	raw := strings.TrimSpace(p.JSONPayload)
	if raw == "" {
		return nil, nil
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, ErrInvalidPayload
	}
	return parsed, nil
}
