package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/smukkama/airfield-alerts/internal/database"
	"github.com/smukkama/airfield-alerts/internal/weather"
)

var (
	ErrMissingUser     = errors.New("user_id is required")
	ErrMissingAirfield = errors.New("airfield.id is required")
)

// Bands overrides the default wind (knots) and visibility (km) cutoffs for one request.
type Bands struct {
	Wind       BandLevels `json:"wind"`
	Visibility BandLevels `json:"visibility"`
}

// BandLevels are the yellow/orange/red cutoffs of one band family.
type BandLevels struct {
	Yellow float64 `json:"yellow"`
	Orange float64 `json:"orange"`
	Red    float64 `json:"red"`
}

// EvaluationRequest is published on each dashboard refresh: one user, one airfield,
// and the observation just displayed for it.
type EvaluationRequest struct {
	RequestID   string              `json:"request_id,omitempty"`
	UserID      string              `json:"user_id"`
	Airfield    database.Airfield   `json:"airfield"`
	Observation weather.Observation `json:"observation"`
	Bands       *Bands              `json:"bands,omitempty"`
	RequestedAt time.Time           `json:"requested_at"`
}

// Validate checks the fields the evaluator cannot do without.
func (r *EvaluationRequest) Validate() error {
	if r.UserID == "" {
		return ErrMissingUser
	}
	if r.Airfield.ID == "" {
		return ErrMissingAirfield
	}
	return nil
}

// Key partitions requests so one (user, airfield) pair is always handled in order.
func (r *EvaluationRequest) Key() string {
	return r.UserID + "-" + r.Airfield.ID
}

// EncodeEvaluationRequest encodes an EvaluationRequest to JSON
func EncodeEvaluationRequest(req *EvaluationRequest) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeEvaluationRequest decodes and validates an EvaluationRequest
func DecodeEvaluationRequest(data []byte) (*EvaluationRequest, error) {
	var req EvaluationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode evaluation request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid evaluation request: %w", err)
	}
	return &req, nil
}
