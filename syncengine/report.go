package syncengine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Report summarizes one reconciliation pass.
type Report struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	Uploaded      []string  `json:"uploaded"`
	AlreadyInOWUI []string  `json:"already_in_owui"`
	Errors        []string  `json:"errors"`
	Pruned        []string  `json:"pruned,omitempty"`
}

// NewReport creates an empty report with a fresh run ID. The slices are
// allocated so the JSON encoding always shows arrays, never null.
func NewReport() *Report {
	return &Report{
		RunID:         uuid.NewString(),
		StartedAt:     time.Now().UTC(),
		Uploaded:      []string{},
		AlreadyInOWUI: []string{},
		Errors:        []string{},
	}
}

// AddError records a per-key failure. An empty key marks a pass-level
// failure such as a mapping enumeration error.
func (r *Report) AddError(key string, err error) {
	if key == "" {
		r.Errors = append(r.Errors, err.Error())
		return
	}
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", key, err))
}
