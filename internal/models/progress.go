package models

import (
	"sort"
	"time"
)

// StepRef identifies one learning step of one tool
type StepRef struct {
	ToolID string `json:"tool_id"`
	StepID string `json:"step_id"`
}

// CompletionRecord is a persisted completion flag for a user's step.
// Unmarking a step keeps the record with Completed = false.
type CompletionRecord struct {
	UserID      string     `json:"user_id"`
	ToolID      string     `json:"tool_id"`
	StepID      string     `json:"step_id"`
	Completed   bool       `json:"completed"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Ref returns the step reference of the record
func (r CompletionRecord) Ref() StepRef {
	return StepRef{ToolID: r.ToolID, StepID: r.StepID}
}

// ToolProgress is the completion count of a single tool
type ToolProgress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Percent returns completion as 0..100
func (p ToolProgress) Percent() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total) * 100
}

// CompletionSummary maps tool ID to its progress. It is always rebuilt
// wholesale and never updated in place.
type CompletionSummary map[string]ToolProgress

// Clone returns an independent copy
func (s CompletionSummary) Clone() CompletionSummary {
	out := make(CompletionSummary, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Equal compares two summaries by value
func (s CompletionSummary) Equal(other CompletionSummary) bool {
	if len(s) != len(other) {
		return false
	}
	for k, v := range s {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Overall sums completed and total across all tools
func (s CompletionSummary) Overall() ToolProgress {
	var out ToolProgress
	for _, p := range s {
		out.Completed += p.Completed
		out.Total += p.Total
	}
	return out
}

// ToolView is the single-tool readout used for the active tool's progress bar
type ToolView struct {
	ToolID         string              `json:"tool_id"`
	CompletedSteps map[string]struct{} `json:"-"`
	Total          int                 `json:"total"`
}

// Completed returns the number of completed steps
func (v ToolView) Completed() int {
	return len(v.CompletedSteps)
}

// Percent returns completion as 0..100
func (v ToolView) Percent() float64 {
	return ToolProgress{Completed: v.Completed(), Total: v.Total}.Percent()
}

// IsComplete reports whether the step is completed
func (v ToolView) IsComplete(stepID string) bool {
	_, ok := v.CompletedSteps[stepID]
	return ok
}

// StepIDs returns the completed step IDs sorted
func (v ToolView) StepIDs() []string {
	ids := make([]string, 0, len(v.CompletedSteps))
	for id := range v.CompletedSteps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ToolViewResponse is the JSON shape of a ToolView
type ToolViewResponse struct {
	ToolID         string   `json:"tool_id"`
	CompletedSteps []string `json:"completed_steps"`
	Completed      int      `json:"completed"`
	Total          int      `json:"total"`
	Percent        float64  `json:"percent"`
}

// Response converts the view for the API
func (v ToolView) Response() ToolViewResponse {
	return ToolViewResponse{
		ToolID:         v.ToolID,
		CompletedSteps: v.StepIDs(),
		Completed:      v.Completed(),
		Total:          v.Total,
		Percent:        v.Percent(),
	}
}

// SummaryResponse is the JSON shape of a CompletionSummary
type SummaryResponse struct {
	Tools   CompletionSummary `json:"tools"`
	Overall ToolProgress      `json:"overall"`
}

// SetCompletionRequest is the optional body of a completion toggle
type SetCompletionRequest struct {
	Completed *bool `json:"completed,omitempty"`
}

// SetCompletionResponse is returned after a completion toggle
type SetCompletionResponse struct {
	ToolID    string `json:"tool_id"`
	StepID    string `json:"step_id"`
	Completed bool   `json:"completed"`
}
