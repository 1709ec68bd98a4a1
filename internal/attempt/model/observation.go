package model

import (
	"time"

	execmodel "codearena/internal/execution/model"
	gradingmodel "codearena/internal/grading/model"
)

// Status is the lifecycle state of an attempt.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusTesting    Status = "testing"
	StatusSubmitting Status = "submitting"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// IsTerminal reports states that only a reset leaves.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// IsBusy reports states with background work in flight.
func (s Status) IsBusy() bool {
	return s == StatusTesting || s == StatusSubmitting
}

// Observation is a read-only snapshot of an attempt.
type Observation struct {
	AttemptID    string                        `json:"attempt_id"`
	ChallengeID  string                        `json:"challenge_id"`
	TeamID       string                        `json:"team_id,omitempty"`
	Status       Status                        `json:"status"`
	Language     string                        `json:"language,omitempty"`
	Results      []gradingmodel.TestCaseResult `json:"results,omitempty"`
	Execution    *execmodel.ExecutionResult    `json:"execution,omitempty"`
	AllPassed    bool                          `json:"all_passed"`
	Error        string                        `json:"error,omitempty"`
	SubmissionID string                        `json:"submission_id,omitempty"`
	Version      int64                         `json:"version"`
	UpdatedAt    time.Time                     `json:"updated_at"`
}

// Clone returns a copy that shares no slices or pointers with o.
func (o Observation) Clone() Observation {
	if o.Results != nil {
		results := make([]gradingmodel.TestCaseResult, len(o.Results))
		copy(results, o.Results)
		o.Results = results
	}
	if o.Execution != nil {
		exec := *o.Execution
		o.Execution = &exec
	}
	return o
}

// Redacted hides the data of hidden test cases.
func (o Observation) Redacted() Observation {
	o = o.Clone()
	for i := range o.Results {
		o.Results[i] = o.Results[i].Redacted()
	}
	return o
}
