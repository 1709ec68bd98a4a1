package model

// StatusID is the execution service's numeric status id.
type StatusID int

const (
	StatusInQueue           StatusID = 1
	StatusProcessing        StatusID = 2
	StatusAccepted          StatusID = 3
	StatusWrongAnswer       StatusID = 4
	StatusTimeLimitExceeded StatusID = 5
	StatusCompilationError  StatusID = 6
	StatusRuntimeError      StatusID = 7
	StatusInternalError     StatusID = 8
)

var statusDescriptions = map[StatusID]string{
	StatusInQueue:           "In Queue",
	StatusProcessing:        "Processing",
	StatusAccepted:          "Accepted",
	StatusWrongAnswer:       "Wrong Answer",
	StatusTimeLimitExceeded: "Time Limit Exceeded",
	StatusCompilationError:  "Compilation Error",
	StatusRuntimeError:      "Runtime Error",
	StatusInternalError:     "Internal Error",
}

// ExecutionStatus is the status object reported with every result.
type ExecutionStatus struct {
	ID          StatusID `json:"id"`
	Description string   `json:"description"`
}

// NewStatus builds a status with the canonical description for known ids.
func NewStatus(id StatusID) ExecutionStatus {
	return ExecutionStatus{ID: id, Description: statusDescriptions[id]}
}

// IsTerminal is false only while the run is queued or processing.
// Ids outside the known set are terminal.
func (s ExecutionStatus) IsTerminal() bool {
	return s.ID != StatusInQueue && s.ID != StatusProcessing
}

// IsAccepted reports a successful run.
func (s ExecutionStatus) IsAccepted() bool {
	return s.ID == StatusAccepted
}

// Label is the reported description, or the canonical one when the service sent none.
func (s ExecutionStatus) Label() string {
	if s.Description != "" {
		return s.Description
	}
	if d, ok := statusDescriptions[s.ID]; ok {
		return d
	}
	return "Unknown"
}
