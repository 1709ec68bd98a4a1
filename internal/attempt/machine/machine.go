// Package machine holds the lifecycle state machine of one grading attempt.
package machine

import (
	"strings"
	"sync"
	"time"

	"codearena/internal/attempt/model"
	gradingmodel "codearena/internal/grading/model"
	appErr "codearena/pkg/errors"
)

// event is unexported so the transition table below is the only way states change.
type event int

const (
	eventRunTests event = iota + 1
	eventGradingFinished
	eventGradingFailed
	eventSubmit
	eventRecordSucceeded
	eventRecordFailed
	eventReset
)

func (e event) String() string {
	switch e {
	case eventRunTests:
		return "run tests"
	case eventGradingFinished:
		return "grading finished"
	case eventGradingFailed:
		return "grading failed"
	case eventSubmit:
		return "submit"
	case eventRecordSucceeded:
		return "recording succeeded"
	case eventRecordFailed:
		return "recording failed"
	case eventReset:
		return "reset"
	default:
		return "unknown"
	}
}

var transitions = map[model.Status]map[event]model.Status{
	model.StatusIdle: {
		eventRunTests: model.StatusTesting,
		eventSubmit:   model.StatusSubmitting,
	},
	model.StatusTesting: {
		eventGradingFinished: model.StatusIdle,
		eventGradingFailed:   model.StatusError,
	},
	model.StatusSubmitting: {
		eventRecordSucceeded: model.StatusCompleted,
		eventRecordFailed:    model.StatusError,
	},
	model.StatusCompleted: {
		eventReset: model.StatusIdle,
	},
	model.StatusError: {
		eventReset: model.StatusIdle,
	},
}

// Observer receives every new snapshot. It runs with the machine locked and must not call back into it.
type Observer func(model.Observation)

// Machine tracks one attempt. It is safe for concurrent use.
type Machine struct {
	mu       sync.Mutex
	obs      model.Observation
	observer Observer
	now      func() time.Time
}

// New creates a machine in the idle state. The observer may be nil.
func New(attemptID, challengeID string, observer Observer) *Machine {
	m := &Machine{observer: observer, now: time.Now}
	m.obs = model.Observation{
		AttemptID:   attemptID,
		ChallengeID: challengeID,
		Status:      model.StatusIdle,
		UpdatedAt:   m.now(),
	}
	return m
}

// Restore rebuilds a machine from a persisted observation.
func Restore(obs model.Observation, observer Observer) *Machine {
	return &Machine{obs: obs.Clone(), observer: observer, now: time.Now}
}

// SetTeam records the owning team on the snapshot without a transition.
func (m *Machine) SetTeam(teamID string) {
	m.mu.Lock()
	m.obs.TeamID = teamID
	m.mu.Unlock()
}

// Snapshot returns the current observation.
func (m *Machine) Snapshot() model.Observation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.obs.Clone()
}

// Status returns the current state.
func (m *Machine) Status() model.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.obs.Status
}

// CanRunTests reports whether a test run may start now.
func (m *Machine) CanRunTests() bool {
	return m.allowed(eventRunTests)
}

// CanSubmit reports whether a formal submission may start now.
func (m *Machine) CanSubmit() bool {
	return m.allowed(eventSubmit)
}

// BeginTesting moves idle to testing. Blank source is rejected and leaves the state alone.
func (m *Machine) BeginTesting(source, language string) error {
	return m.fire(eventRunTests, func(o *model.Observation) error {
		if strings.TrimSpace(source) == "" {
			return appErr.ValidationError("source_code", "must not be blank")
		}
		o.Language = language
		o.Results = nil
		o.Execution = nil
		o.AllPassed = false
		o.Error = ""
		return nil
	})
}

// FinishTesting stores the grading report and returns to idle.
func (m *Machine) FinishTesting(report gradingmodel.Report) error {
	return m.fire(eventGradingFinished, func(o *model.Observation) error {
		o.Results = report.Results
		o.Execution = report.Execution
		o.AllPassed = report.AllPassed
		return nil
	})
}

// FailTesting records an unrecoverable grading failure.
func (m *Machine) FailTesting(cause error) error {
	return m.fire(eventGradingFailed, func(o *model.Observation) error {
		o.Error = errorText(cause, "test run failed")
		return nil
	})
}

// BeginSubmitting moves idle to submitting. Prior test results are not required.
func (m *Machine) BeginSubmitting(source, language string) error {
	return m.fire(eventSubmit, func(o *model.Observation) error {
		if strings.TrimSpace(source) == "" {
			return appErr.ValidationError("source_code", "must not be blank")
		}
		o.Language = language
		o.Error = ""
		o.SubmissionID = ""
		return nil
	})
}

// CompleteSubmission records the id assigned by the recording service.
func (m *Machine) CompleteSubmission(submissionID string) error {
	return m.fire(eventRecordSucceeded, func(o *model.Observation) error {
		o.SubmissionID = submissionID
		return nil
	})
}

// FailSubmission records a failed formal submission.
func (m *Machine) FailSubmission(cause error) error {
	return m.fire(eventRecordFailed, func(o *model.Observation) error {
		o.Error = errorText(cause, "submission failed")
		return nil
	})
}

// Reset starts a new attempt from completed or error.
func (m *Machine) Reset() error {
	return m.fire(eventReset, func(o *model.Observation) error {
		o.Language = ""
		o.Results = nil
		o.Execution = nil
		o.AllPassed = false
		o.Error = ""
		o.SubmissionID = ""
		return nil
	})
}

func (m *Machine) allowed(ev event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := transitions[m.obs.Status][ev]
	return ok
}

// fire applies ev if the table allows it. mutate runs on a copy, so a rejected mutation changes nothing.
func (m *Machine) fire(ev event, mutate func(*model.Observation) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.obs.Status
	to, ok := transitions[from][ev]
	if !ok {
		return appErr.Newf(appErr.InvalidStateTransition, "cannot %s while %s", ev, from).
			WithDetail("status", string(from)).
			WithDetail("event", ev.String())
	}

	next := m.obs.Clone()
	if err := mutate(&next); err != nil {
		return err
	}
	next.Status = to
	next.Version = m.obs.Version + 1
	next.UpdatedAt = m.now()
	m.obs = next

	if m.observer != nil {
		m.observer(m.obs.Clone())
	}
	return nil
}

func errorText(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return fallback
}
