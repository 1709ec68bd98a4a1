package machine

import (
	"errors"
	"testing"

	"codearena/internal/attempt/model"
	execmodel "codearena/internal/execution/model"
	gradingmodel "codearena/internal/grading/model"
	appErr "codearena/pkg/errors"
)

type recorder struct {
	seen []model.Observation
}

func (r *recorder) observe(o model.Observation) {
	r.seen = append(r.seen, o)
}

var allStatuses = []model.Status{
	model.StatusIdle, model.StatusTesting, model.StatusSubmitting, model.StatusCompleted, model.StatusError,
}

func fireEvent(m *Machine, ev event) error {
	switch ev {
	case eventRunTests:
		return m.BeginTesting("print(1)", "python")
	case eventGradingFinished:
		return m.FinishTesting(gradingmodel.Report{})
	case eventGradingFailed:
		return m.FailTesting(errors.New("boom"))
	case eventSubmit:
		return m.BeginSubmitting("print(1)", "python")
	case eventRecordSucceeded:
		return m.CompleteSubmission("sub-1")
	case eventRecordFailed:
		return m.FailSubmission(errors.New("boom"))
	case eventReset:
		return m.Reset()
	}
	return nil
}

func TestTransitionTableIsClosed(t *testing.T) {
	events := []event{
		eventRunTests, eventGradingFinished, eventGradingFailed, eventSubmit,
		eventRecordSucceeded, eventRecordFailed, eventReset,
	}
	for _, from := range allStatuses {
		for _, ev := range events {
			want, allowed := transitions[from][ev]
			rec := &recorder{}
			m := Restore(model.Observation{AttemptID: "a", Status: from, Version: 5}, rec.observe)

			err := fireEvent(m, ev)
			snap := m.Snapshot()
			if allowed {
				if err != nil {
					t.Errorf("%s --%s--> unexpected error %v", from, ev, err)
					continue
				}
				if snap.Status != want || snap.Version != 6 || len(rec.seen) != 1 {
					t.Errorf("%s --%s--> got %s v%d with %d notifications", from, ev, snap.Status, snap.Version, len(rec.seen))
				}
				continue
			}
			if !appErr.Is(err, appErr.InvalidStateTransition) {
				t.Errorf("%s --%s--> expected InvalidStateTransition, got %v", from, ev, err)
			}
			if snap.Status != from || snap.Version != 5 || len(rec.seen) != 0 {
				t.Errorf("%s --%s--> rejected event changed state: %+v", from, ev, snap)
			}
		}
	}
}

func TestCompletedCannotJumpToTesting(t *testing.T) {
	m := Restore(model.Observation{Status: model.StatusCompleted}, nil)
	if m.CanRunTests() || m.CanSubmit() {
		t.Fatal("completed attempt must not allow actions before reset")
	}
	if err := m.BeginTesting("x", "go"); !appErr.Is(err, appErr.InvalidStateTransition) {
		t.Fatalf("expected InvalidStateTransition, got %v", err)
	}
	if err := m.Reset(); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if !m.CanRunTests() || !m.CanSubmit() {
		t.Fatal("idle attempt should allow actions")
	}
}

func TestBlankSourceIsRejectedInIdle(t *testing.T) {
	rec := &recorder{}
	m := New("a1", "c1", rec.observe)
	for _, src := range []string{"", "   ", "\n\t"} {
		if err := m.BeginTesting(src, "python"); !appErr.Is(err, appErr.ValidationFailed) {
			t.Fatalf("expected ValidationFailed for %q, got %v", src, err)
		}
		if err := m.BeginSubmitting(src, "python"); !appErr.Is(err, appErr.ValidationFailed) {
			t.Fatalf("expected ValidationFailed for %q, got %v", src, err)
		}
	}
	if m.Status() != model.StatusIdle || len(rec.seen) != 0 {
		t.Fatalf("blank source must not transition, status=%s notifications=%d", m.Status(), len(rec.seen))
	}
}

func TestTestingLifecycleCarriesReport(t *testing.T) {
	rec := &recorder{}
	m := New("a1", "c1", rec.observe)
	if !m.CanRunTests() {
		t.Fatal("new machine should allow tests")
	}
	if err := m.BeginTesting("print(1)", "python"); err != nil {
		t.Fatalf("begin testing failed: %v", err)
	}
	if m.CanRunTests() || m.CanSubmit() {
		t.Fatal("buttons must be disabled while testing")
	}
	if err := m.BeginTesting("print(1)", "python"); !appErr.Is(err, appErr.InvalidStateTransition) {
		t.Fatalf("overlapping run must be rejected, got %v", err)
	}

	report := gradingmodel.Report{
		Results:   []gradingmodel.TestCaseResult{{Passed: true, Input: "1", Expected: "1", ActualOutput: "1"}},
		AllPassed: true,
	}
	if err := m.FinishTesting(report); err != nil {
		t.Fatalf("finish testing failed: %v", err)
	}
	snap := m.Snapshot()
	if snap.Status != model.StatusIdle || !snap.AllPassed || len(snap.Results) != 1 || snap.Language != "python" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if len(rec.seen) != 2 || rec.seen[0].Version != 1 || rec.seen[1].Version != 2 {
		t.Fatalf("expected versions 1 and 2, got %+v", rec.seen)
	}
	if rec.seen[0].Status != model.StatusTesting {
		t.Fatalf("first notification should be testing, got %s", rec.seen[0].Status)
	}

	snap.Results[0].Passed = false
	if !m.Snapshot().Results[0].Passed {
		t.Fatal("snapshot must not alias machine state")
	}
}

func TestFailureAndSubmissionPaths(t *testing.T) {
	m := New("a1", "c1", nil)
	_ = m.BeginTesting("x", "go")
	if err := m.FailTesting(appErr.New(appErr.ChallengeFetchFailed).WithMessage("challenge api down")); err != nil {
		t.Fatalf("fail testing failed: %v", err)
	}
	snap := m.Snapshot()
	if snap.Status != model.StatusError || snap.Error != "challenge api down" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	_ = m.Reset()
	snap = m.Snapshot()
	if snap.Status != model.StatusIdle || snap.Error != "" || snap.AttemptID != "a1" {
		t.Fatalf("reset should clear attempt data, got %+v", snap)
	}

	if err := m.BeginSubmitting("x", "go"); err != nil {
		t.Fatalf("submit without prior test run must be allowed: %v", err)
	}
	if err := m.CompleteSubmission("sub-9"); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	snap = m.Snapshot()
	if snap.Status != model.StatusCompleted || snap.SubmissionID != "sub-9" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	_ = m.Reset()
	_ = m.BeginSubmitting("x", "go")
	_ = m.FailSubmission(nil)
	if got := m.Snapshot().Error; got != "submission failed" {
		t.Fatalf("expected fallback message, got %q", got)
	}
}

func TestResetClearsExecution(t *testing.T) {
	m := New("a1", "c1", nil)
	_ = m.BeginTesting("x", "go")
	exec := &execmodel.ExecutionResult{Status: execmodel.NewStatus(execmodel.StatusAccepted)}
	_ = m.FinishTesting(gradingmodel.Report{Execution: exec, AllPassed: true})
	if m.Snapshot().Execution == nil {
		t.Fatal("expected execution to be stored")
	}
	_ = m.BeginSubmitting("x", "go")
	_ = m.FailSubmission(errors.New("nope"))
	_ = m.Reset()
	if m.Snapshot().Execution != nil {
		t.Fatal("reset should clear execution")
	}
}
