package service

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"codearena/internal/execution/client"
	execmodel "codearena/internal/execution/model"
	"codearena/internal/execution/poller"
	"codearena/internal/grading/model"
	"codearena/internal/testutil"
	appErr "codearena/pkg/errors"
)

const pythonSum = "a = int(input())\nb = int(input())\nprint(a + b)\n"

type fakeExecution struct {
	requests  []execmodel.ExecutionRequest
	results   map[string]execmodel.ExecutionResult
	submitErr map[string]error
	awaitErr  map[string]error
}

func newFakeExecution() *fakeExecution {
	return &fakeExecution{
		results:   make(map[string]execmodel.ExecutionResult),
		submitErr: make(map[string]error),
		awaitErr:  make(map[string]error),
	}
}

func (f *fakeExecution) Submit(_ context.Context, req execmodel.ExecutionRequest) (string, error) {
	f.requests = append(f.requests, req)
	if err := f.submitErr[req.Stdin]; err != nil {
		return "", err
	}
	return "tok:" + req.Stdin, nil
}

func (f *fakeExecution) AwaitResult(_ context.Context, token string) (execmodel.ExecutionResult, error) {
	stdin := strings.TrimPrefix(token, "tok:")
	if err := f.awaitErr[stdin]; err != nil {
		return execmodel.ExecutionResult{}, err
	}
	if r, ok := f.results[stdin]; ok {
		r.Token = token
		return r, nil
	}
	return execmodel.ExecutionResult{Token: token, Status: execmodel.NewStatus(execmodel.StatusAccepted)}, nil
}

func accepted(stdout string) execmodel.ExecutionResult {
	return execmodel.ExecutionResult{Status: execmodel.NewStatus(execmodel.StatusAccepted), Stdout: stdout}
}

func TestGradeComparesTrimmedOutputInOrder(t *testing.T) {
	fake := newFakeExecution()
	fake.results["1"] = accepted("  2\n")
	fake.results["2"] = accepted("5")
	fake.results["3"] = accepted("\n6\n\n")
	fake.results["4"] = accepted("1 5\n")

	g := NewGrader(fake, fake)
	report, err := g.Grade(context.Background(), model.GradeInput{
		SourceCode: "x",
		LanguageID: 71,
		TestCases: []model.TestCase{
			{Input: "1", ExpectedOutput: "2"},
			{Input: "2", ExpectedOutput: "4\n"},
			{Input: "3", ExpectedOutput: "6", IsHidden: true},
			{Input: "4", ExpectedOutput: "15"},
		},
	})
	if err != nil {
		t.Fatalf("grade failed: %v", err)
	}
	if len(report.Results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(report.Results))
	}
	testutil.AssertTrue(t, report.Results[0].Passed, "case 1 should pass")
	testutil.AssertTrue(t, !report.Results[1].Passed, "case 2 should fail")
	testutil.AssertTrue(t, report.Results[2].Passed && report.Results[2].Hidden, "case 3 should pass and stay hidden")
	testutil.AssertEqual(t, report.Results[1].ActualOutput, "5")
	testutil.AssertEqual(t, report.Results[1].Error, "")
	testutil.AssertTrue(t, !report.Results[3].Passed, "internal whitespace must not be ignored")
	testutil.AssertEqual(t, report.Results[3].ActualOutput, "1 5\n")
	testutil.AssertTrue(t, !report.AllPassed, "all passed must be false")
	testutil.AssertNil(t, report.Execution)

	for i, want := range []string{"1", "2", "3", "4"} {
		if fake.requests[i].Stdin != want {
			t.Fatalf("case %d submitted out of order: %+v", i, fake.requests)
		}
		if fake.requests[i].ExpectedOutput != "" {
			t.Fatalf("expected output must not be sent, got %q", fake.requests[i].ExpectedOutput)
		}
	}
}

func TestGradeFailureMessagePriority(t *testing.T) {
	fake := newFakeExecution()
	fake.results["stderr"] = execmodel.ExecutionResult{Status: execmodel.NewStatus(execmodel.StatusRuntimeError), Stderr: "Traceback", CompileOutput: "c", Message: "m"}
	fake.results["compile"] = execmodel.ExecutionResult{Status: execmodel.NewStatus(execmodel.StatusCompilationError), Stderr: "  ", CompileOutput: "syntax error"}
	fake.results["message"] = execmodel.ExecutionResult{Status: execmodel.NewStatus(execmodel.StatusInternalError), Message: "box crashed"}
	fake.results["bare"] = execmodel.ExecutionResult{Status: execmodel.NewStatus(execmodel.StatusTimeLimitExceeded)}
	fake.results["unknown"] = execmodel.ExecutionResult{Status: execmodel.ExecutionStatus{ID: 11, Description: "Runtime Error (NZEC)"}}

	report, err := NewGrader(fake, fake).Grade(context.Background(), model.GradeInput{
		SourceCode: "x",
		LanguageID: 71,
		TestCases: []model.TestCase{
			{Input: "stderr"}, {Input: "compile"}, {Input: "message"}, {Input: "bare"}, {Input: "unknown"},
		},
	})
	if err != nil {
		t.Fatalf("grade failed: %v", err)
	}
	want := []string{
		"Traceback",
		"syntax error",
		"box crashed",
		"execution error: Time Limit Exceeded",
		"execution error: Runtime Error (NZEC)",
	}
	for i, w := range want {
		if report.Results[i].Passed {
			t.Errorf("case %d should fail", i)
		}
		if report.Results[i].Error != w {
			t.Errorf("case %d error = %q, want %q", i, report.Results[i].Error, w)
		}
	}
}

func TestGradeContinuesAfterExecutionFailures(t *testing.T) {
	fake := newFakeExecution()
	fake.submitErr["a"] = appErr.New(appErr.ExecutionTransportFailed).WithMessage("execution service submit returned HTTP 503")
	fake.awaitErr["b"] = appErr.New(appErr.ExecutionTimeout).WithMessage("Execution timed out")
	fake.results["c"] = accepted("ok")

	report, err := NewGrader(fake, fake).Grade(context.Background(), model.GradeInput{
		SourceCode: "x",
		LanguageID: 71,
		TestCases:  []model.TestCase{{Input: "a"}, {Input: "b"}, {Input: "c", ExpectedOutput: "ok"}},
	})
	if err != nil {
		t.Fatalf("grade failed: %v", err)
	}
	testutil.AssertEqual(t, report.Results[0].Error, "execution service submit returned HTTP 503")
	testutil.AssertEqual(t, report.Results[1].Error, "Execution timed out")
	testutil.AssertTrue(t, report.Results[2].Passed, "third case should still run and pass")
	testutil.AssertTrue(t, !report.AllPassed, "all passed must be false")
}

func TestGradeWithoutTestCases(t *testing.T) {
	fake := newFakeExecution()
	report, err := NewGrader(fake, fake).Grade(context.Background(), model.GradeInput{SourceCode: "x", LanguageID: 63})
	if err != nil {
		t.Fatalf("grade failed: %v", err)
	}
	testutil.AssertTrue(t, report.AllPassed, "accepted run should pass")
	testutil.AssertEqual(t, len(report.Results), 0)
	if report.Execution == nil || report.Execution.Status.ID != execmodel.StatusAccepted {
		t.Fatalf("expected execution result, got %+v", report.Execution)
	}
	testutil.AssertEqual(t, fake.requests[0].Stdin, "")

	fake.results[""] = execmodel.ExecutionResult{Status: execmodel.NewStatus(execmodel.StatusCompilationError)}
	report, err = NewGrader(fake, fake).Grade(context.Background(), model.GradeInput{SourceCode: "x", LanguageID: 63})
	if err != nil {
		t.Fatalf("grade failed: %v", err)
	}
	testutil.AssertTrue(t, !report.AllPassed, "compilation error must not pass")

	fake.awaitErr[""] = appErr.New(appErr.ExecutionTimeout)
	if _, err := NewGrader(fake, fake).Grade(context.Background(), model.GradeInput{SourceCode: "x", LanguageID: 63}); !appErr.Is(err, appErr.ExecutionTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestGradeValidatesBeforeNetwork(t *testing.T) {
	fake := newFakeExecution()
	g := NewGrader(fake, fake)

	if _, err := g.Grade(context.Background(), model.GradeInput{SourceCode: " \t", LanguageID: 71}); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
	if _, err := g.Grade(context.Background(), model.GradeInput{SourceCode: "x", LanguageID: 1}); !appErr.Is(err, appErr.LanguageNotSupported) {
		t.Fatalf("expected LanguageNotSupported, got %v", err)
	}
	if len(fake.requests) != 0 {
		t.Fatalf("expected no executions, got %d", len(fake.requests))
	}

	var nilGrader *Grader
	if _, err := nilGrader.Grade(context.Background(), model.GradeInput{SourceCode: "x", LanguageID: 71}); !appErr.Is(err, appErr.ServiceUnavailable) {
		t.Fatalf("expected ServiceUnavailable, got %v", err)
	}
	if _, err := NewGrader(fake, nil).Grade(context.Background(), model.GradeInput{SourceCode: "x", LanguageID: 71}); !appErr.Is(err, appErr.ServiceUnavailable) {
		t.Fatalf("expected ServiceUnavailable, got %v", err)
	}
}

// sumRunner plays the part of a Python interpreter for pythonSum.
func sumRunner(run testutil.SubmittedRun) testutil.RunOutcome {
	if run.LanguageID != 71 || run.SourceCode != pythonSum {
		return testutil.RunOutcome{StatusID: 6, Description: "Compilation Error", CompileOutput: "unexpected program"}
	}
	total := 0
	for _, field := range strings.Fields(run.Stdin) {
		n, err := strconv.Atoi(field)
		if err != nil {
			return testutil.RunOutcome{StatusID: 7, Description: "Runtime Error", Stderr: "ValueError: " + field}
		}
		total += n
	}
	return testutil.RunOutcome{StatusID: 3, Description: "Accepted", Stdout: strconv.Itoa(total) + "\n"}
}

func TestGradePythonSumEndToEnd(t *testing.T) {
	fake := testutil.NewFakeJudge0(sumRunner)
	fake.PendingPolls = 2
	defer fake.Close()

	execClient, err := client.New(client.Config{BaseURL: fake.URL(), Timeout: time.Second})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	p := poller.New(execClient, poller.Config{MaxAttempts: 10, Interval: time.Millisecond})
	g := NewGrader(execClient, p)

	report, err := g.Grade(context.Background(), model.GradeInput{
		SourceCode: pythonSum,
		LanguageID: 71,
		TestCases: []model.TestCase{
			{Input: "5\n10", ExpectedOutput: "15"},
			{Input: "2\n3", ExpectedOutput: "5"},
		},
	})
	if err != nil {
		t.Fatalf("grade failed: %v", err)
	}
	if len(report.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(report.Results))
	}
	for i, r := range report.Results {
		if !r.Passed {
			t.Fatalf("case %d failed: %+v", i, r)
		}
	}
	testutil.AssertTrue(t, report.AllPassed, "all cases should pass")
	testutil.AssertEqual(t, report.Results[0].ActualOutput, "15\n")
	testutil.AssertEqual(t, fake.Fetches(), 6)
}

func TestGradeIsIdempotent(t *testing.T) {
	fake := testutil.NewFakeJudge0(sumRunner)
	fake.PendingPolls = 1
	defer fake.Close()

	execClient, err := client.New(client.Config{BaseURL: fake.URL(), Timeout: time.Second})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	g := NewGrader(execClient, poller.New(execClient, poller.Config{MaxAttempts: 10, Interval: time.Millisecond}))
	input := model.GradeInput{
		SourceCode: pythonSum,
		LanguageID: 71,
		TestCases: []model.TestCase{
			{Input: "5\n10", ExpectedOutput: "15"},
			{Input: "2\n3", ExpectedOutput: "6"},
			{Input: "x", ExpectedOutput: "1"},
			{Input: "1\n1", ExpectedOutput: "2", IsHidden: true},
		},
	}

	first, err := g.Grade(context.Background(), input)
	if err != nil {
		t.Fatalf("first grade failed: %v", err)
	}
	second, err := g.Grade(context.Background(), input)
	if err != nil {
		t.Fatalf("second grade failed: %v", err)
	}
	if len(first.Results) != 4 || len(second.Results) != 4 {
		t.Fatalf("expected 4 results each, got %d and %d", len(first.Results), len(second.Results))
	}
	for i := range first.Results {
		a, b := first.Results[i], second.Results[i]
		if a.Passed != b.Passed || a.ActualOutput != b.ActualOutput || a.Error != b.Error {
			t.Fatalf("case %d differs between runs: %+v vs %+v", i, a, b)
		}
	}
	testutil.AssertTrue(t, first.Results[0].Passed && !first.Results[1].Passed, "pattern should be pass then fail")
	testutil.AssertTrue(t, !first.Results[2].Passed && first.Results[3].Passed, "pattern should be fail then pass")
	testutil.AssertEqual(t, first.AllPassed, second.AllPassed)
	testutil.AssertEqual(t, len(fake.Submissions()), 8)
}

func TestGradeEndToEndTimeoutFailsCase(t *testing.T) {
	fake := testutil.NewFakeJudge0(sumRunner)
	fake.PendingPolls = 100
	defer fake.Close()

	execClient, err := client.New(client.Config{BaseURL: fake.URL(), Timeout: time.Second})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	g := NewGrader(execClient, poller.New(execClient, poller.Config{MaxAttempts: 3, Interval: time.Millisecond}))

	report, err := g.Grade(context.Background(), model.GradeInput{
		SourceCode: pythonSum,
		LanguageID: 71,
		TestCases:  []model.TestCase{{Input: "1\n1", ExpectedOutput: "2"}},
	})
	if err != nil {
		t.Fatalf("grade failed: %v", err)
	}
	testutil.AssertEqual(t, report.Results[0].Error, "Execution timed out")
	testutil.AssertTrue(t, !report.AllPassed, "timed out case must fail")
}
