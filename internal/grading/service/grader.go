// Package service grades source code against a challenge's test cases.
package service

import (
	"context"
	"strings"

	execmodel "codearena/internal/execution/model"
	"codearena/internal/grading/model"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

// Submitter queues one execution.
type Submitter interface {
	Submit(ctx context.Context, req execmodel.ExecutionRequest) (string, error)
}

// ResultAwaiter blocks until an execution is terminal.
type ResultAwaiter interface {
	AwaitResult(ctx context.Context, token string) (execmodel.ExecutionResult, error)
}

// Grader runs test cases one at a time. It holds no per-call state.
type Grader struct {
	submitter Submitter
	awaiter   ResultAwaiter
}

// NewGrader wires a grader. Missing dependencies surface as ServiceUnavailable on Grade.
func NewGrader(submitter Submitter, awaiter ResultAwaiter) *Grader {
	return &Grader{submitter: submitter, awaiter: awaiter}
}

// Grade executes input.SourceCode once per test case, in order.
// With no test cases it runs once with empty stdin and passes iff the run is Accepted.
// A failure to submit or await a case fails that case and grading moves on.
func (g *Grader) Grade(ctx context.Context, input model.GradeInput) (model.Report, error) {
	if g == nil || g.submitter == nil || g.awaiter == nil {
		return model.Report{}, appErr.New(appErr.ServiceUnavailable).WithMessage("grader is not configured")
	}
	if strings.TrimSpace(input.SourceCode) == "" {
		return model.Report{}, appErr.ValidationError("source_code", "must not be blank")
	}
	if !execmodel.IsSupportedLanguage(input.LanguageID) {
		return model.Report{}, appErr.Newf(appErr.LanguageNotSupported, "language id %d is not supported", input.LanguageID)
	}

	if len(input.TestCases) == 0 {
		return g.runOnce(ctx, input)
	}

	report := model.Report{
		Results:   make([]model.TestCaseResult, 0, len(input.TestCases)),
		AllPassed: true,
	}
	for i, tc := range input.TestCases {
		res := g.runCase(ctx, input, tc)
		if !res.Passed {
			report.AllPassed = false
			logger.Debug(ctx, "test case failed", zap.Int("case", i), zap.String("error", res.Error))
		}
		report.Results = append(report.Results, res)
	}
	logger.Info(ctx, "grading finished",
		zap.Int("cases", len(report.Results)),
		zap.Bool("all_passed", report.AllPassed),
	)
	return report, nil
}

func (g *Grader) runOnce(ctx context.Context, input model.GradeInput) (model.Report, error) {
	result, err := g.execute(ctx, execmodel.ExecutionRequest{
		SourceCode: input.SourceCode,
		LanguageID: input.LanguageID,
	})
	if err != nil {
		return model.Report{}, err
	}
	return model.Report{
		Results:   []model.TestCaseResult{},
		Execution: &result,
		AllPassed: result.Status.IsAccepted(),
	}, nil
}

func (g *Grader) runCase(ctx context.Context, input model.GradeInput, tc model.TestCase) model.TestCaseResult {
	res := model.TestCaseResult{
		Expected: tc.ExpectedOutput,
		Input:    tc.Input,
		Hidden:   tc.IsHidden,
	}
	result, err := g.execute(ctx, execmodel.ExecutionRequest{
		SourceCode: input.SourceCode,
		LanguageID: input.LanguageID,
		Stdin:      tc.Input,
	})
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.ActualOutput = result.Stdout
	if result.Status.IsAccepted() {
		res.Passed = strings.TrimSpace(result.Stdout) == strings.TrimSpace(tc.ExpectedOutput)
		return res
	}
	res.Error = failureMessage(result)
	return res
}

func (g *Grader) execute(ctx context.Context, req execmodel.ExecutionRequest) (execmodel.ExecutionResult, error) {
	token, err := g.submitter.Submit(ctx, req)
	if err != nil {
		return execmodel.ExecutionResult{}, err
	}
	return g.awaiter.AwaitResult(ctx, token)
}

// failureMessage picks the most specific diagnostic a non-accepted run produced.
func failureMessage(result execmodel.ExecutionResult) string {
	for _, s := range []string{result.Stderr, result.CompileOutput, result.Message} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return "execution error: " + result.Status.Label()
}
