package model

import (
	execmodel "codearena/internal/execution/model"
)

// TestCase is one input/expected-output pair of a challenge.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	IsHidden       bool   `json:"isHidden"`
}

// TestCaseResult is the verdict for one test case.
type TestCaseResult struct {
	Passed       bool   `json:"passed"`
	ActualOutput string `json:"actual_output"`
	Error        string `json:"error,omitempty"`
	Expected     string `json:"expected"`
	Input        string `json:"input"`
	Hidden       bool   `json:"hidden,omitempty"`
}

// Redacted blanks the input and outputs of a hidden case, keeping the verdict and error.
func (r TestCaseResult) Redacted() TestCaseResult {
	if !r.Hidden {
		return r
	}
	r.Input = ""
	r.Expected = ""
	r.ActualOutput = ""
	return r
}

// GradeInput is everything needed to grade one source file.
type GradeInput struct {
	SourceCode string
	LanguageID int
	TestCases  []TestCase
}

// Report is the outcome of grading. Results has one entry per test case, in order.
// Execution is only set when there were no test cases.
type Report struct {
	Results   []TestCaseResult           `json:"results"`
	Execution *execmodel.ExecutionResult `json:"execution,omitempty"`
	AllPassed bool                       `json:"all_passed"`
}
