package model

// ExecutionRequest is one run of source code against one stdin.
// Empty Stdin and ExpectedOutput mean absent.
type ExecutionRequest struct {
	SourceCode     string
	LanguageID     int
	Stdin          string
	ExpectedOutput string
}

// ExecutionResult is the decoded outcome of one run.
type ExecutionResult struct {
	Token         string          `json:"token"`
	Status        ExecutionStatus `json:"status"`
	Stdout        string          `json:"stdout,omitempty"`
	Stderr        string          `json:"stderr,omitempty"`
	CompileOutput string          `json:"compile_output,omitempty"`
	Message       string          `json:"message,omitempty"`
	TimeSeconds   *float64        `json:"time,omitempty"`
	MemoryKB      *int64          `json:"memory,omitempty"`
}
