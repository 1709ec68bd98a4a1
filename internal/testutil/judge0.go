package testutil

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// SubmittedRun is what the fake execution service received, already decoded.
type SubmittedRun struct {
	Token          string
	SourceCode     string
	LanguageID     int
	Stdin          string
	ExpectedOutput string
	Base64         bool
	Header         http.Header
}

// RunOutcome is what the fake reports once a run turns terminal.
type RunOutcome struct {
	StatusID      int
	Description   string
	Stdout        string
	Stderr        string
	CompileOutput string
	Message       string
}

// FakeJudge0 is an in-process Judge0-compatible service backed by httptest.
// Each run reports "Processing" for PendingPolls fetches before its outcome.
type FakeJudge0 struct {
	Server       *httptest.Server
	Run          func(SubmittedRun) RunOutcome
	PendingPolls int
	// SubmitStatus, when non-zero, is returned by POST /submissions instead of 201.
	SubmitStatus int

	mu      sync.Mutex
	seq     int
	runs    map[string]*fakeRun
	submits []SubmittedRun
	fetches int
}

type fakeRun struct {
	SubmittedRun
	polls int
}

// NewFakeJudge0 starts the fake. Callers must Close it.
func NewFakeJudge0(run func(SubmittedRun) RunOutcome) *FakeJudge0 {
	f := &FakeJudge0{Run: run, runs: make(map[string]*fakeRun)}
	mux := http.NewServeMux()
	mux.HandleFunc("/submissions", f.handleSubmit)
	mux.HandleFunc("/submissions/", f.handleFetch)
	f.Server = httptest.NewServer(mux)
	return f
}

// URL is the base URL of the fake.
func (f *FakeJudge0) URL() string {
	return f.Server.URL
}

// Close stops the fake.
func (f *FakeJudge0) Close() {
	f.Server.Close()
}

// Submissions returns every run received so far.
func (f *FakeJudge0) Submissions() []SubmittedRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SubmittedRun, len(f.submits))
	copy(out, f.submits)
	return out
}

// Fetches returns how many result fetches were served.
func (f *FakeJudge0) Fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *FakeJudge0) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if f.SubmitStatus != 0 {
		w.WriteHeader(f.SubmitStatus)
		_, _ = w.Write([]byte(`{"error":"rejected"}`))
		return
	}
	var body struct {
		SourceCode     string  `json:"source_code"`
		LanguageID     int     `json:"language_id"`
		Stdin          *string `json:"stdin"`
		ExpectedOutput *string `json:"expected_output"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		return
	}
	b64 := r.URL.Query().Get("base64_encoded") == "true"
	decode := func(s string) string {
		if !b64 {
			return s
		}
		data, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return "<bad base64>"
		}
		return string(data)
	}
	run := SubmittedRun{
		SourceCode: decode(body.SourceCode),
		LanguageID: body.LanguageID,
		Base64:     b64,
		Header:     r.Header.Clone(),
	}
	if body.Stdin != nil {
		run.Stdin = decode(*body.Stdin)
	}
	if body.ExpectedOutput != nil {
		run.ExpectedOutput = decode(*body.ExpectedOutput)
	}

	f.mu.Lock()
	f.seq++
	run.Token = fmt.Sprintf("tok-%d", f.seq)
	f.runs[run.Token] = &fakeRun{SubmittedRun: run}
	f.submits = append(f.submits, run)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"token": run.Token})
}

func (f *FakeJudge0) handleFetch(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.URL.Path, "/submissions/")
	f.mu.Lock()
	f.fetches++
	run, ok := f.runs[token]
	var polls int
	if ok {
		run.polls++
		polls = run.polls
	}
	f.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"submission not found"}`))
		return
	}

	b64 := r.URL.Query().Get("base64_encoded") == "true"
	encode := func(s string) interface{} {
		if s == "" {
			return nil
		}
		if b64 {
			return base64.StdEncoding.EncodeToString([]byte(s))
		}
		return s
	}

	resp := map[string]interface{}{"token": token}
	if polls <= f.PendingPolls {
		resp["status"] = map[string]interface{}{"id": 2, "description": "Processing"}
	} else {
		out := RunOutcome{StatusID: 3, Description: "Accepted"}
		if f.Run != nil {
			out = f.Run(run.SubmittedRun)
		}
		if out.Description == "" {
			out.Description = fmt.Sprintf("status %d", out.StatusID)
		}
		resp["status"] = map[string]interface{}{"id": out.StatusID, "description": out.Description}
		resp["stdout"] = encode(out.Stdout)
		resp["stderr"] = encode(out.Stderr)
		resp["compile_output"] = encode(out.CompileOutput)
		resp["message"] = encode(out.Message)
		resp["time"] = "0.012"
		resp["memory"] = 3276
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
