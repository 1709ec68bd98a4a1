package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"codearena/internal/execution/model"
	appErr "codearena/pkg/errors"
)

type scriptedFetcher struct {
	statuses []model.StatusID
	err      error
	errAt    int
	calls    int
}

func (f *scriptedFetcher) FetchResult(_ context.Context, token string) (model.ExecutionResult, error) {
	f.calls++
	if f.err != nil && f.calls == f.errAt {
		return model.ExecutionResult{}, f.err
	}
	id := f.statuses[len(f.statuses)-1]
	if f.calls <= len(f.statuses) {
		id = f.statuses[f.calls-1]
	}
	return model.ExecutionResult{Token: token, Status: model.NewStatus(id)}, nil
}

type recordingWait struct {
	waits []time.Duration
}

func (w *recordingWait) wait(_ context.Context, d time.Duration) error {
	w.waits = append(w.waits, d)
	return nil
}

func newTestPoller(f ResultFetcher, attempts int) (*ResultPoller, *recordingWait) {
	p := New(f, Config{MaxAttempts: attempts, Interval: 250 * time.Millisecond})
	w := &recordingWait{}
	p.wait = w.wait
	return p, w
}

func TestAwaitResultReturnsFirstTerminal(t *testing.T) {
	f := &scriptedFetcher{statuses: []model.StatusID{model.StatusInQueue, model.StatusProcessing, model.StatusAccepted}}
	p, w := newTestPoller(f, 10)

	result, err := p.AwaitResult(context.Background(), "tok")
	if err != nil {
		t.Fatalf("await failed: %v", err)
	}
	if result.Status.ID != model.StatusAccepted {
		t.Fatalf("expected accepted, got %d", result.Status.ID)
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 fetches, got %d", f.calls)
	}
	if len(w.waits) != 2 || w.waits[0] != 250*time.Millisecond {
		t.Fatalf("expected 2 waits of 250ms, got %v", w.waits)
	}
}

func TestAwaitResultTerminalFailureIsNotAnError(t *testing.T) {
	f := &scriptedFetcher{statuses: []model.StatusID{model.StatusRuntimeError}}
	p, w := newTestPoller(f, 10)

	result, err := p.AwaitResult(context.Background(), "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status.ID != model.StatusRuntimeError || len(w.waits) != 0 {
		t.Fatalf("expected immediate runtime error result, got %+v waits=%d", result.Status, len(w.waits))
	}
}

func TestAwaitResultTimesOutWithoutTrailingWait(t *testing.T) {
	f := &scriptedFetcher{statuses: []model.StatusID{model.StatusProcessing}}
	p, w := newTestPoller(f, 10)

	_, err := p.AwaitResult(context.Background(), "tok")
	if !appErr.Is(err, appErr.ExecutionTimeout) {
		t.Fatalf("expected ExecutionTimeout, got %v", err)
	}
	if err.Error() != "Execution timed out" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if f.calls != 10 {
		t.Fatalf("expected exactly 10 fetches, got %d", f.calls)
	}
	if len(w.waits) != 9 {
		t.Fatalf("expected 9 waits, got %d", len(w.waits))
	}
}

func TestAwaitResultAcceptedOnLastAttempt(t *testing.T) {
	statuses := make([]model.StatusID, 0, 10)
	for i := 0; i < 9; i++ {
		statuses = append(statuses, model.StatusProcessing)
	}
	statuses = append(statuses, model.StatusAccepted)
	f := &scriptedFetcher{statuses: statuses}
	p, w := newTestPoller(f, 10)

	result, err := p.AwaitResult(context.Background(), "tok")
	if err != nil {
		t.Fatalf("await failed: %v", err)
	}
	if result.Status.ID != model.StatusAccepted {
		t.Fatalf("expected accepted, got %d", result.Status.ID)
	}
	if f.calls != 10 {
		t.Fatalf("expected exactly 10 fetches, got %d", f.calls)
	}
	if len(w.waits) != 9 {
		t.Fatalf("expected 9 waits, got %d", len(w.waits))
	}
}

func TestAwaitResultPropagatesFetchError(t *testing.T) {
	boom := appErr.New(appErr.ExecutionTransportFailed)
	f := &scriptedFetcher{statuses: []model.StatusID{model.StatusInQueue}, err: boom, errAt: 2}
	p, _ := newTestPoller(f, 10)

	_, err := p.AwaitResult(context.Background(), "tok")
	if !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if f.calls != 2 {
		t.Fatalf("polling should stop at the failing fetch, got %d calls", f.calls)
	}
}

func TestAwaitResultHonoursCancellation(t *testing.T) {
	f := &scriptedFetcher{statuses: []model.StatusID{model.StatusProcessing}}
	p := New(f, Config{MaxAttempts: 10, Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := p.AwaitResult(ctx, "tok")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.calls != 1 {
		t.Fatalf("expected a single fetch before cancellation, got %d", f.calls)
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	p := New(&scriptedFetcher{}, Config{})
	if p.maxAttempts != DefaultMaxAttempts || p.interval != DefaultInterval {
		t.Fatalf("unexpected defaults %d %s", p.maxAttempts, p.interval)
	}
}
