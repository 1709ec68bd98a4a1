package challengeclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"codearena/internal/common/cache"
	gradingmodel "codearena/internal/grading/model"
	"codearena/internal/platform/credential"
	appErr "codearena/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestTestCasesWrappedAndBare(t *testing.T) {
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/challenges/wrapped":
			_, _ = w.Write([]byte(`{"success":true,"data":{"id":"wrapped","testCases":[{"input":"1 2","expectedOutput":"3"},{"input":"5 5","expectedOutput":"10","isHidden":true}]}}`))
		case "/challenges/bare":
			_, _ = w.Write([]byte(`{"id":"bare","testCases":[{"input":"","expectedOutput":"hi"}]}`))
		case "/challenges/empty":
			_, _ = w.Write([]byte(`{"success":true,"data":{"id":"empty"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"success":false,"message":"Challenge not found"}`))
		}
	}))
	defer srv.Close()

	c, err := New(srv.URL, time.Second, credential.Forwarded(nil))
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	ctx := credential.WithTeamToken(context.Background(), "team-token")

	cases, err := c.TestCases(ctx, "wrapped")
	if err != nil {
		t.Fatalf("wrapped fetch failed: %v", err)
	}
	want := []gradingmodel.TestCase{
		{Input: "1 2", ExpectedOutput: "3"},
		{Input: "5 5", ExpectedOutput: "10", IsHidden: true},
	}
	if len(cases) != 2 || cases[0] != want[0] || cases[1] != want[1] {
		t.Fatalf("unexpected cases %+v", cases)
	}
	if got := auth.Load(); got != "Bearer team-token" {
		t.Fatalf("team token not forwarded, got %v", got)
	}

	cases, err = c.TestCases(ctx, "bare")
	if err != nil || len(cases) != 1 || cases[0].ExpectedOutput != "hi" {
		t.Fatalf("bare fetch: %+v %v", cases, err)
	}

	cases, err = c.TestCases(ctx, "empty")
	if err != nil || len(cases) != 0 {
		t.Fatalf("challenge without cases should be valid: %+v %v", cases, err)
	}

	_, err = c.TestCases(ctx, "missing")
	if !appErr.Is(err, appErr.ChallengeNotFound) {
		t.Fatalf("expected ChallengeNotFound, got %v", err)
	}
	if appErr.GetError(err).Message != "Challenge not found" {
		t.Fatalf("message should come from body, got %q", appErr.GetError(err).Message)
	}
}

func TestTestCasesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/challenges/garbage" {
			_, _ = w.Write([]byte(`not json`))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := New(srv.URL, time.Second, nil)
	ctx := context.Background()

	_, err := c.TestCases(ctx, "down")
	if !appErr.Is(err, appErr.ChallengeFetchFailed) || appErr.GetError(err).Message != "HTTP 502" {
		t.Fatalf("expected HTTP 502 ChallengeFetchFailed, got %v", err)
	}
	if _, err := c.TestCases(ctx, "garbage"); !appErr.Is(err, appErr.ChallengeFetchFailed) {
		t.Fatalf("expected ChallengeFetchFailed, got %v", err)
	}
	if _, err := c.TestCases(ctx, " "); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}

	noAuth, _ := New(srv.URL, time.Second, credential.Forwarded(nil))
	if _, err := noAuth.TestCases(ctx, "x"); !appErr.Is(err, appErr.ChallengeFetchFailed) {
		t.Fatalf("missing credential should fail the fetch, got %v", err)
	}

	if _, err := New("", time.Second, nil); err == nil {
		t.Fatal("expected error for empty base url")
	}
}

type countingSource struct {
	calls int
	cases []gradingmodel.TestCase
}

func (s *countingSource) TestCases(context.Context, string) ([]gradingmodel.TestCase, error) {
	s.calls++
	return s.cases, nil
}

func TestCachedSource(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new cache failed: %v", err)
	}
	defer func() { _ = rc.Close() }()
	ctx := context.Background()

	next := &countingSource{cases: []gradingmodel.TestCase{{Input: "1", ExpectedOutput: "1"}}}
	src := NewCachedSource(next, rc, time.Minute, 10*time.Second)
	for i := 0; i < 3; i++ {
		cases, err := src.TestCases(ctx, "c1")
		if err != nil || len(cases) != 1 {
			t.Fatalf("unexpected %+v %v", cases, err)
		}
	}
	if next.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", next.calls)
	}
	if !mr.Exists(challengeCacheKeyPrefix + "c1") {
		t.Fatal("test cases should be cached")
	}

	uncached := NewCachedSource(next, nil, time.Minute, 0)
	_, _ = uncached.TestCases(ctx, "c1")
	if next.calls != 2 {
		t.Fatalf("nil cache should pass through, got %d calls", next.calls)
	}
}
