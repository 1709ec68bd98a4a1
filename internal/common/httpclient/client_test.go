package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"codearena/internal/platform/credential"
)

func TestDoSendsBodyAndCredentials(t *testing.T) {
	var gotAuth, gotType, gotBody, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotPath = r.URL.RequestURI()
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := New(srv.URL+"/", time.Second, credential.Bearer("tok"))
	info, err := client.Do(context.Background(), http.MethodPost, "/things?x=1", map[string]string{"X-Extra": "1"}, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("do failed: %v", err)
	}
	if !info.OK() || info.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status %d", info.StatusCode)
	}
	if gotAuth != "Bearer tok" || gotType != "application/json" {
		t.Fatalf("unexpected headers auth=%q type=%q", gotAuth, gotType)
	}
	if gotBody != `{"a":1}` || gotPath != "/things?x=1" {
		t.Fatalf("unexpected body %q path %q", gotBody, gotPath)
	}
	if string(info.Body) != `{"ok":true}` {
		t.Fatalf("unexpected response body %q", info.Body)
	}
}

func TestDoNon2xxIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	info, err := New(srv.URL, time.Second, nil).Do(context.Background(), http.MethodGet, "/x", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.OK() || info.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status %d", info.StatusCode)
	}
}

func TestDoCredentialFailureStopsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second, credential.Forwarded(nil)).Do(context.Background(), http.MethodGet, "/x", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "attach credentials failed") {
		t.Fatalf("expected credential error, got %v", err)
	}
	if called {
		t.Fatal("server should not be called")
	}
}

func TestDoTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := New(srv.URL, 20*time.Millisecond, nil)
	if _, err := client.Do(context.Background(), http.MethodGet, "/slow", nil, nil); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestSetters(t *testing.T) {
	client := New("http://a/", 0, nil)
	client.SetBaseURL("http://b/")
	client.SetTimeout(-1)
	if client.BaseURL() != "http://b" {
		t.Fatalf("unexpected base url %s", client.BaseURL())
	}
	if client.timeout != defaultTimeout {
		t.Fatalf("unexpected timeout %s", client.timeout)
	}
}
