package command

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestRegistryKeys(t *testing.T) {
	commands := Registry()
	for _, key := range []string{
		"languages list", "attempt create", "attempt list", "attempt get",
		"attempt test", "attempt submit", "attempt reset", "attempt watch",
	} {
		if _, ok := commands[key]; !ok {
			t.Fatalf("missing command %q", key)
		}
	}
	keys := Keys(commands)
	if len(keys) != len(commands) || keys[0] != "attempt create" {
		t.Fatalf("unexpected keys %v", keys)
	}
	if !commands["attempt watch"].Stream {
		t.Fatal("watch should be a stream command")
	}
}

func TestBuildRequestCreate(t *testing.T) {
	params, err := ParseArgs([]string{"challenge=ch-1"})
	if err != nil {
		t.Fatalf("parse args failed: %v", err)
	}
	req, err := BuildRequest(Registry()["attempt create"], params)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if req.Method != "POST" || req.Path != "/api/v1/attempts" {
		t.Fatalf("unexpected request %+v", req)
	}
	var body map[string]string
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("decode body failed: %v", err)
	}
	if body["challenge_id"] != "ch-1" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestBuildRequestSourceFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.py")
	if err := os.WriteFile(path, []byte("print(input())\n"), 0o600); err != nil {
		t.Fatalf("write file failed: %v", err)
	}

	cmd := Registry()["attempt test"]
	params, _ := ParseArgs([]string{"attempt_id=a/1", "lang=python", "file=" + path})
	ApplyShortcuts(cmd, params)
	if params.Get("source_code") != FileMarker {
		t.Fatalf("source_code should be marked for file loading, got %q", params.Get("source_code"))
	}

	req, err := BuildRequest(cmd, params)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if req.Path != "/api/v1/attempts/a%2F1/tests" {
		t.Fatalf("unexpected path %q", req.Path)
	}
	var body map[string]string
	_ = json.Unmarshal(req.Body, &body)
	if body["source_code"] != "print(input())\n" || body["language"] != "python" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestBuildRequestErrors(t *testing.T) {
	if _, err := BuildRequest(Registry()["attempt get"], Params{}); err == nil {
		t.Fatal("expected missing id error")
	}
	params, _ := ParseArgs([]string{"id=a1", "language=go"})
	if _, err := BuildRequest(Registry()["attempt submit"], params); err == nil {
		t.Fatal("expected missing source error")
	}
	params, _ = ParseArgs([]string{"id=a1", "language=go", "source_file=/does/not/exist"})
	ApplyShortcuts(Registry()["attempt submit"], params)
	if _, err := BuildRequest(Registry()["attempt submit"], params); err == nil {
		t.Fatal("expected read file error")
	}
	if _, err := ParseArgs([]string{"novalue"}); err == nil {
		t.Fatal("expected invalid param error")
	}
	if _, err := ParseArgs([]string{"=x"}); err == nil {
		t.Fatal("expected invalid param error for empty key")
	}
}

func TestBuildRequestGetHasNoBody(t *testing.T) {
	params, _ := ParseArgs([]string{"id=a1"})
	req, err := BuildRequest(Registry()["attempt get"], params)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if req.Method != "GET" || req.Path != "/api/v1/attempts/a1" || req.Body != nil {
		t.Fatalf("unexpected request %+v", req)
	}
}
