package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.BaseURL != DefaultBaseURL || cfg.Timeout != DefaultTimeout || cfg.TokenStatePath != DefaultTokenStatePath {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.PrettyJSON == nil || !*cfg.PrettyJSON {
		t.Fatal("pretty json should default to true")
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("ARENA_URL", "http://arena:9000")
	path := filepath.Join(t.TempDir(), "cli.yaml")
	content := "baseURL: ${ARENA_URL}\ntimeout: 3s\nprettyJSON: false\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.BaseURL != "http://arena:9000" || cfg.Timeout != 3*time.Second || *cfg.PrettyJSON {
		t.Fatalf("unexpected config %+v", cfg)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(bad, []byte("baseURL: [\n"), 0o600)
	if _, err := Load(bad); err == nil {
		t.Fatal("expected parse error")
	}
}
