package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// TokenState is the team access token persisted by the CLI between sessions.
type TokenState struct {
	AccessToken string    `json:"access_token"`
	TeamID      string    `json:"team_id,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the token has a known expiry in the past.
func (s TokenState) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// LoadState reads the token state file. A missing or empty file yields a zero state.
func LoadState(path string) (TokenState, error) {
	var st TokenState
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, fmt.Errorf("read token state failed: %w", err)
	}
	if len(data) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("parse token state failed: %w", err)
	}
	return st, nil
}

// SaveState writes the token state file with owner-only permissions.
func SaveState(path string, st TokenState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create token state dir failed: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token state failed: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write token state failed: %w", err)
	}
	return nil
}

// ClearState removes the token state file.
func ClearState(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove token state failed: %w", err)
	}
	return nil
}

// StateFile re-reads the token state file on every request and attaches its token.
// Expired tokens are not sent.
func StateFile(path string) Provider {
	return ProviderFunc(func(_ context.Context, header http.Header) error {
		st, err := LoadState(path)
		if err != nil {
			return err
		}
		if st.AccessToken == "" || st.Expired(time.Now()) {
			return nil
		}
		header.Set("Authorization", "Bearer "+st.AccessToken)
		return nil
	})
}
