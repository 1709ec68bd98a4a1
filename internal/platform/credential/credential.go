// Package credential attaches outbound credentials to HTTP requests.
// A Provider is consulted once per request so a rotated token is always picked up.
package credential

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"codearena/pkg/utils/contextkey"
)

// ErrMissingCredential is returned by providers that require a credential and found none.
var ErrMissingCredential = errors.New("credential: no credential available")

// Provider decorates an outgoing request with authentication headers.
type Provider interface {
	Apply(ctx context.Context, header http.Header) error
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, header http.Header) error

// Apply calls f.
func (f ProviderFunc) Apply(ctx context.Context, header http.Header) error {
	return f(ctx, header)
}

// None attaches nothing.
func None() Provider {
	return ProviderFunc(func(context.Context, http.Header) error { return nil })
}

// Bearer attaches a static bearer token. An empty token attaches nothing.
func Bearer(token string) Provider {
	token = strings.TrimSpace(token)
	return ProviderFunc(func(_ context.Context, header http.Header) error {
		if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
		return nil
	})
}

// RapidAPI attaches the X-RapidAPI-Key / X-RapidAPI-Host pair used by hosted Judge0.
func RapidAPI(key, host string) Provider {
	return ProviderFunc(func(_ context.Context, header http.Header) error {
		if key == "" {
			return ErrMissingCredential
		}
		header.Set("X-RapidAPI-Key", key)
		if host != "" {
			header.Set("X-RapidAPI-Host", host)
		}
		return nil
	})
}

// Forwarded attaches the caller's team token carried in ctx.
// When ctx has none, fallback is used; a nil fallback makes the call fail.
func Forwarded(fallback Provider) Provider {
	return ProviderFunc(func(ctx context.Context, header http.Header) error {
		if token, ok := ctx.Value(contextkey.TeamToken).(string); ok && token != "" {
			header.Set("Authorization", "Bearer "+token)
			return nil
		}
		if fallback == nil {
			return ErrMissingCredential
		}
		return fallback.Apply(ctx, header)
	})
}

// WithTeamToken stores a team bearer token in ctx for Forwarded.
func WithTeamToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, contextkey.TeamToken, token)
}

// FromConfig builds the execution-service provider for an auth mode.
// Supported modes are "none", "bearer" and "rapidapi".
func FromConfig(mode, token, apiKey, apiHost string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "none":
		return None(), nil
	case "bearer":
		return Bearer(token), nil
	case "rapidapi":
		if apiKey == "" {
			return nil, errors.New("credential: rapidapi mode requires an api key")
		}
		return RapidAPI(apiKey, apiHost), nil
	default:
		return nil, errors.New("credential: unknown auth mode " + mode)
	}
}
