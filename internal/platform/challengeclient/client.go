// Package challengeclient fetches challenge test cases from the platform API.
package challengeclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/httpclient"
	gradingmodel "codearena/internal/grading/model"
	"codearena/internal/platform/credential"
	"codearena/internal/platform/envelope"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

// TestCaseSource returns the test cases of a challenge, in order.
type TestCaseSource interface {
	TestCases(ctx context.Context, challengeID string) ([]gradingmodel.TestCase, error)
}

type challengePayload struct {
	ID        string                  `json:"id"`
	Title     string                  `json:"title"`
	TestCases []gradingmodel.TestCase `json:"testCases"`
}

// Client calls GET /challenges/{id}.
type Client struct {
	http *httpclient.Client
}

// New creates a client for the platform API. Credentials are resolved per call.
func New(baseURL string, timeout time.Duration, credentials credential.Provider) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("platform base url is required")
	}
	return &Client{http: httpclient.New(baseURL, timeout, credentials)}, nil
}

// WithHTTPClient swaps the transport.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http.WithHTTPClient(hc)
	return c
}

// TestCases fetches the challenge and returns its test cases. A challenge without any is valid.
func (c *Client) TestCases(ctx context.Context, challengeID string) ([]gradingmodel.TestCase, error) {
	if strings.TrimSpace(challengeID) == "" {
		return nil, appErr.ValidationError("challenge_id", "required")
	}
	info, err := c.http.Do(ctx, http.MethodGet, "/challenges/"+url.PathEscape(challengeID), nil, nil)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ChallengeFetchFailed, "fetch challenge %s failed", challengeID)
	}
	if !info.OK() {
		code := appErr.ChallengeFetchFailed
		if info.StatusCode == http.StatusNotFound {
			code = appErr.ChallengeNotFound
		}
		return nil, appErr.New(code).
			WithMessage(envelope.FailureMessage(info.Body, info.StatusCode)).
			WithDetail("challenge_id", challengeID).
			WithDetail("status", info.StatusCode)
	}

	data, err := envelope.Payload(info.Body)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ChallengeFetchFailed, "invalid challenge response")
	}
	var payload challengePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, appErr.Wrapf(err, appErr.ChallengeFetchFailed, "decode challenge failed")
	}
	logger.Debug(ctx, "challenge test cases loaded",
		zap.String("challenge_id", challengeID),
		zap.Int("cases", len(payload.TestCases)),
	)
	return payload.TestCases, nil
}

const challengeCacheKeyPrefix = "challenge:cases:"

// CachedSource caches test cases in redis. Challenges without test cases are cached for emptyTTL.
type CachedSource struct {
	next     TestCaseSource
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewCachedSource decorates next. A nil cache or zero ttl disables caching.
func NewCachedSource(next TestCaseSource, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *CachedSource {
	return &CachedSource{next: next, cache: cacheClient, ttl: ttl, emptyTTL: emptyTTL}
}

// TestCases returns cached test cases, fetching them on a miss.
func (s *CachedSource) TestCases(ctx context.Context, challengeID string) ([]gradingmodel.TestCase, error) {
	if s.cache == nil || s.ttl <= 0 {
		return s.next.TestCases(ctx, challengeID)
	}
	cases, err := cache.GetWithCached(
		ctx,
		s.cache,
		challengeCacheKeyPrefix+challengeID,
		s.ttl,
		s.emptyTTL,
		func(v []gradingmodel.TestCase) bool { return len(v) == 0 },
		marshalCases,
		unmarshalCases,
		func(ctx context.Context) ([]gradingmodel.TestCase, error) {
			return s.next.TestCases(ctx, challengeID)
		},
	)
	if err != nil {
		if appErr.GetError(err) != nil {
			return nil, err
		}
		return nil, appErr.Wrapf(err, appErr.CacheError, "load cached test cases failed")
	}
	return cases, nil
}

func marshalCases(v []gradingmodel.TestCase) (string, error) {
	data, err := json.Marshal(v)
	return string(data), err
}

func unmarshalCases(s string) ([]gradingmodel.TestCase, error) {
	var v []gradingmodel.TestCase
	err := json.Unmarshal([]byte(s), &v)
	return v, err
}
