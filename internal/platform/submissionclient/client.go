// Package submissionclient records formal submissions with the platform API.
package submissionclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"codearena/internal/common/httpclient"
	"codearena/internal/platform/credential"
	"codearena/internal/platform/envelope"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

// Recorder records a formal submission and returns its platform id.
type Recorder interface {
	SubmitCode(ctx context.Context, challengeID, code, language string) (string, error)
}

type submitRequest struct {
	ChallengeID string `json:"challengeId"`
	Code        string `json:"code"`
	Language    string `json:"language"`
}

type submitPayload struct {
	ID string `json:"id"`
}

// Client calls POST /submissions.
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

// SubmitCode records code for challengeID. The platform id may be empty if the API omits it.
func (c *Client) SubmitCode(ctx context.Context, challengeID, code, language string) (string, error) {
	if strings.TrimSpace(challengeID) == "" {
		return "", appErr.ValidationError("challenge_id", "required")
	}
	body, err := json.Marshal(submitRequest{ChallengeID: challengeID, Code: code, Language: language})
	if err != nil {
		return "", appErr.Wrapf(err, appErr.SubmissionRecordFailed, "encode submission failed")
	}

	info, err := c.http.Do(ctx, http.MethodPost, "/submissions", nil, body)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.SubmissionRecordFailed, "record submission failed")
	}
	if !info.OK() {
		return "", appErr.New(appErr.SubmissionRecordFailed).
			WithMessage(envelope.FailureMessage(info.Body, info.StatusCode)).
			WithDetail("challenge_id", challengeID).
			WithDetail("status", info.StatusCode)
	}

	data, err := envelope.Payload(info.Body)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.SubmissionRecordFailed, "invalid submission response")
	}
	var payload submitPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", appErr.Wrapf(err, appErr.SubmissionRecordFailed, "decode submission response failed")
	}
	logger.Info(ctx, "submission recorded",
		zap.String("challenge_id", challengeID),
		zap.String("submission_id", payload.ID),
		zap.String("language", language),
	)
	return payload.ID, nil
}
