// Package client talks to a Judge0-compatible execution service.
package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"codearena/internal/common/httpclient"
	"codearena/internal/execution/model"
	"codearena/internal/platform/credential"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

// Encoding selects how text fields travel on the wire.
type Encoding string

const (
	EncodingBase64 Encoding = "base64"
	EncodingRaw    Encoding = "raw"
)

const maxErrorBodyBytes = 512

// Config configures an ExecutionClient.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	Encoding    Encoding
	Credentials credential.Provider
	HTTPClient  *http.Client
}

// ExecutionClient performs single submit and fetch round trips.
type ExecutionClient struct {
	http     *httpclient.Client
	encoding Encoding
}

// New validates cfg and builds a client. Encoding defaults to base64.
func New(cfg Config) (*ExecutionClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("execution base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid execution base url: %w", err)
	}
	enc := Encoding(strings.ToLower(string(cfg.Encoding)))
	switch enc {
	case "":
		enc = EncodingBase64
	case EncodingBase64, EncodingRaw:
	default:
		return nil, fmt.Errorf("unknown execution encoding %q", cfg.Encoding)
	}
	hc := httpclient.New(cfg.BaseURL, cfg.Timeout, cfg.Credentials).WithHTTPClient(cfg.HTTPClient)
	return &ExecutionClient{http: hc, encoding: enc}, nil
}

type submitBody struct {
	SourceCode     string  `json:"source_code"`
	LanguageID     int     `json:"language_id"`
	Stdin          *string `json:"stdin,omitempty"`
	ExpectedOutput *string `json:"expected_output,omitempty"`
}

type submitResponse struct {
	Token string `json:"token"`
}

type resultResponse struct {
	Token         string                `json:"token"`
	Stdout        *string               `json:"stdout"`
	Stderr        *string               `json:"stderr"`
	CompileOutput *string               `json:"compile_output"`
	Message       *string               `json:"message"`
	Status        model.ExecutionStatus `json:"status"`
	Time          json.RawMessage       `json:"time"`
	Memory        json.RawMessage       `json:"memory"`
}

// Submit queues one run and returns the service's token.
func (c *ExecutionClient) Submit(ctx context.Context, req model.ExecutionRequest) (string, error) {
	if strings.TrimSpace(req.SourceCode) == "" {
		return "", appErr.ValidationError("source_code", "must not be blank")
	}
	if !model.IsSupportedLanguage(req.LanguageID) {
		return "", appErr.Newf(appErr.LanguageNotSupported, "language id %d is not supported", req.LanguageID).
			WithDetail("language_id", req.LanguageID)
	}

	body := submitBody{
		SourceCode: c.encode(req.SourceCode),
		LanguageID: req.LanguageID,
	}
	if req.Stdin != "" {
		v := c.encode(req.Stdin)
		body.Stdin = &v
	}
	if req.ExpectedOutput != "" {
		v := c.encode(req.ExpectedOutput)
		body.ExpectedOutput = &v
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.InternalServerError, "encode submission failed")
	}

	info, err := c.http.Do(ctx, http.MethodPost, "/submissions"+c.query(), nil, payload)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.ExecutionTransportFailed, "submit to execution service failed: %v", err)
	}
	if !info.OK() {
		return "", statusError("submit", info)
	}

	var resp submitResponse
	if err := json.Unmarshal(info.Body, &resp); err != nil {
		return "", appErr.Wrapf(err, appErr.ExecutionTransportFailed, "decode submit response failed")
	}
	if resp.Token == "" {
		return "", appErr.New(appErr.ExecutionTransportFailed).WithMessage("execution service returned no token")
	}
	logger.Debug(ctx, "execution submitted", zap.String("token", resp.Token), zap.Int("language_id", req.LanguageID))
	return resp.Token, nil
}

// FetchResult reads the current state of a run.
func (c *ExecutionClient) FetchResult(ctx context.Context, token string) (model.ExecutionResult, error) {
	var result model.ExecutionResult
	if strings.TrimSpace(token) == "" {
		return result, appErr.ValidationError("token", "must not be blank")
	}

	info, err := c.http.Do(ctx, http.MethodGet, "/submissions/"+url.PathEscape(token)+c.query(), nil, nil)
	if err != nil {
		return result, appErr.Wrapf(err, appErr.ExecutionTransportFailed, "fetch execution result failed: %v", err)
	}
	if info.StatusCode == http.StatusNotFound {
		return result, appErr.Newf(appErr.ExecutionTransportFailed, "execution token %s is unknown", token).
			WithDetail("status", info.StatusCode)
	}
	if !info.OK() {
		return result, statusError("fetch", info)
	}

	var resp resultResponse
	if err := json.Unmarshal(info.Body, &resp); err != nil {
		return result, appErr.Wrapf(err, appErr.ExecutionTransportFailed, "decode execution result failed")
	}
	if resp.Status.ID == 0 {
		return result, appErr.Newf(appErr.ExecutionTransportFailed, "execution result for %s has no status", token)
	}

	result.Token = resp.Token
	if result.Token == "" {
		result.Token = token
	}
	result.Status = resp.Status
	fields := []struct {
		name string
		src  *string
		dst  *string
	}{
		{"stdout", resp.Stdout, &result.Stdout},
		{"stderr", resp.Stderr, &result.Stderr},
		{"compile_output", resp.CompileOutput, &result.CompileOutput},
		{"message", resp.Message, &result.Message},
	}
	for _, f := range fields {
		if f.src == nil {
			continue
		}
		decoded, err := c.decode(*f.src)
		if err != nil {
			return result, appErr.Wrapf(err, appErr.ExecutionTransportFailed, "decode %s failed", f.name)
		}
		*f.dst = decoded
	}
	if v, ok := parseFloat(resp.Time); ok {
		result.TimeSeconds = &v
	}
	if v, ok := parseFloat(resp.Memory); ok {
		kb := int64(v)
		result.MemoryKB = &kb
	}
	return result, nil
}

func (c *ExecutionClient) query() string {
	if c.encoding == EncodingBase64 {
		return "?base64_encoded=true"
	}
	return ""
}

func (c *ExecutionClient) encode(s string) string {
	if c.encoding == EncodingBase64 {
		return base64.StdEncoding.EncodeToString([]byte(s))
	}
	return s
}

// decode accepts base64 with embedded line breaks, as Judge0 wraps long payloads.
func (c *ExecutionClient) decode(s string) (string, error) {
	if c.encoding != EncodingBase64 {
		return s, nil
	}
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
	data, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(cleaned, "="))
		if err != nil {
			return "", err
		}
	}
	return string(data), nil
}

// parseFloat reads a JSON number or a numeric string; null and blanks are absent.
func parseFloat(raw json.RawMessage) (float64, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, false
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func statusError(op string, info httpclient.ResponseInfo) *appErr.Error {
	body := strings.TrimSpace(string(info.Body))
	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
	}
	e := appErr.Newf(appErr.ExecutionTransportFailed, "execution service %s returned HTTP %d", op, info.StatusCode).
		WithDetail("status", info.StatusCode)
	if body != "" {
		e.WithDetail("body", body)
	}
	return e
}
