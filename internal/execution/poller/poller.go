// Package poller waits for an execution to reach a terminal status.
package poller

import (
	"context"
	"time"

	"codearena/internal/execution/model"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts = 10
	DefaultInterval    = time.Second
)

// ResultFetcher is the part of the execution client the poller needs.
type ResultFetcher interface {
	FetchResult(ctx context.Context, token string) (model.ExecutionResult, error)
}

// Config holds polling settings. Zero values fall back to defaults.
type Config struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	Interval    time.Duration `yaml:"interval"`
}

// ResultPoller fetches a result at a fixed interval until it is terminal.
type ResultPoller struct {
	fetcher     ResultFetcher
	maxAttempts int
	interval    time.Duration
	wait        func(ctx context.Context, d time.Duration) error
}

// New builds a poller around fetcher.
func New(fetcher ResultFetcher, cfg Config) *ResultPoller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &ResultPoller{
		fetcher:     fetcher,
		maxAttempts: cfg.MaxAttempts,
		interval:    cfg.Interval,
		wait:        sleepContext,
	}
}

// AwaitResult returns the first terminal result for token.
// Fetch errors end polling at once. After maxAttempts non-terminal fetches it fails with ExecutionTimeout.
func (p *ResultPoller) AwaitResult(ctx context.Context, token string) (model.ExecutionResult, error) {
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		result, err := p.fetcher.FetchResult(ctx, token)
		if err != nil {
			return model.ExecutionResult{}, err
		}
		if result.Status.IsTerminal() {
			return result, nil
		}
		logger.Debug(ctx, "execution not finished",
			zap.String("token", token),
			zap.Int("attempt", attempt),
			zap.Int("status_id", int(result.Status.ID)),
		)
		if attempt == p.maxAttempts {
			break
		}
		if err := p.wait(ctx, p.interval); err != nil {
			return model.ExecutionResult{}, err
		}
	}
	return model.ExecutionResult{}, appErr.Newf(appErr.ExecutionTimeout, "Execution timed out").
		WithDetail("token", token).
		WithDetail("attempts", p.maxAttempts)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
