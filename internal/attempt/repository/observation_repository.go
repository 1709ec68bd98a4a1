package repository

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"codearena/internal/attempt/model"
	"codearena/internal/common/cache"
	appErr "codearena/pkg/errors"
)

const (
	observationKeyPrefix = "attempt:obs:"
	teamIndexKeyPrefix   = "attempt:team:"
)

// ObservationRepository persists the latest observation of every attempt.
type ObservationRepository interface {
	Save(ctx context.Context, obs model.Observation) error
	Get(ctx context.Context, attemptID string) (model.Observation, error)
	ListByTeam(ctx context.Context, teamID string) ([]model.Observation, error)
}

// RedisObservationRepository stores observations as JSON with a TTL and indexes them per team.
type RedisObservationRepository struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewRedisObservationRepository creates a repository. A zero ttl keeps observations forever.
func NewRedisObservationRepository(cacheClient cache.Cache, ttl time.Duration) *RedisObservationRepository {
	return &RedisObservationRepository{cache: cacheClient, ttl: ttl}
}

// Save overwrites the stored observation unless a newer version is already there.
func (r *RedisObservationRepository) Save(ctx context.Context, obs model.Observation) error {
	if obs.AttemptID == "" {
		return appErr.ValidationError("attempt_id", "required")
	}
	if r.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	current, err := r.Get(ctx, obs.AttemptID)
	if err == nil && current.Version > obs.Version {
		return nil
	}

	data, err := json.Marshal(obs)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheSetFailed, "encode observation failed")
	}
	if err := r.cache.Set(ctx, observationKeyPrefix+obs.AttemptID, string(data), r.ttl); err != nil {
		return appErr.Wrapf(err, appErr.CacheSetFailed, "store observation failed")
	}
	if obs.TeamID != "" {
		indexKey := teamIndexKeyPrefix + obs.TeamID
		if err := r.cache.SAdd(ctx, indexKey, obs.AttemptID); err != nil {
			return appErr.Wrapf(err, appErr.CacheSetFailed, "index observation failed")
		}
		if r.ttl > 0 {
			_ = r.cache.Expire(ctx, indexKey, r.ttl)
		}
	}
	return nil
}

// Get loads one observation. Missing attempts yield AttemptNotFound.
func (r *RedisObservationRepository) Get(ctx context.Context, attemptID string) (model.Observation, error) {
	if attemptID == "" {
		return model.Observation{}, appErr.ValidationError("attempt_id", "required")
	}
	if r.cache == nil {
		return model.Observation{}, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	val, err := r.cache.Get(ctx, observationKeyPrefix+attemptID)
	if err != nil {
		return model.Observation{}, appErr.Wrapf(err, appErr.CacheError, "load observation failed")
	}
	if val == "" {
		return model.Observation{}, appErr.Newf(appErr.AttemptNotFound, "attempt %s not found", attemptID)
	}
	var obs model.Observation
	if err := json.Unmarshal([]byte(val), &obs); err != nil {
		return model.Observation{}, appErr.Wrapf(err, appErr.CacheError, "decode observation failed")
	}
	return obs, nil
}

// ListByTeam returns a team's attempts, most recently updated first. Expired entries are pruned from the index.
func (r *RedisObservationRepository) ListByTeam(ctx context.Context, teamID string) ([]model.Observation, error) {
	if teamID == "" {
		return nil, appErr.ValidationError("team_id", "required")
	}
	if r.cache == nil {
		return nil, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	indexKey := teamIndexKeyPrefix + teamID
	ids, err := r.cache.SMembers(ctx, indexKey)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "load team index failed")
	}

	out := make([]model.Observation, 0, len(ids))
	var stale []interface{}
	for _, id := range ids {
		obs, err := r.Get(ctx, id)
		if appErr.Is(err, appErr.AttemptNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	if len(stale) > 0 {
		_ = r.cache.SRem(ctx, indexKey, stale...)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}
