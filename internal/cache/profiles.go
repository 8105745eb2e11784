package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Vasilion/UnyX-Social/internal/model"
	"github.com/Vasilion/UnyX-Social/internal/repository"
	"github.com/Vasilion/UnyX-Social/pkg/logger"
)

// ProfileSnapshot is the counterpart display info shown next to a conversation.
type ProfileSnapshot struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// ProfileLoader resolves display snapshots for a set of user ids.
type ProfileLoader interface {
	Load(ctx context.Context, ids []string) (map[string]ProfileSnapshot, error)
}

// ProfileCache is a redis cache-aside over the profiles table. Redis faults
// fall back to the database; database faults are returned.
type ProfileCache struct {
	repo  repository.ProfileRepository
	cache *redis.Client
	ttl   time.Duration

	dbLoads atomic.Int64
}

// NewProfileCache builds the loader. A nil client disables caching.
func NewProfileCache(repo repository.ProfileRepository, cache *redis.Client, ttl time.Duration) *ProfileCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ProfileCache{repo: repo, cache: cache, ttl: ttl}
}

func profileKey(id string) string { return fmt.Sprintf("profile:%s", id) }

func (s *ProfileCache) Load(ctx context.Context, ids []string) (map[string]ProfileSnapshot, error) {
	found := make(map[string]ProfileSnapshot, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	if s.cache != nil {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = profileKey(id)
		}
		vals, err := s.cache.MGet(ctx, keys...).Result()
		if err != nil {
			logger.Warn("profile cache mget failed", zap.Error(err))
		}
		for i, v := range vals {
			str, ok := v.(string)
			if !ok {
				continue
			}
			var snap ProfileSnapshot
			if uErr := json.Unmarshal([]byte(str), &snap); uErr == nil {
				found[ids[i]] = snap
			}
		}
	}

	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return found, nil
	}

	s.dbLoads.Add(1)
	profiles, err := s.repo.GetByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}

	var pipe redis.Pipeliner
	if s.cache != nil {
		pipe = s.cache.Pipeline()
	}
	for _, p := range profiles {
		snap := snapshotOf(p)
		found[p.ID] = snap
		if pipe == nil {
			continue
		}
		if payload, err := json.Marshal(snap); err == nil {
			pipe.Set(ctx, profileKey(p.ID), payload, s.ttl)
		}
	}
	if pipe != nil && pipe.Len() > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Warn("profile cache fill failed", zap.Error(err))
		}
	}
	return found, nil
}

// DBLoads reports how many times the database was hit.
func (s *ProfileCache) DBLoads() int64 { return s.dbLoads.Load() }

func snapshotOf(p *model.Profile) ProfileSnapshot {
	return ProfileSnapshot{ID: p.ID, Username: p.Username, AvatarURL: p.AvatarURL}
}
