package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"aidflow-backend/apperr"
	"aidflow-backend/logger"
	"aidflow-backend/models"

	"github.com/redis/go-redis/v9"
)

const (
	programCachePrefix     = "aid:program:"
	DefaultProgramCacheTTL = 5 * time.Minute
)

// CachedProgramStore serves programs from Redis and falls back to the
// wrapped store on a miss. Redis failures degrade to direct reads.
type CachedProgramStore struct {
	next  ProgramStore
	redis *redis.Client
	ttl   time.Duration
	log   logger.Logger
}

// NewCachedProgramStore wraps next with a Redis cache.
func NewCachedProgramStore(next ProgramStore, client *redis.Client, ttl time.Duration, log logger.Logger) *CachedProgramStore {
	if ttl <= 0 {
		ttl = DefaultProgramCacheTTL
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &CachedProgramStore{next: next, redis: client, ttl: ttl, log: log}
}

// GetByID implements ProgramStore.
func (c *CachedProgramStore) GetByID(ctx context.Context, id string) (*models.AidProgram, error) {
	programs, err := c.GetByIDs(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(programs) == 0 {
		return nil, fmt.Errorf("aid program %s: %w", id, apperr.ErrNotFound)
	}
	return programs[0], nil
}

// GetByIDs implements ProgramStore.
func (c *CachedProgramStore) GetByIDs(ctx context.Context, ids []string) ([]*models.AidProgram, error) {
	if len(ids) == 0 {
		return []*models.AidProgram{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = programCachePrefix + id
	}

	found := make([]*models.AidProgram, 0, len(ids))
	missing := ids
	if vals, err := c.redis.MGet(ctx, keys...).Result(); err == nil {
		missing = missing[:0:0]
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				missing = append(missing, ids[i])
				continue
			}
			var p models.AidProgram
			if err := json.Unmarshal([]byte(s), &p); err != nil {
				missing = append(missing, ids[i])
				continue
			}
			found = append(found, &p)
		}
	} else {
		c.log.Warn("program cache read failed", map[string]interface{}{"error": err.Error()})
	}

	if len(missing) > 0 {
		fetched, err := c.next.GetByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, p := range fetched {
			if data, err := json.Marshal(p); err == nil {
				if err := c.redis.Set(ctx, programCachePrefix+p.ProgramID, data, c.ttl).Err(); err != nil {
					c.log.Warn("program cache write failed", map[string]interface{}{
						"program_id": p.ProgramID,
						"error":      err.Error(),
					})
				}
			}
		}
		found = append(found, fetched...)
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found, nil
}

// Invalidate drops cached entries for ids.
func (c *CachedProgramStore) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = programCachePrefix + id
	}
	return c.redis.Del(ctx, keys...).Err()
}
