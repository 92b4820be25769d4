// Package examcache keeps exams in Redis so that a class opening the same
// exam at once hits the database only once.
package examcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
)

// DefaultTTL bounds how long a cached exam may be stale after an edit the
// cache did not see.
const DefaultTTL = 5 * time.Minute

const keyPrefix = "lanexam:exam:"

// Source loads exams on a cache miss.
type Source interface {
	GetExam(ctx context.Context, id string) (model.Exam, error)
}

type Cache struct {
	rdb   redis.UniversalClient
	src   Source
	ttl   time.Duration
	group singleflight.Group
}

// New wraps src with a Redis cache. A zero ttl selects DefaultTTL.
func New(rdb redis.UniversalClient, src Source, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{rdb: rdb, src: src, ttl: ttl}
}

func key(id string) string { return keyPrefix + id }

// GetExam returns the exam from Redis, loading and caching it on a miss.
// Redis failures fall back to the source.
func (c *Cache) GetExam(ctx context.Context, id string) (model.Exam, error) {
	data, err := c.rdb.Get(ctx, key(id)).Bytes()
	switch {
	case err == nil:
		var e model.Exam
		if jerr := json.Unmarshal(data, &e); jerr == nil {
			return e, nil
		}
		slog.Warn("discarding undecodable cached exam", "exam_id", id)
	case !errors.Is(err, redis.Nil):
		slog.Warn("exam cache unavailable", "exam_id", id, "error", err)
	}

	v, err, _ := c.group.Do(id, func() (any, error) {
		e, err := c.src.GetExam(ctx, id)
		if err != nil {
			return model.Exam{}, err
		}
		if data, err := json.Marshal(e); err == nil {
			if err := c.rdb.Set(ctx, key(id), data, c.ttl).Err(); err != nil {
				slog.Warn("cache exam", "exam_id", id, "error", err)
			}
		}
		return e, nil
	})
	if err != nil {
		return model.Exam{}, err
	}
	return v.(model.Exam), nil
}

// Invalidate drops the cached copy of an exam.
func (c *Cache) Invalidate(ctx context.Context, id string) error {
	if err := c.rdb.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("invalidate exam %s: %w", id, err)
	}
	return nil
}
