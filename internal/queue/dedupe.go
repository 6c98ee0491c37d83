package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// JobDeduplicator drops sync jobs the client re-sent, keyed by job id.
type JobDeduplicator struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewJobDeduplicator(rdb *redis.Client, ttl time.Duration) *JobDeduplicator {
	return &JobDeduplicator{redis: rdb, ttl: ttl}
}

func (d *JobDeduplicator) MarkFirst(ctx context.Context, jobID string) (bool, error) {
	key := fmt.Sprintf("secondmind:sync:job:%s", jobID)
	ok, err := d.redis.SetNX(ctx, key, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe setnx: %w", err)
	}
	return ok, nil
}
