package services

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

// Limiter counts actions per player in fixed windows. store.Redis satisfies
// it for multi-instance deployments.
type Limiter interface {
	Allow(ctx context.Context, userID int64, action string, limit int, window time.Duration) (bool, error)
}

// MemoryLimiter keeps counters in process memory.
type MemoryLimiter struct {
	counters *cache.Cache
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{counters: cache.New(time.Minute, 5*time.Minute)}
}

func (l *MemoryLimiter) Allow(_ context.Context, userID int64, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf("%d:%s", userID, action)

	for {
		if err := l.counters.Add(key, 1, window); err == nil {
			return limit >= 1, nil
		}
		count, err := l.counters.IncrementInt(key, 1)
		if err == nil {
			return count <= limit, nil
		}
		// the window expired between Add and IncrementInt; start a new one
	}
}
