package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/exp/slog"

	"fairplay-casino-backend/internal/config"
	"fairplay-casino-backend/internal/lib/logger/sl"
)

// Open builds the store selected by cfg.StoreDriver, retrying the initial
// connection with exponential backoff.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (Store, error) {
	const op = "store.Open"

	backoff := retry.WithMaxRetries(5, retry.NewExponential(200*time.Millisecond))

	var st Store
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		switch cfg.StoreDriver {
		case DriverSQLite:
			st, err = NewSQLite(ctx, cfg.SQLitePath)
		default:
			st, err = NewRedis(ctx, cfg.RedisURL, cfg.RedisPass, cfg.RedisDB)
		}
		if err != nil {
			log.Warn("store connection failed, retrying", sl.String("driver", cfg.StoreDriver), sl.Err(err))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return st, nil
}
