package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"fairplay-casino-backend/internal/models"
)

// Redis keeps balances as integer cents so the Lua scripts stay exact.
type Redis struct {
	client *redis.Client
}

var _ Store = (*Redis)(nil)

func NewRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Redis{client: client}, nil
}

func (s *Redis) Client() *redis.Client {
	return s.client
}

func (s *Redis) Close() error {
	return s.client.Close()
}

var debitScript = redis.NewScript(`
	local key = KEYS[1]
	local amount = tonumber(ARGV[1])
	local opening = ARGV[2]

	local balance = redis.call("GET", key)
	if not balance then
		redis.call("SET", key, opening)
		balance = opening
	end

	if tonumber(balance) < amount then
		return redis.error_reply("insufficient balance")
	end

	return redis.call("DECRBY", key, amount)
`)

var creditScript = redis.NewScript(`
	local key = KEYS[1]
	local amount = tonumber(ARGV[1])
	local opening = ARGV[2]

	redis.call("SET", key, opening, "NX")
	return redis.call("INCRBY", key, amount)
`)

func (s *Redis) Debit(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	key := fmt.Sprintf(KeyWallet, userID)

	cents, err := debitScript.Run(ctx, s.client, []string{key}, toCents(amount), toCents(models.StartingBalance)).Int64()
	if err != nil {
		if strings.Contains(err.Error(), "insufficient balance") {
			return decimal.Zero, ErrInsufficientBalance
		}
		return decimal.Zero, fmt.Errorf("failed to debit wallet: %w", err)
	}
	return fromCents(cents), nil
}

func (s *Redis) Credit(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	key := fmt.Sprintf(KeyWallet, userID)

	cents, err := creditScript.Run(ctx, s.client, []string{key}, toCents(amount), toCents(models.StartingBalance)).Int64()
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to credit wallet: %w", err)
	}
	return fromCents(cents), nil
}

func (s *Redis) Balance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	key := fmt.Sprintf(KeyWallet, userID)

	opening := toCents(models.StartingBalance)
	if err := s.client.SetNX(ctx, key, opening, 0).Err(); err != nil {
		return decimal.Zero, fmt.Errorf("failed to open wallet: %w", err)
	}

	cents, err := s.client.Get(ctx, key).Int64()
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get wallet: %w", err)
	}
	return fromCents(cents), nil
}

func (s *Redis) AppendResult(ctx context.Context, rec *models.GameRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal game result: %w", err)
	}

	completedKey := fmt.Sprintf(KeyUserCompletedGames, rec.UserID)

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(KeyGameResult, rec.ID), data, TTLGameResult)
	pipe.ZAdd(ctx, completedKey, redis.Z{
		Score:  float64(rec.CreatedAt.UnixMilli()),
		Member: rec.ID,
	})
	pipe.ZRemRangeByRank(ctx, completedKey, 0, -(HistoryLimit + 1))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save game result: %w", err)
	}
	return nil
}

func (s *Redis) ListResults(ctx context.Context, userID int64, limit int) ([]*models.GameRecord, error) {
	limit = clampLimit(limit)

	completedKey := fmt.Sprintf(KeyUserCompletedGames, userID)
	ids, err := s.client.ZRevRange(ctx, completedKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get game ids: %w", err)
	}
	if len(ids) == 0 {
		return []*models.GameRecord{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, fmt.Sprintf(KeyGameResult, id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("pipeline execution failed: %w", err)
	}

	records := make([]*models.GameRecord, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}

		var rec models.GameRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}

func (s *Redis) GetFairness(ctx context.Context, userID int64) (*models.FairnessRecord, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(KeyFairness, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fairness record: %w", err)
	}

	var rec models.FairnessRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fairness record: %w", err)
	}
	return &rec, nil
}

func (s *Redis) SaveFairness(ctx context.Context, rec *models.FairnessRecord) error {
	rec.UpdatedAt = time.Now()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal fairness record: %w", err)
	}
	return s.client.Set(ctx, fmt.Sprintf(KeyFairness, rec.UserID), data, 0).Err()
}

func (s *Redis) SaveServerSeed(ctx context.Context, rec models.ServerSeedRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal server seed: %w", err)
	}
	return s.client.Set(ctx, fmt.Sprintf(KeyServerSeed, rec.ID), data, 0).Err()
}

func (s *Redis) GetServerSeed(ctx context.Context, id string) (*models.ServerSeedRecord, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(KeyServerSeed, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get server seed: %w", err)
	}

	var rec models.ServerSeedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal server seed: %w", err)
	}
	return &rec, nil
}

// Allow is a fixed-window counter: INCR then EXPIRE on the first hit.
func (s *Redis) Allow(ctx context.Context, userID int64, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, userID, action)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}
	if count == 1 {
		s.client.Expire(ctx, key, window)
	}
	return count <= int64(limit), nil
}

// DeleteUser drops every key of a player. Used by tests.
func (s *Redis) DeleteUser(ctx context.Context, userID int64) error {
	completedKey := fmt.Sprintf(KeyUserCompletedGames, userID)
	ids, err := s.client.ZRange(ctx, completedKey, 0, -1).Result()
	if err != nil {
		return err
	}

	keys := []string{
		fmt.Sprintf(KeyWallet, userID),
		fmt.Sprintf(KeyFairness, userID),
		completedKey,
	}
	for _, id := range ids {
		keys = append(keys, fmt.Sprintf(KeyGameResult, id))
	}
	return s.client.Del(ctx, keys...).Err()
}
