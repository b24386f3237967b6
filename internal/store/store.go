// Package store persists balances, settled games, fairness state and
// server seeds. Redis and SQLite implementations share the Store contract.
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"fairplay-casino-backend/internal/models"
)

const (
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"

	// HistoryLimit caps how many settled games are kept per player.
	HistoryLimit = 100
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

type Store interface {
	Debit(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error)
	Credit(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error)
	Balance(ctx context.Context, userID int64) (decimal.Decimal, error)

	AppendResult(ctx context.Context, rec *models.GameRecord) error
	ListResults(ctx context.Context, userID int64, limit int) ([]*models.GameRecord, error)

	GetFairness(ctx context.Context, userID int64) (*models.FairnessRecord, error)
	SaveFairness(ctx context.Context, rec *models.FairnessRecord) error

	SaveServerSeed(ctx context.Context, rec models.ServerSeedRecord) error
	GetServerSeed(ctx context.Context, id string) (*models.ServerSeedRecord, error)

	Close() error
}

func toCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func fromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > HistoryLimit {
		return 50
	}
	return limit
}
