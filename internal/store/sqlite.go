package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"fairplay-casino-backend/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens the database at path and applies pending migrations.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer keeps balance updates free of SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) openWallet(ctx context.Context, tx *sql.Tx, userID int64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO wallets (user_id, balance_cents) VALUES (?, ?)`,
		userID, toCents(models.StartingBalance))
	return err
}

func (s *SQLite) adjust(ctx context.Context, userID int64, delta int64) (decimal.Decimal, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.openWallet(ctx, tx, userID); err != nil {
		return decimal.Zero, fmt.Errorf("failed to open wallet: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE wallets SET balance_cents = balance_cents + ? WHERE user_id = ? AND balance_cents + ? >= 0`,
		delta, userID, delta)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to update wallet: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return decimal.Zero, ErrInsufficientBalance
	}

	var cents int64
	if err := tx.QueryRowContext(ctx, `SELECT balance_cents FROM wallets WHERE user_id = ?`, userID).Scan(&cents); err != nil {
		return decimal.Zero, fmt.Errorf("failed to read wallet: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("failed to commit wallet update: %w", err)
	}
	return fromCents(cents), nil
}

func (s *SQLite) Debit(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	return s.adjust(ctx, userID, -toCents(amount))
}

func (s *SQLite) Credit(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	return s.adjust(ctx, userID, toCents(amount))
}

func (s *SQLite) Balance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return s.adjust(ctx, userID, 0)
}

func (s *SQLite) AppendResult(ctx context.Context, rec *models.GameRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO game_results (
			id, user_id, game, stake, multiplier, payout, won, status,
			server_seed_id, server_seed_hash, client_seed, nonce, detail, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.Game, rec.Stake.String(), rec.Multiplier, rec.Payout.String(), rec.Won, rec.Status,
		rec.ServerSeedID, rec.ServerSeedHash, rec.ClientSeed, int64(rec.Nonce), string(rec.Detail), rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save game result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM game_results WHERE user_id = ? AND id NOT IN (
			SELECT id FROM game_results WHERE user_id = ? ORDER BY created_at DESC LIMIT ?
		)`, rec.UserID, rec.UserID, HistoryLimit)
	if err != nil {
		return fmt.Errorf("failed to trim game history: %w", err)
	}
	return nil
}

func (s *SQLite) ListResults(ctx context.Context, userID int64, limit int) ([]*models.GameRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, game, stake, multiplier, payout, won, status,
		       server_seed_id, server_seed_hash, client_seed, nonce, detail, created_at
		FROM game_results
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query game results: %w", err)
	}
	defer rows.Close()

	records := []*models.GameRecord{}
	for rows.Next() {
		var (
			rec           models.GameRecord
			stake, payout string
			nonce         int64
			detail        sql.NullString
			createdAt     int64
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Game, &stake, &rec.Multiplier, &payout, &rec.Won, &rec.Status,
			&rec.ServerSeedID, &rec.ServerSeedHash, &rec.ClientSeed, &nonce, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan game result: %w", err)
		}

		if rec.Stake, err = decimal.NewFromString(stake); err != nil {
			return nil, fmt.Errorf("bad stake in game result %s: %w", rec.ID, err)
		}
		if rec.Payout, err = decimal.NewFromString(payout); err != nil {
			return nil, fmt.Errorf("bad payout in game result %s: %w", rec.ID, err)
		}
		rec.Nonce = uint64(nonce)
		if detail.Valid && detail.String != "" {
			rec.Detail = []byte(detail.String)
		}
		rec.CreatedAt = time.Unix(0, createdAt)

		records = append(records, &rec)
	}
	return records, rows.Err()
}

func (s *SQLite) GetFairness(ctx context.Context, userID int64) (*models.FairnessRecord, error) {
	var (
		rec       models.FairnessRecord
		nonce     int64
		spent     string
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, client_seed, nonce, server_seed_id, spent_seeds, updated_at FROM fairness WHERE user_id = ?`,
		userID).Scan(&rec.UserID, &rec.ClientSeed, &nonce, &rec.ServerSeedID, &spent, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fairness record: %w", err)
	}

	if err := json.Unmarshal([]byte(spent), &rec.SpentSeeds); err != nil {
		return nil, fmt.Errorf("failed to decode spent client seeds: %w", err)
	}
	rec.Nonce = uint64(nonce)
	rec.UpdatedAt = time.Unix(0, updatedAt)
	return &rec, nil
}

func (s *SQLite) SaveFairness(ctx context.Context, rec *models.FairnessRecord) error {
	rec.UpdatedAt = time.Now()

	spent, err := json.Marshal(rec.SpentSeeds)
	if err != nil {
		return fmt.Errorf("failed to encode spent client seeds: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fairness (user_id, client_seed, nonce, server_seed_id, spent_seeds, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			client_seed = excluded.client_seed,
			nonce = excluded.nonce,
			server_seed_id = excluded.server_seed_id,
			spent_seeds = excluded.spent_seeds,
			updated_at = excluded.updated_at`,
		rec.UserID, rec.ClientSeed, int64(rec.Nonce), rec.ServerSeedID, string(spent), rec.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save fairness record: %w", err)
	}
	return nil
}

func (s *SQLite) SaveServerSeed(ctx context.Context, rec models.ServerSeedRecord) error {
	var revealedAt sql.NullInt64
	if rec.RevealedAt != nil {
		revealedAt = sql.NullInt64{Int64: rec.RevealedAt.UnixNano(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO server_seeds (id, hash, value, created_at, revealed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			value = excluded.value,
			revealed_at = excluded.revealed_at`,
		rec.ID, rec.Hash, rec.Value, rec.CreatedAt.UnixNano(), revealedAt)
	if err != nil {
		return fmt.Errorf("failed to save server seed: %w", err)
	}
	return nil
}

func (s *SQLite) GetServerSeed(ctx context.Context, id string) (*models.ServerSeedRecord, error) {
	var (
		rec        models.ServerSeedRecord
		createdAt  int64
		revealedAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, hash, value, created_at, revealed_at FROM server_seeds WHERE id = ?`,
		id).Scan(&rec.ID, &rec.Hash, &rec.Value, &createdAt, &revealedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get server seed: %w", err)
	}

	rec.CreatedAt = time.Unix(0, createdAt)
	if revealedAt.Valid {
		t := time.Unix(0, revealedAt.Int64)
		rec.RevealedAt = &t
	}
	return &rec, nil
}
