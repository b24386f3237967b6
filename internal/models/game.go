package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// GameRecord is the immutable row written once a game settles.
type GameRecord struct {
	ID         string          `json:"id" redis:"id"`
	UserID     int64           `json:"user_id" redis:"user_id"`
	Game       string          `json:"game" redis:"game"`
	Stake      decimal.Decimal `json:"stake" redis:"stake"`
	Multiplier float64         `json:"multiplier" redis:"multiplier"`
	Payout     decimal.Decimal `json:"payout" redis:"payout"`
	Won        bool            `json:"won" redis:"won"`
	Status     string          `json:"status" redis:"status"` // won, lost, cashed_out, crashed, abandoned

	ServerSeedID   string `json:"server_seed_id" redis:"server_seed_id"`
	ServerSeedHash string `json:"server_seed_hash" redis:"server_seed_hash"`
	ClientSeed     string `json:"client_seed" redis:"client_seed"`
	Nonce          uint64 `json:"nonce" redis:"nonce"`

	Detail    json.RawMessage `json:"detail,omitempty" redis:"detail"`
	CreatedAt time.Time       `json:"created_at" redis:"created_at"`
}

// FairnessRecord is a player's persisted provably-fair state.
type FairnessRecord struct {
	UserID       int64     `json:"user_id" redis:"user_id"`
	ClientSeed   string    `json:"client_seed" redis:"client_seed"`
	Nonce        uint64    `json:"nonce" redis:"nonce"`
	ServerSeedID string    `json:"server_seed_id" redis:"server_seed_id"`
	SpentSeeds   []string  `json:"spent_seeds,omitempty" redis:"-"`
	UpdatedAt    time.Time `json:"updated_at" redis:"updated_at"`
}

// ServerSeedRecord archives a server seed. Value stays empty until the seed
// is rotated out.
type ServerSeedRecord struct {
	ID         string     `json:"id" redis:"id"`
	Hash       string     `json:"hash" redis:"hash"`
	Value      string     `json:"value,omitempty" redis:"value"`
	CreatedAt  time.Time  `json:"created_at" redis:"created_at"`
	RevealedAt *time.Time `json:"revealed_at,omitempty" redis:"revealed_at"`
}
