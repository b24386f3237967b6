package models

import "github.com/shopspring/decimal"

type CoinFlipRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Side   string          `json:"side" binding:"required,oneof=heads tails"`
}

type DiceRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Target   float64         `json:"target"`
	RollOver bool            `json:"roll_over"`
}

type LimboRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Target float64         `json:"target" binding:"required,gte=1.01,lte=10"`
}

type PlinkoRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Risk   string          `json:"risk" binding:"omitempty,oneof=low medium high"`
}

type StakeRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type MinesStartRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	GridSize  int             `json:"grid_size" binding:"required,min=3,max=10"`
	MineCount int             `json:"mine_count" binding:"required,min=1"`
}

type TowersStartRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	Difficulty string          `json:"difficulty" binding:"required,oneof=easy medium hard"`
}

type GameActionRequest struct {
	GameID string `json:"game_id" binding:"required"`
}

type MinesRevealRequest struct {
	GameID string `json:"game_id" binding:"required"`
	Cell   *int   `json:"cell" binding:"required,min=0,max=99"`
}

type TowersSelectRequest struct {
	GameID string `json:"game_id" binding:"required"`
	Block  *int   `json:"block" binding:"required,min=0,max=3"`
}

type LobbyTargetRequest struct {
	TargetID int64 `json:"target_id" binding:"required"`
}

type ClientSeedRequest struct {
	ClientSeed string `json:"client_seed" binding:"required,min=1,max=64,printascii"`
}

// VerifyRequest recomputes a game from revealed seeds. Only the parameters
// of the named game are read.
type VerifyRequest struct {
	Game       string `json:"game" binding:"required"`
	ServerSeed string `json:"server_seed" binding:"required"`
	ClientSeed string `json:"client_seed" binding:"required"`
	Nonce      uint64 `json:"nonce"`

	Side       string  `json:"side,omitempty"`
	Target     float64 `json:"target,omitempty"`
	RollOver   bool    `json:"roll_over,omitempty"`
	Risk       string  `json:"risk,omitempty"`
	GridSize   int     `json:"grid_size,omitempty"`
	MineCount  int     `json:"mine_count,omitempty"`
	Difficulty string  `json:"difficulty,omitempty"`
	Players    int     `json:"players,omitempty"`
}
