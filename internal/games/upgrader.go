package games

import (
	"github.com/shopspring/decimal"

	"fairplay-casino-backend/internal/fairness"
)

const UpgraderMaxLevel = 10

// UpgradeLevel is one rung of the ladder. Chance is in percent; chance ×
// factor stays under 1 on every rung.
type UpgradeLevel struct {
	Level  int     `json:"level"`
	Chance float64 `json:"chance"`
	Factor float64 `json:"factor"`
}

// upgraderLevels holds the rungs a player can roll from. Reaching
// UpgraderMaxLevel ends the game, so the top level has no rung.
var upgraderLevels = [UpgraderMaxLevel - 1]UpgradeLevel{
	{Level: 1, Chance: 90, Factor: 1.08},
	{Level: 2, Chance: 80, Factor: 1.21},
	{Level: 3, Chance: 70, Factor: 1.39},
	{Level: 4, Chance: 60, Factor: 1.62},
	{Level: 5, Chance: 50, Factor: 1.94},
	{Level: 6, Chance: 40, Factor: 2.42},
	{Level: 7, Chance: 30, Factor: 3.23},
	{Level: 8, Chance: 20, Factor: 4.85},
	{Level: 9, Chance: 10, Factor: 9.70},
}

func UpgradeLevels() []UpgradeLevel {
	return append([]UpgradeLevel(nil), upgraderLevels[:]...)
}

type UpgraderGame struct {
	Stake      decimal.Decimal
	Level      int
	Multiplier float64
	Attempts   int
	Status     Status

	draw fairness.DrawFn
}

type UpgraderResult struct {
	Outcome
	Level    int    `json:"level"`
	Attempts int    `json:"attempts"`
	Status   Status `json:"status"`
}

func (*UpgraderResult) Kind() Kind { return KindUpgrader }
func (*UpgraderResult) isResult()  {}

type UpgradeStep struct {
	FromLevel  int             `json:"from_level"`
	Chance     float64         `json:"chance"`
	Roll       float64         `json:"roll"`
	Success    bool            `json:"success"`
	Level      int             `json:"level"`
	Multiplier float64         `json:"multiplier"`
	Result     *UpgraderResult `json:"result,omitempty"`
}

type UpgraderView struct {
	Level      int           `json:"level"`
	Multiplier float64       `json:"multiplier"`
	Attempts   int           `json:"attempts"`
	Next       *UpgradeLevel `json:"next,omitempty"`
	Status     Status        `json:"status"`
}

// NewUpgraderGame keeps the creation-bound stream; attempt k consumes
// sub-draw k.
func NewUpgraderGame(stake decimal.Decimal, draw fairness.DrawFn) (*UpgraderGame, error) {
	if err := ValidateStake(stake); err != nil {
		return nil, err
	}
	return &UpgraderGame{
		Stake:      stake,
		Level:      1,
		Multiplier: 1.00,
		Status:     StatusActive,
		draw:       draw,
	}, nil
}

func (g *UpgraderGame) Upgrade() (*UpgradeStep, error) {
	if g.Status.Terminal() {
		return nil, ErrGameOver
	}

	rung := upgraderLevels[g.Level-1]
	roll := g.draw(g.Attempts) * 100
	g.Attempts++

	step := &UpgradeStep{FromLevel: g.Level, Chance: rung.Chance, Roll: roll}
	if roll >= rung.Chance {
		g.Status = StatusLost
		step.Level = g.Level
		step.Multiplier = g.Multiplier
		step.Result = g.Result()
		return step, nil
	}

	g.Level++
	g.Multiplier = round2(g.Multiplier * rung.Factor)
	step.Success = true
	step.Level = g.Level
	step.Multiplier = g.Multiplier

	if g.Level == UpgraderMaxLevel {
		g.Status = StatusCashedOut
		step.Result = g.Result()
	}
	return step, nil
}

func (g *UpgraderGame) CashOut() (*UpgraderResult, error) {
	if g.Status.Terminal() {
		return nil, ErrGameOver
	}
	g.Status = StatusCashedOut
	return g.Result(), nil
}

func (g *UpgraderGame) Abandon() *UpgraderResult {
	if !g.Status.Terminal() {
		g.Status = StatusLost
	}
	return g.Result()
}

func (g *UpgraderGame) Result() *UpgraderResult {
	outcome := loss(g.Stake, g.Multiplier)
	if g.Status == StatusCashedOut {
		outcome = win(g.Stake, g.Multiplier)
	}
	return &UpgraderResult{Outcome: outcome, Level: g.Level, Attempts: g.Attempts, Status: g.Status}
}

func (g *UpgraderGame) View() UpgraderView {
	view := UpgraderView{
		Level:      g.Level,
		Multiplier: g.Multiplier,
		Attempts:   g.Attempts,
		Status:     g.Status,
	}
	if g.Level < UpgraderMaxLevel {
		next := upgraderLevels[g.Level-1]
		view.Next = &next
	}
	return view
}
