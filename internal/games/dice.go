package games

import (
	"math"

	"github.com/shopspring/decimal"

	"fairplay-casino-backend/internal/fairness"
)

const (
	diceMinTarget = 0.01
	diceMaxTarget = 99.99
	diceEdge      = 0.99
)

type DiceParams struct {
	Target   float64 `json:"target"`
	RollOver bool    `json:"roll_over"`
}

type DiceResult struct {
	Outcome
	Roll      float64 `json:"roll"`
	Target    float64 `json:"target"`
	RollOver  bool    `json:"roll_over"`
	WinChance float64 `json:"win_chance"`
}

func (*DiceResult) Kind() Kind { return KindDice }
func (*DiceResult) isResult()  {}

// DiceRoll maps a draw onto 0.00..99.99 in steps of 0.01.
func DiceRoll(f float64) float64 {
	return math.Floor(f*10000) / 100
}

// DiceMultiplier is the payout multiplier for a target and direction with a
// 1% edge.
func DiceMultiplier(target float64, rollOver bool) float64 {
	chance := diceWinChance(target, rollOver)
	return math.Round(diceEdge/chance*10000) / 10000
}

func diceWinChance(target float64, rollOver bool) float64 {
	if rollOver {
		return (100 - target) / 100
	}
	return target / 100
}

// Validate only rejects non-numbers; out-of-range targets are clamped.
func (p DiceParams) Validate() error {
	if math.IsNaN(p.Target) || math.IsInf(p.Target, 0) {
		return invalid("dice target must be a finite number")
	}
	return nil
}

func PlayDice(stake decimal.Decimal, p DiceParams, draw fairness.DrawFn) (*DiceResult, error) {
	if err := ValidateStake(stake); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	target := round2(clamp(p.Target, diceMinTarget, diceMaxTarget))
	roll := DiceRoll(draw(0))
	multiplier := DiceMultiplier(target, p.RollOver)

	won := roll < target
	if p.RollOver {
		won = roll > target
	}

	outcome := loss(stake, multiplier)
	if won {
		outcome = win(stake, multiplier)
	}

	return &DiceResult{
		Outcome:   outcome,
		Roll:      roll,
		Target:    target,
		RollOver:  p.RollOver,
		WinChance: diceWinChance(target, p.RollOver),
	}, nil
}
