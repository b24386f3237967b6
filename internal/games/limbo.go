package games

import (
	"math"

	"github.com/shopspring/decimal"

	"fairplay-casino-backend/internal/fairness"
)

const (
	limboMinMultiplier = 1.00
	limboMaxMultiplier = 10.00
	limboMinTarget     = 1.01
	limboEdge          = 0.99
)

type LimboResult struct {
	Outcome
	Target float64 `json:"target"`
	Drawn  float64 `json:"drawn"`
}

func (*LimboResult) Kind() Kind { return KindLimbo }
func (*LimboResult) isResult()  {}

// LimboMultiplier maps a draw to a multiplier in [1.00, 10.00]. The tail
// P(m >= t) is 0.99/t, which keeps a target bet just under break-even.
func LimboMultiplier(f float64) float64 {
	if f <= 0 {
		return limboMaxMultiplier
	}
	return clamp(floor2(limboEdge/f), limboMinMultiplier, limboMaxMultiplier)
}

func ValidateLimboTarget(target float64) error {
	if math.IsNaN(target) || target < limboMinTarget || target > limboMaxMultiplier {
		return invalid("limbo target must be between %.2f and %.2f, got %v", limboMinTarget, limboMaxMultiplier, target)
	}
	return nil
}

func PlayLimbo(stake decimal.Decimal, target float64, draw fairness.DrawFn) (*LimboResult, error) {
	if err := ValidateStake(stake); err != nil {
		return nil, err
	}
	if err := ValidateLimboTarget(target); err != nil {
		return nil, err
	}
	target = round2(target)

	drawn := LimboMultiplier(draw(0))

	outcome := loss(stake, target)
	if drawn >= target {
		outcome = win(stake, target)
	}

	return &LimboResult{Outcome: outcome, Target: target, Drawn: drawn}, nil
}
