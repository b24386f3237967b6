package games

import (
	"strings"

	"github.com/shopspring/decimal"

	"fairplay-casino-backend/internal/fairness"
)

const (
	SideHeads = "heads"
	SideTails = "tails"

	coinFlipMultiplier = 2.0
)

type CoinFlipResult struct {
	Outcome
	Side   string  `json:"side"`
	Result string  `json:"result"`
	Draw   float64 `json:"draw"`
}

func (*CoinFlipResult) Kind() Kind { return KindCoinFlip }
func (*CoinFlipResult) isResult()  {}

func ParseSide(s string) (string, error) {
	switch side := strings.ToLower(strings.TrimSpace(s)); side {
	case SideHeads, SideTails:
		return side, nil
	default:
		return "", invalid("side must be heads or tails, got %q", s)
	}
}

func PlayCoinFlip(stake decimal.Decimal, side string, draw fairness.DrawFn) (*CoinFlipResult, error) {
	if err := ValidateStake(stake); err != nil {
		return nil, err
	}
	side, err := ParseSide(side)
	if err != nil {
		return nil, err
	}

	f := draw(0)
	result := SideTails
	if f > 0.5 {
		result = SideHeads
	}

	outcome := loss(stake, coinFlipMultiplier)
	if result == side {
		outcome = win(stake, coinFlipMultiplier)
	}

	return &CoinFlipResult{Outcome: outcome, Side: side, Result: result, Draw: f}, nil
}
