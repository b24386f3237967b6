package games

import (
	"strings"

	"github.com/shopspring/decimal"

	"fairplay-casino-backend/internal/fairness"
)

const plinkoRows = 16

type PlinkoRisk string

const (
	PlinkoLow    PlinkoRisk = "low"
	PlinkoMedium PlinkoRisk = "medium"
	PlinkoHigh   PlinkoRisk = "high"
)

// Payout tables for 16 rows, one entry per bucket.
var plinkoTables = map[PlinkoRisk][plinkoRows + 1]float64{
	PlinkoLow:    {16, 9, 2, 1.4, 1.4, 1.2, 1.1, 1, 0.5, 1, 1.1, 1.2, 1.4, 1.4, 2, 9, 16},
	PlinkoMedium: {110, 41, 10, 5, 3, 1.5, 1, 0.5, 0.3, 0.5, 1, 1.5, 3, 5, 10, 41, 110},
	PlinkoHigh:   {1000, 130, 26, 9, 4, 2, 0.2, 0.2, 0.2, 0.2, 0.2, 2, 4, 9, 26, 130, 1000},
}

type PlinkoResult struct {
	Outcome
	Risk       PlinkoRisk `json:"risk"`
	Bucket     int        `json:"bucket"`
	Directions []string   `json:"directions"`
}

func (*PlinkoResult) Kind() Kind { return KindPlinko }
func (*PlinkoResult) isResult()  {}

func ParsePlinkoRisk(s string) (PlinkoRisk, error) {
	risk := PlinkoRisk(strings.ToLower(strings.TrimSpace(s)))
	if risk == "" {
		return PlinkoMedium, nil
	}
	if _, ok := plinkoTables[risk]; !ok {
		return "", invalid("unknown plinko risk %q", s)
	}
	return risk, nil
}

// PlinkoTable returns a copy of the payout table for a risk level.
func PlinkoTable(risk PlinkoRisk) ([]float64, bool) {
	table, ok := plinkoTables[risk]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), table[:]...), true
}

func PlayPlinko(stake decimal.Decimal, risk PlinkoRisk, draw fairness.DrawFn) (*PlinkoResult, error) {
	if err := ValidateStake(stake); err != nil {
		return nil, err
	}
	table, ok := plinkoTables[risk]
	if !ok {
		return nil, invalid("unknown plinko risk %q", risk)
	}

	position := float64(plinkoRows) / 2
	directions := make([]string, plinkoRows)
	for row := 0; row < plinkoRows; row++ {
		if draw(row) < 0.5 {
			position -= 0.5
			directions[row] = "left"
		} else {
			position += 0.5
			directions[row] = "right"
		}
	}

	bucket := int(clamp(position, 0, plinkoRows))
	multiplier := table[bucket]

	// Every bucket pays out; buckets under 1x are reported as a loss.
	outcome := win(stake, multiplier)
	outcome.Won = multiplier >= 1

	return &PlinkoResult{Outcome: outcome, Risk: risk, Bucket: bucket, Directions: directions}, nil
}
