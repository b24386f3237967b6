// Package games holds the outcome engines. Every engine consumes draws from a
// fairness.DrawFn and never biases them; the house edge lives in the payout
// tables and formulas.
package games

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindCoinFlip      Kind = "coinflip"
	KindDice          Kind = "dice"
	KindLimbo         Kind = "limbo"
	KindPlinko        Kind = "plinko"
	KindCrash         Kind = "crash"
	KindMines         Kind = "mines"
	KindTowers        Kind = "towers"
	KindUpgrader      Kind = "upgrader"
	KindMurderMystery Kind = "murder_mystery"
)

// Kinds lists every game in a stable order.
var Kinds = []Kind{
	KindCoinFlip, KindDice, KindLimbo, KindPlinko,
	KindCrash, KindMines, KindTowers, KindUpgrader, KindMurderMystery,
}

func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", invalid("unknown game %q", s)
}

// Stateful reports whether instances of the kind live in the active game table.
func (k Kind) Stateful() bool {
	switch k {
	case KindCrash, KindMines, KindTowers, KindUpgrader, KindMurderMystery:
		return true
	default:
		return false
	}
}

type Status string

const (
	StatusActive    Status = "active"
	StatusWon       Status = "won"
	StatusLost      Status = "lost"
	StatusCashedOut Status = "cashed_out"
	StatusCrashed   Status = "crashed"
)

func (s Status) Terminal() bool {
	return s != StatusActive
}

var (
	ErrInvalidParams       = errors.New("invalid game parameters")
	ErrGameOver            = errors.New("game is already over")
	ErrWrongPhase          = errors.New("action not allowed in the current phase")
	ErrGenerationExhausted = errors.New("mine placement exhausted its retry budget")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParams, fmt.Sprintf(format, args...))
}

// Outcome is the settlement shared by every staked game.
type Outcome struct {
	Stake      decimal.Decimal `json:"stake"`
	Won        bool            `json:"won"`
	Multiplier float64         `json:"multiplier"`
	Winnings   decimal.Decimal `json:"winnings"`
}

func win(stake decimal.Decimal, multiplier float64) Outcome {
	return Outcome{Stake: stake, Won: true, Multiplier: multiplier, Winnings: Payout(stake, multiplier)}
}

func loss(stake decimal.Decimal, multiplier float64) Outcome {
	return Outcome{Stake: stake, Multiplier: multiplier, Winnings: decimal.Zero}
}

// Result is the closed set of per-game results. Only types in this package
// implement it.
type Result interface {
	Kind() Kind
	isResult()
}

// OutcomeOf extracts the settlement of a result. The murder mystery is not
// staked and reports false.
func OutcomeOf(r Result) (Outcome, bool) {
	switch v := r.(type) {
	case *CoinFlipResult:
		return v.Outcome, true
	case *DiceResult:
		return v.Outcome, true
	case *LimboResult:
		return v.Outcome, true
	case *PlinkoResult:
		return v.Outcome, true
	case *CrashResult:
		return v.Outcome, true
	case *MinesResult:
		return v.Outcome, true
	case *TowersResult:
		return v.Outcome, true
	case *UpgraderResult:
		return v.Outcome, true
	case *MurderResult:
		return Outcome{}, false
	default:
		panic(fmt.Sprintf("games: unhandled result type %T", r))
	}
}

// Payout is stake × multiplier rounded to cents.
func Payout(stake decimal.Decimal, multiplier float64) decimal.Decimal {
	return stake.Mul(decimal.NewFromFloat(multiplier)).Round(2)
}

func ValidateStake(stake decimal.Decimal) error {
	if !stake.IsPositive() {
		return invalid("stake must be positive, got %s", stake)
	}
	return nil
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func floor2(x float64) float64 {
	return math.Floor(x*100) / 100
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
