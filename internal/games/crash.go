package games

import (
	"github.com/shopspring/decimal"

	"fairplay-casino-backend/internal/fairness"
)

const (
	CrashMinPoint = 1.01
	CrashMaxPoint = 50.00
	crashStep     = 0.01
)

// crashTiers splits the unit interval into multiplier bands. Low bands get
// most of the probability mass.
var crashTiers = []struct {
	upTo     float64
	low, top float64
}{
	{upTo: 0.4, low: 1.01, top: 3.00},
	{upTo: 0.7, low: 3.00, top: 10.00},
	{upTo: 0.9, low: 10.00, top: 25.00},
	{upTo: 1.0, low: 25.00, top: 50.00},
}

// CrashPoint maps one draw onto the tiered crash distribution.
func CrashPoint(f float64) float64 {
	start := 0.0
	for _, tier := range crashTiers {
		if f < tier.upTo {
			pos := (f - start) / (tier.upTo - start)
			return clamp(floor2(tier.low+pos*(tier.top-tier.low)), CrashMinPoint, CrashMaxPoint)
		}
		start = tier.upTo
	}
	return CrashMaxPoint
}

type CrashRound struct {
	Stake      decimal.Decimal
	CrashPoint float64
	Multiplier float64
	Ticks      int
	Status     Status
}

type CrashResult struct {
	Outcome
	CrashPoint float64 `json:"crash_point"`
	CashedOut  bool    `json:"cashed_out"`
	Status     Status  `json:"status"`
}

func (*CrashResult) Kind() Kind { return KindCrash }
func (*CrashResult) isResult()  {}

// CrashView is what a player sees while the round runs. The crash point is
// withheld until the round ends.
type CrashView struct {
	Multiplier float64  `json:"multiplier"`
	Ticks      int      `json:"ticks"`
	Status     Status   `json:"status"`
	CrashPoint *float64 `json:"crash_point,omitempty"`
}

func NewCrashRound(stake decimal.Decimal, draw fairness.DrawFn) (*CrashRound, error) {
	if err := ValidateStake(stake); err != nil {
		return nil, err
	}
	return &CrashRound{
		Stake:      stake,
		CrashPoint: CrashPoint(draw(0)),
		Multiplier: 1.00,
		Status:     StatusActive,
	}, nil
}

// Tick advances the multiplier one step and reports whether the round
// crashed on this tick.
func (r *CrashRound) Tick() (bool, error) {
	if r.Status.Terminal() {
		return false, ErrGameOver
	}

	r.Ticks++
	r.Multiplier = round2(r.Multiplier + crashStep)
	if r.Multiplier >= r.CrashPoint {
		r.Multiplier = r.CrashPoint
		r.Status = StatusCrashed
		return true, nil
	}
	return false, nil
}

// CashOut locks in stake × the current multiplier.
func (r *CrashRound) CashOut() (*CrashResult, error) {
	if r.Status.Terminal() {
		return nil, ErrGameOver
	}
	r.Status = StatusCashedOut
	return r.Result(), nil
}

// Abandon ends a running round as a loss, used when the owner disconnects.
func (r *CrashRound) Abandon() *CrashResult {
	if !r.Status.Terminal() {
		r.Status = StatusLost
	}
	return r.Result()
}

func (r *CrashRound) Result() *CrashResult {
	outcome := loss(r.Stake, r.Multiplier)
	if r.Status == StatusCashedOut {
		outcome = win(r.Stake, r.Multiplier)
	}
	return &CrashResult{
		Outcome:    outcome,
		CrashPoint: r.CrashPoint,
		CashedOut:  r.Status == StatusCashedOut,
		Status:     r.Status,
	}
}

func (r *CrashRound) View() CrashView {
	v := CrashView{Multiplier: r.Multiplier, Ticks: r.Ticks, Status: r.Status}
	if r.Status.Terminal() {
		cp := r.CrashPoint
		v.CrashPoint = &cp
	}
	return v
}
