package games

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"fairplay-casino-backend/internal/fairness"
)

const TowersLevels = 8

type TowersDifficulty string

const (
	TowersEasy   TowersDifficulty = "easy"
	TowersMedium TowersDifficulty = "medium"
	TowersHard   TowersDifficulty = "hard"
)

var towersConfig = map[TowersDifficulty]struct {
	blocks int
	base   float64
}{
	TowersEasy:   {blocks: 2, base: 1.5},
	TowersMedium: {blocks: 3, base: 2.0},
	TowersHard:   {blocks: 4, base: 2.5},
}

func ParseTowersDifficulty(s string) (TowersDifficulty, error) {
	d := TowersDifficulty(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := towersConfig[d]; !ok {
		return "", invalid("unknown towers difficulty %q", s)
	}
	return d, nil
}

type TowersGame struct {
	Stake      decimal.Decimal
	Difficulty TowersDifficulty
	Blocks     int
	Base       float64
	Level      int
	Multiplier float64
	Status     Status

	safe  [TowersLevels]int
	picks []int
}

type TowersResult struct {
	Outcome
	Difficulty TowersDifficulty `json:"difficulty"`
	Level      int              `json:"level"`
	Picks      []int            `json:"picks"`
	SafeBlocks []int            `json:"safe_blocks,omitempty"`
	Status     Status           `json:"status"`
}

func (*TowersResult) Kind() Kind { return KindTowers }
func (*TowersResult) isResult()  {}

type TowersStep struct {
	Level       int           `json:"level"`
	Block       int           `json:"block"`
	Safe        bool          `json:"safe"`
	CorrectSafe *int          `json:"correct_block,omitempty"`
	Multiplier  float64       `json:"multiplier"`
	Result      *TowersResult `json:"result,omitempty"`
}

type TowersView struct {
	Difficulty TowersDifficulty `json:"difficulty"`
	Blocks     int              `json:"blocks"`
	Level      int              `json:"level"`
	Multiplier float64          `json:"multiplier"`
	Picks      []int            `json:"picks"`
	Status     Status           `json:"status"`
}

// NewTowersGame fixes the safe block of every level up front, one draw per
// level.
func NewTowersGame(stake decimal.Decimal, difficulty TowersDifficulty, draw fairness.DrawFn) (*TowersGame, error) {
	if err := ValidateStake(stake); err != nil {
		return nil, err
	}
	cfg, ok := towersConfig[difficulty]
	if !ok {
		return nil, invalid("unknown towers difficulty %q", difficulty)
	}

	g := &TowersGame{
		Stake:      stake,
		Difficulty: difficulty,
		Blocks:     cfg.blocks,
		Base:       cfg.base,
		Multiplier: 1.00,
		Status:     StatusActive,
	}
	g.safe = safeBlocks(cfg.blocks, draw)
	return g, nil
}

func safeBlocks(blocks int, draw fairness.DrawFn) [TowersLevels]int {
	var safe [TowersLevels]int
	for level := range safe {
		safe[level] = min(int(math.Floor(draw(level)*float64(blocks))), blocks-1)
	}
	return safe
}

// TowersSafeBlocks recomputes the safe block of every level for a stream.
func TowersSafeBlocks(difficulty TowersDifficulty, draw fairness.DrawFn) ([]int, error) {
	cfg, ok := towersConfig[difficulty]
	if !ok {
		return nil, invalid("unknown towers difficulty %q", difficulty)
	}
	safe := safeBlocks(cfg.blocks, draw)
	return safe[:], nil
}

func (g *TowersGame) Select(block int) (*TowersStep, error) {
	if g.Status.Terminal() {
		return nil, ErrGameOver
	}
	if block < 0 || block >= g.Blocks {
		return nil, invalid("block must be between 0 and %d, got %d", g.Blocks-1, block)
	}

	step := &TowersStep{Level: g.Level, Block: block}
	g.picks = append(g.picks, block)

	if block != g.safe[g.Level] {
		correct := g.safe[g.Level]
		g.Status = StatusLost
		step.CorrectSafe = &correct
		step.Multiplier = g.Multiplier
		step.Result = g.Result()
		return step, nil
	}

	g.Level++
	g.Multiplier = round2(math.Pow(g.Base, float64(g.Level)))
	step.Safe = true
	step.Multiplier = g.Multiplier

	if g.Level == TowersLevels {
		g.Status = StatusWon
		step.Result = g.Result()
	}
	return step, nil
}

func (g *TowersGame) CashOut() (*TowersResult, error) {
	if g.Status.Terminal() {
		return nil, ErrGameOver
	}
	g.Status = StatusCashedOut
	return g.Result(), nil
}

func (g *TowersGame) Abandon() *TowersResult {
	if !g.Status.Terminal() {
		g.Status = StatusLost
	}
	return g.Result()
}

func (g *TowersGame) Result() *TowersResult {
	outcome := loss(g.Stake, g.Multiplier)
	if g.Status == StatusWon || g.Status == StatusCashedOut {
		outcome = win(g.Stake, g.Multiplier)
	}

	res := &TowersResult{
		Outcome:    outcome,
		Difficulty: g.Difficulty,
		Level:      g.Level,
		Picks:      append([]int(nil), g.picks...),
		Status:     g.Status,
	}
	if g.Status.Terminal() {
		res.SafeBlocks = append([]int(nil), g.safe[:]...)
	}
	return res
}

func (g *TowersGame) View() TowersView {
	return TowersView{
		Difficulty: g.Difficulty,
		Blocks:     g.Blocks,
		Level:      g.Level,
		Multiplier: g.Multiplier,
		Picks:      append([]int(nil), g.picks...),
		Status:     g.Status,
	}
}
