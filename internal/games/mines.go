package games

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"fairplay-casino-backend/internal/fairness"
)

const (
	MinesMinGrid = 3
	MinesMaxGrid = 10

	minesMinMultiplier = 1.00
	minesMaxMultiplier = 1000.00
	minesProgressBase  = 1.15
	minesEdge          = 0.99
)

type MinesParams struct {
	GridSize  int `json:"grid_size"`
	MineCount int `json:"mine_count"`
}

func (p MinesParams) Validate() error {
	if p.GridSize < MinesMinGrid || p.GridSize > MinesMaxGrid {
		return invalid("grid size must be between %d and %d, got %d", MinesMinGrid, MinesMaxGrid, p.GridSize)
	}
	cells := p.GridSize * p.GridSize
	if p.MineCount < 1 || p.MineCount > cells-1 {
		return invalid("mine count must be between 1 and %d, got %d", cells-1, p.MineCount)
	}
	return nil
}

type MinesGame struct {
	Stake     decimal.Decimal
	GridSize  int
	MineCount int
	Status    Status

	mines    map[int]struct{}
	revealed []int
	seen     map[int]struct{}
}

type MinesResult struct {
	Outcome
	GridSize      int    `json:"grid_size"`
	MineCount     int    `json:"mine_count"`
	Revealed      []int  `json:"revealed"`
	MinePositions []int  `json:"mine_positions"`
	Status        Status `json:"status"`
}

func (*MinesResult) Kind() Kind { return KindMines }
func (*MinesResult) isResult()  {}

// MinesReveal reports a single reveal. Result is set once the round ends.
type MinesReveal struct {
	Cell       int          `json:"cell"`
	Mine       bool         `json:"mine"`
	Multiplier float64      `json:"multiplier"`
	Revealed   int          `json:"revealed"`
	Result     *MinesResult `json:"result,omitempty"`
}

type MinesView struct {
	GridSize   int     `json:"grid_size"`
	MineCount  int     `json:"mine_count"`
	Revealed   []int   `json:"revealed"`
	Multiplier float64 `json:"multiplier"`
	Status     Status  `json:"status"`
}

// PlacementBudget bounds how many draws mine placement may consume.
func PlacementBudget(cells int) int {
	return max(64, 32*cells)
}

// PlaceMines draws candidate cells until count distinct mines are placed.
// Collisions are skipped, each attempt consumes the next sub-draw.
func PlaceMines(cells, count int, draw fairness.DrawFn) ([]int, error) {
	budget := PlacementBudget(cells)
	set := make(map[int]struct{}, count)

	for attempt := 0; len(set) < count; attempt++ {
		if attempt >= budget {
			return nil, fmt.Errorf("%w: placed %d of %d mines in %d draws", ErrGenerationExhausted, len(set), count, budget)
		}
		pos := int(math.Floor(draw(attempt) * float64(cells)))
		if pos >= cells {
			pos = cells - 1
		}
		set[pos] = struct{}{}
	}

	positions := make([]int, 0, count)
	for pos := range set {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	return positions, nil
}

// MinesMultiplier combines an exponential density term, a 1.15 per-reveal
// progress term and a mine-count risk bonus. The curve is capped at
// edge/P(survive) and floored to the cent, so any cash-out after at least one
// reveal returns at most 99% of the stake in expectation.
func MinesMultiplier(mineCount, cells, revealed int) float64 {
	if revealed <= 0 {
		return minesMinMultiplier
	}
	m, n, r := float64(mineCount), float64(cells), float64(revealed)

	density := math.Exp(r * m / n)
	progress := math.Pow(minesProgressBase, r)
	risk := 1 + (m/n)*(r/(n-m))
	curve := minesEdge * density * progress * risk

	fair := minesEdge / MinesSurvival(mineCount, cells, revealed)

	return clamp(floor2(math.Min(curve, fair)), minesMinMultiplier, minesMaxMultiplier)
}

// MinesSurvival is the chance that revealed picks on a board of cells with
// mineCount mines all land on safe cells: C(cells-mines, r) / C(cells, r).
func MinesSurvival(mineCount, cells, revealed int) float64 {
	p := 1.0
	for i := 0; i < revealed; i++ {
		p *= float64(cells-mineCount-i) / float64(cells-i)
	}
	return max(p, 0)
}

func NewMinesGame(stake decimal.Decimal, p MinesParams, draw fairness.DrawFn) (*MinesGame, error) {
	if err := ValidateStake(stake); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	cells := p.GridSize * p.GridSize
	positions, err := PlaceMines(cells, p.MineCount, draw)
	if err != nil {
		return nil, err
	}

	mines := make(map[int]struct{}, len(positions))
	for _, pos := range positions {
		mines[pos] = struct{}{}
	}

	return &MinesGame{
		Stake:     stake,
		GridSize:  p.GridSize,
		MineCount: p.MineCount,
		Status:    StatusActive,
		mines:     mines,
		seen:      make(map[int]struct{}),
	}, nil
}

func (g *MinesGame) cells() int {
	return g.GridSize * g.GridSize
}

func (g *MinesGame) CurrentMultiplier() float64 {
	return MinesMultiplier(g.MineCount, g.cells(), len(g.revealed))
}

func (g *MinesGame) Reveal(cell int) (*MinesReveal, error) {
	if g.Status.Terminal() {
		return nil, ErrGameOver
	}
	if cell < 0 || cell >= g.cells() {
		return nil, invalid("cell must be between 0 and %d, got %d", g.cells()-1, cell)
	}
	if _, ok := g.seen[cell]; ok {
		return nil, invalid("cell %d already revealed", cell)
	}

	step := &MinesReveal{Cell: cell}
	if _, ok := g.mines[cell]; ok {
		g.Status = StatusLost
		step.Mine = true
		step.Multiplier = g.CurrentMultiplier()
		step.Revealed = len(g.revealed)
		step.Result = g.Result()
		return step, nil
	}

	g.seen[cell] = struct{}{}
	g.revealed = append(g.revealed, cell)
	step.Multiplier = g.CurrentMultiplier()
	step.Revealed = len(g.revealed)

	if len(g.revealed) == g.cells()-g.MineCount {
		g.Status = StatusWon
		step.Result = g.Result()
	}
	return step, nil
}

func (g *MinesGame) CashOut() (*MinesResult, error) {
	if g.Status.Terminal() {
		return nil, ErrGameOver
	}
	g.Status = StatusCashedOut
	return g.Result(), nil
}

func (g *MinesGame) Abandon() *MinesResult {
	if !g.Status.Terminal() {
		g.Status = StatusLost
	}
	return g.Result()
}

func (g *MinesGame) MinePositions() []int {
	positions := make([]int, 0, len(g.mines))
	for pos := range g.mines {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	return positions
}

func (g *MinesGame) Result() *MinesResult {
	multiplier := g.CurrentMultiplier()
	outcome := loss(g.Stake, multiplier)
	if g.Status == StatusWon || g.Status == StatusCashedOut {
		outcome = win(g.Stake, multiplier)
	}

	res := &MinesResult{
		Outcome:   outcome,
		GridSize:  g.GridSize,
		MineCount: g.MineCount,
		Revealed:  append([]int(nil), g.revealed...),
		Status:    g.Status,
	}
	if g.Status.Terminal() {
		res.MinePositions = g.MinePositions()
	}
	return res
}

func (g *MinesGame) View() MinesView {
	return MinesView{
		GridSize:   g.GridSize,
		MineCount:  g.MineCount,
		Revealed:   append([]int(nil), g.revealed...),
		Multiplier: g.CurrentMultiplier(),
		Status:     g.Status,
	}
}
