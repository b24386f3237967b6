package games_test

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"

	"fairplay-casino-backend/internal/fairness"
	"fairplay-casino-backend/internal/games"
)

func TestCrashPointRange(t *testing.T) {
	for nonce := uint64(0); nonce < 500; nonce++ {
		cp := games.CrashPoint(fairness.Draw("server", "client", nonce, 0))
		if cp < games.CrashMinPoint || cp > games.CrashMaxPoint {
			t.Fatalf("Crash point %.2f out of range for nonce %d", cp, nonce)
		}
	}

	if cp := games.CrashPoint(0); cp != 1.01 {
		t.Errorf("Expected 1.01 for a zero draw, got %.2f", cp)
	}
	if cp := games.CrashPoint(0.999999); cp < 25 || cp > 50 {
		t.Errorf("Expected top tier, got %.2f", cp)
	}
}

func TestCrashCashOutBeforeCrash(t *testing.T) {
	round, err := games.NewCrashRound(decimal.NewFromInt(10), constDraw(0.2))
	if err != nil {
		t.Fatalf("Failed to start crash round: %v", err)
	}
	if round.CrashPoint != 2.00 {
		t.Fatalf("Expected crash point 2.00, got %.2f", round.CrashPoint)
	}
	if v := round.View(); v.CrashPoint != nil {
		t.Error("Crash point should stay hidden while the round runs")
	}

	for i := 0; i < 10; i++ {
		crashed, err := round.Tick()
		if err != nil || crashed {
			t.Fatalf("Unexpected tick result crashed=%v err=%v", crashed, err)
		}
	}

	res, err := round.CashOut()
	if err != nil {
		t.Fatalf("Failed to cash out: %v", err)
	}
	if !res.Won || res.Multiplier != 1.10 {
		t.Errorf("Expected win at 1.10, got %+v", res)
	}
	if !res.Winnings.Equal(decimal.NewFromInt(11)) {
		t.Errorf("Expected winnings 11, got %s", res.Winnings)
	}

	if _, err := round.Tick(); !errors.Is(err, games.ErrGameOver) {
		t.Errorf("Tick after cash-out should fail, got %v", err)
	}
}

func TestCrashCashOutAfterCrash(t *testing.T) {
	round, err := games.NewCrashRound(decimal.NewFromInt(10), constDraw(0.2))
	if err != nil {
		t.Fatalf("Failed to start crash round: %v", err)
	}

	ticks := 0
	for {
		crashed, err := round.Tick()
		if err != nil {
			t.Fatalf("Unexpected tick error: %v", err)
		}
		ticks++
		if crashed {
			break
		}
	}
	if ticks != 100 {
		t.Errorf("Expected crash on tick 100, got %d", ticks)
	}
	if round.Status != games.StatusCrashed {
		t.Errorf("Expected crashed status, got %s", round.Status)
	}

	if _, err := round.CashOut(); !errors.Is(err, games.ErrGameOver) {
		t.Errorf("Cash-out after crash should be rejected, got %v", err)
	}
	if res := round.Result(); res.Won || !res.Winnings.IsZero() {
		t.Errorf("Crashed round should be a loss, got %+v", res)
	}
}

func TestMinesPlacement(t *testing.T) {
	params := games.MinesParams{GridSize: 5, MineCount: 3}

	for nonce := uint64(0); nonce < 50; nonce++ {
		g, err := games.NewMinesGame(decimal.NewFromInt(1), params, fairness.MintStream("server", "client", nonce))
		if err != nil {
			t.Fatalf("Failed to create mines game: %v", err)
		}
		mines := g.MinePositions()
		if len(mines) != 3 {
			t.Fatalf("Expected 3 mines, got %v", mines)
		}
		seen := map[int]bool{}
		for _, pos := range mines {
			if pos < 0 || pos >= 25 || seen[pos] {
				t.Fatalf("Bad mine layout %v", mines)
			}
			seen[pos] = true
		}
		if m := g.CurrentMultiplier(); m != 1.00 {
			t.Errorf("Expected 1.00 before any reveal, got %v", m)
		}
	}
}

func TestMinesValidation(t *testing.T) {
	tests := []games.MinesParams{
		{GridSize: 2, MineCount: 1},
		{GridSize: 11, MineCount: 1},
		{GridSize: 5, MineCount: 0},
		{GridSize: 5, MineCount: 25},
	}
	for _, p := range tests {
		if _, err := games.NewMinesGame(decimal.NewFromInt(1), p, constDraw(0.5)); !errors.Is(err, games.ErrInvalidParams) {
			t.Errorf("Expected invalid params for %+v, got %v", p, err)
		}
	}
}

func TestMinesExhaustion(t *testing.T) {
	_, err := games.NewMinesGame(decimal.NewFromInt(1), games.MinesParams{GridSize: 3, MineCount: 2}, constDraw(0))
	if !errors.Is(err, games.ErrGenerationExhausted) {
		t.Fatalf("Expected generation exhausted, got %v", err)
	}
}

func TestMinesPlay(t *testing.T) {
	stake := decimal.NewFromInt(10)
	g, err := games.NewMinesGame(stake, games.MinesParams{GridSize: 5, MineCount: 3}, fairness.MintStream("S", "C", 1))
	if err != nil {
		t.Fatalf("Failed to create mines game: %v", err)
	}

	isMine := map[int]bool{}
	for _, pos := range g.MinePositions() {
		isMine[pos] = true
	}
	safe := -1
	mine := -1
	for cell := 0; cell < 25; cell++ {
		if isMine[cell] && mine < 0 {
			mine = cell
		}
		if !isMine[cell] && safe < 0 {
			safe = cell
		}
	}

	step, err := g.Reveal(safe)
	if err != nil {
		t.Fatalf("Failed to reveal: %v", err)
	}
	if step.Mine || step.Revealed != 1 || step.Multiplier < 1 {
		t.Errorf("Unexpected reveal %+v", step)
	}
	if _, err := g.Reveal(safe); !errors.Is(err, games.ErrInvalidParams) {
		t.Errorf("Revealing twice should be rejected, got %v", err)
	}
	if _, err := g.Reveal(25); !errors.Is(err, games.ErrInvalidParams) {
		t.Errorf("Out of range cell should be rejected, got %v", err)
	}

	step, err = g.Reveal(mine)
	if err != nil {
		t.Fatalf("Failed to reveal mine: %v", err)
	}
	if !step.Mine || step.Result == nil || step.Result.Won {
		t.Fatalf("Expected losing mine reveal, got %+v", step)
	}
	if len(step.Result.MinePositions) != 3 {
		t.Errorf("Mines should be disclosed on loss, got %v", step.Result.MinePositions)
	}
	if _, err := g.CashOut(); !errors.Is(err, games.ErrGameOver) {
		t.Errorf("Cash-out after loss should fail, got %v", err)
	}
}

func TestMinesCashOutAndAutoWin(t *testing.T) {
	stake := decimal.NewFromInt(10)
	g, err := games.NewMinesGame(stake, games.MinesParams{GridSize: 3, MineCount: 8}, fairness.MintStream("S", "C", 2))
	if err != nil {
		t.Fatalf("Failed to create mines game: %v", err)
	}

	isMine := map[int]bool{}
	for _, pos := range g.MinePositions() {
		isMine[pos] = true
	}
	for cell := 0; cell < 9; cell++ {
		if isMine[cell] {
			continue
		}
		step, err := g.Reveal(cell)
		if err != nil {
			t.Fatalf("Failed to reveal: %v", err)
		}
		if step.Result == nil || step.Result.Status != games.StatusWon || !step.Result.Won {
			t.Fatalf("Last safe cell should auto-win, got %+v", step)
		}
	}

	g, err = games.NewMinesGame(stake, games.MinesParams{GridSize: 5, MineCount: 3}, fairness.MintStream("S", "C", 3))
	if err != nil {
		t.Fatalf("Failed to create mines game: %v", err)
	}
	res, err := g.CashOut()
	if err != nil {
		t.Fatalf("Failed to cash out: %v", err)
	}
	if !res.Won || !res.Winnings.Equal(stake) {
		t.Errorf("Immediate cash-out should return the stake, got %+v", res)
	}
}

func TestMinesMultiplierBounds(t *testing.T) {
	prev := 1.0
	for r := 1; r <= 22; r++ {
		m := games.MinesMultiplier(3, 25, r)
		if m < 1 || m > 1000 {
			t.Fatalf("Multiplier %v out of bounds at %d reveals", m, r)
		}
		if m < prev {
			t.Fatalf("Multiplier dropped from %v to %v at %d reveals", prev, m, r)
		}
		prev = m
	}
	if m := games.MinesMultiplier(24, 25, 1); m > 1000 {
		t.Errorf("Expected cap at 1000, got %v", m)
	}
}

func TestMinesMultiplierKeepsHouseEdge(t *testing.T) {
	for grid := games.MinesMinGrid; grid <= games.MinesMaxGrid; grid++ {
		cells := grid * grid
		for mines := 1; mines < cells; mines++ {
			survive := 1.0
			for r := 1; r <= cells-mines; r++ {
				survive *= float64(cells-mines-r+1) / float64(cells-r+1)

				m := games.MinesMultiplier(mines, cells, r)
				if ev := m * survive; ev > 0.99+1e-9 {
					t.Fatalf("grid %d, %d mines, %d reveals: multiplier %v pays back %v", grid, mines, r, m, ev)
				}
			}
		}
	}
}

func TestMinesSurvival(t *testing.T) {
	tests := []struct {
		mines, cells, revealed int
		want                   float64
	}{
		{3, 25, 0, 1},
		{3, 25, 1, 22.0 / 25},
		{3, 25, 2, 22.0 / 25 * 21 / 24},
		{8, 9, 1, 1.0 / 9},
	}
	for _, tt := range tests {
		if got := games.MinesSurvival(tt.mines, tt.cells, tt.revealed); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("MinesSurvival(%d, %d, %d) = %v, want %v", tt.mines, tt.cells, tt.revealed, got, tt.want)
		}
	}
}

func TestTowersMedium(t *testing.T) {
	stake := decimal.NewFromInt(10)

	g, err := games.NewTowersGame(stake, games.TowersMedium, constDraw(0.5))
	if err != nil {
		t.Fatalf("Failed to create towers game: %v", err)
	}
	step, err := g.Select(1)
	if err != nil {
		t.Fatalf("Failed to select: %v", err)
	}
	if !step.Safe || g.Level != 1 || step.Multiplier != 2.0 {
		t.Errorf("Expected level 1 at 2.0, got level %d step %+v", g.Level, step)
	}

	g, err = games.NewTowersGame(stake, games.TowersMedium, constDraw(0.5))
	if err != nil {
		t.Fatalf("Failed to create towers game: %v", err)
	}
	step, err = g.Select(2)
	if err != nil {
		t.Fatalf("Failed to select: %v", err)
	}
	if step.Safe || step.Result == nil || step.Result.Won {
		t.Fatalf("Expected loss, got %+v", step)
	}
	if step.CorrectSafe == nil || *step.CorrectSafe != 1 {
		t.Errorf("Expected correct block 1 to be revealed")
	}
}

func TestTowersClimbAndCashOut(t *testing.T) {
	stake := decimal.NewFromInt(10)

	g, err := games.NewTowersGame(stake, games.TowersEasy, constDraw(0.7))
	if err != nil {
		t.Fatalf("Failed to create towers game: %v", err)
	}
	var step *games.TowersStep
	for level := 0; level < games.TowersLevels; level++ {
		step, err = g.Select(1)
		if err != nil {
			t.Fatalf("Failed to select at level %d: %v", level, err)
		}
	}
	if step.Result == nil || step.Result.Status != games.StatusWon {
		t.Fatalf("Expected auto-win at the top, got %+v", step)
	}
	if step.Multiplier != 25.63 {
		t.Errorf("Expected 1.5^8 rounded to 25.63, got %v", step.Multiplier)
	}
	if _, err := g.Select(1); !errors.Is(err, games.ErrGameOver) {
		t.Errorf("Select after win should fail, got %v", err)
	}

	g, err = games.NewTowersGame(stake, games.TowersHard, constDraw(0))
	if err != nil {
		t.Fatalf("Failed to create towers game: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := g.Select(0); err != nil {
			t.Fatalf("Failed to select: %v", err)
		}
	}
	res, err := g.CashOut()
	if err != nil {
		t.Fatalf("Failed to cash out: %v", err)
	}
	if !res.Won || !res.Winnings.Equal(decimal.RequireFromString("62.5")) {
		t.Errorf("Expected 10 × 6.25, got %+v", res)
	}

	if _, err := games.ParseTowersDifficulty("insane"); !errors.Is(err, games.ErrInvalidParams) {
		t.Errorf("Expected invalid difficulty, got %v", err)
	}
}

func TestUpgraderSuccessRate(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	draw := func(int) float64 { return rng.Float64() }

	successes := 0
	for i := 0; i < 1000; i++ {
		g, err := games.NewUpgraderGame(decimal.NewFromInt(1), draw)
		if err != nil {
			t.Fatalf("Failed to create upgrader: %v", err)
		}
		step, err := g.Upgrade()
		if err != nil {
			t.Fatalf("Failed to upgrade: %v", err)
		}
		if step.Success {
			successes++
		}
	}

	// 90% of 1000 with roughly 4.7 standard deviations of slack
	if successes < 855 || successes > 945 {
		t.Errorf("Success rate %d/1000 inconsistent with 90%%", successes)
	}
}

func TestUpgraderLadder(t *testing.T) {
	g, err := games.NewUpgraderGame(decimal.NewFromInt(1), constDraw(0))
	if err != nil {
		t.Fatalf("Failed to create upgrader: %v", err)
	}

	if next := g.View().Next; next == nil || next.Level != 1 {
		t.Errorf("Fresh ladder should offer the first rung, got %+v", next)
	}
	for g.Status == games.StatusActive {
		if _, err := g.Upgrade(); err != nil {
			t.Fatalf("Failed to upgrade: %v", err)
		}
	}
	if next := g.View().Next; next != nil {
		t.Errorf("Top of the ladder has no next rung, got %+v", next)
	}
	if len(games.UpgradeLevels()) != games.UpgraderMaxLevel-1 {
		t.Errorf("Expected a rung for every level below the top, got %d", len(games.UpgradeLevels()))
	}
	if g.Level != games.UpgraderMaxLevel || g.Attempts != 9 {
		t.Errorf("Expected level 10 after 9 attempts, got level %d after %d", g.Level, g.Attempts)
	}
	res := g.Result()
	if !res.Won || res.Status != games.StatusCashedOut {
		t.Errorf("Top level should auto cash out, got %+v", res)
	}
	if _, err := g.Upgrade(); !errors.Is(err, games.ErrGameOver) {
		t.Errorf("Upgrade past the top should fail, got %v", err)
	}

	for _, lvl := range games.UpgradeLevels() {
		if lvl.Chance/100*lvl.Factor >= 1 {
			t.Errorf("Level %d pays above break-even", lvl.Level)
		}
	}
}

func TestUpgraderFailureAndCashOut(t *testing.T) {
	stake := decimal.NewFromInt(10)

	g, err := games.NewUpgraderGame(stake, seqDraw(0.1, 0.1, 0.95))
	if err != nil {
		t.Fatalf("Failed to create upgrader: %v", err)
	}
	for i := 0; i < 2; i++ {
		if step, err := g.Upgrade(); err != nil || !step.Success {
			t.Fatalf("Expected success, got %+v %v", step, err)
		}
	}
	step, err := g.Upgrade()
	if err != nil {
		t.Fatalf("Failed to upgrade: %v", err)
	}
	if step.Success || step.Result == nil || step.Result.Won || !step.Result.Winnings.IsZero() {
		t.Errorf("Failed upgrade should lose everything, got %+v", step)
	}

	g, err = games.NewUpgraderGame(stake, constDraw(0.1))
	if err != nil {
		t.Fatalf("Failed to create upgrader: %v", err)
	}
	if _, err := g.Upgrade(); err != nil {
		t.Fatalf("Failed to upgrade: %v", err)
	}
	res, err := g.CashOut()
	if err != nil {
		t.Fatalf("Failed to cash out: %v", err)
	}
	if !res.Winnings.Equal(decimal.RequireFromString("10.8")) {
		t.Errorf("Expected 10 × 1.08, got %s", res.Winnings)
	}
}
