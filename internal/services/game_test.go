package services_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fairplay-casino-backend/internal/fairness"
	"fairplay-casino-backend/internal/games"
	"fairplay-casino-backend/internal/lib/logger/sl"
	"fairplay-casino-backend/internal/models"
	"fairplay-casino-backend/internal/seeds"
	"fairplay-casino-backend/internal/services"
	"fairplay-casino-backend/internal/session"
	"fairplay-casino-backend/internal/store"
	"fairplay-casino-backend/internal/table"
)

type event struct {
	userID  int64
	msgType string
	gameID  string
	data    any
}

type recorder struct {
	events chan event
}

func newRecorder() *recorder {
	return &recorder{events: make(chan event, 4096)}
}

func (r *recorder) SendToUser(userID int64, msgType, gameID string, data any) {
	select {
	case r.events <- event{userID: userID, msgType: msgType, gameID: gameID, data: data}:
	default:
	}
}

func (r *recorder) BroadcastAll(msgType string, data any) {
	r.SendToUser(0, msgType, "", data)
}

// waitFor drains events until one of msgType for gameID arrives.
func (r *recorder) waitFor(t *testing.T, msgType, gameID string) event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-r.events:
			if ev.msgType == msgType && ev.gameID == gameID {
				return ev
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for %s on %s", msgType, gameID)
		}
	}
}

type fixture struct {
	engine *services.GameEngine
	store  store.Store
	seeds  *seeds.Manager
	events *recorder
}

func setupEngine(t *testing.T, opts services.Options) *fixture {
	t.Helper()
	ctx := context.Background()

	st, err := store.NewSQLite(ctx, filepath.Join(t.TempDir(), "casino.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	mgr, err := seeds.NewManager(sl.Discard(), st, time.Hour)
	if err != nil {
		t.Fatalf("Failed to create seed manager: %v", err)
	}

	reg := session.NewRegistry(sl.Discard(), st, mgr)
	engine := services.NewGameEngine(sl.Discard(), st, reg, table.New(), mgr, opts)
	events := newRecorder()
	engine.SetBroadcaster(events)

	return &fixture{engine: engine, store: st, seeds: mgr, events: events}
}

func amount(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func expectBalance(t *testing.T, f *fixture, userID int64, want string) {
	t.Helper()
	got, err := f.engine.Balance(context.Background(), userID)
	if err != nil {
		t.Fatalf("Failed to get balance: %v", err)
	}
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Errorf("Expected balance %s, got %s", want, got)
	}
}

func TestCoinFlipSettles(t *testing.T) {
	f := setupEngine(t, services.Options{})
	ctx := context.Background()
	userID := int64(1)

	res, err := f.engine.PlayCoinFlip(ctx, userID, amount(10), "heads")
	if err != nil {
		t.Fatalf("Failed to play coin flip: %v", err)
	}
	if res.Fair.Nonce != 0 || res.Fair.ServerSeedHash != f.seeds.Current().Hash {
		t.Errorf("Unexpected receipt %+v", res.Fair)
	}

	flip := res.Result.(*games.CoinFlipResult)
	want := "90"
	if flip.Won {
		want = "110"
	}
	if !res.Balance.Equal(decimal.RequireFromString(want)) {
		t.Errorf("Expected balance %s, got %s", want, res.Balance)
	}

	history, err := f.engine.History(ctx, userID, 10)
	if err != nil {
		t.Fatalf("Failed to get history: %v", err)
	}
	if len(history) != 1 || history[0].ID != res.GameID || history[0].Nonce != 0 {
		t.Fatalf("Unexpected history %+v", history)
	}

	check, err := f.engine.Verify(models.VerifyRequest{
		Game:       string(games.KindCoinFlip),
		ServerSeed: f.seeds.Current().Value,
		ClientSeed: res.Fair.ClientSeed,
		Nonce:      res.Fair.Nonce,
		Side:       "heads",
	})
	if err != nil {
		t.Fatalf("Failed to verify: %v", err)
	}
	if got := check.Outcome.(*games.CoinFlipResult); got.Result != flip.Result || got.Draw != flip.Draw {
		t.Errorf("Verification %+v does not match play %+v", got, flip)
	}

	next, err := f.engine.PlayCoinFlip(ctx, userID, amount(1), "tails")
	if err != nil {
		t.Fatalf("Failed to play coin flip: %v", err)
	}
	if next.Fair.Nonce != 1 {
		t.Errorf("Expected nonce 1, got %d", next.Fair.Nonce)
	}
}

func TestRejectedBetConsumesNothing(t *testing.T) {
	f := setupEngine(t, services.Options{})
	ctx := context.Background()
	userID := int64(2)

	tests := []struct {
		name string
		play func() error
	}{
		{"bad side", func() error {
			_, err := f.engine.PlayCoinFlip(ctx, userID, amount(1), "edge")
			return err
		}},
		{"zero stake", func() error {
			_, err := f.engine.PlayCoinFlip(ctx, userID, decimal.Zero, "heads")
			return err
		}},
		{"nan target", func() error {
			_, err := f.engine.PlayDice(ctx, userID, amount(1), games.DiceParams{Target: math.NaN()})
			return err
		}},
		{"limbo target", func() error {
			_, err := f.engine.PlayLimbo(ctx, userID, amount(1), 11)
			return err
		}},
		{"plinko risk", func() error {
			_, err := f.engine.PlayPlinko(ctx, userID, amount(1), "extreme")
			return err
		}},
		{"mines params", func() error {
			_, err := f.engine.StartMines(ctx, userID, amount(1), games.MinesParams{GridSize: 5, MineCount: 25})
			return err
		}},
		{"towers difficulty", func() error {
			_, err := f.engine.StartTowers(ctx, userID, amount(1), "insane")
			return err
		}},
	}

	for _, tt := range tests {
		if err := tt.play(); !errors.Is(err, games.ErrInvalidParams) {
			t.Errorf("%s: expected invalid params, got %v", tt.name, err)
		}
	}

	info, err := f.engine.FairnessInfo(ctx, userID)
	if err != nil {
		t.Fatalf("Failed to get fairness info: %v", err)
	}
	if info.Nonce != 0 {
		t.Errorf("Rejected bets must not consume nonces, got %d", info.Nonce)
	}
	expectBalance(t, f, userID, "100")
}

func TestInsufficientBalance(t *testing.T) {
	f := setupEngine(t, services.Options{})

	_, err := f.engine.PlayLimbo(context.Background(), 3, amount(101), 2)
	if !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("Expected insufficient balance, got %v", err)
	}
	expectBalance(t, f, 3, "100")
}

func TestCrashCashOutBeforeFirstTick(t *testing.T) {
	f := setupEngine(t, services.Options{CrashTick: time.Hour})
	ctx := context.Background()
	userID := int64(4)

	state, err := f.engine.StartCrash(ctx, userID, amount(10))
	if err != nil {
		t.Fatalf("Failed to start crash: %v", err)
	}
	if state.Balance == nil || !state.Balance.Equal(amount(90)) {
		t.Errorf("Stake should be taken on start, got %v", state.Balance)
	}

	active, err := f.engine.ActiveGame(ctx, userID)
	if err != nil || active.GameID != state.GameID {
		t.Fatalf("Expected active game %s, got %+v, %v", state.GameID, active, err)
	}

	res, err := f.engine.CashOut(ctx, userID, games.KindCrash, state.GameID)
	if err != nil {
		t.Fatalf("Failed to cash out: %v", err)
	}
	crash := res.Result.(*games.CrashResult)
	if !crash.CashedOut || crash.Multiplier != 1.00 || res.Status != string(games.StatusCashedOut) {
		t.Errorf("Unexpected cash-out %+v", crash)
	}
	expectBalance(t, f, userID, "100")

	if _, err := f.engine.CashOut(ctx, userID, games.KindCrash, state.GameID); !errors.Is(err, table.ErrNotFound) {
		t.Errorf("Second cash-out should find no game, got %v", err)
	}
	if _, err := f.engine.ActiveGame(ctx, userID); !errors.Is(err, services.ErrNoActiveGame) {
		t.Errorf("Expected no active game, got %v", err)
	}
}

// lowCrashSeed picks an unused client seed whose first round, at nonce 0,
// crashes early.
func lowCrashSeed(t *testing.T, f *fixture, below float64, used map[string]bool) string {
	t.Helper()
	for i := 0; i < 20000; i++ {
		seed := fmt.Sprintf("seed-%d", i)
		if used[seed] {
			continue
		}
		if games.CrashPoint(fairness.Draw(f.seeds.Current().Value, seed, 0, 0)) < below {
			used[seed] = true
			return seed
		}
	}
	t.Fatal("No client seed with an early crash")
	return ""
}

func TestCrashRunsUntilItCrashes(t *testing.T) {
	f := setupEngine(t, services.Options{CrashTick: time.Millisecond})
	ctx := context.Background()
	userID := int64(5)

	if _, err := f.engine.SetClientSeed(ctx, userID, lowCrashSeed(t, f, 1.5, map[string]bool{})); err != nil {
		t.Fatalf("Failed to set client seed: %v", err)
	}

	state, err := f.engine.StartCrash(ctx, userID, amount(10))
	if err != nil {
		t.Fatalf("Failed to start crash: %v", err)
	}

	ev := f.events.waitFor(t, services.MsgCrashEnd, state.GameID)
	res := ev.data.(*services.BetResult)
	crash := res.Result.(*games.CrashResult)
	if crash.CashedOut || res.Status != string(games.StatusCrashed) || crash.Multiplier != crash.CrashPoint {
		t.Errorf("Unexpected crash result %+v", crash)
	}
	expectBalance(t, f, userID, "90")

	if _, err := f.engine.CashOut(ctx, userID, games.KindCrash, state.GameID); !errors.Is(err, table.ErrNotFound) {
		t.Errorf("Late cash-out should find no game, got %v", err)
	}
	if _, err := f.engine.StartCrash(ctx, userID, amount(1)); err != nil {
		t.Errorf("Slot should be free after the crash, got %v", err)
	}
}

func TestCrashCashOutRace(t *testing.T) {
	f := setupEngine(t, services.Options{CrashTick: time.Millisecond})
	ctx := context.Background()
	userID := int64(6)

	used := map[string]bool{}
	for round := 0; round < 5; round++ {
		if _, err := f.engine.SetClientSeed(ctx, userID, lowCrashSeed(t, f, 1.05, used)); err != nil {
			t.Fatalf("Failed to set client seed: %v", err)
		}
		state, err := f.engine.StartCrash(ctx, userID, amount(1))
		if err != nil {
			t.Fatalf("Failed to start crash: %v", err)
		}

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			cashed  int
			settled = map[string]bool{}
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				time.Sleep(time.Duration(i) * time.Millisecond)
				res, err := f.engine.CashOut(ctx, userID, games.KindCrash, state.GameID)
				if err != nil {
					if !errors.Is(err, table.ErrNotFound) {
						t.Errorf("Unexpected cash-out error: %v", err)
					}
					return
				}
				mu.Lock()
				defer mu.Unlock()
				cashed++
				settled[res.GameID] = true
			}()
		}
		wg.Wait()

		if cashed > 1 {
			t.Fatalf("Round %d settled %d cash-outs", round, cashed)
		}
		if cashed == 0 {
			f.events.waitFor(t, services.MsgCrashEnd, state.GameID)
		}
	}

	// each round settled exactly once, so the wait above also freed the slot
	history, err := f.engine.History(ctx, userID, 50)
	if err != nil {
		t.Fatalf("Failed to get history: %v", err)
	}
	if len(history) != 5 {
		t.Errorf("Expected 5 settled rounds, got %d", len(history))
	}
}

func TestOneActiveGamePerPlayer(t *testing.T) {
	f := setupEngine(t, services.Options{})
	ctx := context.Background()
	userID := int64(7)

	if _, err := f.engine.StartMines(ctx, userID, amount(10), games.MinesParams{GridSize: 5, MineCount: 3}); err != nil {
		t.Fatalf("Failed to start mines: %v", err)
	}
	if _, err := f.engine.StartTowers(ctx, userID, amount(10), "easy"); !errors.Is(err, session.ErrGameInProgress) {
		t.Fatalf("Expected game in progress, got %v", err)
	}
	expectBalance(t, f, userID, "90")
}

func TestMinesRevealAndCashOut(t *testing.T) {
	f := setupEngine(t, services.Options{})
	ctx := context.Background()
	userID := int64(8)
	params := games.MinesParams{GridSize: 5, MineCount: 3}

	state, err := f.engine.StartMines(ctx, userID, amount(10), params)
	if err != nil {
		t.Fatalf("Failed to start mines: %v", err)
	}

	check, err := f.engine.Verify(models.VerifyRequest{
		Game:       string(games.KindMines),
		ServerSeed: f.seeds.Current().Value,
		ClientSeed: state.Fair.ClientSeed,
		Nonce:      state.Fair.Nonce,
		GridSize:   5,
		MineCount:  3,
	})
	if err != nil {
		t.Fatalf("Failed to verify: %v", err)
	}
	mines := map[int]bool{}
	for _, m := range check.Outcome.(map[string][]int)["mine_positions"] {
		mines[m] = true
	}
	safe, mine := -1, -1
	for cell := 0; cell < 25; cell++ {
		if mines[cell] && mine < 0 {
			mine = cell
		}
		if !mines[cell] && safe < 0 {
			safe = cell
		}
	}

	step, err := f.engine.RevealMine(ctx, userID, state.GameID, safe)
	if err != nil {
		t.Fatalf("Failed to reveal: %v", err)
	}
	if step.Step.(*games.MinesReveal).Mine || step.Settled != nil {
		t.Fatalf("Safe reveal should keep the game going, got %+v", step)
	}

	if _, err := f.engine.RevealMine(ctx, userID, state.GameID, 25); !errors.Is(err, games.ErrInvalidParams) {
		t.Errorf("Out of range cell should be rejected, got %v", err)
	}
	if _, err := f.engine.CashOut(ctx, 999, games.KindMines, state.GameID); !errors.Is(err, table.ErrNotOwner) {
		t.Errorf("Another player must not cash out, got %v", err)
	}
	if _, err := f.engine.CashOut(ctx, userID, games.KindTowers, state.GameID); !errors.Is(err, services.ErrWrongGame) {
		t.Errorf("Wrong game type should be rejected, got %v", err)
	}

	res, err := f.engine.CashOut(ctx, userID, games.KindMines, state.GameID)
	if err != nil {
		t.Fatalf("Failed to cash out: %v", err)
	}
	outcome := res.Result.(*games.MinesResult)
	if !outcome.Won || len(outcome.MinePositions) != 3 {
		t.Errorf("Unexpected cash-out %+v", outcome)
	}

	state, err = f.engine.StartMines(ctx, userID, amount(10), params)
	if err != nil {
		t.Fatalf("Failed to start mines: %v", err)
	}
	check, err = f.engine.Verify(models.VerifyRequest{
		Game:       string(games.KindMines),
		ServerSeed: f.seeds.Current().Value,
		ClientSeed: state.Fair.ClientSeed,
		Nonce:      state.Fair.Nonce,
		GridSize:   5,
		MineCount:  3,
	})
	if err != nil {
		t.Fatalf("Failed to verify: %v", err)
	}
	mine = check.Outcome.(map[string][]int)["mine_positions"][0]

	step, err = f.engine.RevealMine(ctx, userID, state.GameID, mine)
	if err != nil {
		t.Fatalf("Failed to reveal: %v", err)
	}
	if !step.Step.(*games.MinesReveal).Mine || step.Settled == nil || step.Settled.Status != string(games.StatusLost) {
		t.Errorf("Hitting a mine should settle a loss, got %+v", step)
	}
}

func TestTowersClimbAndUpgraderCashOut(t *testing.T) {
	f := setupEngine(t, services.Options{})
	ctx := context.Background()
	userID := int64(9)

	state, err := f.engine.StartTowers(ctx, userID, amount(10), "medium")
	if err != nil {
		t.Fatalf("Failed to start towers: %v", err)
	}
	check, err := f.engine.Verify(models.VerifyRequest{
		Game:       string(games.KindTowers),
		ServerSeed: f.seeds.Current().Value,
		ClientSeed: state.Fair.ClientSeed,
		Nonce:      state.Fair.Nonce,
		Difficulty: "medium",
	})
	if err != nil {
		t.Fatalf("Failed to verify: %v", err)
	}
	safe := check.Outcome.(map[string][]int)["safe_blocks"]

	step, err := f.engine.SelectTower(ctx, userID, state.GameID, safe[0])
	if err != nil {
		t.Fatalf("Failed to select: %v", err)
	}
	if got := step.Step.(*games.TowersStep); !got.Safe || got.Multiplier != 2.00 {
		t.Errorf("Unexpected step %+v", got)
	}

	res, err := f.engine.CashOut(ctx, userID, games.KindTowers, state.GameID)
	if err != nil {
		t.Fatalf("Failed to cash out: %v", err)
	}
	if !res.Result.(*games.TowersResult).Won {
		t.Error("Cash-out after a safe level should win")
	}
	expectBalance(t, f, userID, "110")

	up, err := f.engine.StartUpgrader(ctx, userID, amount(10))
	if err != nil {
		t.Fatalf("Failed to start upgrader: %v", err)
	}
	if _, err := f.engine.Upgrade(ctx, userID, "missing"); !errors.Is(err, table.ErrNotFound) {
		t.Errorf("Unknown game should not be found, got %v", err)
	}
	res, err = f.engine.CashOut(ctx, userID, games.KindUpgrader, up.GameID)
	if err != nil {
		t.Fatalf("Failed to cash out: %v", err)
	}
	if got := res.Result.(*games.UpgraderResult); got.Multiplier != 1.00 || !got.Winnings.Equal(amount(10)) {
		t.Errorf("Unexpected upgrader cash-out %+v", got)
	}
	expectBalance(t, f, userID, "110")
}

func TestDisconnectAbandonsGame(t *testing.T) {
	f := setupEngine(t, services.Options{CrashTick: time.Hour})
	ctx := context.Background()
	userID := int64(10)

	state, err := f.engine.StartCrash(ctx, userID, amount(25))
	if err != nil {
		t.Fatalf("Failed to start crash: %v", err)
	}

	f.engine.Disconnect(ctx, userID)

	if _, err := f.engine.CashOut(ctx, userID, games.KindCrash, state.GameID); !errors.Is(err, table.ErrNotFound) {
		t.Errorf("Abandoned game should be gone, got %v", err)
	}
	history, err := f.engine.History(ctx, userID, 10)
	if err != nil {
		t.Fatalf("Failed to get history: %v", err)
	}
	if len(history) != 1 || history[0].Status != services.StatusAbandoned || history[0].Won {
		t.Fatalf("Expected one abandoned record, got %+v", history)
	}
	expectBalance(t, f, userID, "75")
}

func TestCleanupStaleGames(t *testing.T) {
	f := setupEngine(t, services.Options{})
	ctx := context.Background()

	if _, err := f.engine.StartTowers(ctx, 11, amount(5), "hard"); err != nil {
		t.Fatalf("Failed to start towers: %v", err)
	}
	if _, err := f.engine.CreateLobby(ctx, 12, "host"); err != nil {
		t.Fatalf("Failed to create lobby: %v", err)
	}

	if n := f.engine.CleanupStaleGames(ctx, time.Hour); n != 0 {
		t.Errorf("Fresh games must survive, closed %d", n)
	}
	time.Sleep(5 * time.Millisecond)
	if n := f.engine.CleanupStaleGames(ctx, time.Millisecond); n != 2 {
		t.Errorf("Expected 2 stale entries closed, got %d", n)
	}
	if _, err := f.engine.ActiveGame(ctx, 11); !errors.Is(err, services.ErrNoActiveGame) {
		t.Errorf("Stale game should be gone, got %v", err)
	}
}
