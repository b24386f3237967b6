package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"

	"fairplay-casino-backend/internal/fairness"
	"fairplay-casino-backend/internal/games"
	"fairplay-casino-backend/internal/lib/logger/sl"
	"fairplay-casino-backend/internal/models"
	"fairplay-casino-backend/internal/seeds"
	"fairplay-casino-backend/internal/session"
	"fairplay-casino-backend/internal/store"
	"fairplay-casino-backend/internal/table"
)

const StatusAbandoned = "abandoned"

var (
	ErrNoActiveGame = errors.New("no active game")
	ErrWrongGame    = errors.New("game id belongs to another game type")
)

type Options struct {
	CrashTick      time.Duration
	LobbyCountdown time.Duration
}

// GameEngine runs every game: it takes stakes, mints draw streams, keeps
// multi-step games in the active table and settles finished ones.
type GameEngine struct {
	log         *slog.Logger
	store       store.Store
	sessions    *session.Registry
	table       *table.Table
	seeds       seeds.Lifecycle
	broadcaster Broadcaster
	verified    *cache.Cache
	opts        Options
}

func NewGameEngine(
	log *slog.Logger,
	st store.Store,
	reg *session.Registry,
	tbl *table.Table,
	lc seeds.Lifecycle,
	opts Options,
) *GameEngine {
	if opts.CrashTick <= 0 {
		opts.CrashTick = 100 * time.Millisecond
	}
	if opts.LobbyCountdown <= 0 {
		opts.LobbyCountdown = games.MurderCountdown
	}

	return &GameEngine{
		log:         log,
		store:       st,
		sessions:    reg,
		table:       tbl,
		seeds:       lc,
		broadcaster: noopBroadcaster{},
		verified:    cache.New(10*time.Minute, 20*time.Minute),
		opts:        opts,
	}
}

// SetBroadcaster wires the push hub. Call it before serving traffic.
func (ge *GameEngine) SetBroadcaster(b Broadcaster) {
	if b == nil {
		b = noopBroadcaster{}
	}
	ge.broadcaster = b
}

// BetResult is a settled game.
type BetResult struct {
	GameID  string           `json:"game_id"`
	Game    games.Kind       `json:"game"`
	Status  string           `json:"status"`
	Result  games.Result     `json:"result"`
	Fair    fairness.Receipt `json:"fair"`
	Balance decimal.Decimal  `json:"balance"`
}

// GameState is a running multi-step game as its owner sees it.
type GameState struct {
	GameID  string           `json:"game_id"`
	Game    games.Kind       `json:"game"`
	Stake   decimal.Decimal  `json:"stake"`
	State   any              `json:"state"`
	Fair    fairness.Receipt `json:"fair"`
	Balance *decimal.Decimal `json:"balance,omitempty"`
}

// ActionResult reports one move. Settled is set when the move ended the game.
type ActionResult struct {
	GameID  string     `json:"game_id"`
	Game    games.Kind `json:"game"`
	Step    any        `json:"step"`
	State   any        `json:"state"`
	Settled *BetResult `json:"settled,omitempty"`
}

func statusOf(res games.Result, outcome games.Outcome) string {
	switch v := res.(type) {
	case *games.CrashResult:
		return string(v.Status)
	case *games.MinesResult:
		return string(v.Status)
	case *games.TowersResult:
		return string(v.Status)
	case *games.UpgraderResult:
		return string(v.Status)
	}
	if outcome.Won {
		return string(games.StatusWon)
	}
	return string(games.StatusLost)
}

// settle credits winnings and appends the result to the player's history.
// An empty status is derived from the result.
func (ge *GameEngine) settle(
	ctx context.Context,
	userID int64,
	gameID string,
	stream session.Stream,
	res games.Result,
	status string,
) (*BetResult, error) {
	const op = "services.settle"

	outcome, _ := games.OutcomeOf(res)
	if status == "" {
		status = statusOf(res, outcome)
	}

	var (
		balance decimal.Decimal
		err     error
	)
	if outcome.Winnings.IsPositive() {
		balance, err = ge.store.Credit(ctx, userID, outcome.Winnings)
	} else {
		balance, err = ge.store.Balance(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	detail, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rec := &models.GameRecord{
		ID:             gameID,
		UserID:         userID,
		Game:           string(res.Kind()),
		Stake:          outcome.Stake,
		Multiplier:     outcome.Multiplier,
		Payout:         outcome.Winnings,
		Won:            outcome.Won,
		Status:         status,
		ServerSeedID:   stream.ServerSeedID,
		ServerSeedHash: stream.Receipt.ServerSeedHash,
		ClientSeed:     stream.Receipt.ClientSeed,
		Nonce:          stream.Receipt.Nonce,
		Detail:         detail,
		CreatedAt:      time.Now(),
	}
	if err := ge.store.AppendResult(ctx, rec); err != nil {
		ge.log.Error("failed to record game result",
			sl.String("op", op),
			sl.String("game_id", gameID),
			sl.Err(err),
		)
	}

	ge.broadcaster.SendToUser(userID, MsgBalance, gameID, models.BalanceResponse{Balance: balance})

	return &BetResult{
		GameID:  gameID,
		Game:    res.Kind(),
		Status:  status,
		Result:  res,
		Fair:    stream.Receipt,
		Balance: balance,
	}, nil
}

func (ge *GameEngine) refund(ctx context.Context, userID int64, stake decimal.Decimal) {
	if _, err := ge.store.Credit(context.WithoutCancel(ctx), userID, stake); err != nil {
		ge.log.Error("failed to refund stake",
			sl.Int64("user_id", userID),
			sl.String("stake", stake.String()),
			sl.Err(err),
		)
	}
}

// play runs a single-draw game end to end. Parameters are validated by the
// caller so a rejected bet never consumes a nonce.
func (ge *GameEngine) play(
	ctx context.Context,
	userID int64,
	stake decimal.Decimal,
	run func(fairness.DrawFn) (games.Result, error),
) (*BetResult, error) {
	const op = "services.play"

	if _, err := ge.store.Debit(ctx, userID, stake); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	stream, err := ge.sessions.NextStream(ctx, userID)
	if err != nil {
		ge.refund(ctx, userID, stake)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer stream.Release()

	res, err := run(stream.Draw)
	if err != nil {
		ge.refund(ctx, userID, stake)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out, err := ge.settle(ctx, userID, models.GenerateGameID(), stream, res, "")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ge.log.Debug("game settled",
		sl.String("game", string(out.Game)),
		sl.String("game_id", out.GameID),
		sl.Int64("user_id", userID),
		sl.String("status", out.Status),
	)
	return out, nil
}

func (ge *GameEngine) PlayCoinFlip(ctx context.Context, userID int64, stake decimal.Decimal, side string) (*BetResult, error) {
	const op = "services.PlayCoinFlip"

	side, err := games.ParseSide(side)
	if err == nil {
		err = games.ValidateStake(stake)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return ge.play(ctx, userID, stake, func(draw fairness.DrawFn) (games.Result, error) {
		return games.PlayCoinFlip(stake, side, draw)
	})
}

func (ge *GameEngine) PlayDice(ctx context.Context, userID int64, stake decimal.Decimal, p games.DiceParams) (*BetResult, error) {
	const op = "services.PlayDice"

	err := p.Validate()
	if err == nil {
		err = games.ValidateStake(stake)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return ge.play(ctx, userID, stake, func(draw fairness.DrawFn) (games.Result, error) {
		return games.PlayDice(stake, p, draw)
	})
}

func (ge *GameEngine) PlayLimbo(ctx context.Context, userID int64, stake decimal.Decimal, target float64) (*BetResult, error) {
	const op = "services.PlayLimbo"

	err := games.ValidateLimboTarget(target)
	if err == nil {
		err = games.ValidateStake(stake)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return ge.play(ctx, userID, stake, func(draw fairness.DrawFn) (games.Result, error) {
		return games.PlayLimbo(stake, target, draw)
	})
}

func (ge *GameEngine) PlayPlinko(ctx context.Context, userID int64, stake decimal.Decimal, risk string) (*BetResult, error) {
	const op = "services.PlayPlinko"

	level, err := games.ParsePlinkoRisk(risk)
	if err == nil {
		err = games.ValidateStake(stake)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return ge.play(ctx, userID, stake, func(draw fairness.DrawFn) (games.Result, error) {
		return games.PlayPlinko(stake, level, draw)
	})
}

func (ge *GameEngine) Balance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	const op = "services.Balance"

	balance, err := ge.store.Balance(ctx, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}
	return balance, nil
}

func (ge *GameEngine) History(ctx context.Context, userID int64, limit int) ([]*models.GameRecord, error) {
	const op = "services.History"

	records, err := ge.store.ListResults(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return records, nil
}

// Disconnect abandons the player's running game and takes them out of their
// lobby. Called when the player's last websocket closes.
func (ge *GameEngine) Disconnect(ctx context.Context, userID int64) {
	gameID, lobbyID := ge.sessions.Close(userID)
	if gameID != "" {
		ge.abandon(ctx, gameID, "disconnect")
	}
	if lobbyID != "" {
		if err := ge.leaveLobby(ctx, userID, lobbyID); err != nil && !errors.Is(err, table.ErrNotFound) {
			ge.log.Warn("failed to leave lobby on disconnect",
				sl.String("lobby_id", lobbyID),
				sl.Int64("user_id", userID),
				sl.Err(err),
			)
		}
	}
}

// CleanupStaleGames abandons single-player games and closes waiting lobbies
// older than maxAge. It returns how many entries it closed.
func (ge *GameEngine) CleanupStaleGames(ctx context.Context, maxAge time.Duration) int {
	closed := 0
	for _, id := range ge.table.OlderThan(time.Now().Add(-maxAge)) {
		e, ok := ge.table.Get(id)
		if !ok {
			continue
		}
		if e.Kind == games.KindMurderMystery {
			if ge.closeIdleLobby(id) {
				closed++
			}
			continue
		}
		if ge.abandon(ctx, id, "stale") {
			closed++
		}
	}
	return closed
}

// RunSweeper calls CleanupStaleGames every interval until ctx is done.
func (ge *GameEngine) RunSweeper(ctx context.Context, every, maxAge time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := ge.CleanupStaleGames(ctx, maxAge); n > 0 {
				ge.log.Info("cleaned up stale games", slog.Int("count", n))
			}
		}
	}
}
