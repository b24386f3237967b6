package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fairplay-casino-backend/internal/fairness"
	"fairplay-casino-backend/internal/games"
	"fairplay-casino-backend/internal/lib/logger/sl"
	"fairplay-casino-backend/internal/models"
	"fairplay-casino-backend/internal/session"
	"fairplay-casino-backend/internal/table"
)

// liveGame is the table state of a multi-step single-player game.
type liveGame struct {
	kind   games.Kind
	stake  decimal.Decimal
	stream session.Stream
	game   any
}

func (g *liveGame) view() any {
	switch v := g.game.(type) {
	case *games.CrashRound:
		return v.View()
	case *games.MinesGame:
		return v.View()
	case *games.TowersGame:
		return v.View()
	case *games.UpgraderGame:
		return v.View()
	default:
		panic(fmt.Sprintf("services: unhandled game type %T", g.game))
	}
}

func (g *liveGame) cashOut() (games.Result, error) {
	switch v := g.game.(type) {
	case *games.CrashRound:
		return v.CashOut()
	case *games.MinesGame:
		return v.CashOut()
	case *games.TowersGame:
		return v.CashOut()
	case *games.UpgraderGame:
		return v.CashOut()
	default:
		panic(fmt.Sprintf("services: unhandled game type %T", g.game))
	}
}

func (g *liveGame) abandon() games.Result {
	switch v := g.game.(type) {
	case *games.CrashRound:
		return v.Abandon()
	case *games.MinesGame:
		return v.Abandon()
	case *games.TowersGame:
		return v.Abandon()
	case *games.UpgraderGame:
		return v.Abandon()
	default:
		panic(fmt.Sprintf("services: unhandled game type %T", g.game))
	}
}

func (g *liveGame) state(id string) *GameState {
	return &GameState{
		GameID: id,
		Game:   g.kind,
		Stake:  g.stake,
		State:  g.view(),
		Fair:   g.stream.Receipt,
	}
}

// start claims the player's game slot, takes the stake and puts the new game
// on the table.
func (ge *GameEngine) start(
	ctx context.Context,
	userID int64,
	kind games.Kind,
	stake decimal.Decimal,
	build func(fairness.DrawFn) (any, error),
) (*GameState, error) {
	const op = "services.start"

	gameID := models.GenerateGameID()
	if err := ge.sessions.Claim(ctx, userID, gameID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	balance, err := ge.store.Debit(ctx, userID, stake)
	if err != nil {
		ge.sessions.Release(userID, gameID)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	fail := func(err error) (*GameState, error) {
		ge.sessions.Release(userID, gameID)
		ge.refund(ctx, userID, stake)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	stream, err := ge.sessions.NextStream(ctx, userID)
	if err != nil {
		return fail(err)
	}
	placed := false
	defer func() {
		if !placed {
			stream.Release()
		}
	}()

	game, err := build(stream.Draw)
	if err != nil {
		if errors.Is(err, games.ErrGenerationExhausted) {
			ge.log.Error("game generation failed",
				sl.String("game", string(kind)),
				sl.Int64("user_id", userID),
				sl.Any("nonce", stream.Receipt.Nonce),
				sl.Err(err),
			)
		}
		return fail(err)
	}

	live := &liveGame{kind: kind, stake: stake, stream: stream, game: game}
	state := live.state(gameID)
	state.Balance = &balance

	entry := &table.Entry{ID: gameID, Kind: kind, Owner: userID, State: live}
	tick, cancel := context.WithCancel(context.Background())
	entry.SetStop(cancel)

	if err := ge.table.Put(entry); err != nil {
		cancel()
		return fail(err)
	}
	placed = true
	if kind == games.KindCrash {
		go ge.runCrash(tick, gameID)
	}

	ge.log.Debug("game started",
		sl.String("game", string(kind)),
		sl.String("game_id", gameID),
		sl.Int64("user_id", userID),
	)
	return state, nil
}

// runCrash advances a round every tick until it crashes or the entry leaves
// the table.
func (ge *GameEngine) runCrash(ctx context.Context, gameID string) {
	const op = "services.runCrash"

	ticker := time.NewTicker(ge.opts.CrashTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := ge.table.With(gameID, func(e *table.Entry) error {
				live := e.State.(*liveGame)
				round := live.game.(*games.CrashRound)

				crashed, err := round.Tick()
				if err != nil {
					return err
				}
				if !crashed {
					ge.broadcaster.SendToUser(e.Owner, MsgCrashTick, e.ID, round.View())
					return nil
				}
				_, err = ge.finish(ctx, e, live, round.Result(), "")
				return err
			})
			if err != nil {
				if !errors.Is(err, table.ErrNotFound) {
					ge.log.Error("crash round stopped", sl.String("op", op), sl.String("game_id", gameID), sl.Err(err))
				}
				return
			}
		}
	}
}

// finish removes a game that reached a terminal state and settles it. The
// caller holds the entry lock.
func (ge *GameEngine) finish(ctx context.Context, e *table.Entry, live *liveGame, res games.Result, status string) (*BetResult, error) {
	defer live.stream.Release()
	ge.table.Remove(e)
	ge.sessions.Release(e.Owner, e.ID)

	out, err := ge.settle(context.WithoutCancel(ctx), e.Owner, e.ID, live.stream, res, status)
	if err != nil {
		ge.log.Error("failed to settle game",
			sl.String("game_id", e.ID),
			sl.Int64("user_id", e.Owner),
			sl.Err(err),
		)
		return nil, err
	}

	switch live.kind {
	case games.KindCrash:
		ge.broadcaster.SendToUser(e.Owner, MsgCrashEnd, e.ID, out)
	default:
		ge.broadcaster.SendToUser(e.Owner, MsgGameSettled, e.ID, out)
	}
	return out, nil
}

// abandon ends a running game as a forfeited loss. It reports whether the
// game was still on the table.
func (ge *GameEngine) abandon(ctx context.Context, gameID, reason string) bool {
	err := ge.table.With(gameID, func(e *table.Entry) error {
		live, ok := e.State.(*liveGame)
		if !ok {
			return ErrWrongGame
		}
		_, err := ge.finish(ctx, e, live, live.abandon(), StatusAbandoned)
		return err
	})
	switch {
	case err == nil:
		ge.log.Info("game abandoned", sl.String("game_id", gameID), sl.String("reason", reason))
		return true
	case errors.Is(err, table.ErrNotFound):
		return false
	default:
		ge.log.Error("failed to abandon game", sl.String("game_id", gameID), sl.Err(err))
		return false
	}
}

// act applies one move to the player's game. move returns the step and, when
// the move ended the game, its result.
func (ge *GameEngine) act(
	ctx context.Context,
	userID int64,
	kind games.Kind,
	gameID string,
	move func(game any) (any, games.Result, error),
) (*ActionResult, error) {
	var out *ActionResult
	err := ge.table.WithOwned(gameID, userID, func(e *table.Entry) error {
		if e.Kind != kind {
			return ErrWrongGame
		}
		live := e.State.(*liveGame)

		step, res, err := move(live.game)
		if err != nil {
			return err
		}

		out = &ActionResult{GameID: e.ID, Game: kind, Step: step, State: live.view()}
		if res != nil {
			out.Settled, err = ge.finish(ctx, e, live, res, "")
		}
		return err
	})
	return out, err
}

// CashOut settles the player's game at its current multiplier. For crash the
// cash-out competes with the ticker; whichever commits first wins.
func (ge *GameEngine) CashOut(ctx context.Context, userID int64, kind games.Kind, gameID string) (*BetResult, error) {
	const op = "services.CashOut"

	var out *BetResult
	err := ge.table.WithOwned(gameID, userID, func(e *table.Entry) error {
		if e.Kind != kind {
			return ErrWrongGame
		}
		live := e.State.(*liveGame)

		res, err := live.cashOut()
		if err != nil {
			return err
		}
		out, err = ge.finish(ctx, e, live, res, "")
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (ge *GameEngine) StartCrash(ctx context.Context, userID int64, stake decimal.Decimal) (*GameState, error) {
	const op = "services.StartCrash"

	if err := games.ValidateStake(stake); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ge.start(ctx, userID, games.KindCrash, stake, func(draw fairness.DrawFn) (any, error) {
		return games.NewCrashRound(stake, draw)
	})
}

func (ge *GameEngine) StartMines(ctx context.Context, userID int64, stake decimal.Decimal, p games.MinesParams) (*GameState, error) {
	const op = "services.StartMines"

	err := p.Validate()
	if err == nil {
		err = games.ValidateStake(stake)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ge.start(ctx, userID, games.KindMines, stake, func(draw fairness.DrawFn) (any, error) {
		return games.NewMinesGame(stake, p, draw)
	})
}

func (ge *GameEngine) RevealMine(ctx context.Context, userID int64, gameID string, cell int) (*ActionResult, error) {
	const op = "services.RevealMine"

	out, err := ge.act(ctx, userID, games.KindMines, gameID, func(game any) (any, games.Result, error) {
		step, err := game.(*games.MinesGame).Reveal(cell)
		if err != nil {
			return nil, nil, err
		}
		if step.Result != nil {
			return step, step.Result, nil
		}
		return step, nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (ge *GameEngine) StartTowers(ctx context.Context, userID int64, stake decimal.Decimal, difficulty string) (*GameState, error) {
	const op = "services.StartTowers"

	d, err := games.ParseTowersDifficulty(difficulty)
	if err == nil {
		err = games.ValidateStake(stake)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ge.start(ctx, userID, games.KindTowers, stake, func(draw fairness.DrawFn) (any, error) {
		return games.NewTowersGame(stake, d, draw)
	})
}

func (ge *GameEngine) SelectTower(ctx context.Context, userID int64, gameID string, block int) (*ActionResult, error) {
	const op = "services.SelectTower"

	out, err := ge.act(ctx, userID, games.KindTowers, gameID, func(game any) (any, games.Result, error) {
		step, err := game.(*games.TowersGame).Select(block)
		if err != nil {
			return nil, nil, err
		}
		if step.Result != nil {
			return step, step.Result, nil
		}
		return step, nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (ge *GameEngine) StartUpgrader(ctx context.Context, userID int64, stake decimal.Decimal) (*GameState, error) {
	const op = "services.StartUpgrader"

	if err := games.ValidateStake(stake); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ge.start(ctx, userID, games.KindUpgrader, stake, func(draw fairness.DrawFn) (any, error) {
		return games.NewUpgraderGame(stake, draw)
	})
}

func (ge *GameEngine) Upgrade(ctx context.Context, userID int64, gameID string) (*ActionResult, error) {
	const op = "services.Upgrade"

	out, err := ge.act(ctx, userID, games.KindUpgrader, gameID, func(game any) (any, games.Result, error) {
		step, err := game.(*games.UpgraderGame).Upgrade()
		if err != nil {
			return nil, nil, err
		}
		if step.Result != nil {
			return step, step.Result, nil
		}
		return step, nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// ActiveGame returns the player's running single-player game.
func (ge *GameEngine) ActiveGame(ctx context.Context, userID int64) (*GameState, error) {
	const op = "services.ActiveGame"

	snap, err := ge.sessions.Snapshot(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if snap.ActiveGame == "" {
		return nil, ErrNoActiveGame
	}

	var state *GameState
	err = ge.table.WithOwned(snap.ActiveGame, userID, func(e *table.Entry) error {
		live, ok := e.State.(*liveGame)
		if !ok {
			return ErrWrongGame
		}
		state = live.state(e.ID)
		return nil
	})
	if errors.Is(err, table.ErrNotFound) {
		return nil, ErrNoActiveGame
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return state, nil
}
