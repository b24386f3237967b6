package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"

	"fairplay-casino-backend/internal/fairness"
	"fairplay-casino-backend/internal/games"
	"fairplay-casino-backend/internal/lib/logger/sl"
	"fairplay-casino-backend/internal/models"
	"fairplay-casino-backend/internal/table"
)

// lobbyState is the table state of a murder mystery lobby. The deal receipt
// is set once the round starts and its server seed is held until the round
// ends or the lobby goes back to waiting.
type lobbyState struct {
	lobby        *games.MurderLobby
	fair         *fairness.Receipt
	serverSeedID string
	releaseSeed  func()
	timer        *time.Timer
}

// stop runs when the entry leaves the table.
func (st *lobbyState) stop() {
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	if st.releaseSeed != nil {
		st.releaseSeed()
		st.releaseSeed = nil
	}
}

// clearDeal forgets the deal of a round that went back to waiting.
func (st *lobbyState) clearDeal() {
	st.stop()
	st.fair, st.serverSeedID = nil, ""
}

// LobbyView is a lobby as one player sees it.
type LobbyView struct {
	games.MurderView
	Fair *fairness.Receipt `json:"fair,omitempty"`
}

func (st *lobbyState) view(viewer int64) *LobbyView {
	return &LobbyView{MurderView: st.lobby.Snapshot(viewer, time.Now()), Fair: st.fair}
}

func lobbyOf(e *table.Entry) (*lobbyState, error) {
	st, ok := e.State.(*lobbyState)
	if !ok {
		return nil, ErrWrongGame
	}
	return st, nil
}

func (ge *GameEngine) pushLobby(st *lobbyState, msgType string) {
	for _, p := range st.lobby.Players {
		ge.broadcaster.SendToUser(p.ID, msgType, st.lobby.ID, st.view(p.ID))
	}
}

// withLobby runs fn on a lobby the player is a member of.
func (ge *GameEngine) withLobby(userID int64, lobbyID string, fn func(*table.Entry, *lobbyState) error) error {
	return ge.table.With(lobbyID, func(e *table.Entry) error {
		st, err := lobbyOf(e)
		if err != nil {
			return err
		}
		if !st.lobby.Has(userID) {
			return games.ErrNotInLobby
		}
		return fn(e, st)
	})
}

func (ge *GameEngine) CreateLobby(ctx context.Context, userID int64, name string) (*LobbyView, error) {
	const op = "services.CreateLobby"

	id := models.GenerateLobbyID()
	if err := ge.sessions.JoinLobby(ctx, userID, id); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	st := &lobbyState{lobby: games.NewMurderLobby(id, userID, name, ge.opts.LobbyCountdown)}
	entry := &table.Entry{ID: id, Kind: games.KindMurderMystery, Owner: userID, State: st}
	entry.SetStop(st.stop)

	view := st.view(userID)
	if err := ge.table.Put(entry); err != nil {
		ge.sessions.LeaveLobby(userID, id)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ge.log.Info("lobby created", sl.String("lobby_id", id), sl.Int64("host", userID))
	return view, nil
}

// JoinLobby adds the player to a waiting lobby. The join that brings the
// roster to the minimum starts the round, dealt from the joining player's
// stream. If the deal fails the join is undone.
func (ge *GameEngine) JoinLobby(ctx context.Context, userID int64, name, lobbyID string) (*LobbyView, error) {
	const op = "services.JoinLobby"

	if err := ge.sessions.JoinLobby(ctx, userID, lobbyID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var view *LobbyView
	err := ge.table.With(lobbyID, func(e *table.Entry) error {
		st, err := lobbyOf(e)
		if err != nil {
			return err
		}
		if st.lobby.Has(userID) {
			view = st.view(userID)
			return nil
		}
		if err := st.lobby.Join(userID, name); err != nil {
			return err
		}
		if st.lobby.CanStart() {
			if err := ge.startLobby(ctx, e, st, userID); err != nil {
				_, _ = st.lobby.Leave(userID)
				return err
			}
		}
		ge.pushLobby(st, MsgLobbyUpdate)
		view = st.view(userID)
		return nil
	})
	if err != nil {
		ge.sessions.LeaveLobby(userID, lobbyID)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return view, nil
}

// startLobby deals the roles from the starter's next stream. The caller
// checks CanStart first so a lobby that cannot start never consumes a nonce.
func (ge *GameEngine) startLobby(ctx context.Context, e *table.Entry, st *lobbyState, starter int64) error {
	stream, err := ge.sessions.NextStream(ctx, starter)
	if err != nil {
		return err
	}
	if err := st.lobby.Start(time.Now(), stream.Draw); err != nil {
		stream.Release()
		return err
	}

	st.stop()
	st.fair = &stream.Receipt
	st.serverSeedID = stream.ServerSeedID
	st.releaseSeed = stream.Release
	st.timer = time.AfterFunc(st.lobby.Countdown, func() { ge.expireLobby(e.ID) })

	ge.log.Info("murder mystery started",
		sl.String("lobby_id", e.ID),
		sl.Int64("started_by", starter),
		slog.Int("players", st.lobby.Len()),
	)
	return nil
}

func (ge *GameEngine) Kill(ctx context.Context, userID int64, lobbyID string, targetID int64) (*LobbyView, error) {
	const op = "services.Kill"

	view, err := ge.lobbyMove(ctx, userID, lobbyID, func(l *games.MurderLobby) (*games.MurderResult, error) {
		return l.Kill(userID, targetID)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return view, nil
}

func (ge *GameEngine) Accuse(ctx context.Context, userID int64, lobbyID string, suspectID int64) (*LobbyView, error) {
	const op = "services.Accuse"

	view, err := ge.lobbyMove(ctx, userID, lobbyID, func(l *games.MurderLobby) (*games.MurderResult, error) {
		return l.Accuse(userID, suspectID)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return view, nil
}

func (ge *GameEngine) lobbyMove(
	ctx context.Context,
	userID int64,
	lobbyID string,
	move func(*games.MurderLobby) (*games.MurderResult, error),
) (*LobbyView, error) {
	var view *LobbyView
	err := ge.withLobby(userID, lobbyID, func(e *table.Entry, st *lobbyState) error {
		res, err := move(st.lobby)
		if err != nil {
			return err
		}
		if res != nil {
			ge.finishLobby(ctx, e, st, res)
		} else {
			ge.pushLobby(st, MsgLobbyUpdate)
		}
		view = st.view(userID)
		return nil
	})
	return view, err
}

func (ge *GameEngine) LeaveLobby(ctx context.Context, userID int64, lobbyID string) error {
	const op = "services.LeaveLobby"

	ge.sessions.LeaveLobby(userID, lobbyID)
	if err := ge.leaveLobby(ctx, userID, lobbyID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// leaveLobby drops the player from the roster. A round that drops below the
// minimum goes back to waiting; an empty lobby is closed.
func (ge *GameEngine) leaveLobby(ctx context.Context, userID int64, lobbyID string) error {
	return ge.withLobby(userID, lobbyID, func(e *table.Entry, st *lobbyState) error {
		res, err := st.lobby.Leave(userID)
		if err != nil {
			return err
		}

		switch {
		case res != nil:
			ge.finishLobby(ctx, e, st, res)
		case st.lobby.Empty():
			ge.table.Remove(e)
			ge.log.Info("lobby closed", sl.String("lobby_id", e.ID))
		default:
			if st.lobby.Phase == games.PhaseWaiting {
				st.clearDeal()
			}
			ge.pushLobby(st, MsgLobbyUpdate)
		}
		return nil
	})
}

func (ge *GameEngine) GetLobby(ctx context.Context, userID int64, lobbyID string) (*LobbyView, error) {
	const op = "services.GetLobby"

	var view *LobbyView
	err := ge.table.With(lobbyID, func(e *table.Entry) error {
		st, err := lobbyOf(e)
		if err != nil {
			return err
		}
		view = st.view(userID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return view, nil
}

// ListLobbies returns the lobbies still waiting for players.
func (ge *GameEngine) ListLobbies() []*LobbyView {
	views := []*LobbyView{}
	ge.table.Range(func(e *table.Entry) bool {
		if e.Kind != games.KindMurderMystery {
			return true
		}
		_ = ge.table.With(e.ID, func(e *table.Entry) error {
			st, err := lobbyOf(e)
			if err != nil || st.lobby.Phase != games.PhaseWaiting {
				return err
			}
			views = append(views, st.view(0))
			return nil
		})
		return true
	})
	return views
}

func (ge *GameEngine) expireLobby(lobbyID string) {
	err := ge.table.With(lobbyID, func(e *table.Entry) error {
		st, err := lobbyOf(e)
		if err != nil {
			return err
		}
		if res := st.lobby.Expire(time.Now()); res != nil {
			ge.finishLobby(context.Background(), e, st, res)
		}
		return nil
	})
	if err != nil && !errors.Is(err, table.ErrNotFound) {
		ge.log.Error("failed to expire lobby", sl.String("lobby_id", lobbyID), sl.Err(err))
	}
}

// closeIdleLobby closes a lobby that never started.
func (ge *GameEngine) closeIdleLobby(lobbyID string) bool {
	closed := false
	_ = ge.table.With(lobbyID, func(e *table.Entry) error {
		st, err := lobbyOf(e)
		if err != nil || st.lobby.Phase != games.PhaseWaiting {
			return err
		}
		ge.table.Remove(e)
		for _, p := range st.lobby.Players {
			ge.sessions.LeaveLobby(p.ID, e.ID)
		}
		ge.pushLobby(st, MsgLobbyClosed)
		closed = true
		return nil
	})
	if closed {
		ge.log.Info("idle lobby closed", sl.String("lobby_id", lobbyID))
	}
	return closed
}

// finishLobby closes a finished round, records it for every player still in
// the roster and pushes the revealed roles. The caller holds the entry lock.
func (ge *GameEngine) finishLobby(ctx context.Context, e *table.Entry, st *lobbyState, res *games.MurderResult) {
	ge.table.Remove(e)
	ctx = context.WithoutCancel(ctx)

	detail, err := json.Marshal(res)
	if err != nil {
		ge.log.Error("failed to marshal lobby result", sl.String("lobby_id", e.ID), sl.Err(err))
	}

	for _, p := range res.Players {
		ge.sessions.LeaveLobby(p.ID, e.ID)
		if st.fair == nil {
			continue
		}

		won := (res.Winner == games.WinnerMurderer) == (p.Role == games.RoleMurderer)
		status := games.StatusLost
		if won {
			status = games.StatusWon
		}

		rec := &models.GameRecord{
			ID:             fmt.Sprintf("%s_%d", e.ID, p.ID),
			UserID:         p.ID,
			Game:           string(games.KindMurderMystery),
			Stake:          decimal.Zero,
			Payout:         decimal.Zero,
			Won:            won,
			Status:         string(status),
			ServerSeedID:   st.serverSeedID,
			ServerSeedHash: st.fair.ServerSeedHash,
			ClientSeed:     st.fair.ClientSeed,
			Nonce:          st.fair.Nonce,
			Detail:         detail,
			CreatedAt:      time.Now(),
		}
		if err := ge.store.AppendResult(ctx, rec); err != nil {
			ge.log.Error("failed to record lobby result",
				sl.String("lobby_id", e.ID),
				sl.Int64("user_id", p.ID),
				sl.Err(err),
			)
		}
	}

	ge.pushLobby(st, MsgLobbyClosed)
	ge.log.Info("murder mystery finished",
		sl.String("lobby_id", e.ID),
		sl.String("winner", string(res.Winner)),
		sl.String("reason", res.Reason),
	)
}
