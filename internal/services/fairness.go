package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"fairplay-casino-backend/internal/fairness"
	"fairplay-casino-backend/internal/games"
	"fairplay-casino-backend/internal/lib/logger/sl"
	"fairplay-casino-backend/internal/models"
	"fairplay-casino-backend/internal/seeds"
	"fairplay-casino-backend/internal/session"
	"fairplay-casino-backend/internal/store"
)

const (
	maxVerifySeedLen = 128
	recentSeeds      = 5
)

type FairnessInfo struct {
	session.Snapshot
	RotateAt      time.Time          `json:"rotate_at"`
	PreviousSeeds []seeds.ServerSeed `json:"previous_seeds"`
}

func (ge *GameEngine) FairnessInfo(ctx context.Context, userID int64) (*FairnessInfo, error) {
	const op = "services.FairnessInfo"

	snap, err := ge.sessions.Snapshot(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	history := ge.seeds.History()
	if len(history) > recentSeeds {
		history = history[len(history)-recentSeeds:]
	}
	previous := make([]seeds.ServerSeed, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		previous = append(previous, history[i])
	}

	return &FairnessInfo{
		Snapshot:      snap,
		RotateAt:      ge.seeds.Commitment().RotateAt,
		PreviousSeeds: previous,
	}, nil
}

// SetClientSeed changes the player's client seed and restarts the nonce at 0.
func (ge *GameEngine) SetClientSeed(ctx context.Context, userID int64, seed string) (*session.Snapshot, error) {
	const op = "services.SetClientSeed"

	snap, err := ge.sessions.SetClientSeed(ctx, userID, seed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &snap, nil
}

// RevealSeed returns a retired server seed, falling back to the archive for
// seeds that fell out of the in-memory history.
func (ge *GameEngine) RevealSeed(ctx context.Context, id string) (*seeds.ServerSeed, error) {
	const op = "services.RevealSeed"

	seed, err := ge.seeds.RevealPrevious(id)
	if err == nil {
		return &seed, nil
	}
	if !errors.Is(err, seeds.ErrUnknownSeed) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rec, err := ge.store.GetServerSeed(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, seeds.ErrUnknownSeed)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if rec.Value == "" {
		return nil, fmt.Errorf("%s: %w", op, seeds.ErrNotRevealed)
	}

	return &seeds.ServerSeed{
		ID:         rec.ID,
		Value:      rec.Value,
		Hash:       rec.Hash,
		CreatedAt:  rec.CreatedAt,
		RevealedAt: rec.RevealedAt,
	}, nil
}

// OnSeedRotated publishes a rotation to every connected player.
func (ge *GameEngine) OnSeedRotated(rot seeds.Rotation) {
	ge.broadcaster.BroadcastAll(MsgSeedRotated, rot)
	ge.log.Info("server seed rotation published", sl.String("new_server_seed_id", rot.NewID))
}

// OnSeedRevealed publishes a seed whose reveal waited for its last game.
func (ge *GameEngine) OnSeedRevealed(seed seeds.ServerSeed) {
	ge.broadcaster.BroadcastAll(MsgSeedRevealed, seed)
}

type Verification struct {
	Game           games.Kind `json:"game"`
	ServerSeedHash string     `json:"server_seed_hash"`
	ClientSeed     string     `json:"client_seed"`
	Nonce          uint64     `json:"nonce"`
	Digest         string     `json:"digest"`
	Draw           float64    `json:"draw"`
	Outcome        any        `json:"outcome"`
}

type UpgraderRoll struct {
	Level  int     `json:"level"`
	Chance float64 `json:"chance"`
	Roll   float64 `json:"roll"`
	Pass   bool    `json:"pass"`
}

type MurderSeat struct {
	Seat int        `json:"seat"`
	Role games.Role `json:"role"`
}

// Verify recomputes a game from a revealed server seed. Stakes do not change
// outcomes, so instant games are replayed with a unit stake.
func (ge *GameEngine) Verify(req models.VerifyRequest) (*Verification, error) {
	const op = "services.Verify"

	key, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cached, ok := ge.verified.Get(string(key)); ok {
		return cached.(*Verification), nil
	}

	out, err := verify(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ge.verified.Set(string(key), out, cache.DefaultExpiration)
	return out, nil
}

func verify(req models.VerifyRequest) (*Verification, error) {
	kind, err := games.ParseKind(req.Game)
	if err != nil {
		return nil, err
	}
	if req.ServerSeed == "" || len(req.ServerSeed) > maxVerifySeedLen {
		return nil, fmt.Errorf("%w: server seed must be 1 to %d characters", games.ErrInvalidParams, maxVerifySeedLen)
	}
	clientSeed, err := session.SanitizeClientSeed(req.ClientSeed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", games.ErrInvalidParams, err)
	}

	draw := fairness.MintStream(req.ServerSeed, clientSeed, req.Nonce)
	unit := decimal.NewFromInt(1)

	var outcome any
	switch kind {
	case games.KindCoinFlip:
		outcome, err = games.PlayCoinFlip(unit, req.Side, draw)
	case games.KindDice:
		outcome, err = games.PlayDice(unit, games.DiceParams{Target: req.Target, RollOver: req.RollOver}, draw)
	case games.KindLimbo:
		outcome, err = games.PlayLimbo(unit, req.Target, draw)
	case games.KindPlinko:
		var risk games.PlinkoRisk
		if risk, err = games.ParsePlinkoRisk(req.Risk); err == nil {
			outcome, err = games.PlayPlinko(unit, risk, draw)
		}
	case games.KindCrash:
		outcome = map[string]float64{"crash_point": games.CrashPoint(draw(0))}
	case games.KindMines:
		p := games.MinesParams{GridSize: req.GridSize, MineCount: req.MineCount}
		if err = p.Validate(); err == nil {
			var mines []int
			mines, err = games.PlaceMines(p.GridSize*p.GridSize, p.MineCount, draw)
			outcome = map[string][]int{"mine_positions": mines}
		}
	case games.KindTowers:
		var d games.TowersDifficulty
		if d, err = games.ParseTowersDifficulty(req.Difficulty); err == nil {
			var safe []int
			safe, err = games.TowersSafeBlocks(d, draw)
			outcome = map[string][]int{"safe_blocks": safe}
		}
	case games.KindUpgrader:
		outcome = upgraderRolls(draw)
	case games.KindMurderMystery:
		outcome, err = murderSeats(req.Players, draw)
	}
	if err != nil {
		return nil, err
	}

	return &Verification{
		Game:           kind,
		ServerSeedHash: fairness.HashSeed(req.ServerSeed),
		ClientSeed:     clientSeed,
		Nonce:          req.Nonce,
		Digest:         fairness.Digest(req.ServerSeed, clientSeed, req.Nonce, 0),
		Draw:           draw(0),
		Outcome:        outcome,
	}, nil
}

// upgraderRolls lists the roll of every attempt a ladder could make. Attempt
// k climbs from level k+1 only if every earlier attempt passed.
func upgraderRolls(draw fairness.DrawFn) []UpgraderRoll {
	levels := games.UpgradeLevels()
	rolls := make([]UpgraderRoll, 0, len(levels))
	for k, lvl := range levels {
		roll := draw(k) * 100
		rolls = append(rolls, UpgraderRoll{Level: lvl.Level, Chance: lvl.Chance, Roll: roll, Pass: roll < lvl.Chance})
	}
	return rolls
}

// murderSeats maps join order to roles for a lobby of n players.
func murderSeats(n int, draw fairness.DrawFn) ([]MurderSeat, error) {
	if n < games.MurderMinPlayers || n > games.MurderMaxPlayers {
		return nil, fmt.Errorf("%w: players must be between %d and %d, got %d",
			games.ErrInvalidParams, games.MurderMinPlayers, games.MurderMaxPlayers, n)
	}

	seats := make([]MurderSeat, n)
	for i := range seats {
		seats[i] = MurderSeat{Seat: i, Role: games.RoleInnocent}
	}
	for i, idx := range games.DealOrder(n, draw) {
		switch {
		case i == 0:
			seats[idx].Role = games.RoleMurderer
		case i == 1 && n >= games.MurderDetectiveFrom:
			seats[idx].Role = games.RoleDetective
		}
	}
	return seats, nil
}
