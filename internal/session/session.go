// Package session tracks each player's provably-fair parameters and the
// single game or lobby they are currently bound to.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/exp/slog"

	"fairplay-casino-backend/internal/fairness"
	"fairplay-casino-backend/internal/lib/logger/sl"
	"fairplay-casino-backend/internal/models"
	"fairplay-casino-backend/internal/seeds"
	"fairplay-casino-backend/internal/store"
)

const MaxClientSeedLen = 64

var (
	ErrInvalidClientSeed = errors.New("client seed must be 1 to 64 printable ASCII characters")
	ErrClientSeedSpent   = errors.New("client seed was already used with the current server seed")
	ErrGameInProgress    = errors.New("player already has an active game")
	ErrInLobby           = errors.New("player is already in another lobby")
)

// FairnessStore is the slice of the store the registry needs.
type FairnessStore interface {
	GetFairness(ctx context.Context, userID int64) (*models.FairnessRecord, error)
	SaveFairness(ctx context.Context, rec *models.FairnessRecord) error
}

// Stream is one minted draw stream with its public receipt. The server seed
// stays secret until Release is called.
type Stream struct {
	Draw         fairness.DrawFn
	Receipt      fairness.Receipt
	ServerSeedID string
	Release      func()
}

type Snapshot struct {
	UserID         int64  `json:"user_id"`
	ClientSeed     string `json:"client_seed"`
	Nonce          uint64 `json:"nonce"`
	ServerSeedID   string `json:"server_seed_id"`
	ServerSeedHash string `json:"server_seed_hash"`
	ActiveGame     string `json:"active_game,omitempty"`
	Lobby          string `json:"lobby,omitempty"`
}

type session struct {
	mu sync.Mutex

	userID       int64
	loaded       bool
	clientSeed   string
	nonce        uint64
	serverSeedID string
	activeGame   string
	lobby        string

	// client seeds that consumed nonces under serverSeedID
	spent map[string]struct{}
}

type Registry struct {
	log   *slog.Logger
	store FairnessStore
	seeds seeds.Lifecycle

	mu       sync.Mutex
	sessions map[int64]*session
}

func NewRegistry(log *slog.Logger, st FairnessStore, lc seeds.Lifecycle) *Registry {
	return &Registry{
		log:      log,
		store:    st,
		seeds:    lc,
		sessions: make(map[int64]*session),
	}
}

// acquire returns the player's session locked, loading it from the store on
// first use. Callers unlock it.
func (r *Registry) acquire(ctx context.Context, userID int64) (*session, error) {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	if !ok {
		s = &session{userID: userID}
		r.sessions[userID] = s
	}
	r.mu.Unlock()

	s.mu.Lock()
	if !s.loaded {
		if err := r.load(ctx, s); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	return s, nil
}

func (r *Registry) load(ctx context.Context, s *session) error {
	const op = "session.load"

	rec, err := r.store.GetFairness(ctx, s.userID)
	if errors.Is(err, store.ErrNotFound) {
		rec, err = models.NewFairnessRecord(s.userID, r.seeds.Current().ID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := r.store.SaveFairness(ctx, rec); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	} else if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.clientSeed = rec.ClientSeed
	s.nonce = rec.Nonce
	s.serverSeedID = rec.ServerSeedID
	s.spent = make(map[string]struct{}, len(rec.SpentSeeds))
	for _, seed := range rec.SpentSeeds {
		s.spent[seed] = struct{}{}
	}
	s.loaded = true
	return nil
}

func (r *Registry) persist(ctx context.Context, s *session) {
	rec := &models.FairnessRecord{
		UserID:       s.userID,
		ClientSeed:   s.clientSeed,
		Nonce:        s.nonce,
		ServerSeedID: s.serverSeedID,
		SpentSeeds:   make([]string, 0, len(s.spent)),
	}
	for seed := range s.spent {
		rec.SpentSeeds = append(rec.SpentSeeds, seed)
	}
	sort.Strings(rec.SpentSeeds)
	if err := r.store.SaveFairness(ctx, rec); err != nil {
		r.log.Error("failed to persist fairness state",
			sl.Int64("user_id", s.userID),
			sl.Err(err),
		)
	}
}

func (r *Registry) snapshot(s *session) Snapshot {
	commit := r.seeds.Commitment()
	return Snapshot{
		UserID:         s.userID,
		ClientSeed:     s.clientSeed,
		Nonce:          s.nonce,
		ServerSeedID:   commit.ID,
		ServerSeedHash: commit.Hash,
		ActiveGame:     s.activeGame,
		Lobby:          s.lobby,
	}
}

// Open loads or creates the player's session.
func (r *Registry) Open(ctx context.Context, userID int64) (Snapshot, error) {
	s, err := r.acquire(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	defer s.mu.Unlock()
	return r.snapshot(s), nil
}

// NextStream consumes one nonce and binds a draw stream to the current
// server seed. The nonce is never handed out twice and a cancelled ctx
// consumes none. The caller must call Release on the stream once the game it
// drives is settled.
func (r *Registry) NextStream(ctx context.Context, userID int64) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return Stream{}, err
	}

	s, err := r.acquire(ctx, userID)
	if err != nil {
		return Stream{}, err
	}
	defer s.mu.Unlock()

	seed, release := r.seeds.Hold()
	if seed.ID != s.serverSeedID {
		s.spent = make(map[string]struct{})
		s.serverSeedID = seed.ID
	}
	s.spent[s.clientSeed] = struct{}{}
	nonce := s.nonce
	s.nonce++
	r.persist(ctx, s)

	return Stream{
		Draw:         fairness.MintStream(seed.Value, s.clientSeed, nonce),
		Receipt:      fairness.FairMeta(seed.Hash, s.clientSeed, nonce),
		ServerSeedID: seed.ID,
		Release:      release,
	}, nil
}

// SanitizeClientSeed trims the seed and checks it is 1..64 printable ASCII
// characters.
func SanitizeClientSeed(seed string) (string, error) {
	seed = strings.TrimSpace(seed)
	if len(seed) == 0 || len(seed) > MaxClientSeedLen {
		return "", ErrInvalidClientSeed
	}
	for i := 0; i < len(seed); i++ {
		if seed[i] < 0x20 || seed[i] > 0x7e {
			return "", ErrInvalidClientSeed
		}
	}
	return seed, nil
}

// SetClientSeed switches the player to a new client seed and restarts the
// nonce at 0. A seed that already drew under the current server seed is
// refused so no (server seed, client seed, nonce) triple is used twice.
func (r *Registry) SetClientSeed(ctx context.Context, userID int64, seed string) (Snapshot, error) {
	seed, err := SanitizeClientSeed(seed)
	if err != nil {
		return Snapshot{}, err
	}

	s, err := r.acquire(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	defer s.mu.Unlock()

	if s.serverSeedID == r.seeds.Current().ID {
		if _, ok := s.spent[seed]; ok {
			return Snapshot{}, ErrClientSeedSpent
		}
	}

	s.clientSeed = seed
	s.nonce = 0
	r.persist(ctx, s)
	return r.snapshot(s), nil
}

// Claim binds a new single-player game to the player.
func (r *Registry) Claim(ctx context.Context, userID int64, gameID string) error {
	s, err := r.acquire(ctx, userID)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if s.activeGame != "" {
		return ErrGameInProgress
	}
	s.activeGame = gameID
	return nil
}

// Release unbinds gameID if it is still the player's active game.
func (r *Registry) Release(userID int64, gameID string) {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	r.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeGame == gameID {
		s.activeGame = ""
	}
}

func (r *Registry) JoinLobby(ctx context.Context, userID int64, lobbyID string) error {
	s, err := r.acquire(ctx, userID)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if s.lobby != "" && s.lobby != lobbyID {
		return ErrInLobby
	}
	s.lobby = lobbyID
	return nil
}

func (r *Registry) LeaveLobby(userID int64, lobbyID string) {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	r.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lobby == lobbyID {
		s.lobby = ""
	}
}

func (r *Registry) Snapshot(ctx context.Context, userID int64) (Snapshot, error) {
	return r.Open(ctx, userID)
}

// Close detaches the player's game and lobby and returns what they were so
// the caller can abandon them. Fairness state stays cached.
func (r *Registry) Close(userID int64) (gameID, lobbyID string) {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	r.mu.Unlock()
	if !ok {
		return "", ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	gameID, lobbyID = s.activeGame, s.lobby
	s.activeGame, s.lobby = "", ""
	return gameID, lobbyID
}
