// Package seeds owns the server seed lifecycle: a seed is created, its hash
// is published, it serves bets until rotation, and then its value is
// revealed so past bets can be checked.
package seeds

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"fairplay-casino-backend/internal/fairness"
	"fairplay-casino-backend/internal/lib/logger/sl"
	"fairplay-casino-backend/internal/models"
)

const DefaultRotateEvery = 24 * time.Hour

// historyLimit caps the revealed seeds kept in memory. Older ones are only
// available from the archive.
const historyLimit = 512

var (
	ErrUnknownSeed = errors.New("unknown server seed")
	ErrNotRevealed = errors.New("server seed is still in use")
)

type ServerSeed struct {
	ID         string     `json:"id"`
	Value      string     `json:"value,omitempty"`
	Hash       string     `json:"hash"`
	CreatedAt  time.Time  `json:"created_at"`
	RotateAt   time.Time  `json:"rotate_at"`
	RevealedAt *time.Time `json:"revealed_at,omitempty"`
}

// Commitment is the public view of the seed currently in use.
type Commitment struct {
	ID       string    `json:"id"`
	Hash     string    `json:"hash"`
	RotateAt time.Time `json:"rotate_at"`
}

// Rotation is published when a seed is retired. OldValue is empty while a
// live game still draws from the old seed; it is published later through the
// OnReveal hooks.
type Rotation struct {
	OldID    string    `json:"old_server_seed_id"`
	OldValue string    `json:"old_server_seed,omitempty"`
	OldHash  string    `json:"old_server_seed_hash"`
	NewID    string    `json:"new_server_seed_id"`
	NewHash  string    `json:"new_server_seed_hash"`
	RotateAt time.Time `json:"rotate_at"`
}

type Lifecycle interface {
	Current() ServerSeed
	Commitment() Commitment
	Rotate(ctx context.Context) (Rotation, error)
	Hold() (ServerSeed, func())
	RevealPrevious(id string) (ServerSeed, error)
	History() []ServerSeed
}

// Archive persists seeds as they are created and revealed.
type Archive interface {
	SaveServerSeed(ctx context.Context, rec models.ServerSeedRecord) error
}

type Manager struct {
	log     *slog.Logger
	archive Archive
	every   time.Duration
	now     func() time.Time

	mu       sync.RWMutex
	current  ServerSeed
	history  []ServerSeed
	holds    map[string]int
	withheld map[string]ServerSeed
	onRotate []func(Rotation)
	onReveal []func(ServerSeed)
}

var _ Lifecycle = (*Manager)(nil)

func NewManager(log *slog.Logger, archive Archive, every time.Duration) (*Manager, error) {
	if every <= 0 {
		every = DefaultRotateEvery
	}

	m := &Manager{
		log:      log,
		archive:  archive,
		every:    every,
		now:      time.Now,
		holds:    make(map[string]int),
		withheld: make(map[string]ServerSeed),
	}

	seed, err := m.newSeed()
	if err != nil {
		return nil, err
	}
	m.current = seed
	m.persist(context.Background(), seed)

	return m, nil
}

func (m *Manager) newSeed() (ServerSeed, error) {
	value, err := fairness.GenerateSeed()
	if err != nil {
		return ServerSeed{}, fmt.Errorf("seeds.newSeed: %w", err)
	}
	now := m.now()
	return ServerSeed{
		ID:        uuid.NewString(),
		Value:     value,
		Hash:      fairness.HashSeed(value),
		CreatedAt: now,
		RotateAt:  now.Add(m.every),
	}, nil
}

// OnRotate registers a hook called after every rotation, outside the lock.
func (m *Manager) OnRotate(fn func(Rotation)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRotate = append(m.onRotate, fn)
}

// OnReveal registers a hook called when a retired seed is revealed after the
// last game holding it has finished.
func (m *Manager) OnReveal(fn func(ServerSeed)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReveal = append(m.onReveal, fn)
}

// Hold returns the current seed and keeps its value secret until release is
// called, even if the seed is rotated out in the meantime. Release may be
// called more than once.
func (m *Manager) Hold() (ServerSeed, func()) {
	m.mu.Lock()
	seed := m.current
	m.holds[seed.ID]++
	m.mu.Unlock()

	var once sync.Once
	return seed, func() {
		once.Do(func() { m.release(seed.ID) })
	}
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	m.holds[id]--
	if m.holds[id] > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.holds, id)

	seed, ok := m.withheld[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.withheld, id)
	seed = m.reveal(seed)
	hooks := append([]func(ServerSeed){}, m.onReveal...)
	m.mu.Unlock()

	m.persist(context.Background(), seed)
	m.log.Info("server seed revealed", sl.String("seed_id", id))

	for _, fn := range hooks {
		fn(seed)
	}
}

// reveal stamps the seed and moves it into history. The caller holds the
// lock.
func (m *Manager) reveal(seed ServerSeed) ServerSeed {
	revealedAt := m.now()
	seed.RevealedAt = &revealedAt
	m.history = append(m.history, seed)
	if len(m.history) > historyLimit {
		m.history = m.history[len(m.history)-historyLimit:]
	}
	return seed
}

// Current returns the seed in use including its secret value. It must never
// be sent to players.
func (m *Manager) Current() ServerSeed {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *Manager) Commitment() Commitment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Commitment{ID: m.current.ID, Hash: m.current.Hash, RotateAt: m.current.RotateAt}
}

func (m *Manager) Rotate(ctx context.Context) (Rotation, error) {
	const op = "seeds.Rotate"

	next, err := m.newSeed()
	if err != nil {
		return Rotation{}, fmt.Errorf("%s: %w", op, err)
	}

	m.mu.Lock()
	old := m.current
	held := m.holds[old.ID] > 0
	if held {
		m.withheld[old.ID] = old
	} else {
		old = m.reveal(old)
	}
	m.current = next
	hooks := append([]func(Rotation){}, m.onRotate...)
	m.mu.Unlock()

	if !held {
		m.persist(ctx, old)
	}
	m.persist(ctx, next)

	rot := Rotation{
		OldID:    old.ID,
		OldHash:  old.Hash,
		NewID:    next.ID,
		NewHash:  next.Hash,
		RotateAt: next.RotateAt,
	}
	if !held {
		rot.OldValue = old.Value
	}

	m.log.Info("server seed rotated",
		sl.String("old_id", old.ID),
		sl.String("new_id", next.ID),
		sl.String("new_hash", next.Hash),
		sl.Any("reveal_pending", held),
	)

	for _, fn := range hooks {
		fn(rot)
	}
	return rot, nil
}

// RevealPrevious returns a retired seed with its value. The current seed and
// retired seeds still held by a live game are never revealed.
func (m *Manager) RevealPrevious(id string) (ServerSeed, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.withheld[id]; ok || id == m.current.ID {
		return ServerSeed{}, ErrNotRevealed
	}
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].ID == id {
			return m.history[i], nil
		}
	}
	return ServerSeed{}, ErrUnknownSeed
}

func (m *Manager) History() []ServerSeed {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ServerSeed(nil), m.history...)
}

// Run rotates the seed on schedule until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	const op = "seeds.Run"
	log := m.log.With(sl.String("op", op))

	for {
		wait := time.Until(m.Commitment().RotateAt)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := m.Rotate(ctx); err != nil {
				log.Error("scheduled rotation failed", sl.Err(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
			}
		}
	}
}

func (m *Manager) persist(ctx context.Context, seed ServerSeed) {
	if m.archive == nil {
		return
	}

	rec := models.ServerSeedRecord{
		ID:         seed.ID,
		Hash:       seed.Hash,
		CreatedAt:  seed.CreatedAt,
		RevealedAt: seed.RevealedAt,
	}
	if seed.RevealedAt != nil {
		rec.Value = seed.Value
	}

	if err := m.archive.SaveServerSeed(ctx, rec); err != nil {
		m.log.Error("failed to archive server seed", sl.String("seed_id", seed.ID), sl.Err(err))
	}
}
