// Package table keeps in-flight multi-step games in memory, keyed by game id.
//
// Every mutation of one game runs under that game's own lock, so a crash tick
// and a cash-out on the same round never interleave while actions on other
// games proceed in parallel. Entries live only in process memory.
package table

import (
	"errors"
	"sync"
	"time"

	"fairplay-casino-backend/internal/games"
)

var (
	ErrNotFound  = errors.New("game not found")
	ErrNotOwner  = errors.New("game belongs to another player")
	ErrDuplicate = errors.New("game id already in use")
)

// Entry is one live game. State is only touched inside With or WithOwned.
type Entry struct {
	ID        string
	Kind      games.Kind
	Owner     int64
	CreatedAt time.Time
	State     any

	mu      sync.Mutex
	removed bool
	stop    func()
}

// SetStop registers a canceller run when the entry leaves the table.
func (e *Entry) SetStop(stop func()) {
	e.stop = stop
}

type Table struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

func New() *Table {
	return &Table{entries: make(map[string]*Entry)}
}

func (t *Table) Put(e *Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[e.ID]; ok {
		return ErrDuplicate
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	t.entries[e.ID] = e
	return nil
}

func (t *Table) Get(id string) (*Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entries[id]
	return e, ok
}

// With runs fn with the entry locked. fn may call Remove on the entry it was
// handed. An entry removed while the caller waited for the lock reports
// ErrNotFound.
func (t *Table) With(id string, fn func(*Entry) error) error {
	e, ok := t.Get(id)
	if !ok {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed {
		return ErrNotFound
	}
	return fn(e)
}

// WithOwned is With plus an ownership check. Lobby entries accept any owner;
// callers check roster membership themselves.
func (t *Table) WithOwned(id string, owner int64, fn func(*Entry) error) error {
	return t.With(id, func(e *Entry) error {
		if e.Kind != games.KindMurderMystery && e.Owner != owner {
			return ErrNotOwner
		}
		return fn(e)
	})
}

// Remove drops the entry and runs its stop function. Callers must hold the
// entry lock, i.e. call it from inside With.
func (t *Table) Remove(e *Entry) {
	if e.removed {
		return
	}
	e.removed = true

	t.mu.Lock()
	if cur, ok := t.entries[e.ID]; ok && cur == e {
		delete(t.entries, e.ID)
	}
	t.mu.Unlock()

	if e.stop != nil {
		e.stop()
	}
}

// Delete removes an entry by id, taking the entry lock itself.
func (t *Table) Delete(id string) bool {
	err := t.With(id, func(e *Entry) error {
		t.Remove(e)
		return nil
	})
	return err == nil
}

// Range visits a snapshot of the entries without holding the table lock, so
// fn may use With on any of them.
func (t *Table) Range(fn func(*Entry) bool) {
	t.mu.RLock()
	snapshot := make([]*Entry, 0, len(t.entries))
	for _, e := range t.entries {
		snapshot = append(snapshot, e)
	}
	t.mu.RUnlock()

	for _, e := range snapshot {
		if !fn(e) {
			return
		}
	}
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// OlderThan lists ids of entries created before cutoff.
func (t *Table) OlderThan(cutoff time.Time) []string {
	var ids []string
	t.Range(func(e *Entry) bool {
		if e.CreatedAt.Before(cutoff) {
			ids = append(ids, e.ID)
		}
		return true
	})
	return ids
}
