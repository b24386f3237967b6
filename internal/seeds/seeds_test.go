package seeds_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fairplay-casino-backend/internal/fairness"
	"fairplay-casino-backend/internal/lib/logger/sl"
	"fairplay-casino-backend/internal/models"
	"fairplay-casino-backend/internal/seeds"
)

type memArchive struct {
	mu      sync.Mutex
	records []models.ServerSeedRecord
}

func (a *memArchive) SaveServerSeed(_ context.Context, rec models.ServerSeedRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return nil
}

func TestRotateAndReveal(t *testing.T) {
	archive := &memArchive{}
	m, err := seeds.NewManager(sl.Discard(), archive, time.Hour)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	first := m.Current()
	if first.Hash != fairness.HashSeed(first.Value) {
		t.Fatal("Commitment must be the hash of the seed")
	}
	if c := m.Commitment(); c.ID != first.ID || c.Hash != first.Hash {
		t.Errorf("Commitment does not match current seed: %+v", c)
	}

	if _, err := m.RevealPrevious(first.ID); !errors.Is(err, seeds.ErrNotRevealed) {
		t.Errorf("Current seed must not be revealed, got %v", err)
	}

	var published seeds.Rotation
	m.OnRotate(func(r seeds.Rotation) { published = r })

	rot, err := m.Rotate(context.Background())
	if err != nil {
		t.Fatalf("Failed to rotate: %v", err)
	}
	if rot.OldValue != first.Value || rot.OldHash != first.Hash {
		t.Errorf("Rotation should reveal the old seed, got %+v", rot)
	}
	if published.NewID != rot.NewID {
		t.Error("OnRotate hook should receive the rotation")
	}
	if m.Current().ID == first.ID {
		t.Fatal("Current seed should change")
	}

	revealed, err := m.RevealPrevious(first.ID)
	if err != nil {
		t.Fatalf("Failed to reveal: %v", err)
	}
	if revealed.Value != first.Value || revealed.RevealedAt == nil {
		t.Errorf("Unexpected revealed seed %+v", revealed)
	}
	if _, err := m.RevealPrevious("nope"); !errors.Is(err, seeds.ErrUnknownSeed) {
		t.Errorf("Expected unknown seed, got %v", err)
	}
	if len(m.History()) != 1 {
		t.Errorf("Expected one seed in history, got %d", len(m.History()))
	}

	archive.mu.Lock()
	defer archive.mu.Unlock()
	if len(archive.records) != 3 {
		t.Fatalf("Expected 3 archived records, got %d", len(archive.records))
	}
	if archive.records[0].Value != "" {
		t.Error("A seed in use must be archived without its value")
	}
	if archive.records[1].Value != first.Value {
		t.Error("A retired seed must be archived with its value")
	}
}

func TestHeldSeedRevealedAfterRelease(t *testing.T) {
	archive := &memArchive{}
	m, err := seeds.NewManager(sl.Discard(), archive, time.Hour)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	seed, release := m.Hold()
	_, releaseOther := m.Hold()

	var revealed []seeds.ServerSeed
	m.OnReveal(func(s seeds.ServerSeed) { revealed = append(revealed, s) })

	rot, err := m.Rotate(context.Background())
	if err != nil {
		t.Fatalf("Failed to rotate: %v", err)
	}
	if rot.OldID != seed.ID || rot.OldValue != "" {
		t.Errorf("A held seed must not be published on rotation, got %+v", rot)
	}
	if _, err := m.RevealPrevious(seed.ID); !errors.Is(err, seeds.ErrNotRevealed) {
		t.Errorf("A held seed must stay hidden, got %v", err)
	}
	if len(m.History()) != 0 {
		t.Error("A held seed must not appear in history")
	}

	release()
	release()
	if _, err := m.RevealPrevious(seed.ID); !errors.Is(err, seeds.ErrNotRevealed) {
		t.Errorf("Seed must stay hidden while another game holds it, got %v", err)
	}

	releaseOther()
	got, err := m.RevealPrevious(seed.ID)
	if err != nil {
		t.Fatalf("Failed to reveal after release: %v", err)
	}
	if got.Value != seed.Value || got.RevealedAt == nil {
		t.Errorf("Unexpected revealed seed %+v", got)
	}
	if len(revealed) != 1 || revealed[0].Value != seed.Value {
		t.Errorf("OnReveal hook should fire once with the value, got %+v", revealed)
	}

	archive.mu.Lock()
	defer archive.mu.Unlock()
	last := archive.records[len(archive.records)-1]
	if last.ID != seed.ID || last.Value != seed.Value {
		t.Errorf("Revealed seed must be archived with its value, got %+v", last)
	}
	for _, rec := range archive.records[:len(archive.records)-1] {
		if rec.ID == seed.ID && rec.Value != "" {
			t.Error("Held seed was archived with its value before release")
		}
	}
}

func TestHoldAfterRotationDoesNotHideRevealedSeed(t *testing.T) {
	m, err := seeds.NewManager(sl.Discard(), nil, time.Hour)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	first := m.Current()
	if _, err := m.Rotate(context.Background()); err != nil {
		t.Fatalf("Failed to rotate: %v", err)
	}

	seed, release := m.Hold()
	defer release()
	if seed.ID == first.ID {
		t.Fatal("Hold must return the current seed")
	}
	if _, err := m.RevealPrevious(first.ID); err != nil {
		t.Errorf("Failed to reveal unheld seed: %v", err)
	}
}

func TestRunRotatesOnSchedule(t *testing.T) {
	m, err := seeds.NewManager(sl.Discard(), nil, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	rotated := make(chan seeds.Rotation, 4)
	m.OnRotate(func(r seeds.Rotation) {
		select {
		case rotated <- r:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	select {
	case <-rotated:
	case <-time.After(2 * time.Second):
		t.Fatal("Seed was not rotated on schedule")
	}
}
