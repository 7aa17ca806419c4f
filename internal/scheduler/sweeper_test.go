package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MrSnakeDoc/hop/internal/domain"
	"github.com/MrSnakeDoc/hop/internal/logger"
	"github.com/MrSnakeDoc/hop/internal/registry/memory"
)

func seed(t *testing.T, reg *memory.Registry, now time.Time) {
	t.Helper()
	links := []*domain.Link{
		{ID: 1, Code: "live01", Destination: "https://example.com/a", ExpiresAt: now.Add(time.Hour)},
		{ID: 2, Code: "gone01", Destination: "https://example.com/b", ExpiresAt: now.Add(-time.Hour)},
		{ID: 3, Code: "gone02", Destination: "https://example.com/c", ExpiresAt: now}, // expires exactly now
		{ID: 4, Code: "dead01", Destination: "https://example.com/d", ExpiresAt: now.Add(-48 * time.Hour), Deleted: true},
	}
	for _, l := range links {
		l.CreatedAt = now.Add(-72 * time.Hour)
		l.UpdatedAt = l.CreatedAt
		if err := reg.Create(context.Background(), l); err != nil {
			t.Fatalf("seed %s: %v", l.Code, err)
		}
	}
}

func TestSweeper_Sweep(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	reg := memory.New()
	seed(t, reg, now)

	sw := NewSweeper(reg, logger.NewNop(), SweeperOptions{Now: func() time.Time { return now }})

	n, err := sw.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 swept links, got %d", n)
	}

	for code, wantDeleted := range map[string]bool{"live01": false, "gone01": true, "gone02": true, "dead01": true} {
		l, ok := reg.Get(code)
		if !ok {
			t.Fatalf("link %s vanished, sweeping must soft-delete", code)
		}
		if l.Deleted != wantDeleted {
			t.Errorf("%s: deleted = %v, want %v", code, l.Deleted, wantDeleted)
		}
	}

	// Idempotent
	n, err = sw.Sweep(context.Background())
	if err != nil {
		t.Fatalf("second Sweep failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected 0 on second sweep, got %d", n)
	}
}

type failingRegistry struct{ err error }

func (f failingRegistry) SweepExpired(context.Context, time.Time) (int64, error) { return 0, f.err }

func TestSweeper_SweepError(t *testing.T) {
	boom := errors.New("connection reset")
	sw := NewSweeper(failingRegistry{err: boom}, logger.NewNop(), SweeperOptions{})

	if _, err := sw.Sweep(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Expected wrapped %v, got %v", boom, err)
	}
}

func TestSweeper_WarnsOnLargeBatch(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	reg := memory.New()
	seed(t, reg, now)

	core, logs := observer.New(zapcore.DebugLevel)
	sw := NewSweeper(reg, logger.Wrap(zap.New(core)), SweeperOptions{
		WarnCount: 1,
		Now:       func() time.Time { return now },
	})

	if _, err := sw.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	if len(warnings) != 1 {
		t.Fatalf("Expected 1 warning, got %d", len(warnings))
	}
	if got := warnings[0].ContextMap()["swept"]; got != int64(2) {
		t.Errorf("swept field = %v, want 2", got)
	}
}

func TestSweeper_ManualTrigger(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	reg := memory.New()
	seed(t, reg, now)

	trigger := make(chan struct{}, 1)
	sw := NewSweeper(reg, logger.NewNop(), SweeperOptions{
		Trigger: trigger,
		Now:     func() time.Time { return now },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sw.Start(ctx)
	defer sw.Stop()

	trigger <- struct{}{}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if l, _ := reg.Get("gone01"); l.Deleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("manual trigger did not sweep within 2s")
}

func TestSweeper_RunOnStartAndStop(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	reg := memory.New()
	seed(t, reg, now)

	sw := NewSweeper(reg, logger.NewNop(), SweeperOptions{
		Interval:   time.Hour,
		RunOnStart: true,
		Now:        func() time.Time { return now },
	})
	sw.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if l, _ := reg.Get("gone02"); l.Deleted {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if l, _ := reg.Get("gone02"); !l.Deleted {
		t.Fatal("startup sweep did not run")
	}

	sw.Stop()
	sw.Stop() // second call must not panic
}
