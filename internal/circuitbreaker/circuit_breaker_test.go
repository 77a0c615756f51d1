package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")
var errIgnored = errors.New("ignored")

func newTestBreaker(clock *time.Time) *CircuitBreaker {
	cb := NewCircuitBreaker(&Config{
		Name:                   "test",
		MaxConsecutiveFailures: 3,
		Cooldown:               time.Minute,
		IsFailure:              func(err error) bool { return !errors.Is(err, errIgnored) },
	})
	cb.now = func() time.Time { return *clock }
	return cb
}

func fail() error    { return errBoom }
func succeed() error { return nil }

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := newTestBreaker(&clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Execute(ctx, fail); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: err = %v", i, err)
		}
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %s, want open", cb.GetState())
	}

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Errorf("open circuit must reject without calling: err=%v called=%v", err, called)
	}
}

func TestIgnoredErrorsDoNotTrip(t *testing.T) {
	clock := time.Now()
	cb := newTestBreaker(&clock)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_ = cb.Execute(ctx, func() error { return errIgnored })
	}
	if cb.GetState() != StateClosed {
		t.Errorf("state = %s, want closed", cb.GetState())
	}
}

func TestSuccessResetsConsecutiveCount(t *testing.T) {
	clock := time.Now()
	cb := newTestBreaker(&clock)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, succeed)
	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)

	if cb.GetState() != StateClosed {
		t.Errorf("state = %s, want closed", cb.GetState())
	}
}

func TestHalfOpenProbe(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := newTestBreaker(&clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, fail)
	}

	clock = clock.Add(2 * time.Minute)
	if err := cb.Execute(ctx, fail); !errors.Is(err, errBoom) {
		t.Fatalf("probe should run: %v", err)
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("failed probe should reopen, got %s", cb.GetState())
	}

	clock = clock.Add(2 * time.Minute)
	if err := cb.Execute(ctx, succeed); err != nil {
		t.Fatalf("probe should succeed: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("successful probe should close, got %s", cb.GetState())
	}
}

func TestManagerReturnsSameBreakerPerProfile(t *testing.T) {
	m := NewManager(*DefaultConfig(""))
	a := m.For("profile-a")
	if m.For("profile-a") != a {
		t.Error("expected the same breaker for the same profile")
	}
	if m.For("profile-b") == a {
		t.Error("expected distinct breakers per profile")
	}
	stats := m.AllStats()
	if len(stats) != 2 || stats["profile-a"].Name != "profile-a" {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
