package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_NewTicker(t *testing.T) {
	clock := RealClock{}
	ticker := clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Error("ticker did not fire")
	}
}

func TestMockClock_AdvanceMovesNow(t *testing.T) {
	start := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	clock.Advance(30 * time.Second)

	if got := clock.Since(start); got != 30*time.Second {
		t.Errorf("Since() = %v, want 30s", got)
	}
}

func TestMockClock_TickerFiresOnAdvance(t *testing.T) {
	clock := NewMockClock(time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC))
	ticker := clock.NewTicker(time.Second)

	clock.Advance(500 * time.Millisecond)
	select {
	case <-ticker.C():
		t.Fatal("ticker fired before its interval")
	default:
	}

	clock.Advance(500 * time.Millisecond)
	select {
	case <-ticker.C():
	default:
		t.Fatal("ticker did not fire after its interval")
	}
}

func TestMockClock_StoppedTickerIsSilent(t *testing.T) {
	clock := NewMockClock(time.Time{})
	ticker := clock.NewTicker(time.Second)
	if clock.Tickers() != 1 {
		t.Fatalf("Tickers() = %d, want 1", clock.Tickers())
	}

	ticker.Stop()
	clock.Advance(5 * time.Second)

	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}
	if clock.Tickers() != 0 {
		t.Errorf("Tickers() = %d, want 0", clock.Tickers())
	}
}

func TestMockTicker_Trigger(t *testing.T) {
	clock := NewMockClock(time.Time{})
	ticker := clock.NewTicker(time.Hour).(*MockTicker)

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ticker.Trigger(at)

	if got := <-ticker.C(); !got.Equal(at) {
		t.Errorf("tick = %v, want %v", got, at)
	}
}

func TestMockClock_MissedPeriodsCollapse(t *testing.T) {
	start := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	ticker := clock.NewTicker(time.Second)

	clock.Advance(3500 * time.Millisecond)
	if got := <-ticker.C(); !got.Equal(start.Add(3 * time.Second)) {
		t.Errorf("tick = %v, want last missed deadline %v", got, start.Add(3*time.Second))
	}
	select {
	case <-ticker.C():
		t.Fatal("missed periods delivered more than one tick")
	default:
	}

	// The grid is kept: the next deadline is 4s, not 4.5s.
	clock.Advance(500 * time.Millisecond)
	select {
	case got := <-ticker.C():
		if !got.Equal(start.Add(4 * time.Second)) {
			t.Errorf("tick = %v, want %v", got, start.Add(4*time.Second))
		}
	default:
		t.Fatal("ticker did not fire on its grid")
	}
}

func TestMockClock_SetDoesNotFire(t *testing.T) {
	clock := NewMockClock(time.Time{})
	ticker := clock.NewTicker(time.Second)

	clock.Set(time.Time{}.Add(time.Hour))
	select {
	case <-ticker.C():
		t.Fatal("Set fired a ticker")
	default:
	}
	if ticker.(*MockTicker).Stopped() {
		t.Error("Stopped() = true for a live ticker")
	}
}
