package timeutil

import (
	"testing"
	"time"
)

func TestRealClockNow(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClockSince(t *testing.T) {
	clock := RealClock{}
	past := time.Now().Add(-time.Second)

	if d := clock.Since(past); d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestRealClockTicker(t *testing.T) {
	clock := RealClock{}
	ticker := clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Error("ticker did not fire")
	}
}

func TestMockClockAdvance(t *testing.T) {
	start := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	if !clock.Now().Equal(start) {
		t.Errorf("got %v, want %v", clock.Now(), start)
	}

	clock.Advance(time.Hour)
	if want := start.Add(time.Hour); !clock.Now().Equal(want) {
		t.Errorf("got %v, want %v", clock.Now(), want)
	}
}

func TestMockClockSince(t *testing.T) {
	now := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	clock := NewMockClock(now)

	if d := clock.Since(now.Add(-5 * time.Minute)); d != 5*time.Minute {
		t.Errorf("got %v, want 5m", d)
	}
}

func TestMockTickerFiresOnAdvance(t *testing.T) {
	clock := NewMockClock(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC))
	ticker := clock.NewTicker(time.Minute)

	select {
	case <-ticker.C():
		t.Error("ticker fired before its interval")
	default:
	}

	clock.Advance(time.Minute)
	select {
	case <-ticker.C():
	default:
		t.Error("ticker did not fire after one interval")
	}

	// Next deadline is one interval after the last fire.
	clock.Advance(30 * time.Second)
	select {
	case <-ticker.C():
		t.Error("ticker fired mid-interval")
	default:
	}
	clock.Advance(30 * time.Second)
	select {
	case <-ticker.C():
	default:
		t.Error("ticker did not fire after the second interval")
	}
}

func TestMockTickerCoalescesUnconsumedTicks(t *testing.T) {
	clock := NewMockClock(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC))
	ticker := clock.NewTicker(time.Minute)

	for i := 0; i < 3; i++ {
		clock.Advance(time.Minute)
	}

	// Nothing consumed the channel, so only one tick is pending.
	count := 0
	for {
		select {
		case <-ticker.C():
			count++
			continue
		default:
		}
		break
	}
	if count != 1 {
		t.Errorf("got %d pending ticks, want 1", count)
	}
}

func TestMockTickerStop(t *testing.T) {
	clock := NewMockClock(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC))
	ticker := clock.NewTicker(time.Second)
	ticker.Stop()
	clock.Advance(5 * time.Second)

	select {
	case <-ticker.C():
		t.Error("stopped ticker should not tick")
	default:
	}
}
