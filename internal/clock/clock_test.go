package clock

import (
	"context"
	"testing"
	"time"
)

func TestFakeClockRecordsSleeps(t *testing.T) {
	start := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	clk := NewFakeClock(start)

	if err := clk.Sleep(context.Background(), 500*time.Millisecond); err != nil {
		t.Fatalf("sleep: %v", err)
	}
	if err := clk.Sleep(context.Background(), time.Second); err != nil {
		t.Fatalf("sleep: %v", err)
	}

	sleeps := clk.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 500*time.Millisecond || sleeps[1] != time.Second {
		t.Fatalf("sleeps = %v", sleeps)
	}
	if got := clk.Now(); !got.Equal(start.Add(1500 * time.Millisecond)) {
		t.Fatalf("now = %v", got)
	}
}

func TestFakeClockSleepHonorsCancelledContext(t *testing.T) {
	clk := NewFakeClock(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := clk.Sleep(ctx, time.Second); err == nil {
		t.Fatal("expected context error")
	}
	if len(clk.Sleeps()) != 0 {
		t.Fatal("cancelled sleep must not be recorded")
	}
}

func TestSystemClockSleepReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := (SystemClock{}).Sleep(ctx, time.Minute); err == nil {
		t.Fatal("expected context error")
	}
}
