package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestStartRejectsInvalidSpec(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler("every morning", time.UTC)
	if err := s.Start(context.Background(), func(time.Time) {}); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestNextUsesLocation(t *testing.T) {
	t.Parallel()

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}

	s := NewCronScheduler("0 6 * * *", tokyo)
	if !s.Next().IsZero() {
		t.Fatal("next should be zero before start")
	}
	if err := s.Start(context.Background(), func(time.Time) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	next := s.Next().In(tokyo)
	if next.Hour() != 6 || next.Minute() != 0 {
		t.Fatalf("unexpected next activation %v", next)
	}
}

func TestJobRunsAndContextStops(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	fired := make(chan time.Time, 1)

	s := NewCronScheduler("@every 1s", time.UTC)
	if err := s.Start(ctx, func(at time.Time) {
		select {
		case fired <- at:
		default:
		}
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case at := <-fired:
		if at.Location() != time.UTC {
			t.Fatalf("unexpected trigger location %v", at.Location())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job did not fire")
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for !s.Next().IsZero() {
		if time.Now().After(deadline) {
			t.Fatal("scheduler still running after context cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStopWithoutStart(t *testing.T) {
	t.Parallel()

	if err := NewCronScheduler("0 6 * * *", nil).Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
