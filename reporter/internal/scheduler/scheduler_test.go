package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew_RejectsBadSpec(t *testing.T) {
	for _, spec := range []string{"", "every tuesday", "61 * * * *", "* * * * * *"} {
		if _, err := New(spec, func(context.Context) {}); err == nil {
			t.Errorf("New(%q): expected error, got nil", spec)
		}
	}
}

func TestNew_RejectsNilJob(t *testing.T) {
	if _, err := New("@monthly", nil); err == nil {
		t.Fatal("expected error for nil job")
	}
}

func TestNew_AcceptsDescriptorsAndFiveFields(t *testing.T) {
	for _, spec := range []string{"@monthly", "@daily", "@every 1h", "0 6 1 * *"} {
		if _, err := New(spec, func(context.Context) {}); err != nil {
			t.Errorf("New(%q): %v", spec, err)
		}
	}
}

func TestScheduler_Fires(t *testing.T) {
	fired := make(chan struct{}, 4)
	s, err := New("@every 1s", func(context.Context) { fired <- struct{}{} })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start(context.Background())
	defer s.Stop()

	if s.Next().IsZero() {
		t.Error("Next() is zero after Start")
	}

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not fire")
	}
}

func TestScheduler_SkipsWhileRunning(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	s, err := New("@monthly", func(context.Context) {
		calls.Add(1)
		<-release
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.run()
	}()

	// Wait until the first run holds the guard.
	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first run never started")
		}
		time.Sleep(time.Millisecond)
	}

	s.run()
	s.run()
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("job calls: got %d, want 1", got)
	}
	if got := s.Skipped(); got != 2 {
		t.Errorf("Skipped(): got %d, want 2", got)
	}

	// Once the run is done the next tick goes through.
	s.run()
	if got := calls.Load(); got != 2 {
		t.Errorf("job calls after release: got %d, want 2", got)
	}
}

func TestScheduler_Update(t *testing.T) {
	s, err := New("@monthly", func(context.Context) {})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start(context.Background())
	defer s.Stop()

	before := s.Next()
	if err := s.Update("@every 1h"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if s.Spec() != "@every 1h" {
		t.Errorf("Spec(): got %q", s.Spec())
	}
	if len(s.cron.Entries()) != 1 {
		t.Errorf("entries: got %d, want 1", len(s.cron.Entries()))
	}

	if err := s.Update("not a schedule"); err == nil {
		t.Error("Update with bad spec: expected error")
	}
	if s.Spec() != "@every 1h" {
		t.Errorf("Spec() after failed update: got %q", s.Spec())
	}
	if after := s.Next(); !after.Before(before) && !before.IsZero() {
		t.Errorf("next run %v should move earlier than %v", after, before)
	}
}

func TestScheduler_StopCancelsJobContext(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	s, err := New("@monthly", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start(context.Background())

	go s.run()
	<-started
	s.Stop()

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("job context not cancelled by Stop")
	}
}

func TestScheduler_RunNow(t *testing.T) {
	var got context.Context
	s, err := New("@monthly", func(ctx context.Context) { got = ctx })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	defer s.Stop()

	s.RunNow()
	if got == nil {
		t.Fatal("job did not run")
	}
	cancel()
	select {
	case <-got.Done():
	case <-time.After(time.Second):
		t.Error("job context not derived from Start context")
	}
}
