package retention

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeLedger struct {
	before  time.Time
	calls   int
	deleted int64
	err     error
}

func (f *fakeLedger) Prune(_ context.Context, before time.Time) (int64, error) {
	f.calls++
	f.before = before
	return f.deleted, f.err
}

func TestPruner_Prune(t *testing.T) {
	now := time.Date(2026, 8, 31, 3, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		days        int
		ledger      *fakeLedger
		wantDeleted int64
		wantCalls   int
		wantErr     bool
	}{
		{"prunes with cutoff", 30, &fakeLedger{deleted: 7}, 7, 1, false},
		{"zero days keeps forever", 0, &fakeLedger{deleted: 7}, 0, 0, false},
		{"ledger error", 30, &fakeLedger{err: errors.New("disk full")}, 0, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPruner(tt.ledger, tt.days)
			p.now = func() time.Time { return now }

			deleted, err := p.Prune(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Prune() error = %v, wantErr %v", err, tt.wantErr)
			}
			if deleted != tt.wantDeleted {
				t.Errorf("Prune() = %d, want %d", deleted, tt.wantDeleted)
			}
			if tt.ledger.calls != tt.wantCalls {
				t.Errorf("ledger calls = %d, want %d", tt.ledger.calls, tt.wantCalls)
			}
			if tt.wantCalls > 0 && !tt.ledger.before.Equal(now.AddDate(0, 0, -tt.days)) {
				t.Errorf("cutoff = %v", tt.ledger.before)
			}
		})
	}
}

func TestScheduler_AddJob(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		wantErr bool
	}{
		{"daily", "0 3 * * *", false},
		{"descriptor", "@every 1m", false},
		{"midnight", "0 0 * * *", false},
		{"empty is skipped", "", false},
		{"invalid", "invalid cron", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler()
			err := s.AddJob("job", tt.spec, func(context.Context) {})
			if (err != nil) != tt.wantErr {
				t.Errorf("AddJob() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScheduler_DuplicateJob(t *testing.T) {
	s := NewScheduler()
	if err := s.AddJob("flush", "@every 1h", func(context.Context) {}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddJob("flush", "@every 1h", func(context.Context) {}); err == nil {
		t.Error("expected an error for a duplicate job name")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler()
	if err := s.AddJob("midnight", "0 0 * * *", func(context.Context) {}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	if !s.IsRunning() {
		t.Fatal("scheduler should be running")
	}

	next := s.NextRun("midnight")
	if next == nil {
		t.Fatal("NextRun() returned nil for a running job")
	}
	if next.Location() != time.UTC || next.Hour() != 0 || next.Minute() != 0 {
		t.Errorf("NextRun() = %v, want the next UTC midnight", next)
	}
	if s.NextRun("missing") != nil {
		t.Error("NextRun() of an unknown job should be nil")
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for s.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.IsRunning() {
		t.Error("scheduler should stop when its context is cancelled")
	}
}

func TestScheduler_RunsJobs(t *testing.T) {
	s := NewScheduler()
	var runs atomic.Int32
	if err := s.AddJob("tick", "@every 1s", func(context.Context) { runs.Add(1) }); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if runs.Load() == 0 {
		t.Error("job did not run")
	}
}
