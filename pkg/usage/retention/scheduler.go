package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs named maintenance jobs on cron schedules evaluated in UTC.
// The gateway registers usage pruning, the midnight authorization cache
// flush and periodic cache sweeps on one scheduler.
type Scheduler struct {
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
	ctx     context.Context
	entries map[string]cron.EntryID
}

// NewScheduler creates a stopped scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		logger:  slog.Default().With("component", "usage.scheduler"),
		ctx:     context.Background(),
		entries: make(map[string]cron.EntryID),
	}
}

// AddJob registers fn under name on a standard five-field cron expression
// or descriptor ("@every 1m", "@midnight"). An empty spec is ignored.
// Jobs receive the context passed to Start.
func (s *Scheduler) AddJob(name, spec string, fn func(ctx context.Context)) error {
	if spec == "" {
		s.logger.Info("job schedule not configured, skipping", "job", name)
		return nil
	}

	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron schedule %q for job %s: %w", spec, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	id, err := s.cron.AddFunc(spec, func() { s.run(name, fn) })
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	s.entries[name] = id

	s.logger.Debug("job scheduled", "job", name, "schedule", spec)
	return nil
}

func (s *Scheduler) run(name string, fn func(ctx context.Context)) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	start := time.Now()
	fn(ctx)
	s.logger.Debug("job finished", "job", name, "duration", time.Since(start))
}

// Start begins running jobs. The scheduler stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.ctx = ctx
	s.cron.Start()
	s.running = true

	s.logger.Info("scheduler started", "jobs", len(s.entries))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop stops the scheduler and waits for running jobs to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next run time of the named job, or nil if the job is
// unknown or the scheduler has not been started.
func (s *Scheduler) NextRun(name string) *time.Time {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	entry := s.cron.Entry(id)
	if !entry.Valid() || entry.Next.IsZero() {
		return nil
	}
	next := entry.Next
	return &next
}
