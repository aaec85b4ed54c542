package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ewhitaker/larder/internal/kv"
	"github.com/ewhitaker/larder/internal/model"
)

// Scheduler fires digest runs at their cadence boundaries and sweeps
// expired records. It shares no in-memory state with request handlers;
// the delivery ledger makes a re-run within the same window a no-op.
type Scheduler struct {
	mu        sync.RWMutex
	digests   []*Digest
	kvs       *kv.Store
	interval  time.Duration
	dailyHour int          // hour of day (UTC) for digest runs
	weeklyDay time.Weekday // day of week for the weekly run
	logger    *slog.Logger
	now       func() time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewScheduler(digests []*Digest, kvs *kv.Store, dailyHour int, weeklyDay time.Weekday, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		digests:   digests,
		kvs:       kvs,
		interval:  60 * time.Second,
		dailyHour: dailyHour,
		weeklyDay: weeklyDay,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	if now.Minute() != 0 {
		return
	}

	// Passive TTL expiry: purchased items and other expired records are
	// swept hourly.
	if n, err := s.kvs.PurgeExpired(ctx); err != nil {
		s.logger.Error("purge expired records", "error", err)
	} else if n > 0 {
		s.logger.Info("purged expired records", "count", n)
	}

	if now.Hour() != s.dailyHour {
		return
	}
	for _, d := range s.digests {
		if _, err := d.Run(ctx, model.FreqDaily); err != nil {
			s.logger.Error("daily digest run", "error", err)
		}
		if now.Weekday() == s.weeklyDay {
			if _, err := d.Run(ctx, model.FreqWeekly); err != nil {
				s.logger.Error("weekly digest run", "error", err)
			}
		}
	}
}
