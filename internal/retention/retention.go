package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"agora/internal/chat"
	"agora/internal/metrics"

	"github.com/adhocore/gronx"
)

const retryDelay = 30 * time.Second

// Saver persists a store snapshot.
type Saver interface {
	SaveSnapshot(snap chat.Snapshot) error
}

// Scheduler sweeps the store on a cron schedule and checkpoints it after every sweep.
type Scheduler struct {
	store   *chat.Store
	saver   Saver
	cron    string
	metrics *metrics.Metrics

	// serializes checkpoints from the schedule, the admin API and shutdown
	mu sync.Mutex

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func New(store *chat.Store, saver Saver, cronExpr string, m *metrics.Metrics) (*Scheduler, error) {
	if cronExpr != "" && !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid retention cron expression: %s", cronExpr)
	}
	return &Scheduler{
		store:   store,
		saver:   saver,
		cron:    cronExpr,
		metrics: m,
		now:     time.Now,
		after:   time.After,
	}, nil
}

// Checkpoint copies the store and writes the copy through the saver.
func (s *Scheduler) Checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	snap := s.store.Snapshot()
	err := s.saver.SaveSnapshot(snap)
	elapsed := time.Since(start)

	if s.metrics != nil {
		s.metrics.CheckpointSeconds.Observe(elapsed.Seconds())
		result := "ok"
		if err != nil {
			result = "error"
		}
		s.metrics.Checkpoints.WithLabelValues(result).Inc()
	}
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	slog.Debug("checkpoint written", "messages", len(snap.Messages), "users", len(snap.Users), "took", elapsed)
	return nil
}

// RunNow performs one sweep followed by a checkpoint.
func (s *Scheduler) RunNow(ctx context.Context) (chat.SweepResult, error) {
	res := s.store.Sweep()
	if s.metrics != nil {
		s.metrics.SweptMessages.Add(float64(res.MessagesPurged))
		s.metrics.SweptRateLimits.Add(float64(res.RateLimitsPurged))
	}
	if res.MessagesPurged > 0 || res.RateLimitsPurged > 0 {
		slog.Info("retention sweep", "messages_purged", res.MessagesPurged, "rate_limits_purged", res.RateLimitsPurged)
	}
	return res, s.Checkpoint(ctx)
}

// Run blocks until ctx is done, running RunNow at every tick of the cron expression.
// An empty expression disables the schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cron == "" {
		slog.Info("retention schedule disabled")
		<-ctx.Done()
		return nil
	}

	slog.Info("retention schedule started", "cron", s.cron)
	for {
		next, err := gronx.NextTickAfter(s.cron, s.now().UTC(), false)
		wait := retryDelay
		if err != nil {
			slog.Error("retention next tick failed", "cron", s.cron, "error", err)
		} else {
			wait = max(next.Sub(s.now()), 0)
		}

		select {
		case <-ctx.Done():
			slog.Info("retention schedule stopped")
			return nil
		case <-s.after(wait):
		}
		if err != nil {
			continue
		}

		if _, err := s.RunNow(ctx); err != nil && ctx.Err() == nil {
			slog.Error("retention run failed", "error", err)
		}
	}
}
