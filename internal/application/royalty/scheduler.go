package royalty

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/minegov/royalty-engine/internal/domain/royalty"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/logging"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/prometheus"
	"github.com/minegov/royalty-engine/pkg/types/common"
)

// SchedulerConfig controls the background scan loop.
type SchedulerConfig struct {
	// ScanInterval is the time between ticks. Zero defaults to an hour.
	ScanInterval time.Duration
	// DueSoonWindow is how far ahead the payment-due scan looks.
	// Zero defaults to seven days.
	DueSoonWindow time.Duration
	// Concurrency bounds parallel notification deliveries per tick.
	// Zero defaults to four.
	Concurrency int
}

// Scheduler runs the periodic overdue scan and the payment-due-soon
// notification pass. Ticks run to completion; a tick that overruns the
// interval simply delays the next one. Due-soon notifications are sent at
// most once per record and payment date.
type Scheduler struct {
	records  *Service
	notifier Notifier
	metrics  *prometheus.AppMetrics
	logger   logging.Logger
	cfg      SchedulerConfig
	now      domain.Clock

	mu       sync.Mutex
	notified map[string]struct{}
}

// NewScheduler wires the background scanner. A nil clock defaults to UTC now.
func NewScheduler(
	records *Service,
	notifier Notifier,
	metrics *prometheus.AppMetrics,
	logger logging.Logger,
	cfg SchedulerConfig,
	now domain.Clock,
) *Scheduler {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = time.Hour
	}
	if cfg.DueSoonWindow <= 0 {
		cfg.DueSoonWindow = 7 * 24 * time.Hour
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Scheduler{
		records:  records,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger.Named("app.scheduler"),
		cfg:      cfg,
		now:      now,
		notified: make(map[string]struct{}),
	}
}

// Run blocks until ctx is cancelled, executing one tick per interval. The
// first tick fires immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs one full scan pass: flip overdue records, then notify on
// upcoming payment dates. Failures are logged; a failed pass is retried from
// scratch on the next tick.
func (s *Scheduler) Tick(ctx context.Context) {
	flipped, err := s.records.RefreshOverdue(ctx)
	if err != nil {
		s.logger.Error("overdue scan failed", logging.Err(err))
	} else if flipped > 0 {
		s.logger.Info("overdue scan flipped records", logging.Int("count", flipped))
	}

	if err := s.notifyDueSoon(ctx); err != nil {
		s.logger.Error("due-soon notification pass failed", logging.Err(err))
	}

	s.pruneNotified(s.now())
}

// pruneNotified drops dedup marks whose payment date has passed; those
// records can never match the due-soon window again, so the marks are dead
// weight on a long-lived worker.
func (s *Scheduler) pruneNotified(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.notified {
		i := strings.LastIndexByte(key, '|')
		if i < 0 {
			delete(s.notified, key)
			continue
		}
		due, err := time.Parse(time.RFC3339, key[i+1:])
		if err != nil || due.Before(now) {
			delete(s.notified, key)
		}
	}
}

func (s *Scheduler) notifyDueSoon(ctx context.Context) error {
	if s.notifier == nil {
		return nil
	}
	now := s.now()
	horizon := now.Add(s.cfg.DueSoonWindow)

	filter := domain.Filter{
		DueAfter:  &now,
		DueBefore: &horizon,
		Pagination: common.Pagination{
			Page:     1,
			PageSize: exportPageSize,
		},
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for {
		page, err := s.records.List(ctx, filter)
		if err != nil {
			g.Wait()
			return err
		}
		for _, r := range page.Records {
			r := r
			g.Go(func() error {
				s.maybeNotify(gctx, r)
				return nil
			})
		}
		if filter.Page >= page.TotalPages || len(page.Records) == 0 {
			return g.Wait()
		}
		filter.Page++
	}
}

func (s *Scheduler) maybeNotify(ctx context.Context, r *domain.Record) {
	if r.Status != domain.StatusPending && r.Status != domain.StatusPartiallyPaid {
		return
	}

	key := string(r.ID) + "|" + r.PaymentDate.Format(time.RFC3339)
	s.mu.Lock()
	if _, seen := s.notified[key]; seen {
		s.mu.Unlock()
		return
	}
	s.notified[key] = struct{}{}
	s.mu.Unlock()

	err := s.notifier.Notify(ctx, Notification{
		Type:     NotifyPaymentDueSoon,
		RecordID: r.ID,
		Entity:   r.Entity,
		Mineral:  r.Mineral,
		Amount:   r.RemainingAmount(),
		DueDate:  r.PaymentDate,
		Message:  fmt.Sprintf("payment of %.2f %s due by %s", r.RemainingAmount(), r.Currency, r.PaymentDate.Format(importDateLayout)),
	})
	if err != nil {
		// Drop the dedup mark so the next tick retries delivery.
		s.mu.Lock()
		delete(s.notified, key)
		s.mu.Unlock()
		s.logger.Warn("due-soon notification failed", logging.String("record_id", string(r.ID)), logging.Err(err))
		return
	}
	if s.metrics != nil {
		s.metrics.DueSoonNotifications.WithLabelValues().Inc()
	}
}
