package royalty

import (
	"context"
	"fmt"
	"time"

	domain "github.com/minegov/royalty-engine/internal/domain/royalty"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/logging"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/prometheus"
	"github.com/minegov/royalty-engine/pkg/types/common"
)

const (
	recordCachePrefix = "record:"
	recordCacheTTL    = time.Minute
)

// SubmitInput carries one submission through the application layer.
type SubmitInput struct {
	Candidate       domain.Candidate
	Actor           string
	ConfirmWarnings bool
}

// StatusInput requests a status transition on an existing record.
type StatusInput struct {
	RecordID common.ID
	To       domain.Status
	Actor    string
	Notes    string
}

// PaymentInput records a partial payment against an existing record.
type PaymentInput struct {
	RecordID common.ID
	Amount   float64
	Actor    string
}

// ListResult is a paginated record listing.
type ListResult struct {
	Records    []*domain.Record `json:"records"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
}

// Service wraps the domain lifecycle service with caching, metrics, and
// notifications. Cache and notifier failures are logged and never abort the
// underlying operation; a nil cache, notifier, or metrics handle disables
// that concern.
type Service struct {
	engine   *domain.Service
	cache    CachePort
	notifier Notifier
	metrics  *prometheus.AppMetrics
	logger   logging.Logger
}

// NewService wires the application-level record service.
func NewService(
	engine *domain.Service,
	cache CachePort,
	notifier Notifier,
	metrics *prometheus.AppMetrics,
	logger logging.Logger,
) *Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Service{
		engine:   engine,
		cache:    cache,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger.Named("app.royalty"),
	}
}

// BaseCurrency returns the currency of record from the live ruleset.
func (s *Service) BaseCurrency() string { return s.engine.Rules().BaseCurrency }

// Submit validates, calculates, and persists one candidate. Validation
// issues are reflected in the returned Result and in the validation
// counters whether or not the submission went through.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*domain.Record, domain.Result, error) {
	start := time.Now()
	record, result, err := s.engine.Submit(ctx, in.Candidate, in.Actor, in.ConfirmWarnings)
	s.observeValidation(result)

	if s.metrics != nil {
		label := "default"
		if in.Candidate.ContractID != "" {
			label = "contract"
		}
		s.metrics.CalculationDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return record, result, err
	}

	if s.metrics != nil {
		prometheus.RecordSubmission(s.metrics, record.Mineral, string(record.Status))
		s.metrics.RoyaltyAmountCalculated.WithLabelValues(record.Mineral).Observe(record.Breakdown.Total)
	}
	s.invalidate(ctx, record.ID)
	s.notify(ctx, Notification{
		Type:     NotifyRecordCreated,
		RecordID: record.ID,
		Entity:   record.Entity,
		Mineral:  record.Mineral,
		Amount:   record.Breakdown.Total,
		DueDate:  record.PaymentDate,
		Message:  fmt.Sprintf("royalty record created for %s (%s)", record.Entity, record.Mineral),
	})
	return record, result, nil
}

// ChangeStatus transitions a record and notifies downstream channels.
func (s *Service) ChangeStatus(ctx context.Context, in StatusInput) (*domain.Record, error) {
	record, err := s.engine.ChangeStatus(ctx, in.RecordID, in.To, in.Actor, in.Notes)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil && len(record.StatusHistory) > 0 {
		last := record.StatusHistory[len(record.StatusHistory)-1]
		s.metrics.StatusTransitionsTotal.WithLabelValues(string(last.From), string(last.To)).Inc()
	}
	s.invalidate(ctx, record.ID)
	s.notify(ctx, Notification{
		Type:     NotifyStatusChanged,
		RecordID: record.ID,
		Entity:   record.Entity,
		Mineral:  record.Mineral,
		Amount:   record.Breakdown.Total,
		DueDate:  record.PaymentDate,
		Message:  fmt.Sprintf("record %s moved to %s", record.ID, record.Status),
	})
	return record, nil
}

// AddPartialPayment records an instalment against a record.
func (s *Service) AddPartialPayment(ctx context.Context, in PaymentInput) (*domain.Record, error) {
	record, err := s.engine.AddPartialPayment(ctx, in.RecordID, in.Amount, in.Actor)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.PartialPaymentsTotal.WithLabelValues(record.Mineral).Inc()
	}
	s.invalidate(ctx, record.ID)
	return record, nil
}

// Get returns one record, read through the cache. Overdue derivation happens
// in the domain on cache misses; the short TTL bounds how stale a cached
// status can be.
func (s *Service) Get(ctx context.Context, id common.ID) (*domain.Record, error) {
	if s.cache != nil {
		var cached domain.Record
		if err := s.cache.Get(ctx, recordCacheKey(id), &cached); err == nil && cached.ID != "" {
			if s.metrics != nil {
				prometheus.RecordCacheAccess(s.metrics, "record", true)
			}
			return &cached, nil
		}
		if s.metrics != nil {
			prometheus.RecordCacheAccess(s.metrics, "record", false)
		}
	}

	record, err := s.engine.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, recordCacheKey(id), record, recordCacheTTL); err != nil {
			s.logger.Warn("record cache write failed", logging.String("record_id", string(id)), logging.Err(err))
		}
	}
	return record, nil
}

// List returns a filtered page of records.
func (s *Service) List(ctx context.Context, filter domain.Filter) (*ListResult, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	records, total, err := s.engine.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	pages := int(total) / filter.PageSize
	if int(total)%filter.PageSize != 0 {
		pages++
	}
	return &ListResult{
		Records:    records,
		Total:      total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: pages,
	}, nil
}

// RefreshOverdue scans for records past their payment date and flips them to
// overdue. It returns the number of records flipped.
func (s *Service) RefreshOverdue(ctx context.Context) (int, error) {
	flipped, err := s.engine.RefreshOverdue(ctx)
	if s.metrics != nil {
		result := "success"
		if err != nil {
			result = "failure"
		}
		s.metrics.OverdueScansTotal.WithLabelValues(result).Inc()
		if flipped > 0 {
			s.metrics.OverdueRecordsFound.WithLabelValues().Add(float64(flipped))
		}
	}
	if err != nil {
		return flipped, err
	}
	if flipped > 0 && s.cache != nil {
		if _, cerr := s.cache.DeleteByPrefix(ctx, recordCachePrefix); cerr != nil {
			s.logger.Warn("cache flush after overdue scan failed", logging.Err(cerr))
		}
	}
	return flipped, nil
}

func (s *Service) observeValidation(result domain.Result) {
	if s.metrics == nil {
		return
	}
	for _, issue := range result.Errors {
		s.metrics.ValidationFailures.WithLabelValues(issue.Field).Inc()
	}
	for _, issue := range result.Warnings {
		s.metrics.ValidationWarnings.WithLabelValues(issue.Field).Inc()
	}
}

func (s *Service) invalidate(ctx context.Context, id common.ID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, recordCacheKey(id)); err != nil {
		s.logger.Warn("record cache invalidation failed", logging.String("record_id", string(id)), logging.Err(err))
	}
}

func (s *Service) notify(ctx context.Context, n Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("notification delivery failed",
			logging.String("type", string(n.Type)),
			logging.String("record_id", string(n.RecordID)),
			logging.Err(err),
		)
	}
}

func recordCacheKey(id common.ID) string {
	return recordCachePrefix + string(id)
}
