// Package reporting aggregates royalty records into dashboard summaries:
// totals by entity, mineral, and status, outstanding balances, and an
// overdue aging breakdown.
package reporting

import (
	"context"
	"time"

	"github.com/minegov/royalty-engine/internal/domain/royalty"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/logging"
	"github.com/minegov/royalty-engine/pkg/types/common"
)

// GroupTotal accumulates record counts and amounts for one grouping key.
type GroupTotal struct {
	Count       int64   `json:"count"`
	Amount      float64 `json:"amount"`
	Outstanding float64 `json:"outstanding"`
}

// AgingBucket is one band of the overdue aging breakdown. MaxDays of zero
// means the bucket is open-ended.
type AgingBucket struct {
	Label       string  `json:"label"`
	MinDays     int     `json:"min_days"`
	MaxDays     int     `json:"max_days,omitempty"`
	Count       int64   `json:"count"`
	Outstanding float64 `json:"outstanding"`
}

// Summary is the aggregate view over a filtered record set.
type Summary struct {
	TotalRecords     int64                 `json:"total_records"`
	TotalRoyalties   float64               `json:"total_royalties"`
	TotalOutstanding float64               `json:"total_outstanding"`
	ByEntity         map[string]GroupTotal `json:"by_entity"`
	ByMineral        map[string]GroupTotal `json:"by_mineral"`
	ByStatus         map[string]int64      `json:"by_status"`
	OverdueAging     []AgingBucket         `json:"overdue_aging"`
	GeneratedAt      time.Time             `json:"generated_at"`
}

// Service computes summaries straight from the record repository. Reports
// are point-in-time reads; they take no locks and tolerate records mutating
// underneath them.
type Service struct {
	records royalty.Repository
	logger  logging.Logger
	now     royalty.Clock
}

// NewService wires the reporting service. A nil clock defaults to UTC now.
func NewService(records royalty.Repository, logger logging.Logger, now royalty.Clock) *Service {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Service{
		records: records,
		logger:  logger.Named("app.reporting"),
		now:     now,
	}
}

const summaryPageSize = 500

// Summarize aggregates every record matching the filter. The filter's own
// pagination is ignored; the service pages through the full result set.
func (s *Service) Summarize(ctx context.Context, filter royalty.Filter) (*Summary, error) {
	now := s.now()
	summary := &Summary{
		ByEntity:    make(map[string]GroupTotal),
		ByMineral:   make(map[string]GroupTotal),
		ByStatus:    make(map[string]int64),
		GeneratedAt: now,
	}
	aging := []AgingBucket{
		{Label: "1-30 days", MinDays: 1, MaxDays: 30},
		{Label: "31-90 days", MinDays: 31, MaxDays: 90},
		{Label: "90+ days", MinDays: 91},
	}

	filter.Pagination = common.Pagination{Page: 1, PageSize: summaryPageSize}
	for {
		records, total, err := s.records.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			s.accumulate(summary, aging, r, now)
		}
		if int64(filter.Page*filter.PageSize) >= total || len(records) == 0 {
			break
		}
		filter.Page++
	}

	summary.OverdueAging = aging
	return summary, nil
}

func (s *Service) accumulate(summary *Summary, aging []AgingBucket, r *royalty.Record, now time.Time) {
	outstanding := r.RemainingAmount()
	if r.Status == royalty.StatusPaid {
		outstanding = 0
	}

	summary.TotalRecords++
	summary.TotalRoyalties += r.Breakdown.Total
	summary.TotalOutstanding += outstanding
	summary.ByStatus[string(r.Status)]++

	entity := summary.ByEntity[r.Entity]
	entity.Count++
	entity.Amount += r.Breakdown.Total
	entity.Outstanding += outstanding
	summary.ByEntity[r.Entity] = entity

	mineral := summary.ByMineral[r.Mineral]
	mineral.Count++
	mineral.Amount += r.Breakdown.Total
	mineral.Outstanding += outstanding
	summary.ByMineral[r.Mineral] = mineral

	if !r.IsOverdue(now) {
		return
	}
	days := r.DaysPastDue(now)
	for i := range aging {
		if days < aging[i].MinDays {
			continue
		}
		if aging[i].MaxDays > 0 && days > aging[i].MaxDays {
			continue
		}
		aging[i].Count++
		aging[i].Outstanding += outstanding
		break
	}
}
