package client

import (
	"context"
	"time"
)

// GroupTotal accumulates counts and amounts for one grouping key.
type GroupTotal struct {
	Count       int64   `json:"count"`
	Amount      float64 `json:"amount"`
	Outstanding float64 `json:"outstanding"`
}

// AgingBucket is one band of the overdue aging breakdown.
type AgingBucket struct {
	Label       string  `json:"label"`
	MinDays     int     `json:"min_days"`
	MaxDays     int     `json:"max_days,omitempty"`
	Count       int64   `json:"count"`
	Outstanding float64 `json:"outstanding"`
}

// Summary is the aggregate dashboard view over a filtered record set.
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

// ReportsClient covers the /api/v1/reports endpoints.
type ReportsClient struct {
	client *Client
}

// Summary aggregates the records matching the options.
func (rc *ReportsClient) Summary(ctx context.Context, opts ListRecordsOptions) (*Summary, error) {
	var summary Summary
	if err := rc.client.get(ctx, "/api/v1/reports/summary"+opts.query(), &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}
