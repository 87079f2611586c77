package royalty

import (
	"context"
	"time"

	"github.com/minegov/royalty-engine/pkg/types/common"
)

// Filter narrows record listings. Zero values mean "any".
type Filter struct {
	Entity      string
	Mineral     string
	Status      Status
	ContractID  common.ID
	PeriodFrom  *time.Time
	PeriodTo    *time.Time
	DueBefore   *time.Time
	DueAfter    *time.Time
	CreatedFrom *time.Time
	common.Pagination
	Sort []common.SortField
}

// Repository defines the persistence contract for royalty records. Save is
// an upsert with an optimistic version check: aggregates bump their version
// on every mutation, and a write whose version does not exceed the stored
// row's fails with CodeStaleVersion.
type Repository interface {
	GetByID(ctx context.Context, id common.ID) (*Record, error)
	List(ctx context.Context, filter Filter) ([]*Record, int64, error)

	// FindOverlapping returns records for the same entity and mineral whose
	// reporting period overlaps the given one. Used by duplicate detection.
	FindOverlapping(ctx context.Context, entity, mineral string, period common.Period) ([]*Record, error)

	Save(ctx context.Context, r *Record) error
	Delete(ctx context.Context, id common.ID) error
}
