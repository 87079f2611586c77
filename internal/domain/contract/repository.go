package contract

import (
	"context"
	"time"

	"github.com/minegov/royalty-engine/pkg/types/common"
)

// Filter narrows contract listings.
type Filter struct {
	Entity   string
	Mineral  string
	ActiveAt *time.Time
	common.Pagination
}

// Repository defines the persistence contract for the Contract bounded
// context. Save is an upsert with an optimistic version check: a write whose
// version does not exceed the stored row's fails with CodeStaleVersion.
type Repository interface {
	GetByID(ctx context.Context, id common.ID) (*Contract, error)
	FindActive(ctx context.Context, entity, mineral string, at time.Time) (*Contract, error)
	List(ctx context.Context, filter Filter) ([]*Contract, int64, error)
	Save(ctx context.Context, c *Contract) error
	Delete(ctx context.Context, id common.ID) error
}
