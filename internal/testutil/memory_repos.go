// Package testutil provides common test utilities for the royalty engine:
// in-memory repository fakes with real optimistic-concurrency semantics and
// a recording logger.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/minegov/royalty-engine/internal/domain/contract"
	"github.com/minegov/royalty-engine/internal/domain/royalty"
	"github.com/minegov/royalty-engine/pkg/errors"
	"github.com/minegov/royalty-engine/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Royalty record repository
// ─────────────────────────────────────────────────────────────────────────────

// MemoryRoyaltyRepo is an in-memory royalty.Repository with the same
// optimistic version check the postgres repository enforces.
type MemoryRoyaltyRepo struct {
	mu      sync.RWMutex
	records map[common.ID]*royalty.Record

	// FailWith, when set, is returned by every call. Used to exercise
	// store-unavailable paths.
	FailWith error
}

// NewMemoryRoyaltyRepo returns an empty in-memory record store.
func NewMemoryRoyaltyRepo() *MemoryRoyaltyRepo {
	return &MemoryRoyaltyRepo{records: make(map[common.ID]*royalty.Record)}
}

func (m *MemoryRoyaltyRepo) GetByID(_ context.Context, id common.ID) (*royalty.Record, error) {
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return nil, errors.NotFound("royalty record " + string(id))
	}
	return cloneRecord(r), nil
}

func (m *MemoryRoyaltyRepo) List(_ context.Context, filter royalty.Filter) ([]*royalty.Record, int64, error) {
	if m.FailWith != nil {
		return nil, 0, m.FailWith
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*royalty.Record
	for _, r := range m.records {
		if matchesFilter(r, filter) {
			out = append(out, cloneRecord(r))
		}
	}
	return out, int64(len(out)), nil
}

func (m *MemoryRoyaltyRepo) FindOverlapping(_ context.Context, entity, mineral string, period common.Period) ([]*royalty.Record, error) {
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*royalty.Record
	for _, r := range m.records {
		if r.Entity == entity && r.Mineral == mineral && r.ReportingPeriod.Overlaps(period) {
			out = append(out, cloneRecord(r))
		}
	}
	return out, nil
}

func (m *MemoryRoyaltyRepo) Save(_ context.Context, r *royalty.Record) error {
	if m.FailWith != nil {
		return m.FailWith
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if stored, ok := m.records[r.ID]; ok && r.Version <= stored.Version {
		return errors.New(errors.CodeStaleVersion,
			"record was modified by another operation")
	}
	m.records[r.ID] = cloneRecord(r)
	return nil
}

func (m *MemoryRoyaltyRepo) Delete(_ context.Context, id common.ID) error {
	if m.FailWith != nil {
		return m.FailWith
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; !ok {
		return errors.NotFound("royalty record " + string(id))
	}
	delete(m.records, id)
	return nil
}

// Len returns the number of stored records.
func (m *MemoryRoyaltyRepo) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func matchesFilter(r *royalty.Record, f royalty.Filter) bool {
	if f.Entity != "" && r.Entity != f.Entity {
		return false
	}
	if f.Mineral != "" && r.Mineral != f.Mineral {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.ContractID != "" && r.ContractID != f.ContractID {
		return false
	}
	if f.DueBefore != nil && !r.PaymentDate.Before(*f.DueBefore) {
		return false
	}
	if f.DueAfter != nil && !r.PaymentDate.After(*f.DueAfter) {
		return false
	}
	if f.PeriodFrom != nil && r.ReportingPeriod.End.Before(*f.PeriodFrom) {
		return false
	}
	if f.PeriodTo != nil && r.ReportingPeriod.Start.After(*f.PeriodTo) {
		return false
	}
	return true
}

func cloneRecord(r *royalty.Record) *royalty.Record {
	c := *r
	c.Adjustments = append([]royalty.Adjustment(nil), r.Adjustments...)
	c.PartialPayments = append([]royalty.PartialPayment(nil), r.PartialPayments...)
	c.StatusHistory = append([]royalty.StatusEntry(nil), r.StatusHistory...)
	return &c
}

// ─────────────────────────────────────────────────────────────────────────────
// Contract repository
// ─────────────────────────────────────────────────────────────────────────────

// MemoryContractRepo is an in-memory contract.Repository.
type MemoryContractRepo struct {
	mu        sync.RWMutex
	contracts map[common.ID]*contract.Contract

	FailWith error
}

// NewMemoryContractRepo returns an empty in-memory contract store.
func NewMemoryContractRepo() *MemoryContractRepo {
	return &MemoryContractRepo{contracts: make(map[common.ID]*contract.Contract)}
}

func (m *MemoryContractRepo) GetByID(_ context.Context, id common.ID) (*contract.Contract, error) {
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.contracts[id]
	if !ok {
		return nil, errors.New(errors.CodeContractNotFound, "contract "+string(id)+" not found")
	}
	clone := *c
	return &clone, nil
}

func (m *MemoryContractRepo) FindActive(_ context.Context, entity, mineral string, at time.Time) (*contract.Contract, error) {
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.contracts {
		if c.Entity == entity && c.Mineral == mineral && c.ActiveAt(at) {
			clone := *c
			return &clone, nil
		}
	}
	return nil, errors.New(errors.CodeContractNotFound,
		"no active contract for "+entity+"/"+mineral)
}

func (m *MemoryContractRepo) List(_ context.Context, filter contract.Filter) ([]*contract.Contract, int64, error) {
	if m.FailWith != nil {
		return nil, 0, m.FailWith
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*contract.Contract
	for _, c := range m.contracts {
		if filter.Entity != "" && c.Entity != filter.Entity {
			continue
		}
		if filter.Mineral != "" && c.Mineral != filter.Mineral {
			continue
		}
		if filter.ActiveAt != nil && !c.ActiveAt(*filter.ActiveAt) {
			continue
		}
		clone := *c
		out = append(out, &clone)
	}
	return out, int64(len(out)), nil
}

func (m *MemoryContractRepo) Save(_ context.Context, c *contract.Contract) error {
	if m.FailWith != nil {
		return m.FailWith
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if stored, ok := m.contracts[c.ID]; ok && c.Version <= stored.Version {
		return errors.New(errors.CodeStaleVersion,
			"contract was modified by another operation")
	}
	clone := *c
	m.contracts[c.ID] = &clone
	return nil
}

func (m *MemoryContractRepo) Delete(_ context.Context, id common.ID) error {
	if m.FailWith != nil {
		return m.FailWith
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.contracts[id]; !ok {
		return errors.New(errors.CodeContractNotFound, "contract "+string(id)+" not found")
	}
	delete(m.contracts, id)
	return nil
}
