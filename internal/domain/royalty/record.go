// Package royalty implements the Royalty bounded context: the record
// aggregate, the payment adjustment calculator, the layered validator, and
// the lifecycle service that ties them together. All money amounts are held
// in the configured base currency unless a record says otherwise.
package royalty

import (
	"fmt"
	"time"

	"github.com/minegov/royalty-engine/internal/domain/pricing"
	"github.com/minegov/royalty-engine/pkg/errors"
	"github.com/minegov/royalty-engine/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Value objects
// ─────────────────────────────────────────────────────────────────────────────

// AdjustmentType classifies a manual delta applied to a record's base amount.
type AdjustmentType string

const (
	AdjustmentPercentage AdjustmentType = "percentage"
	AdjustmentFixed      AdjustmentType = "fixed"
	AdjustmentPenalty    AdjustmentType = "penalty"
	AdjustmentBonus      AdjustmentType = "bonus"
)

// Valid reports whether t is a recognised adjustment type.
func (t AdjustmentType) Valid() bool {
	switch t {
	case AdjustmentPercentage, AdjustmentFixed, AdjustmentPenalty, AdjustmentBonus:
		return true
	}
	return false
}

// Adjustment is one manually applied delta. Percentage values are expressed
// in percent of the base amount, the rest in currency units.
type Adjustment struct {
	Type   AdjustmentType `json:"type"`
	Value  float64        `json:"value"`
	Reason string         `json:"reason,omitempty"`
}

// PartialPayment is one settlement instalment. The list on a record is
// append-only.
type PartialPayment struct {
	Amount     float64   `json:"amount"`
	Date       time.Time `json:"date"`
	RecordedBy string    `json:"recorded_by"`
}

// StatusEntry is one append-only status history entry.
type StatusEntry struct {
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Date      time.Time `json:"date"`
	ChangedBy string    `json:"changed_by"`
	Notes     string    `json:"notes,omitempty"`
}

// Breakdown is the derived calculation result persisted with a record. It is
// recomputed whenever the record's inputs change and never hand-edited.
type Breakdown struct {
	Base        float64 `json:"base"`
	Penalties   float64 `json:"penalties"`
	Interest    float64 `json:"interest"`
	Adjustments float64 `json:"adjustments"`
	Total       float64 `json:"total"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Record aggregate root
// ─────────────────────────────────────────────────────────────────────────────

// Record is one production/payment event. Mutations go through the exported
// methods so that the status history and partial payment lists stay
// append-only and the optimistic-lock version advances.
type Record struct {
	common.BaseEntity

	Entity     string    `json:"entity"`
	Mineral    string    `json:"mineral"`
	ContractID common.ID `json:"contract_id,omitempty"`

	ProductionVolume float64       `json:"production_volume"`
	UnitPrice        float64       `json:"unit_price,omitempty"`
	CommodityPrice   float64       `json:"commodity_price,omitempty"`
	MarketValue      float64       `json:"market_value,omitempty"`
	GrossValue       float64       `json:"gross_value,omitempty"`
	ReportingPeriod  common.Period `json:"reporting_period"`
	Currency         string        `json:"currency"`
	PaymentDate      time.Time     `json:"payment_date"`

	Status    Status    `json:"status"`
	Breakdown Breakdown `json:"calculation_breakdown"`

	Adjustments     []Adjustment     `json:"adjustments,omitempty"`
	PartialPayments []PartialPayment `json:"partial_payments,omitempty"`
	StatusHistory   []StatusEntry    `json:"status_history,omitempty"`

	CreatedBy string `json:"created_by"`
	Notes     string `json:"notes,omitempty"`
}

// Candidate is the unvalidated submission shape accepted by the lifecycle
// service. It becomes a Record only after validation and calculation.
type Candidate struct {
	Entity           string        `json:"entity"`
	Mineral          string        `json:"mineral"`
	ContractID       common.ID     `json:"contract_id,omitempty"`
	ProductionVolume float64       `json:"production_volume"`
	UnitPrice        float64       `json:"unit_price,omitempty"`
	CommodityPrice   float64       `json:"commodity_price,omitempty"`
	MarketValue      float64       `json:"market_value,omitempty"`
	GrossValue       float64       `json:"gross_value,omitempty"`
	ReportingPeriod  common.Period `json:"reporting_period"`
	Currency         string        `json:"currency"`
	PaymentDate      time.Time     `json:"payment_date"`
	Status           Status        `json:"status,omitempty"`
	Adjustments      []Adjustment  `json:"adjustments,omitempty"`
	DeclaredAmount   float64       `json:"declared_amount,omitempty"`
	Notes            string        `json:"notes,omitempty"`
}

// NewRecord constructs a Record from a validated candidate. The candidate's
// status defaults to Draft; the breakdown is filled in by the caller after
// calculation.
func NewRecord(c Candidate, createdBy string) *Record {
	status := c.Status
	if status == "" {
		status = StatusDraft
	}
	now := time.Now().UTC()
	return &Record{
		BaseEntity: common.BaseEntity{
			ID:        common.NewID(),
			CreatedAt: now,
			UpdatedAt: now,
			Version:   1,
		},
		Entity:           c.Entity,
		Mineral:          c.Mineral,
		ContractID:       c.ContractID,
		ProductionVolume: c.ProductionVolume,
		UnitPrice:        c.UnitPrice,
		CommodityPrice:   c.CommodityPrice,
		MarketValue:      c.MarketValue,
		GrossValue:       c.GrossValue,
		ReportingPeriod:  c.ReportingPeriod,
		Currency:         c.Currency,
		PaymentDate:      c.PaymentDate,
		Status:           status,
		Adjustments:      append([]Adjustment(nil), c.Adjustments...),
		CreatedBy:        createdBy,
		Notes:            c.Notes,
	}
}

// PricingInput maps the record's production figures onto the pricing engine's
// input shape.
func (r *Record) PricingInput() pricing.Input {
	return pricing.Input{
		Volume:         r.ProductionVolume,
		UnitPrice:      r.UnitPrice,
		CommodityPrice: r.CommodityPrice,
		MarketValue:    r.MarketValue,
		GrossValue:     r.GrossValue,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Status lifecycle
// ─────────────────────────────────────────────────────────────────────────────

// ApplyStatus transitions the record to a new status, enforcing the state
// machine and appending a history entry. The history list is append-only.
func (r *Record) ApplyStatus(to Status, changedBy, notes string) error {
	if !to.Valid() {
		return errors.Newf(errors.CodeInvalidTransition, "unknown record status %q", to)
	}
	if !CanTransition(r.Status, to) {
		return errors.New(errors.CodeInvalidTransition,
			fmt.Sprintf("illegal status transition %s to %s for record %s", r.Status, to, r.ID))
	}

	r.StatusHistory = append(r.StatusHistory, StatusEntry{
		From:      r.Status,
		To:        to,
		Date:      time.Now().UTC(),
		ChangedBy: changedBy,
		Notes:     notes,
	})
	r.Status = to
	r.touch()
	return nil
}

// RecordPartialPayment appends an instalment and moves the record to
// PartiallyPaid, or to Paid once the remaining balance reaches zero.
func (r *Record) RecordPartialPayment(amount float64, recordedBy string) error {
	if amount <= 0 {
		return errors.New(errors.CodePaymentInvalid, "partial payment amount must be positive")
	}
	remaining := r.RemainingAmount()
	if amount > remaining {
		return errors.New(errors.CodePaymentInvalid,
			fmt.Sprintf("payment %.2f exceeds remaining balance %.2f on record %s",
				amount, remaining, r.ID))
	}

	target := StatusPartiallyPaid
	if amount == remaining {
		target = StatusPaid
	}
	if target != r.Status {
		if err := r.ApplyStatus(target, recordedBy, fmt.Sprintf("payment of %.2f recorded", amount)); err != nil {
			return err
		}
	} else {
		r.touch()
	}

	r.PartialPayments = append(r.PartialPayments, PartialPayment{
		Amount:     amount,
		Date:       time.Now().UTC(),
		RecordedBy: recordedBy,
	})
	return nil
}

// RemainingAmount returns the breakdown total less all recorded instalments,
// floored at zero.
func (r *Record) RemainingAmount() float64 {
	remaining := r.Breakdown.Total
	for _, p := range r.PartialPayments {
		remaining -= p.Amount
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsOverdue reports whether the record should be considered overdue at the
// given instant. Paid and disputed records are never overdue.
func (r *Record) IsOverdue(now time.Time) bool {
	switch r.Status {
	case StatusPending, StatusPartiallyPaid, StatusOverdue:
	default:
		return false
	}
	return !r.PaymentDate.IsZero() && now.After(r.PaymentDate)
}

// DaysPastDue returns the whole days elapsed since the payment date, zero
// when the payment is not yet due.
func (r *Record) DaysPastDue(now time.Time) int {
	if r.PaymentDate.IsZero() || !now.After(r.PaymentDate) {
		return 0
	}
	return int(now.Sub(r.PaymentDate).Hours() / 24)
}

// touch updates UpdatedAt and bumps the optimistic-lock Version.
func (r *Record) touch() {
	r.UpdatedAt = time.Now().UTC()
	r.Version++
}
