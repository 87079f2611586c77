// Package contract implements the Contract bounded context: the agreement
// between the state and an extraction entity that fixes how royalties are
// priced. Contracts are read-only to the calculation engine; financial terms
// are never mutated in place, amendments create a new version.
package contract

import (
	"fmt"
	"time"

	"github.com/minegov/royalty-engine/internal/domain/pricing"
	"github.com/minegov/royalty-engine/pkg/errors"
	"github.com/minegov/royalty-engine/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Contract entity
// ─────────────────────────────────────────────────────────────────────────────

// Contract binds an extraction entity and a mineral to a pricing method and
// its parameters for a validity window. EndDate is nil for open-ended
// contracts.
type Contract struct {
	common.BaseEntity

	Entity  string `json:"entity"`
	Mineral string `json:"mineral"`

	CalculationType   pricing.Method `json:"calculation_type"`
	CalculationParams pricing.Params `json:"calculation_params"`

	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// NewContract constructs a Contract and runs all construction invariants.
// The method string is parsed through the closed pricing enum so that a typo
// in stored data cannot silently produce a zero royalty.
func NewContract(
	entity, mineral, calculationType string,
	params pricing.Params,
	startDate time.Time,
	endDate *time.Time,
) (*Contract, error) {
	if entity == "" {
		return nil, errors.InvalidParam("contract entity must not be empty")
	}
	if mineral == "" {
		return nil, errors.InvalidParam("contract mineral must not be empty")
	}
	if startDate.IsZero() {
		return nil, errors.InvalidParam("contract start date must not be zero")
	}
	if endDate != nil && endDate.Before(startDate) {
		return nil, errors.InvalidParam("contract end date must not precede start date")
	}

	method, err := pricing.ParseMethod(calculationType)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	c := &Contract{
		BaseEntity: common.BaseEntity{
			ID:        common.NewID(),
			CreatedAt: now,
			UpdatedAt: now,
			Version:   1,
		},
		Entity:            entity,
		Mineral:           mineral,
		CalculationType:   method,
		CalculationParams: params,
		StartDate:         startDate,
		EndDate:           endDate,
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Validity window
// ─────────────────────────────────────────────────────────────────────────────

// ActiveFor reports whether the reporting period falls within the contract's
// validity window [StartDate, EndDate or +inf).
func (c *Contract) ActiveFor(period common.Period) bool {
	if period.Start.Before(c.StartDate) {
		return false
	}
	if c.EndDate != nil && period.End.After(*c.EndDate) {
		return false
	}
	return true
}

// ActiveAt reports whether a single instant falls within the validity window.
func (c *Contract) ActiveAt(t time.Time) bool {
	if t.Before(c.StartDate) {
		return false
	}
	if c.EndDate != nil && t.After(*c.EndDate) {
		return false
	}
	return true
}

// ─────────────────────────────────────────────────────────────────────────────
// Parameter validation per pricing method
// ─────────────────────────────────────────────────────────────────────────────

// Validate checks the calculation parameters against the shape the contract's
// pricing method requires. It is invoked at construction and again whenever a
// contract is rehydrated from an external source.
func (c *Contract) Validate() error {
	if !c.CalculationType.Valid() {
		return errors.Newf(errors.CodeUnknownMethod,
			"contract %s carries unknown calculation type %q", c.ID, c.CalculationType)
	}
	return validateParams(c.CalculationType, c.CalculationParams)
}

func validateParams(method pricing.Method, p pricing.Params) error {
	switch method {
	case pricing.MethodFixed, pricing.MethodAdValorem, pricing.MethodPercentage:
		if p.Rate <= 0 {
			return errors.New(errors.CodeInvalidParams,
				fmt.Sprintf("method %s requires a positive rate", method))
		}
		return nil

	case pricing.MethodTiered:
		return validateBrackets(method, tiersAsBrackets(p.Tiers))

	case pricing.MethodSlidingScale:
		if p.BasePrice <= 0 {
			return errors.New(errors.CodeInvalidParams,
				"sliding_scale requires a positive base price")
		}
		return validateBrackets(method, scalesAsBrackets(p.Scales))

	case pricing.MethodMinimumGuaranteed:
		if p.MinimumAmount <= 0 {
			return errors.New(errors.CodeInvalidParams,
				"minimum_guaranteed requires a positive minimum amount")
		}
		base := p.BaseMethod
		if base == "" {
			base = pricing.MethodFixed
		}
		if base == pricing.MethodMinimumGuaranteed {
			return errors.New(errors.CodeInvalidParams,
				"minimum_guaranteed cannot compose with itself")
		}
		if !base.Valid() {
			return errors.Newf(errors.CodeUnknownMethod,
				"minimum_guaranteed composes unknown base method %q", base)
		}
		return validateParams(base, p)

	default:
		return errors.Newf(errors.CodeUnknownMethod, "unknown calculation type %q", method)
	}
}

// bracket is the shared shape of tiers and scales for validation purposes.
type bracket struct {
	From float64
	To   *float64
	Rate float64
}

func tiersAsBrackets(tiers []pricing.Tier) []bracket {
	out := make([]bracket, len(tiers))
	for i, t := range tiers {
		out[i] = bracket{From: t.From, To: t.To, Rate: t.Rate}
	}
	return out
}

func scalesAsBrackets(scales []pricing.Scale) []bracket {
	out := make([]bracket, len(scales))
	for i, s := range scales {
		out[i] = bracket{From: s.From, To: s.To, Rate: s.Rate}
	}
	return out
}

// validateBrackets enforces the conventions the pricing engine assumes but
// never re-checks: at least one band, ascending by lower bound, bounded bands
// ordered, no overlap between consecutive bands, and positive rates. Only the
// last band may be open-ended.
func validateBrackets(method pricing.Method, bands []bracket) error {
	if len(bands) == 0 {
		return errors.New(errors.CodeInvalidParams,
			fmt.Sprintf("method %s requires at least one band", method))
	}

	for i, b := range bands {
		if b.From < 0 {
			return errors.New(errors.CodeInvalidParams,
				fmt.Sprintf("method %s band %d has negative lower bound", method, i))
		}
		if b.Rate <= 0 {
			return errors.New(errors.CodeInvalidParams,
				fmt.Sprintf("method %s band %d requires a positive rate", method, i))
		}
		if b.To != nil && *b.To <= b.From {
			return errors.New(errors.CodeInvalidParams,
				fmt.Sprintf("method %s band %d has upper bound not above lower bound", method, i))
		}
		if b.To == nil && i != len(bands)-1 {
			return errors.New(errors.CodeInvalidParams,
				fmt.Sprintf("method %s band %d is open-ended but not last", method, i))
		}
		if i > 0 {
			prev := bands[i-1]
			if b.From <= prev.From {
				return errors.New(errors.CodeInvalidParams,
					fmt.Sprintf("method %s bands must ascend by lower bound (band %d)", method, i))
			}
			if prev.To != nil && b.From < *prev.To {
				return errors.New(errors.CodeInvalidParams,
					fmt.Sprintf("method %s band %d overlaps the previous band", method, i))
			}
		}
	}
	return nil
}
