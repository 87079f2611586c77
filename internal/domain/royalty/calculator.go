package royalty

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/minegov/royalty-engine/internal/domain/contract"
	"github.com/minegov/royalty-engine/internal/domain/pricing"
	"github.com/minegov/royalty-engine/pkg/errors"
)

// Calculator produces the payment breakdown for a record: the pricing base,
// then late-payment penalties and interest, manual adjustments, currency
// normalization, the contract minimum floor, and finally the non-negative
// total. All steps are pure; the clock is an explicit input.
type Calculator struct {
	registry *pricing.Registry
	rules    atomic.Pointer[Ruleset]
}

// NewCalculator wires a Calculator over the given strategy registry and
// ruleset.
func NewCalculator(registry *pricing.Registry, rules Ruleset) *Calculator {
	c := &Calculator{registry: registry}
	c.rules.Store(&rules)
	return c
}

// Rules returns the ruleset the calculator operates on.
func (c *Calculator) Rules() Ruleset { return *c.rules.Load() }

// Reload swaps the ruleset. Each in-flight calculation keeps the snapshot
// it started with.
func (c *Calculator) Reload(rules Ruleset) { c.rules.Store(&rules) }

// Calculate computes the full breakdown for a record under its contract at
// the given instant. The contract may be nil, in which case the default
// tariff fallback (volume times unit price) applies and no minimum floor is
// enforced.
func (c *Calculator) Calculate(r *Record, ct *contract.Contract, now time.Time) (Breakdown, error) {
	rules := c.rules.Load()

	base, err := c.baseAmount(r, ct)
	if err != nil {
		return Breakdown{}, err
	}

	daysPastDue := r.DaysPastDue(now)
	penalties := c.penalty(rules, base, daysPastDue)
	interest := c.interest(rules, base, daysPastDue)

	adjustments := c.manualAdjustments(base, r.Adjustments)
	adjustments += c.currencyAdjustment(rules, base, r.Currency)

	// The contract minimum raises the adjusted total before the floor.
	if ct != nil && ct.CalculationParams.MinimumAmount > 0 {
		adjusted := base + penalties + interest + adjustments
		if adjusted < ct.CalculationParams.MinimumAmount {
			adjustments += ct.CalculationParams.MinimumAmount - adjusted
		}
	}

	total := math.Max(0, base+penalties+interest+adjustments)
	return Breakdown{
		Base:        base,
		Penalties:   penalties,
		Interest:    interest,
		Adjustments: adjustments,
		Total:       total,
	}, nil
}

// baseAmount runs the contract's pricing method over the record's production
// figures. Without a contract the default tariff is volume times unit price.
func (c *Calculator) baseAmount(r *Record, ct *contract.Contract) (float64, error) {
	if ct == nil {
		return r.ProductionVolume * r.UnitPrice, nil
	}
	amount, err := c.registry.Calculate(ct.CalculationType, r.PricingInput(), ct.CalculationParams)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeUnknown, "pricing calculation failed")
	}
	return amount, nil
}

// penalty applies the tiered late-payment multiplier to the configured
// penalty rate. No penalty accrues until the payment is at least a day late.
func (c *Calculator) penalty(rules *Ruleset, base float64, daysPastDue int) float64 {
	if daysPastDue <= 0 {
		return 0
	}
	multiplier := 1.0
	switch {
	case daysPastDue > 90:
		multiplier = 3
	case daysPastDue > 30:
		multiplier = 2
	}
	return base * rules.PenaltyRate * multiplier
}

// interest accrues daily-compounding interest on the base amount for the
// overdue window.
func (c *Calculator) interest(rules *Ruleset, base float64, daysPastDue int) float64 {
	if daysPastDue <= 0 {
		return 0
	}
	dailyRate := rules.InterestRate / 365
	return base*math.Pow(1+dailyRate, float64(daysPastDue)) - base
}

// manualAdjustments sums the operator-applied deltas against the base.
func (c *Calculator) manualAdjustments(base float64, adjustments []Adjustment) float64 {
	var sum float64
	for _, a := range adjustments {
		switch a.Type {
		case AdjustmentPercentage:
			sum += base * a.Value / 100
		case AdjustmentFixed:
			sum += a.Value
		case AdjustmentPenalty:
			sum -= math.Abs(a.Value)
		case AdjustmentBonus:
			sum += math.Abs(a.Value)
		}
	}
	return sum
}

// currencyAdjustment normalizes a foreign-currency record into the base
// currency by adding the conversion delta. Unknown currencies contribute
// nothing; the validator flags them separately.
func (c *Calculator) currencyAdjustment(rules *Ruleset, base float64, currency string) float64 {
	if currency == "" || currency == rules.BaseCurrency {
		return 0
	}
	rate, ok := rules.ExchangeRates[currency]
	if !ok {
		return 0
	}
	return base*rate - base
}
