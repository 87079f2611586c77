package royalty

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/minegov/royalty-engine/internal/domain/contract"
	"github.com/minegov/royalty-engine/pkg/errors"
)

// Issue is one validation finding keyed by the offending field. Business and
// integrity findings use a descriptive field name.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Result carries the outcome of a full validation pass. Errors block
// persistence; warnings require explicit operator confirmation.
type Result struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// OK reports whether no hard errors were found.
func (r Result) OK() bool { return len(r.Errors) == 0 }

// Clean reports whether neither errors nor warnings were found.
func (r Result) Clean() bool { return len(r.Errors) == 0 && len(r.Warnings) == 0 }

func (r *Result) addError(field, format string, args ...interface{}) {
	r.Errors = append(r.Errors, Issue{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (r *Result) addWarning(field, format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, Issue{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validator runs the three-layer validation pipeline over a candidate
// record: field rules, business rules, then data-integrity checks against
// stored records. All layers run; results are concatenated. Expected
// validation failures are returned as data, never as an error; the error
// return is reserved for internal faults such as the store being
// unavailable.
type Validator struct {
	repo       Repository
	calculator *Calculator
	rules      atomic.Pointer[Ruleset]
}

// NewValidator wires a Validator. The repository is read-only here; the
// calculator recomputes expected totals for the consistency check.
func NewValidator(repo Repository, calculator *Calculator, rules Ruleset) *Validator {
	v := &Validator{repo: repo, calculator: calculator}
	v.rules.Store(&rules)
	return v
}

// Reload swaps the ruleset. In-flight validations keep the snapshot they
// started with.
func (v *Validator) Reload(rules Ruleset) { v.rules.Store(&rules) }

// Validate runs all three layers over the candidate under its contract
// (which may be nil) at the given instant.
func (v *Validator) Validate(ctx context.Context, c Candidate, ct *contract.Contract, now time.Time) (Result, error) {
	var result Result
	rules := v.rules.Load()

	v.fieldRules(rules, &result, c, now)
	v.businessRules(rules, &result, c, ct, now)
	if err := v.integrityChecks(ctx, rules, &result, c, ct, now); err != nil {
		return Result{}, err
	}

	return result, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Layer 1: field rules
// ─────────────────────────────────────────────────────────────────────────────

func (v *Validator) fieldRules(rules *Ruleset, result *Result, c Candidate, now time.Time) {
	if c.Entity == "" {
		result.addError("entity", "entity is required")
	} else if !rules.AllowsEntity(c.Entity) {
		result.addError("entity", "entity %q is not a registered extraction entity", c.Entity)
	}

	if c.Mineral == "" {
		result.addError("mineral", "mineral is required")
	} else if !rules.AllowsMineral(c.Mineral) {
		result.addError("mineral", "mineral %q is not on the recognised mineral list", c.Mineral)
	}

	if c.ProductionVolume <= 0 {
		result.addError("production_volume", "production volume must be greater than zero")
	} else if c.ProductionVolume > rules.MaxProductionVolume {
		result.addError("production_volume",
			"production volume cannot exceed %.0f", rules.MaxProductionVolume)
	}

	if c.UnitPrice < 0 {
		result.addError("unit_price", "unit price must not be negative")
	} else if c.UnitPrice > rules.MaxUnitPrice {
		result.addError("unit_price", "unit price cannot exceed %.0f", rules.MaxUnitPrice)
	}

	if err := c.ReportingPeriod.Validate(); err != nil {
		result.addError("reporting_period", "%v", err)
	} else if c.ReportingPeriod.End.After(now) {
		result.addError("reporting_period", "reporting period cannot end in the future")
	}

	if c.PaymentDate.IsZero() {
		result.addError("payment_date", "payment date is required")
	} else {
		maxFuture := now.AddDate(0, 0, rules.MaxFuturePaymentDays)
		if c.PaymentDate.After(maxFuture) {
			result.addError("payment_date",
				"payment date cannot be more than %d days in the future", rules.MaxFuturePaymentDays)
		}
	}

	if c.Currency != "" && !rules.AllowsCurrency(c.Currency) {
		result.addError("currency", "currency %q is not supported", c.Currency)
	}

	if c.Status != "" && !c.Status.Valid() {
		result.addError("status", "unknown status %q", c.Status)
	}

	for i, a := range c.Adjustments {
		if !a.Type.Valid() {
			result.addError("adjustments", "adjustment %d has unknown type %q", i, a.Type)
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Layer 2: business rules
// ─────────────────────────────────────────────────────────────────────────────

func (v *Validator) businessRules(rules *Ruleset, result *Result, c Candidate, ct *contract.Contract, now time.Time) {
	if rules.IsSmallScale(c.Entity) && c.ProductionVolume > rules.SmallScaleVolumeCap {
		result.addError("production_volume",
			"small scale mining operations cannot exceed %.0f tons per period",
			rules.SmallScaleVolumeCap)
	}

	// Mineral tariff bands apply to the contract's flat rate where one
	// exists.
	if ct != nil {
		if band, ok := rules.TariffBands[c.Mineral]; ok {
			if rate, flat := ct.EffectiveRate(); flat && (rate < band.Min || rate > band.Max) {
				result.addError("tariff",
					"tariff for %s should be between %.0f and %.0f", c.Mineral, band.Min, band.Max)
			}
		}
	}

	if c.Status == StatusPending && !c.PaymentDate.IsZero() && c.PaymentDate.Before(now) {
		result.addError("payment_date", "payment date cannot be in the past for pending payments")
	}

	if ct != nil {
		compliance := contract.ComplianceCheck(ct, c.ReportingPeriod, c.PaymentDate)
		for _, msg := range compliance.Errors {
			result.addError("contract", "%s", msg)
		}
		for _, msg := range compliance.Warnings {
			result.addWarning("contract", "%s", msg)
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Layer 3: data integrity
// ─────────────────────────────────────────────────────────────────────────────

func (v *Validator) integrityChecks(ctx context.Context, rules *Ruleset, result *Result, c Candidate, ct *contract.Contract, now time.Time) error {
	// Duplicate detection runs only when the period itself is usable.
	if c.Entity != "" && c.Mineral != "" && c.ReportingPeriod.Validate() == nil {
		overlapping, err := v.repo.FindOverlapping(ctx, c.Entity, c.Mineral, c.ReportingPeriod)
		if err != nil {
			return errors.Wrap(err, errors.CodeDatabaseError, "duplicate detection failed")
		}
		if len(overlapping) > 0 {
			result.addWarning("reporting_period",
				"a similar record already exists for this entity, mineral, and period")
		}
	}

	// Consistency: recompute the expected total and compare against the
	// declared amount when one was entered.
	if c.DeclaredAmount > 0 {
		record := NewRecord(c, "")
		expected, err := v.calculator.Calculate(record, ct, now)
		if err != nil {
			// The calculation layer will surface this as its own failure;
			// integrity only compares totals it can compute.
			return nil
		}
		if expected.Total > 0 {
			diff := math.Abs(c.DeclaredAmount - expected.Total)
			if diff/expected.Total > rules.ConsistencyTolerance {
				result.addWarning("declared_amount",
					"declared amount %.2f differs from calculated total %.2f by more than %.0f%%",
					c.DeclaredAmount, expected.Total, rules.ConsistencyTolerance*100)
			}
		}
	}

	return nil
}
