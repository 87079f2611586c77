package contract

import (
	"fmt"
	"time"

	"github.com/minegov/royalty-engine/internal/domain/pricing"
	"github.com/minegov/royalty-engine/pkg/types/common"
)

// ComplianceResult carries the outcome of checking a royalty submission
// against its contract. Errors block persistence; warnings require operator
// confirmation.
type ComplianceResult struct {
	Errors   []string
	Warnings []string
}

// ComplianceCheck verifies that a submission's reporting period and payment
// date are coherent with the contract's validity window. The period falling
// outside the window is a hard error; a payment date outside the window is
// only flagged, since late settlement of an expired contract is legitimate.
func ComplianceCheck(c *Contract, period common.Period, paymentDate time.Time) ComplianceResult {
	var result ComplianceResult

	if !c.ActiveFor(period) {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"reporting period %s to %s falls outside contract %s validity window",
			period.Start.Format(time.DateOnly), period.End.Format(time.DateOnly), c.ID))
	}

	if !paymentDate.IsZero() && !c.ActiveAt(paymentDate) {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"payment date %s falls outside contract %s validity window",
			paymentDate.Format(time.DateOnly), c.ID))
	}

	return result
}

// EffectiveRate returns the contract's flat rate for methods that carry one.
// The second return is false for banded methods (tiered, sliding_scale),
// whose rate depends on volume.
func (c *Contract) EffectiveRate() (float64, bool) {
	switch c.CalculationType {
	case pricing.MethodFixed, pricing.MethodAdValorem, pricing.MethodPercentage:
		return c.CalculationParams.Rate, true
	case pricing.MethodMinimumGuaranteed:
		base := c.CalculationParams.BaseMethod
		if base == "" || base == pricing.MethodFixed ||
			base == pricing.MethodAdValorem || base == pricing.MethodPercentage {
			return c.CalculationParams.Rate, true
		}
		return 0, false
	default:
		return 0, false
	}
}
