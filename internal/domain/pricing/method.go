// Package pricing implements the calculation strategies that turn a contract's
// pricing model and a reporting period's production data into a base royalty
// amount.  All strategies are pure and deterministic; persistence and
// adjustment concerns live elsewhere.
package pricing

import (
	"github.com/minegov/royalty-engine/pkg/errors"
)

// Method identifies a royalty calculation strategy.  The set of methods is
// closed; ParseMethod is the only way data read from storage enters the enum,
// and anything unrecognised fails there with an unknown-method error.
type Method string

const (
	MethodFixed             Method = "fixed"
	MethodTiered            Method = "tiered"
	MethodSlidingScale      Method = "sliding_scale"
	MethodAdValorem         Method = "ad_valorem"
	MethodPercentage        Method = "percentage"
	MethodMinimumGuaranteed Method = "minimum_guaranteed"
)

// Methods lists every registered calculation method in a stable order.
func Methods() []Method {
	return []Method{
		MethodFixed,
		MethodTiered,
		MethodSlidingScale,
		MethodAdValorem,
		MethodPercentage,
		MethodMinimumGuaranteed,
	}
}

// Valid reports whether m names a known calculation method.
func (m Method) Valid() bool {
	switch m {
	case MethodFixed, MethodTiered, MethodSlidingScale,
		MethodAdValorem, MethodPercentage, MethodMinimumGuaranteed:
		return true
	}
	return false
}

func (m Method) String() string { return string(m) }

// ParseMethod converts a stored calculation-type string into a Method.
// Unrecognised values return an unknown-method error; this is the single
// runtime entry point for untrusted method names.
func ParseMethod(s string) (Method, error) {
	m := Method(s)
	if !m.Valid() {
		return "", errors.Newf(errors.CodeUnknownMethod, "calculation method %q is not registered", s)
	}
	return m, nil
}
