package pricing

import (
	"math"

	"github.com/minegov/royalty-engine/pkg/errors"
)

// Tier is one band of a tiered pricing model.  To is nil for the open-ended
// final band.  Tiers are expected pre-sorted ascending by From; the engine
// does not sort them.
type Tier struct {
	From float64  `json:"from"`
	To   *float64 `json:"to"`
	Rate float64  `json:"rate"`
}

// Scale is one bracket of a sliding-scale model.  The bracket whose
// [From, To] range contains the production volume supplies the base rate,
// which is then scaled by the commodity-price ratio.
type Scale struct {
	From float64  `json:"from"`
	To   *float64 `json:"to"`
	Rate float64  `json:"rate"`
}

// Params carries the method-specific pricing parameters taken from a
// contract.  Only the fields relevant to the selected method are read.
type Params struct {
	// Rate is the per-unit or fractional rate for fixed, ad_valorem and
	// percentage methods.
	Rate float64 `json:"rate,omitempty"`

	Tiers  []Tier  `json:"tiers,omitempty"`
	Scales []Scale `json:"scales,omitempty"`

	// BasePrice is the contractual reference price for sliding_scale.
	BasePrice float64 `json:"base_price,omitempty"`

	// MinimumAmount is the guaranteed floor for minimum_guaranteed.
	MinimumAmount float64 `json:"minimum_amount,omitempty"`

	// BaseMethod names the method a minimum_guaranteed contract composes
	// with.  Defaults to fixed when empty.
	BaseMethod Method `json:"base_method,omitempty"`
}

// Input carries the production figures a strategy consumes.
type Input struct {
	Volume float64

	// UnitPrice is the sale price per unit, used by the percentage method.
	UnitPrice float64

	// CommodityPrice is the current market price, used by sliding_scale and
	// ad_valorem.  Zero means absent.
	CommodityPrice float64

	// MarketValue overrides Volume*CommodityPrice for ad_valorem when set.
	MarketValue float64

	// GrossValue overrides Volume*UnitPrice for percentage when set.
	GrossValue float64
}

// Fallback rates applied when a contract omits an explicit rate.  Callers
// should always supply one; the fallback only keeps the formula total.
const (
	fallbackAdValoremRate  = 0.05
	fallbackPercentageRate = 0.10
)

// StrategyFunc is a pure pricing formula.
type StrategyFunc func(in Input, p Params) (float64, error)

// Registry maps calculation methods to their strategies.  It is constructed
// once at startup and passed into the components that need it; there is no
// package-level mutable state.
type Registry struct {
	strategies map[Method]StrategyFunc
}

// NewRegistry returns a Registry with every built-in method registered.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[Method]StrategyFunc, 6)}
	r.strategies[MethodFixed] = calcFixed
	r.strategies[MethodTiered] = calcTiered
	r.strategies[MethodSlidingScale] = calcSlidingScale
	r.strategies[MethodAdValorem] = calcAdValorem
	r.strategies[MethodPercentage] = calcPercentage
	r.strategies[MethodMinimumGuaranteed] = r.calcMinimumGuaranteed
	return r
}

// Register installs or replaces the strategy for m.  Intended for deployments
// that carry jurisdiction-specific formulas; the built-in set covers every
// method the data model names.
func (r *Registry) Register(m Method, fn StrategyFunc) {
	r.strategies[m] = fn
}

// Calculate dispatches to the strategy registered for m.  An unregistered
// method yields an unknown-method error; this can only happen for stored data
// that names a method outside the built-in set.
func (r *Registry) Calculate(m Method, in Input, p Params) (float64, error) {
	fn, ok := r.strategies[m]
	if !ok {
		return 0, errors.Newf(errors.CodeUnknownMethod, "calculation method %q is not registered", m)
	}
	return fn(in, p)
}

func calcFixed(in Input, p Params) (float64, error) {
	return in.Volume * p.Rate, nil
}

// calcTiered charges each band's portion of volume at that band's rate.
// For every tier where volume > tier.From the taxable slice is
// min(volume, tier.To) - tier.From, or volume - tier.From for the open band.
func calcTiered(in Input, p Params) (float64, error) {
	if len(p.Tiers) == 0 {
		return 0, errors.New(errors.CodeInvalidParams, "tiered method requires at least one tier")
	}
	var royalty float64
	for _, tier := range p.Tiers {
		if in.Volume <= tier.From {
			continue
		}
		var taxable float64
		if tier.To != nil {
			taxable = math.Min(in.Volume, *tier.To) - tier.From
		} else {
			taxable = in.Volume - tier.From
		}
		royalty += taxable * tier.Rate
	}
	return royalty, nil
}

// calcSlidingScale selects the first bracket containing the volume to obtain
// a base rate, then scales it by commodityPrice/basePrice.  A missing
// commodity price defaults to the base price, making the factor 1.
func calcSlidingScale(in Input, p Params) (float64, error) {
	if len(p.Scales) == 0 {
		return 0, errors.New(errors.CodeInvalidParams, "sliding_scale method requires at least one scale bracket")
	}
	if p.BasePrice <= 0 {
		return 0, errors.New(errors.CodeInvalidParams, "sliding_scale method requires a positive base price")
	}

	var baseRate float64
	found := false
	for _, scale := range p.Scales {
		if in.Volume >= scale.From && (scale.To == nil || in.Volume <= *scale.To) {
			baseRate = scale.Rate
			found = true
			break
		}
	}
	if !found {
		return 0, errors.Newf(errors.CodeInvalidParams, "no scale bracket covers volume %v", in.Volume)
	}

	commodityPrice := in.CommodityPrice
	if commodityPrice == 0 {
		commodityPrice = p.BasePrice
	}
	factor := commodityPrice / p.BasePrice
	return in.Volume * baseRate * factor, nil
}

func calcAdValorem(in Input, p Params) (float64, error) {
	value := in.MarketValue
	if value == 0 {
		value = in.Volume * in.CommodityPrice
	}
	rate := p.Rate
	if rate == 0 {
		rate = fallbackAdValoremRate
	}
	return value * rate, nil
}

func calcPercentage(in Input, p Params) (float64, error) {
	value := in.GrossValue
	if value == 0 {
		value = in.Volume * in.UnitPrice
	}
	rate := p.Rate
	if rate == 0 {
		rate = fallbackPercentageRate
	}
	return value * rate, nil
}

// calcMinimumGuaranteed computes the base method's result and raises it to
// the guaranteed minimum.  The base method defaults to fixed and may not
// itself be minimum_guaranteed.
func (r *Registry) calcMinimumGuaranteed(in Input, p Params) (float64, error) {
	base := p.BaseMethod
	if base == "" {
		base = MethodFixed
	}
	if base == MethodMinimumGuaranteed {
		return 0, errors.New(errors.CodeInvalidParams, "minimum_guaranteed cannot compose with itself")
	}
	amount, err := r.Calculate(base, in, p)
	if err != nil {
		return 0, err
	}
	return math.Max(amount, p.MinimumAmount), nil
}
