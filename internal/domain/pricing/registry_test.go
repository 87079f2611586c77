package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minegov/royalty-engine/internal/domain/pricing"
	"github.com/minegov/royalty-engine/pkg/errors"
)

func f64(v float64) *float64 { return &v }

// standardTiers covers [0, inf) with three ascending bands.
func standardTiers() []pricing.Tier {
	return []pricing.Tier{
		{From: 0, To: f64(50), Rate: 20},
		{From: 51, To: f64(100), Rate: 25},
		{From: 101, To: nil, Rate: 30},
	}
}

func standardScales() []pricing.Scale {
	return []pricing.Scale{
		{From: 0, To: f64(50), Rate: 20},
		{From: 51, To: f64(100), Rate: 25},
		{From: 101, To: nil, Rate: 30},
	}
}

func TestParseMethod_KnownMethods(t *testing.T) {
	t.Parallel()

	for _, m := range pricing.Methods() {
		m := m
		t.Run(string(m), func(t *testing.T) {
			t.Parallel()
			parsed, err := pricing.ParseMethod(string(m))
			require.NoError(t, err)
			assert.Equal(t, m, parsed)
		})
	}
}

func TestParseMethod_UnknownMethod(t *testing.T) {
	t.Parallel()

	_, err := pricing.ParseMethod("cubic")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeUnknownMethod))
}

func TestCalculate_Fixed(t *testing.T) {
	t.Parallel()

	r := pricing.NewRegistry()
	amount, err := r.Calculate(pricing.MethodFixed,
		pricing.Input{Volume: 1200},
		pricing.Params{Rate: 15.5})
	require.NoError(t, err)
	assert.Equal(t, 18600.0, amount)
}

func TestCalculate_Fixed_ZeroVolume(t *testing.T) {
	t.Parallel()

	r := pricing.NewRegistry()
	amount, err := r.Calculate(pricing.MethodFixed,
		pricing.Input{Volume: 0},
		pricing.Params{Rate: 15.5})
	require.NoError(t, err)
	assert.Equal(t, 0.0, amount)
}

func TestCalculate_Tiered_SpansAllBands(t *testing.T) {
	t.Parallel()

	r := pricing.NewRegistry()
	// 50*20 + 49*25 + 19*30 = 1000 + 1225 + 570
	amount, err := r.Calculate(pricing.MethodTiered,
		pricing.Input{Volume: 120},
		pricing.Params{Tiers: standardTiers()})
	require.NoError(t, err)
	assert.Equal(t, 2795.0, amount)
}

func TestCalculate_Tiered_VolumeWithinFirstBand(t *testing.T) {
	t.Parallel()

	r := pricing.NewRegistry()
	amount, err := r.Calculate(pricing.MethodTiered,
		pricing.Input{Volume: 30},
		pricing.Params{Tiers: standardTiers()})
	require.NoError(t, err)
	assert.Equal(t, 600.0, amount)
}

func TestCalculate_Tiered_VolumeAtLowerBoundExcluded(t *testing.T) {
	t.Parallel()

	r := pricing.NewRegistry()
	// Strict > at the lower bound: a tier with From == volume contributes nothing.
	amount, err := r.Calculate(pricing.MethodTiered,
		pricing.Input{Volume: 51},
		pricing.Params{Tiers: standardTiers()})
	require.NoError(t, err)
	assert.Equal(t, 50*20.0, amount)
}

func TestCalculate_Tiered_NoTiers(t *testing.T) {
	t.Parallel()

	r := pricing.NewRegistry()
	_, err := r.Calculate(pricing.MethodTiered, pricing.Input{Volume: 10}, pricing.Params{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParams))
}

func TestCalculate_SlidingScale_PriceIndexed(t *testing.T) {
	t.Parallel()

	r := pricing.NewRegistry()
	// Volume 60 selects the 51-100@25 bracket; factor 65/50 = 1.3 -> rate 32.5.
	amount, err := r.Calculate(pricing.MethodSlidingScale,
		pricing.Input{Volume: 60, CommodityPrice: 65},
		pricing.Params{Scales: standardScales(), BasePrice: 50})
	require.NoError(t, err)
	assert.InDelta(t, 1950.0, amount, 1e-9)
}

func TestCalculate_SlidingScale_MissingCommodityPriceDefaultsToBase(t *testing.T) {
	t.Parallel()

	r := pricing.NewRegistry()
	amount, err := r.Calculate(pricing.MethodSlidingScale,
		pricing.Input{Volume: 60},
		pricing.Params{Scales: standardScales(), BasePrice: 50})
	require.NoError(t, err)
	assert.InDelta(t, 1500.0, amount, 1e-9)
}

func TestCalculate_SlidingScale_LinearInCommodityPrice(t *testing.T) {
	t.Parallel()

	r := pricing.NewRegistry()
	p := pricing.Params{Scales: standardScales(), BasePrice: 50}

	atBase, err := r.Calculate(pricing.MethodSlidingScale,
		pricing.Input{Volume: 60, CommodityPrice: 50}, p)
	require.NoError(t, err)

	for _, price := range []float64{25, 65, 80, 130} {
		at, err := r.Calculate(pricing.MethodSlidingScale,
			pricing.Input{Volume: 60, CommodityPrice: price}, p)
		require.NoError(t, err)
		assert.InDelta(t, price/50, at/atBase, 1e-9,
			"amount must scale linearly with commodity price")
	}
}

func TestCalculate_SlidingScale_NoBracketCoversVolume(t *testing.T) {
	t.Parallel()

	r := pricing.NewRegistry()
	scales := []pricing.Scale{{From: 0, To: f64(50), Rate: 20}}
	_, err := r.Calculate(pricing.MethodSlidingScale,
		pricing.Input{Volume: 60},
		pricing.Params{Scales: scales, BasePrice: 50})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParams))
}

func TestCalculate_SlidingScale_RequiresBasePrice(t *testing.T) {
	t.Parallel()

	r := pricing.NewRegistry()
	_, err := r.Calculate(pricing.MethodSlidingScale,
		pricing.Input{Volume: 60},
		pricing.Params{Scales: standardScales()})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParams))
}

func TestCalculate_AdValorem(t *testing.T) {
	t.Parallel()

	r := pricing.NewRegistry()

	amount, err := r.Calculate(pricing.MethodAdValorem,
		pricing.Input{MarketValue: 100000},
		pricing.Params{Rate: 0.03})
	require.NoError(t, err)
	assert.Equal(t, 3000.0, amount)

	// Market value defaults to volume * commodity price.
	amount, err = r.Calculate(pricing.MethodAdValorem,
		pricing.Input{Volume: 100, CommodityPrice: 80},
		pricing.Params{Rate: 0.03})
	require.NoError(t, err)
	assert.Equal(t, 240.0, amount)

	// Rate falls back to 5% when unset.
	amount, err = r.Calculate(pricing.MethodAdValorem,
		pricing.Input{MarketValue: 1000}, pricing.Params{})
	require.NoError(t, err)
	assert.Equal(t, 50.0, amount)
}

func TestCalculate_Percentage(t *testing.T) {
	t.Parallel()

	r := pricing.NewRegistry()

	amount, err := r.Calculate(pricing.MethodPercentage,
		pricing.Input{GrossValue: 50000},
		pricing.Params{Rate: 0.08})
	require.NoError(t, err)
	assert.Equal(t, 4000.0, amount)

	// Gross value defaults to volume * unit price; rate falls back to 10%.
	amount, err = r.Calculate(pricing.MethodPercentage,
		pricing.Input{Volume: 200, UnitPrice: 40}, pricing.Params{})
	require.NoError(t, err)
	assert.Equal(t, 800.0, amount)
}

func TestCalculate_MinimumGuaranteed_FloorApplies(t *testing.T) {
	t.Parallel()

	r := pricing.NewRegistry()
	amount, err := r.Calculate(pricing.MethodMinimumGuaranteed,
		pricing.Input{Volume: 10},
		pricing.Params{Rate: 5, MinimumAmount: 500})
	require.NoError(t, err)
	// Fixed base would be 50; the guaranteed minimum wins.
	assert.Equal(t, 500.0, amount)
}

func TestCalculate_MinimumGuaranteed_BaseExceedsFloor(t *testing.T) {
	t.Parallel()

	r := pricing.NewRegistry()
	amount, err := r.Calculate(pricing.MethodMinimumGuaranteed,
		pricing.Input{Volume: 1000},
		pricing.Params{Rate: 5, MinimumAmount: 500})
	require.NoError(t, err)
	assert.Equal(t, 5000.0, amount)
}

func TestCalculate_MinimumGuaranteed_ComposesWithTiered(t *testing.T) {
	t.Parallel()

	r := pricing.NewRegistry()
	amount, err := r.Calculate(pricing.MethodMinimumGuaranteed,
		pricing.Input{Volume: 120},
		pricing.Params{
			BaseMethod:    pricing.MethodTiered,
			Tiers:         standardTiers(),
			MinimumAmount: 100,
		})
	require.NoError(t, err)
	assert.Equal(t, 2795.0, amount)
}

func TestCalculate_MinimumGuaranteed_SelfCompositionRejected(t *testing.T) {
	t.Parallel()

	r := pricing.NewRegistry()
	_, err := r.Calculate(pricing.MethodMinimumGuaranteed,
		pricing.Input{Volume: 10},
		pricing.Params{BaseMethod: pricing.MethodMinimumGuaranteed, MinimumAmount: 10})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParams))
}

func TestCalculate_UnregisteredMethod(t *testing.T) {
	t.Parallel()

	r := pricing.NewRegistry()
	_, err := r.Calculate(pricing.Method("hybrid"), pricing.Input{}, pricing.Params{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeUnknownMethod))
}

func TestRegister_CustomStrategy(t *testing.T) {
	t.Parallel()

	r := pricing.NewRegistry()
	r.Register(pricing.Method("flat_fee"), func(_ pricing.Input, p pricing.Params) (float64, error) {
		return p.Rate, nil
	})

	amount, err := r.Calculate(pricing.Method("flat_fee"), pricing.Input{Volume: 999}, pricing.Params{Rate: 1234})
	require.NoError(t, err)
	assert.Equal(t, 1234.0, amount)
}

func TestCalculate_Tiered_SlicesSumToVolume(t *testing.T) {
	t.Parallel()

	// With a rate of 1 on every covering tier, the royalty equals the volume.
	tiers := []pricing.Tier{
		{From: 0, To: f64(50), Rate: 1},
		{From: 50, To: f64(100), Rate: 1},
		{From: 100, To: nil, Rate: 1},
	}
	r := pricing.NewRegistry()
	for _, volume := range []float64{10, 50, 75, 100, 250} {
		amount, err := r.Calculate(pricing.MethodTiered,
			pricing.Input{Volume: volume},
			pricing.Params{Tiers: tiers})
		require.NoError(t, err)
		assert.InDelta(t, volume, amount, 1e-9)
	}
}
