package royalty

// Band is an inclusive [Min, Max] range for mineral tariff checks.
type Band struct {
	Min float64
	Max float64
}

// Ruleset carries the configurable constants the validator and calculator
// operate on. It is built from the engine configuration at wiring time and
// swapped atomically on hot reload; domain code never reads configuration
// files itself.
type Ruleset struct {
	BaseCurrency  string
	ExchangeRates map[string]float64

	PenaltyRate  float64
	InterestRate float64

	ConsistencyTolerance float64
	MaxFuturePaymentDays int

	MaxProductionVolume float64
	MaxUnitPrice        float64

	// SmallScaleVolumeCap limits per-period volume for entities classified
	// as small-scale operations.
	SmallScaleVolumeCap float64
	SmallScaleEntities  []string

	TariffBands map[string]Band

	Entities   []string
	Minerals   []string
	Currencies []string
}

// DefaultRuleset returns the built-in constants used when no configuration
// override is present.
func DefaultRuleset() Ruleset {
	return Ruleset{
		BaseCurrency: "SZL",
		ExchangeRates: map[string]float64{
			"SZL": 1.0,
			"USD": 18.5,
			"EUR": 20.2,
			"ZAR": 1.1,
		},
		PenaltyRate:          0.02,
		InterestRate:         0.12,
		ConsistencyTolerance: 0.05,
		MaxFuturePaymentDays: 365,
		MaxProductionVolume:  1_000_000,
		MaxUnitPrice:         10_000,
		SmallScaleVolumeCap:  10_000,
		SmallScaleEntities:   []string{"Small Scale Mining"},
		TariffBands: map[string]Band{
			"Coal":     {Min: 20, Max: 50},
			"Iron Ore": {Min: 25, Max: 60},
			"Diamond":  {Min: 100, Max: 500},
			"Gold":     {Min: 200, Max: 800},
		},
		Entities: []string{
			"Kwalini Quarry", "Maloma Colliery", "Mbabane Quarry",
			"Ngwenya Mine", "Sidvokodvo Quarry", "Small Scale Mining",
		},
		Minerals:   []string{"Coal", "Iron Ore", "Quarried Stone", "Gravel", "Diamond", "Gold"},
		Currencies: []string{"SZL", "USD", "EUR", "ZAR"},
	}
}

// AllowsMineral reports whether the mineral is on the configured allow-list.
// An empty list allows everything.
func (rs Ruleset) AllowsMineral(mineral string) bool {
	return allows(rs.Minerals, mineral)
}

// AllowsEntity reports whether the entity is on the configured allow-list.
// An empty list allows everything.
func (rs Ruleset) AllowsEntity(entity string) bool {
	return allows(rs.Entities, entity)
}

// AllowsCurrency reports whether the currency is on the configured
// allow-list. An empty list allows everything.
func (rs Ruleset) AllowsCurrency(currency string) bool {
	return allows(rs.Currencies, currency)
}

// IsSmallScale reports whether the entity is classified as a small-scale
// operation subject to the per-period volume cap.
func (rs Ruleset) IsSmallScale(entity string) bool {
	for _, e := range rs.SmallScaleEntities {
		if e == entity {
			return true
		}
	}
	return false
}

func allows(list []string, v string) bool {
	if len(list) == 0 {
		return true
	}
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
