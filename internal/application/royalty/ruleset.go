package royalty

import (
	"github.com/minegov/royalty-engine/internal/config"
	"github.com/minegov/royalty-engine/internal/domain/royalty"
)

// RulesetFromConfig builds the domain ruleset from the engine section of the
// runtime configuration. Zero-valued config fields fall back to the statutory
// defaults so a partial config file never silently disables a rule. The
// domain never reads configuration itself; callers rebuild the ruleset on a
// config reload and swap in a fresh calculator and validator.
func RulesetFromConfig(cfg config.EngineConfig) royalty.Ruleset {
	rs := royalty.DefaultRuleset()

	if cfg.BaseCurrency != "" {
		rs.BaseCurrency = cfg.BaseCurrency
	}
	if len(cfg.ExchangeRates) > 0 {
		rates := make(map[string]float64, len(cfg.ExchangeRates))
		for code, rate := range cfg.ExchangeRates {
			rates[code] = rate
		}
		rs.ExchangeRates = rates
	}
	if cfg.PenaltyRate > 0 {
		rs.PenaltyRate = cfg.PenaltyRate
	}
	if cfg.InterestRate > 0 {
		rs.InterestRate = cfg.InterestRate
	}
	if cfg.ConsistencyTolerance > 0 {
		rs.ConsistencyTolerance = cfg.ConsistencyTolerance
	}
	if cfg.MaxFuturePaymentDays > 0 {
		rs.MaxFuturePaymentDays = cfg.MaxFuturePaymentDays
	}
	if cfg.MaxProductionVolume > 0 {
		rs.MaxProductionVolume = cfg.MaxProductionVolume
	}
	if cfg.MaxUnitPrice > 0 {
		rs.MaxUnitPrice = cfg.MaxUnitPrice
	}
	if cfg.SmallScaleVolumeCap > 0 {
		rs.SmallScaleVolumeCap = cfg.SmallScaleVolumeCap
	}
	if len(cfg.TariffBands) > 0 {
		bands := make(map[string]royalty.Band, len(cfg.TariffBands))
		for mineral, band := range cfg.TariffBands {
			bands[mineral] = royalty.Band{Min: band.Min, Max: band.Max}
		}
		rs.TariffBands = bands
	}
	if len(cfg.Minerals) > 0 {
		rs.Minerals = append([]string(nil), cfg.Minerals...)
	}
	if len(cfg.Entities) > 0 {
		rs.Entities = append([]string(nil), cfg.Entities...)
	}
	if len(cfg.Currencies) > 0 {
		rs.Currencies = append([]string(nil), cfg.Currencies...)
	}
	return rs
}
