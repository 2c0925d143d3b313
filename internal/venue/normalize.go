package venue

import (
	"github.com/rs/zerolog/log"

	"github.com/monlabs/monwatch/internal/models"
)

// NormalizeLevels converts venue-native quantities to base-asset units
// by applying the instrument's base-unit multiplier. Total over all
// (price, qty) pairs: levels with unparseable fields are skipped, never
// fatal. After normalization price*qty is quote-currency notional on
// every venue.
func NormalizeLevels(raw [][]interface{}, multiplier float64) []models.BookLevel {
	if multiplier <= 0 {
		log.Warn().Float64("multiplier", multiplier).Msg("invalid base-unit multiplier, assuming 1.0")
		multiplier = 1.0
	}
	levels := make([]models.BookLevel, 0, len(raw))
	for _, entry := range raw {
		if len(entry) < 2 {
			continue
		}
		price, ok := parseFloat(entry[0])
		if !ok {
			continue
		}
		qty, ok := parseFloat(entry[1])
		if !ok {
			continue
		}
		levels = append(levels, models.BookLevel{Price: price, Qty: qty * multiplier})
	}
	return levels
}

// MultiplierOrDefault guards against adapters that could not fetch
// instrument metadata. The 1.0 assumption is logged once per call site.
func MultiplierOrDefault(venue string, multiplier float64) float64 {
	if multiplier > 0 {
		return multiplier
	}
	log.Warn().Str("venue", venue).Msg("missing base-unit multiplier, assuming 1.0")
	return 1.0
}
