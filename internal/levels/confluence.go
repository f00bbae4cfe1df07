package levels

import (
	"sort"

	"levelflow/internal/models"
	"levelflow/logger"
)

// ConfluenceDetector clusters a level set's structural levels into zones
// where at least two levels coincide within a price tolerance.
type ConfluenceDetector struct {
	tolerance float64
	maxZones  int
	log       *logger.Log
}

// NewConfluenceDetector creates a detector with the given price tolerance
// (2.0 when zero) and zone cap (10 when zero).
func NewConfluenceDetector(tolerance float64, maxZones int) *ConfluenceDetector {
	if tolerance <= 0 {
		tolerance = 2.0
	}
	if maxZones <= 0 {
		maxZones = 10
	}
	return &ConfluenceDetector{
		tolerance: tolerance,
		maxZones:  maxZones,
		log:       logger.GetLogger(),
	}
}

// Detect returns the strongest confluence zones of a level set, ordered by
// member count then total strength, capped at the detector's limit.
//
// Candidate zones are discovered over the flattened levels sorted by
// (price, kind), so identical level sets always produce identical zones
// regardless of input ordering.
func (d *ConfluenceDetector) Detect(set *models.StructuralLevelSet) []models.ConfluenceZone {
	if set == nil {
		return nil
	}

	all := set.Levels()
	if len(all) < 2 {
		return nil
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Price != all[j].Price {
			return all[i].Price < all[j].Price
		}
		return all[i].Kind < all[j].Kind
	})

	var zones []models.ConfluenceZone

	for i, anchor := range all {
		members := []models.Level{anchor}
		for j, other := range all {
			if i == j {
				continue
			}
			if abs(anchor.Price-other.Price) <= d.tolerance {
				members = append(members, other)
			}
		}
		if len(members) < 2 {
			continue
		}

		// A zone whose anchor sits within tolerance of an accepted
		// zone's center is a duplicate of it.
		duplicate := false
		for _, z := range zones {
			if abs(z.CenterPrice-anchor.Price) <= d.tolerance {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}

		zones = append(zones, buildZone(members))
	}

	sort.SliceStable(zones, func(i, j int) bool {
		if zones[i].LevelCount != zones[j].LevelCount {
			return zones[i].LevelCount > zones[j].LevelCount
		}
		return zones[i].TotalStrength > zones[j].TotalStrength
	})

	if len(zones) > d.maxZones {
		zones = zones[:d.maxZones]
	}

	d.log.WithComponent("confluence").WithFields(logger.Fields{
		"instrument": set.Instrument,
		"levels":     len(all),
		"zones":      len(zones),
	}).Info("confluence zones detected")

	return zones
}

func buildZone(members []models.Level) models.ConfluenceZone {
	sum := 0.0
	strength := 0.0
	minPrice := members[0].Price
	maxPrice := members[0].Price
	kinds := make([]models.LevelKind, 0, len(members))

	for _, m := range members {
		sum += m.Price
		strength += m.Strength
		kinds = append(kinds, m.Kind)
		if m.Price < minPrice {
			minPrice = m.Price
		}
		if m.Price > maxPrice {
			maxPrice = m.Price
		}
	}

	return models.ConfluenceZone{
		CenterPrice:   round2(sum / float64(len(members))),
		LevelCount:    len(members),
		TotalStrength: strength,
		Kinds:         kinds,
		PriceRange:    models.PriceRange{Min: minPrice, Max: maxPrice},
		Members:       members,
	}
}
