package levels

import (
	"sort"

	"levelflow/internal/models"
	"levelflow/logger"
)

// Relevance weights combining session volume and open interest.
const (
	volumeWeight       = 0.4
	openInterestWeight = 0.6
)

// OptionLevelSelector turns one side of a raw options chain into a short
// list of high-relevance strike levels.
type OptionLevelSelector struct {
	minVolume       int64
	minOpenInterest int64
	maxLevels       int
	log             *logger.Log
}

// NewOptionLevelSelector creates a selector that discards strikes below
// minVolume or minOpenInterest and accepts at most maxLevels per side.
func NewOptionLevelSelector(minVolume, minOpenInterest int64, maxLevels int) *OptionLevelSelector {
	if maxLevels <= 0 {
		maxLevels = 5
	}
	return &OptionLevelSelector{
		minVolume:       minVolume,
		minOpenInterest: minOpenInterest,
		maxLevels:       maxLevels,
		log:             logger.GetLogger(),
	}
}

// RelevanceScore is the ranking weight of one contract row.
func RelevanceScore(volume, openInterest int64) float64 {
	return float64(volume)*volumeWeight + float64(openInterest)*openInterestWeight
}

// Select ranks the records of one side by relevance and greedily accepts
// strikes that keep at least minLevelDistance from every already accepted
// strike. Records on other sides are ignored. Empty input yields an empty
// result.
func (s *OptionLevelSelector) Select(records []models.OptionContractRecord, side models.OptionSide, minLevelDistance float64) []models.OptionLevel {
	candidates := make([]models.OptionLevel, 0, len(records))
	for _, rec := range records {
		if rec.Side != side {
			continue
		}
		if rec.Volume < s.minVolume || rec.OpenInterest < s.minOpenInterest {
			continue
		}
		candidates = append(candidates, models.OptionLevel{
			Strike:         rec.Strike,
			Side:           side,
			Volume:         rec.Volume,
			OpenInterest:   rec.OpenInterest,
			RelevanceScore: RelevanceScore(rec.Volume, rec.OpenInterest),
			Symbol:         rec.Symbol,
		})
	}

	if len(candidates) == 0 {
		s.log.WithComponent("option_selector").WithFields(logger.Fields{
			"side": side,
		}).Debug("no contracts above liquidity floors")
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].RelevanceScore > candidates[j].RelevanceScore
	})

	selected := make([]models.OptionLevel, 0, s.maxLevels)
	for _, cand := range candidates {
		tooClose := false
		for _, acc := range selected {
			if abs(cand.Strike-acc.Strike) < minLevelDistance {
				tooClose = true
				break
			}
		}
		if !tooClose {
			selected = append(selected, cand)
		}
		if len(selected) >= s.maxLevels {
			break
		}
	}

	return selected
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
