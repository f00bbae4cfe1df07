package levels

import (
	"fmt"
	"math"

	"levelflow/internal/models"
	"levelflow/logger"
)

// VolumeProfileEngine distributes a session's candle volume across
// equal-width price bins and derives the Point of Control and value area.
type VolumeProfileEngine struct {
	valueAreaPct float64
	log          *logger.Log
}

// NewVolumeProfileEngine creates an engine targeting the given value-area
// share of total volume (0.70 when zero).
func NewVolumeProfileEngine(valueAreaPct float64) *VolumeProfileEngine {
	if valueAreaPct <= 0 {
		valueAreaPct = 0.70
	}
	return &VolumeProfileEngine{
		valueAreaPct: valueAreaPct,
		log:          logger.GetLogger(),
	}
}

// Compute builds the volume profile of one session. Empty input or a
// zero-volume session returns ErrDataUnavailable; a degenerate price range
// returns ErrComputation. Both degrade to an absent profile upstream.
//
// A candle's volume is split equally across every bin its [low, high]
// range touches, not weighted by overlap. That approximation is part of
// the output contract and must not be refined.
func (e *VolumeProfileEngine) Compute(candles []models.Candle, bins int, instrument string) (*models.VolumeProfile, error) {
	log := e.log.WithComponent("volume_profile").WithFields(logger.Fields{
		"instrument": instrument,
		"candles":    len(candles),
	})

	if len(candles) == 0 {
		log.Debug("no candles for session")
		return nil, fmt.Errorf("%w: no candles for %s", ErrDataUnavailable, instrument)
	}
	if bins <= 0 {
		bins = 50
	}

	sessionHigh := candles[0].High
	sessionLow := candles[0].Low
	for _, c := range candles[1:] {
		if c.High > sessionHigh {
			sessionHigh = c.High
		}
		if c.Low < sessionLow {
			sessionLow = c.Low
		}
	}

	priceRange := sessionHigh - sessionLow
	if priceRange <= 0 {
		log.WithFields(logger.Fields{
			"session_high": sessionHigh,
			"session_low":  sessionLow,
		}).Warn("degenerate session price range")
		return nil, fmt.Errorf("%w: price range %.4f for %s", ErrComputation, priceRange, instrument)
	}

	binSize := priceRange / float64(bins)
	volumeByBin := make([]float64, bins)

	binIndex := func(price float64) int {
		idx := int((price - sessionLow) / binSize)
		if idx < 0 {
			return 0
		}
		if idx > bins-1 {
			return bins - 1
		}
		return idx
	}

	for _, c := range candles {
		if c.Volume <= 0 {
			continue
		}
		start := binIndex(c.Low)
		// A high sitting exactly on a bin edge belongs to the bin
		// below it; bins are half-open on the top side.
		end := binIndex(c.High)
		if end > start && sessionLow+float64(end)*binSize == c.High {
			end--
		}
		if start == end {
			volumeByBin[start] += c.Volume
			continue
		}
		share := c.Volume / float64(end-start+1)
		for i := start; i <= end; i++ {
			volumeByBin[i] += share
		}
	}

	totalVolume := 0.0
	for _, v := range volumeByBin {
		totalVolume += v
	}
	if totalVolume <= 0 {
		log.Debug("zero traded volume in session")
		return nil, fmt.Errorf("%w: zero session volume for %s", ErrDataUnavailable, instrument)
	}

	// POC: first maximum in a left-to-right scan.
	pocBin := 0
	for i, v := range volumeByBin {
		if v > volumeByBin[pocBin] {
			pocBin = i
		}
	}

	// Value area expansion from the POC bin outward, larger neighbor
	// first, low side on ties.
	targetVolume := totalVolume * e.valueAreaPct
	valueAreaVolume := volumeByBin[pocBin]
	vaLowBin := pocBin
	vaHighBin := pocBin

	for valueAreaVolume < targetVolume && (vaLowBin > 0 || vaHighBin < bins-1) {
		lowVolume := 0.0
		if vaLowBin > 0 {
			lowVolume = volumeByBin[vaLowBin-1]
		}
		highVolume := 0.0
		if vaHighBin < bins-1 {
			highVolume = volumeByBin[vaHighBin+1]
		}

		if lowVolume >= highVolume && vaLowBin > 0 {
			vaLowBin--
			valueAreaVolume += volumeByBin[vaLowBin]
		} else if highVolume > 0 && vaHighBin < bins-1 {
			vaHighBin++
			valueAreaVolume += volumeByBin[vaHighBin]
		} else {
			break
		}
	}

	binMid := func(i int) float64 {
		return sessionLow + binSize*float64(i) + binSize/2
	}

	ticks := len(candles)
	profile := &models.VolumeProfile{
		POC:                  round2(binMid(pocBin)),
		VAH:                  round2(binMid(vaHighBin)),
		VAL:                  round2(binMid(vaLowBin)),
		SessionHigh:          round2(sessionHigh),
		SessionLow:           round2(sessionLow),
		TotalVolume:          int64(totalVolume),
		ValueAreaVolume:      int64(valueAreaVolume),
		ValueAreaPercentage:  round1(valueAreaVolume / totalVolume * 100),
		TicksInSession:       ticks,
		AverageVolumePerTick: round1(totalVolume / float64(ticks)),
		PriceRange:           round2(priceRange),
		BinSize:              round3(binSize),
	}

	log.WithFields(logger.Fields{
		"poc":          profile.POC,
		"vah":          profile.VAH,
		"val":          profile.VAL,
		"total_volume": profile.TotalVolume,
	}).Info("volume profile computed")

	return profile, nil
}

func round1(x float64) float64 { return math.Round(x*10) / 10 }
func round2(x float64) float64 { return math.Round(x*100) / 100 }
func round3(x float64) float64 { return math.Round(x*1000) / 1000 }
