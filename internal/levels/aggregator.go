package levels

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	appconfig "levelflow/config"
	"levelflow/internal/models"
	"levelflow/logger"
)

// DataLoader supplies the raw market data the aggregator consumes. An
// implementation returns empty slices for missing dates and errors only for
// unreadable input.
type DataLoader interface {
	LoadOptions(date time.Time) ([]models.OptionContractRecord, error)
	LoadCandles(date time.Time, instrument string) ([]models.Candle, error)
}

// Aggregator composes option level selection and the volume profile into a
// per-instrument structural level set for one date.
type Aggregator struct {
	loader      DataLoader
	instruments appconfig.InstrumentTable
	selector    *OptionLevelSelector
	profiles    *VolumeProfileEngine
	log         *logger.Log
}

// NewAggregator wires a level aggregator from the application config, the
// static instrument table and a data loader.
func NewAggregator(cfg *appconfig.Config, table appconfig.InstrumentTable, loader DataLoader) *Aggregator {
	return &Aggregator{
		loader:      loader,
		instruments: table,
		selector:    NewOptionLevelSelector(cfg.Levels.MinVolume, cfg.Levels.MinOpenInterest, cfg.Levels.MaxLevelsPerSide),
		profiles:    NewVolumeProfileEngine(cfg.Levels.ValueAreaPercentage),
		log:         logger.GetLogger(),
	}
}

// BuildLevelSet produces the structural level set for one instrument and
// date. Missing options or candles degrade to a partial set; only an
// unknown instrument or corrupt input is an error.
func (a *Aggregator) BuildLevelSet(date time.Time, instrument string) (*models.StructuralLevelSet, error) {
	inst, err := a.instruments.Get(instrument)
	if err != nil {
		return nil, err
	}

	dateStr := date.Format("2006-01-02")
	log := a.log.WithComponent("aggregator").WithFields(logger.Fields{
		"instrument": instrument,
		"date":       dateStr,
	})
	log.Info("building structural level set")

	start := time.Now()

	options, err := a.loader.LoadOptions(date)
	if err != nil {
		return nil, fmt.Errorf("load options for %s: %w", dateStr, err)
	}

	chain := filterUnderlying(options, instrument)
	group := models.OptionLevelGroup{
		Calls: a.selector.Select(chain, models.Call, inst.MinLevelDistance),
		Puts:  a.selector.Select(chain, models.Put, inst.MinLevelDistance),
	}

	var meta *models.LevelMetadata
	if len(chain) > 0 {
		meta = chainMetadata(chain)
	}

	candles, err := a.loader.LoadCandles(date, instrument)
	if err != nil {
		return nil, fmt.Errorf("load candles for %s %s: %w", instrument, dateStr, err)
	}

	profile, err := a.profiles.Compute(candles, inst.VolumeProfileBins, instrument)
	if err != nil {
		// Missing or degenerate sessions leave the profile absent; the
		// option levels alone still make a usable set.
		if errors.Is(err, ErrDataUnavailable) || errors.Is(err, ErrComputation) {
			log.WithError(err).Warn("volume profile unavailable, continuing with option levels only")
			profile = nil
		} else {
			return nil, err
		}
	}

	set := &models.StructuralLevelSet{
		RunID:         uuid.New().String(),
		Instrument:    instrument,
		OptionLevels:  group,
		Metadata:      meta,
		VolumeProfile: profile,
		InstrumentConfig: models.InstrumentConfig{
			Name:              inst.Name,
			TickSize:          inst.TickSize,
			PointValue:        inst.PointValue,
			MinLevelDistance:  inst.MinLevelDistance,
			VolumeProfileBins: inst.VolumeProfileBins,
		},
		CalculationDate: dateStr,
		CalculatedAt:    time.Now(),
	}

	logger.LogPerformanceEntry(log, "aggregator", "build_level_set", time.Since(start), logger.Fields{
		"call_levels": len(group.Calls),
		"put_levels":  len(group.Puts),
		"has_profile": profile != nil,
	})

	return set, nil
}

// BuildAll runs BuildLevelSet for every requested instrument. A failure for
// one instrument is recorded as an absent entry and does not abort the
// rest; unknown instruments are skipped the same way.
func (a *Aggregator) BuildAll(date time.Time, instruments []string) map[string]*models.StructuralLevelSet {
	results := make(map[string]*models.StructuralLevelSet, len(instruments))
	for _, instrument := range instruments {
		set, err := a.BuildLevelSet(date, instrument)
		if err != nil {
			a.log.WithComponent("aggregator").WithError(err).WithFields(logger.Fields{
				"instrument": instrument,
			}).Warn("level set build failed")
			results[instrument] = nil
			continue
		}
		results[instrument] = set
	}
	return results
}

func filterUnderlying(records []models.OptionContractRecord, underlying string) []models.OptionContractRecord {
	var out []models.OptionContractRecord
	for _, rec := range records {
		if rec.Underlying == underlying {
			out = append(out, rec)
		}
	}
	return out
}

func chainMetadata(chain []models.OptionContractRecord) *models.LevelMetadata {
	meta := &models.LevelMetadata{
		StrikeRange: models.StrikeRange{Min: chain[0].Strike, Max: chain[0].Strike},
	}
	for _, rec := range chain {
		switch rec.Side {
		case models.Call:
			meta.TotalCallVolume += rec.Volume
			meta.TotalCallOI += rec.OpenInterest
		case models.Put:
			meta.TotalPutVolume += rec.Volume
			meta.TotalPutOI += rec.OpenInterest
		}
		if rec.Strike < meta.StrikeRange.Min {
			meta.StrikeRange.Min = rec.Strike
		}
		if rec.Strike > meta.StrikeRange.Max {
			meta.StrikeRange.Max = rec.Strike
		}
	}
	return meta
}
