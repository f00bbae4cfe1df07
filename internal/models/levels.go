package models

import (
	"time"
)

// LevelKind tags the origin of a structural level.
type LevelKind string

const (
	KindCallStrike LevelKind = "CALL_STRIKE"
	KindPutStrike  LevelKind = "PUT_STRIKE"
	KindPOC        LevelKind = "POC"
	KindVAH        LevelKind = "VAH"
	KindVAL        LevelKind = "VAL"
)

// Level is one flattened structural price level with its origin and
// strength, the unit the confluence detector works on.
type Level struct {
	Price        float64   `json:"price"`
	Kind         LevelKind `json:"type"`
	Strength     float64   `json:"strength"`
	Volume       int64     `json:"volume"`
	OpenInterest int64     `json:"open_interest,omitempty"`
}

// OptionLevelGroup groups selected option levels by side.
type OptionLevelGroup struct {
	Calls []OptionLevel `json:"calls"`
	Puts  []OptionLevel `json:"puts"`
}

// StrikeRange is the min/max strike seen in the raw chain.
type StrikeRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// LevelMetadata carries aggregate chain statistics alongside the selected
// levels.
type LevelMetadata struct {
	TotalCallVolume int64       `json:"total_call_volume"`
	TotalPutVolume  int64       `json:"total_put_volume"`
	TotalCallOI     int64       `json:"total_call_oi"`
	TotalPutOI      int64       `json:"total_put_oi"`
	StrikeRange     StrikeRange `json:"strike_range"`
}

// InstrumentConfig is the serialized subset of an instrument's static
// configuration that travels with a level set.
type InstrumentConfig struct {
	Name              string  `json:"name"`
	TickSize          float64 `json:"tick_size"`
	PointValue        float64 `json:"point_value"`
	MinLevelDistance  float64 `json:"min_level_distance"`
	VolumeProfileBins int     `json:"volume_profile_bins"`
}

// StructuralLevelSet is the per-instrument analysis artifact for one date.
// It is immutable once produced.
type StructuralLevelSet struct {
	RunID            string           `json:"run_id"`
	Instrument       string           `json:"instrument"`
	OptionLevels     OptionLevelGroup `json:"option_levels"`
	Metadata         *LevelMetadata   `json:"metadata,omitempty"`
	VolumeProfile    *VolumeProfile   `json:"volume_profile,omitempty"`
	InstrumentConfig InstrumentConfig `json:"instrument_config"`
	CalculationDate  string           `json:"calculation_date"`
	CalculatedAt     time.Time        `json:"calculation_timestamp"`
}

// Levels flattens the set into side-tagged structural levels: every
// selected strike plus POC/VAH/VAL when a profile is present.
func (s *StructuralLevelSet) Levels() []Level {
	var out []Level
	for _, l := range s.OptionLevels.Calls {
		out = append(out, Level{
			Price:        l.Strike,
			Kind:         KindCallStrike,
			Strength:     l.RelevanceScore,
			Volume:       l.Volume,
			OpenInterest: l.OpenInterest,
		})
	}
	for _, l := range s.OptionLevels.Puts {
		out = append(out, Level{
			Price:        l.Strike,
			Kind:         KindPutStrike,
			Strength:     l.RelevanceScore,
			Volume:       l.Volume,
			OpenInterest: l.OpenInterest,
		})
	}
	if vp := s.VolumeProfile; vp != nil {
		for _, pl := range []struct {
			kind  LevelKind
			price float64
		}{
			{KindPOC, vp.POC},
			{KindVAH, vp.VAH},
			{KindVAL, vp.VAL},
		} {
			out = append(out, Level{
				Price:    pl.price,
				Kind:     pl.kind,
				Strength: float64(vp.TotalVolume),
				Volume:   vp.TotalVolume,
			})
		}
	}
	return out
}

// PriceRange is the price band covered by a confluence zone.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// ConfluenceZone is a price region where at least two independently derived
// levels coincide within a tolerance.
type ConfluenceZone struct {
	CenterPrice   float64     `json:"center_price"`
	LevelCount    int         `json:"level_count"`
	TotalStrength float64     `json:"total_strength"`
	Kinds         []LevelKind `json:"types"`
	PriceRange    PriceRange  `json:"price_range"`
	Members       []Level     `json:"contributing_levels"`
}
