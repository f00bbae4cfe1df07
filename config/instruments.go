package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrUnknownInstrument is returned when a requested instrument is absent
// from the static instrument table. It is the only condition in the engine
// that surfaces as a hard failure to callers.
var ErrUnknownInstrument = errors.New("instrument not configured")

// Instrument describes one tradable future and its CFD counterpart. The
// futures symbols are venue-qualified candidates tried in order; the CFD
// symbol plus its alternates form the ordered candidate list on the CFD
// side.
type Instrument struct {
	Name                  string   `yaml:"name"`
	TickSize              float64  `yaml:"tick_size"`
	PointValue            float64  `yaml:"point_value"`
	MinLevelDistance      float64  `yaml:"min_level_distance"`
	VolumeProfileBins     int      `yaml:"volume_profile_bins"`
	CFDSymbol             string   `yaml:"cfd_symbol"`
	AlternativeCFDSymbols []string `yaml:"alternative_cfd_symbols"`
	FuturesSymbols        []string `yaml:"futures_symbols"`
	TypicalBasisMin       float64  `yaml:"typical_basis_min"`
	TypicalBasisMax       float64  `yaml:"typical_basis_max"`
	FallbackBasis         float64  `yaml:"fallback_basis"`
}

// CFDCandidates returns the primary CFD symbol followed by the configured
// alternates.
func (i Instrument) CFDCandidates() []string {
	out := make([]string, 0, 1+len(i.AlternativeCFDSymbols))
	out = append(out, i.CFDSymbol)
	out = append(out, i.AlternativeCFDSymbols...)
	return out
}

// WithinTypicalBasis reports whether basis lies inside the instrument's
// typical range.
func (i Instrument) WithinTypicalBasis(basis float64) bool {
	return basis >= i.TypicalBasisMin && basis <= i.TypicalBasisMax
}

// InstrumentTable maps instrument codes (ES, NQ, ...) to their static
// configuration.
type InstrumentTable map[string]Instrument

// Get looks up an instrument by code.
func (t InstrumentTable) Get(code string) (Instrument, error) {
	inst, ok := t[code]
	if !ok {
		return Instrument{}, fmt.Errorf("%w: %s", ErrUnknownInstrument, code)
	}
	return inst, nil
}

// Codes returns the configured instrument codes.
func (t InstrumentTable) Codes() []string {
	codes := make([]string, 0, len(t))
	for code := range t {
		codes = append(codes, code)
	}
	return codes
}

// DefaultInstruments returns the built-in instrument table.
func DefaultInstruments() InstrumentTable {
	return InstrumentTable{
		"ES": {
			Name:                  "E-mini S&P 500",
			TickSize:              0.25,
			PointValue:            50.0,
			MinLevelDistance:      5.0,
			VolumeProfileBins:     50,
			CFDSymbol:             "US500",
			AlternativeCFDSymbols: []string{"SPX500", "SP500", "SPY"},
			FuturesSymbols:        []string{"CME:ES", "GLOBEX:ES"},
			TypicalBasisMin:       -10,
			TypicalBasisMax:       10,
			FallbackBasis:         2.5,
		},
		"NQ": {
			Name:                  "E-mini Nasdaq 100",
			TickSize:              0.25,
			PointValue:            20.0,
			MinLevelDistance:      10.0,
			VolumeProfileBins:     50,
			CFDSymbol:             "US100",
			AlternativeCFDSymbols: []string{"NAS100", "NDX", "QQQ"},
			FuturesSymbols:        []string{"CME:NQ", "GLOBEX:NQ"},
			TypicalBasisMin:       -25,
			TypicalBasisMax:       25,
			FallbackBasis:         5.0,
		},
		"EUR": {
			Name:                  "Euro FX",
			TickSize:              0.00005,
			PointValue:            125000,
			MinLevelDistance:      0.002,
			VolumeProfileBins:     50,
			CFDSymbol:             "EURUSD",
			AlternativeCFDSymbols: []string{"EUR/USD"},
			FuturesSymbols:        []string{"CME:6E", "GLOBEX:6E"},
			TypicalBasisMin:       -0.002,
			TypicalBasisMax:       0.002,
			FallbackBasis:         0.0001,
		},
		"GBP": {
			Name:                  "British Pound",
			TickSize:              0.0001,
			PointValue:            62500,
			MinLevelDistance:      0.003,
			VolumeProfileBins:     50,
			CFDSymbol:             "GBPUSD",
			AlternativeCFDSymbols: []string{"GBP/USD"},
			FuturesSymbols:        []string{"CME:6B", "GLOBEX:6B"},
			TypicalBasisMin:       -0.003,
			TypicalBasisMax:       0.003,
			FallbackBasis:         0.0001,
		},
		"JPY": {
			Name:                  "Japanese Yen",
			TickSize:              0.0000005,
			PointValue:            12500000,
			MinLevelDistance:      0.05,
			VolumeProfileBins:     50,
			CFDSymbol:             "USDJPY",
			AlternativeCFDSymbols: []string{"USD/JPY"},
			FuturesSymbols:        []string{"CME:6J", "GLOBEX:6J"},
			TypicalBasisMin:       -0.5,
			TypicalBasisMax:       0.5,
			FallbackBasis:         0.01,
		},
		"GOLD": {
			Name:                  "Gold",
			TickSize:              0.1,
			PointValue:            100,
			MinLevelDistance:      2.0,
			VolumeProfileBins:     50,
			CFDSymbol:             "XAUUSD",
			AlternativeCFDSymbols: []string{"GOLD", "XAU/USD"},
			FuturesSymbols:        []string{"COMEX:GC", "NYMEX:GC", "CME:GC"},
			TypicalBasisMin:       -5.0,
			TypicalBasisMax:       5.0,
			FallbackBasis:         1.0,
		},
		"SILVER": {
			Name:                  "Silver",
			TickSize:              0.005,
			PointValue:            5000,
			MinLevelDistance:      0.1,
			VolumeProfileBins:     50,
			CFDSymbol:             "XAGUSD",
			AlternativeCFDSymbols: []string{"SILVER", "XAG/USD"},
			FuturesSymbols:        []string{"COMEX:SI", "NYMEX:SI", "CME:SI"},
			TypicalBasisMin:       -0.5,
			TypicalBasisMax:       0.5,
			FallbackBasis:         0.05,
		},
	}
}

// LoadInstruments loads the instrument table from the given yaml file. A
// missing file yields the built-in defaults; entries present in the file
// replace the default entry with the same code.
func LoadInstruments(path string) (InstrumentTable, error) {
	table := DefaultInstruments()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return table, nil
		}
		return nil, fmt.Errorf("failed to read instruments file: %w", err)
	}

	var file struct {
		Instruments map[string]Instrument `yaml:"instruments"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse instruments file: %w", err)
	}

	for code, inst := range file.Instruments {
		if inst.VolumeProfileBins <= 0 {
			inst.VolumeProfileBins = 50
		}
		if inst.MinLevelDistance <= 0 {
			return nil, fmt.Errorf("instrument %s: min_level_distance must be greater than 0", code)
		}
		table[code] = inst
	}

	return table, nil
}
