// Package reconcile computes the live price offset between a futures
// contract and its CFD counterpart and translates futures-space levels
// into CFD space.
package reconcile

import (
	"context"
	"math"
	"sync"
	"time"

	appconfig "levelflow/config"
	"levelflow/internal/cache"
	"levelflow/internal/models"
	"levelflow/internal/provider"
	"levelflow/logger"
)

// fallbackSymbol marks a basis record built from the static per-instrument
// fallback instead of live quotes.
const fallbackSymbol = "fallback"

// Service computes per-instrument basis records with TTL caching and maps
// structural levels across markets. A basis is the CFD price minus the
// futures price; adding it to a futures level yields the CFD level.
type Service struct {
	instruments appconfig.InstrumentTable
	cfd         *provider.Chain
	futures     *provider.Chain
	cache       *cache.Store[models.BasisRecord]
	ttl         time.Duration
	now         func() time.Time
	log         *logger.Log

	// mu serializes the lookup-compute-store sequence so concurrent
	// callers never compute the same instrument's basis twice.
	mu sync.Mutex
}

// NewService wires a reconciliation service from the instrument table, one
// provider chain per market side and the basis cache TTL.
func NewService(table appconfig.InstrumentTable, cfd, futures *provider.Chain, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	now := time.Now
	return &Service{
		instruments: table,
		cfd:         cfd,
		futures:     futures,
		cache:       cache.NewWithClock[models.BasisRecord](now),
		ttl:         ttl,
		now:         now,
		log:         logger.GetLogger(),
	}
}

// setClock swaps the service and cache clock. Tests only.
func (s *Service) setClock(now func() time.Time) {
	s.now = now
	s.cache = cache.NewWithClock[models.BasisRecord](now)
}

// GetBasis returns the current basis record for an instrument, serving
// from cache within the TTL. When either market side cannot be quoted the
// instrument's static fallback basis is used, graded low confidence, and
// cached for the full TTL like a live record.
func (s *Service) GetBasis(ctx context.Context, instrument string) (*models.BasisRecord, error) {
	inst, err := s.instruments.Get(instrument)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.cache.Get(instrument, s.ttl); ok {
		logger.IncrementCacheHit()
		s.log.WithComponent("reconcile").WithFields(logger.Fields{
			"instrument": instrument,
			"basis":      rec.Basis,
		}).Debug("basis served from cache")
		return &rec, nil
	}

	rec := s.computeBasis(ctx, instrument, inst)
	s.cache.Set(instrument, rec)
	return &rec, nil
}

// GetMultipleBasis resolves basis records for several instruments in one
// pass. Unknown instruments yield a nil entry instead of aborting the
// batch.
func (s *Service) GetMultipleBasis(ctx context.Context, instruments []string) map[string]*models.BasisRecord {
	out := make(map[string]*models.BasisRecord, len(instruments))
	for _, instrument := range instruments {
		rec, err := s.GetBasis(ctx, instrument)
		if err != nil {
			s.log.WithComponent("reconcile").WithError(err).WithFields(logger.Fields{
				"instrument": instrument,
			}).Warn("basis lookup failed")
			out[instrument] = nil
			continue
		}
		out[instrument] = rec
	}
	return out
}

// MapLevels translates futures-space prices into CFD space using the
// instrument's current basis. The basis record the mapping used is
// returned alongside the levels.
func (s *Service) MapLevels(ctx context.Context, instrument string, futureLevels []float64) ([]models.MappedLevel, *models.BasisRecord, error) {
	rec, err := s.GetBasis(ctx, instrument)
	if err != nil {
		return nil, nil, err
	}

	mappingTime := s.now()
	mapped := make([]models.MappedLevel, 0, len(futureLevels))
	for _, level := range futureLevels {
		mapped = append(mapped, models.MappedLevel{
			OriginalFutureLevel: level,
			MappedCFDLevel:      round6(level + rec.Basis),
			BasisApplied:        rec.Basis,
			Confidence:          rec.Confidence,
			Instrument:          instrument,
			MappingTime:         mappingTime,
		})
	}

	s.log.WithComponent("reconcile").WithFields(logger.Fields{
		"instrument": instrument,
		"levels":     len(mapped),
		"basis":      rec.Basis,
		"confidence": rec.Confidence,
	}).Info("levels mapped to CFD space")

	return mapped, rec, nil
}

// ClearCache drops every cached basis record.
func (s *Service) ClearCache() {
	s.cache.Clear()
	s.log.WithComponent("reconcile").Info("basis cache cleared")
}

func (s *Service) computeBasis(ctx context.Context, instrument string, inst appconfig.Instrument) models.BasisRecord {
	log := s.log.WithComponent("reconcile").WithFields(logger.Fields{
		"instrument": instrument,
	})

	cfdPrice, cfdSymbol, cfdErr := s.cfd.Resolve(ctx, inst.CFDCandidates())
	futPrice, futSymbol, futErr := s.futures.Resolve(ctx, inst.FuturesSymbols)

	if cfdErr != nil || futErr != nil {
		logger.IncrementBasisFallback()
		log.WithFields(logger.Fields{
			"cfd_ok":         cfdErr == nil,
			"futures_ok":     futErr == nil,
			"fallback_basis": inst.FallbackBasis,
		}).Warn("live basis unavailable, using fallback")
		return models.BasisRecord{
			Instrument:         instrument,
			Basis:              inst.FallbackBasis,
			CFDSymbolUsed:      fallbackSymbol,
			FutureSymbolUsed:   fallbackSymbol,
			CalculationTime:    s.now(),
			WithinTypicalRange: true,
			Confidence:         models.ConfidenceLow,
			IsFallback:         true,
		}
	}

	basis := round6(cfdPrice - futPrice)
	withinRange := inst.WithinTypicalBasis(basis)
	confidence := models.ConfidenceHigh
	if !withinRange {
		confidence = models.ConfidenceMedium
		log.WithFields(logger.Fields{
			"basis":       basis,
			"typical_min": inst.TypicalBasisMin,
			"typical_max": inst.TypicalBasisMax,
		}).Warn("basis outside typical range")
	}

	logger.IncrementBasisComputed()
	log.WithFields(logger.Fields{
		"basis":      basis,
		"cfd_price":  cfdPrice,
		"cfd_symbol": cfdSymbol,
		"fut_price":  futPrice,
		"fut_symbol": futSymbol,
		"confidence": confidence,
	}).Info("basis computed")

	return models.BasisRecord{
		Instrument:         instrument,
		Basis:              basis,
		CFDPrice:           &cfdPrice,
		FuturePrice:        &futPrice,
		CFDSymbolUsed:      cfdSymbol,
		FutureSymbolUsed:   futSymbol,
		CalculationTime:    s.now(),
		WithinTypicalRange: withinRange,
		Confidence:         confidence,
	}
}

func round6(x float64) float64 { return math.Round(x*1e6) / 1e6 }
