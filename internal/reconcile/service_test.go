package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	appconfig "levelflow/config"
	"levelflow/internal/models"
	"levelflow/internal/provider"
)

type stubProvider struct {
	name   string
	prices map[string]float64
	fail   bool

	mu    sync.Mutex
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) GetPrice(ctx context.Context, symbol string) (float64, bool, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.fail {
		return 0, false, errors.New("provider down")
	}
	price, ok := s.prices[symbol]
	return price, ok, nil
}

func (s *stubProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestService(cfd, futures *stubProvider, ttl time.Duration) (*Service, *fixedClock) {
	svc := NewService(appconfig.DefaultInstruments(), provider.NewChain(cfd), provider.NewChain(futures), ttl)
	clock := &fixedClock{now: time.Date(2025, 1, 15, 15, 0, 0, 0, time.UTC)}
	svc.setClock(clock.Now)
	return svc, clock
}

func TestGetBasisLive(t *testing.T) {
	cfd := &stubProvider{name: "cfd", prices: map[string]float64{"US500": 4502.0}}
	futures := &stubProvider{name: "futures", prices: map[string]float64{"CME:ES": 4500.0}}
	svc, _ := newTestService(cfd, futures, 30*time.Second)

	rec, err := svc.GetBasis(context.Background(), "ES")
	if err != nil {
		t.Fatalf("GetBasis failed: %v", err)
	}
	if rec.Basis != 2.0 {
		t.Errorf("basis = %v, want 2.0", rec.Basis)
	}
	if rec.Confidence != models.ConfidenceHigh || !rec.WithinTypicalRange {
		t.Errorf("record = %+v, want high confidence within range", rec)
	}
	if rec.IsFallback {
		t.Error("live record must not be marked fallback")
	}
	if rec.CFDSymbolUsed != "US500" || rec.FutureSymbolUsed != "CME:ES" {
		t.Errorf("symbols = %s/%s", rec.CFDSymbolUsed, rec.FutureSymbolUsed)
	}
	if rec.CFDPrice == nil || *rec.CFDPrice != 4502.0 {
		t.Errorf("cfd price = %v, want 4502.0", rec.CFDPrice)
	}
	if rec.FuturePrice == nil || *rec.FuturePrice != 4500.0 {
		t.Errorf("future price = %v, want 4500.0", rec.FuturePrice)
	}
}

func TestGetBasisCacheHitSkipsProviders(t *testing.T) {
	cfd := &stubProvider{name: "cfd", prices: map[string]float64{"US500": 4502.0}}
	futures := &stubProvider{name: "futures", prices: map[string]float64{"CME:ES": 4500.0}}
	svc, clock := newTestService(cfd, futures, 30*time.Second)

	if _, err := svc.GetBasis(context.Background(), "ES"); err != nil {
		t.Fatalf("first GetBasis failed: %v", err)
	}
	callsAfterFirst := cfd.callCount() + futures.callCount()

	clock.Advance(29 * time.Second)
	rec, err := svc.GetBasis(context.Background(), "ES")
	if err != nil {
		t.Fatalf("second GetBasis failed: %v", err)
	}
	if rec.Basis != 2.0 {
		t.Errorf("cached basis = %v, want 2.0", rec.Basis)
	}
	if got := cfd.callCount() + futures.callCount(); got != callsAfterFirst {
		t.Errorf("provider calls after cache hit = %d, want %d", got, callsAfterFirst)
	}
}

func TestGetBasisExpiryRecomputes(t *testing.T) {
	cfd := &stubProvider{name: "cfd", prices: map[string]float64{"US500": 4502.0}}
	futures := &stubProvider{name: "futures", prices: map[string]float64{"CME:ES": 4500.0}}
	svc, clock := newTestService(cfd, futures, 30*time.Second)

	if _, err := svc.GetBasis(context.Background(), "ES"); err != nil {
		t.Fatalf("first GetBasis failed: %v", err)
	}
	callsAfterFirst := cfd.callCount() + futures.callCount()

	clock.Advance(30 * time.Second)
	if _, err := svc.GetBasis(context.Background(), "ES"); err != nil {
		t.Fatalf("second GetBasis failed: %v", err)
	}
	if got := cfd.callCount() + futures.callCount(); got <= callsAfterFirst {
		t.Error("expected the expired entry to trigger a recompute")
	}
}

func TestGetBasisFallback(t *testing.T) {
	cfd := &stubProvider{name: "cfd", fail: true}
	futures := &stubProvider{name: "futures", prices: map[string]float64{"CME:ES": 4500.0}}
	svc, clock := newTestService(cfd, futures, 30*time.Second)

	rec, err := svc.GetBasis(context.Background(), "ES")
	if err != nil {
		t.Fatalf("GetBasis failed: %v", err)
	}
	if !rec.IsFallback {
		t.Fatal("expected a fallback record")
	}
	if rec.Basis != 2.5 {
		t.Errorf("fallback basis = %v, want 2.5", rec.Basis)
	}
	if rec.Confidence != models.ConfidenceLow {
		t.Errorf("confidence = %v, want low", rec.Confidence)
	}
	if !rec.WithinTypicalRange {
		t.Error("fallback record must report within typical range")
	}
	if rec.CFDPrice != nil || rec.FuturePrice != nil {
		t.Error("fallback record must carry no live prices")
	}
	if rec.CFDSymbolUsed != "fallback" || rec.FutureSymbolUsed != "fallback" {
		t.Errorf("symbols = %s/%s, want fallback/fallback", rec.CFDSymbolUsed, rec.FutureSymbolUsed)
	}

	// The fallback result is cached like a live one.
	calls := cfd.callCount() + futures.callCount()
	clock.Advance(10 * time.Second)
	if _, err := svc.GetBasis(context.Background(), "ES"); err != nil {
		t.Fatalf("cached fallback lookup failed: %v", err)
	}
	if got := cfd.callCount() + futures.callCount(); got != calls {
		t.Errorf("provider calls after cached fallback = %d, want %d", got, calls)
	}
}

func TestGetBasisOutsideTypicalRange(t *testing.T) {
	cfd := &stubProvider{name: "cfd", prices: map[string]float64{"US500": 4600.0}}
	futures := &stubProvider{name: "futures", prices: map[string]float64{"CME:ES": 4500.0}}
	svc, _ := newTestService(cfd, futures, 30*time.Second)

	rec, err := svc.GetBasis(context.Background(), "ES")
	if err != nil {
		t.Fatalf("GetBasis failed: %v", err)
	}
	if rec.WithinTypicalRange {
		t.Error("basis of 100 must be outside the typical ES range")
	}
	if rec.Confidence != models.ConfidenceMedium {
		t.Errorf("confidence = %v, want medium", rec.Confidence)
	}
	if rec.IsFallback {
		t.Error("out-of-range live basis is not a fallback")
	}
}

func TestGetBasisUnknownInstrument(t *testing.T) {
	svc, _ := newTestService(&stubProvider{name: "cfd"}, &stubProvider{name: "futures"}, time.Second)
	if _, err := svc.GetBasis(context.Background(), "DAX"); !errors.Is(err, appconfig.ErrUnknownInstrument) {
		t.Errorf("error = %v, want ErrUnknownInstrument", err)
	}
}

func TestMapLevels(t *testing.T) {
	cfd := &stubProvider{name: "cfd", prices: map[string]float64{"US500": 4502.0}}
	futures := &stubProvider{name: "futures", prices: map[string]float64{"CME:ES": 4500.0}}
	svc, _ := newTestService(cfd, futures, 30*time.Second)

	mapped, rec, err := svc.MapLevels(context.Background(), "ES", []float64{4500, 4600.25})
	if err != nil {
		t.Fatalf("MapLevels failed: %v", err)
	}
	if rec == nil || rec.Basis != 2.0 {
		t.Fatalf("record = %+v, want basis 2.0", rec)
	}
	if len(mapped) != 2 {
		t.Fatalf("mapped %d levels, want 2", len(mapped))
	}
	if mapped[0].MappedCFDLevel != 4502.0 || mapped[1].MappedCFDLevel != 4602.25 {
		t.Errorf("mapped levels = %v / %v", mapped[0].MappedCFDLevel, mapped[1].MappedCFDLevel)
	}
	for _, m := range mapped {
		if m.BasisApplied != 2.0 || m.Confidence != models.ConfidenceHigh || m.Instrument != "ES" {
			t.Errorf("mapped level = %+v", m)
		}
	}
}

func TestMapLevelsUnknownInstrument(t *testing.T) {
	svc, _ := newTestService(&stubProvider{name: "cfd"}, &stubProvider{name: "futures"}, time.Second)
	mapped, rec, err := svc.MapLevels(context.Background(), "DAX", []float64{100})
	if err == nil {
		t.Error("expected an error for an unknown instrument")
	}
	if mapped != nil || rec != nil {
		t.Error("expected no output on failure")
	}
}

func TestGetMultipleBasisIsolatesFailures(t *testing.T) {
	cfd := &stubProvider{name: "cfd", prices: map[string]float64{"US500": 4502.0}}
	futures := &stubProvider{name: "futures", prices: map[string]float64{"CME:ES": 4500.0}}
	svc, _ := newTestService(cfd, futures, 30*time.Second)

	out := svc.GetMultipleBasis(context.Background(), []string{"ES", "DAX"})
	if len(out) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(out))
	}
	if out["ES"] == nil || out["ES"].Basis != 2.0 {
		t.Errorf("ES entry = %+v", out["ES"])
	}
	if out["DAX"] != nil {
		t.Error("expected nil entry for the unknown instrument")
	}
}

func TestClearCacheForcesRecompute(t *testing.T) {
	cfd := &stubProvider{name: "cfd", prices: map[string]float64{"US500": 4502.0}}
	futures := &stubProvider{name: "futures", prices: map[string]float64{"CME:ES": 4500.0}}
	svc, _ := newTestService(cfd, futures, 30*time.Second)

	if _, err := svc.GetBasis(context.Background(), "ES"); err != nil {
		t.Fatalf("first GetBasis failed: %v", err)
	}
	calls := cfd.callCount() + futures.callCount()

	svc.ClearCache()
	if _, err := svc.GetBasis(context.Background(), "ES"); err != nil {
		t.Fatalf("second GetBasis failed: %v", err)
	}
	if got := cfd.callCount() + futures.callCount(); got <= calls {
		t.Error("expected a recompute after ClearCache")
	}
}
