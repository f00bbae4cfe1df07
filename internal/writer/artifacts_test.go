package writer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	appconfig "levelflow/config"
	"levelflow/internal/models"
)

func testWriter(t *testing.T) *ArtifactWriter {
	t.Helper()
	cfg := &appconfig.Config{
		Levelflow: appconfig.LevelflowConfig{Name: "levelflow", Version: "1.0.0"},
		Artifacts: appconfig.ArtifactsConfig{
			Enabled:     true,
			Dir:         t.TempDir(),
			Compression: "snappy",
		},
	}
	w, err := NewArtifactWriter(cfg)
	if err != nil {
		t.Fatalf("NewArtifactWriter failed: %v", err)
	}
	return w
}

func testLevelSet() *models.StructuralLevelSet {
	return &models.StructuralLevelSet{
		RunID:      "run-1",
		Instrument: "ES",
		OptionLevels: models.OptionLevelGroup{
			Calls: []models.OptionLevel{{Strike: 4500, Side: models.Call, Volume: 200, OpenInterest: 600, RelevanceScore: 440}},
			Puts:  []models.OptionLevel{{Strike: 4450, Side: models.Put, Volume: 150, OpenInterest: 800, RelevanceScore: 540}},
		},
		VolumeProfile:   &models.VolumeProfile{POC: 4501, VAH: 4505, VAL: 4495, TotalVolume: 10000},
		CalculationDate: "2025-01-15",
		CalculatedAt:    time.Date(2025, 1, 15, 22, 0, 0, 0, time.UTC),
	}
}

func TestWriteLevelSet(t *testing.T) {
	w := testWriter(t)
	key, err := w.WriteLevelSet(context.Background(), testLevelSet())
	if err != nil {
		t.Fatalf("WriteLevelSet failed: %v", err)
	}

	if !strings.HasPrefix(key, "kind=levels/instrument=ES/date=2025-01-15/") {
		t.Errorf("key = %q, want partitioned levels path", key)
	}

	path := filepath.Join(w.config.Artifacts.Dir, filepath.FromSlash(key))
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("artifact not written: %v", err)
	}
	if info.Size() == 0 {
		t.Error("artifact file is empty")
	}
}

func TestWriteConfluenceZones(t *testing.T) {
	w := testWriter(t)
	zones := []models.ConfluenceZone{
		{
			CenterPrice:   4500.5,
			LevelCount:    3,
			TotalStrength: 10740,
			PriceRange:    models.PriceRange{Min: 4500, Max: 4501},
		},
	}

	key, err := w.WriteConfluenceZones(context.Background(), testLevelSet(), zones)
	if err != nil {
		t.Fatalf("WriteConfluenceZones failed: %v", err)
	}
	if !strings.HasPrefix(key, "kind=zones/instrument=ES/") {
		t.Errorf("key = %q, want partitioned zones path", key)
	}
	if _, err := os.Stat(filepath.Join(w.config.Artifacts.Dir, filepath.FromSlash(key))); err != nil {
		t.Errorf("artifact not written: %v", err)
	}
}

func TestWriteMappedLevels(t *testing.T) {
	w := testWriter(t)
	basis := &models.BasisRecord{Instrument: "ES", Basis: 2.0, Confidence: models.ConfidenceHigh}
	mapped := []models.MappedLevel{
		{
			OriginalFutureLevel: 4500,
			MappedCFDLevel:      4502,
			BasisApplied:        2.0,
			Confidence:          models.ConfidenceHigh,
			Instrument:          "ES",
			MappingTime:         time.Date(2025, 1, 15, 22, 0, 0, 0, time.UTC),
		},
	}

	key, err := w.WriteMappedLevels(context.Background(), "ES", "2025-01-15", mapped, basis)
	if err != nil {
		t.Fatalf("WriteMappedLevels failed: %v", err)
	}
	if !strings.HasPrefix(key, "kind=mapped/instrument=ES/date=2025-01-15/") {
		t.Errorf("key = %q, want partitioned mapped path", key)
	}
	if _, err := os.Stat(filepath.Join(w.config.Artifacts.Dir, filepath.FromSlash(key))); err != nil {
		t.Errorf("artifact not written: %v", err)
	}
}

func TestWriterWithoutS3(t *testing.T) {
	w := testWriter(t)
	if w.s3Client != nil {
		t.Error("S3 client must not be built when storage is disabled")
	}
}
