package levels

import (
	"reflect"
	"testing"

	"levelflow/internal/models"
)

func levelSet(calls, puts []models.OptionLevel, profile *models.VolumeProfile) *models.StructuralLevelSet {
	return &models.StructuralLevelSet{
		RunID:         "test-run",
		Instrument:    "ES",
		OptionLevels:  models.OptionLevelGroup{Calls: calls, Puts: puts},
		VolumeProfile: profile,
	}
}

func TestDetectClustersNearbyLevels(t *testing.T) {
	set := levelSet(
		[]models.OptionLevel{{Strike: 4500, Side: models.Call, RelevanceScore: 440, Volume: 200, OpenInterest: 600}},
		[]models.OptionLevel{{Strike: 4501, Side: models.Put, RelevanceScore: 300, Volume: 100, OpenInterest: 400}},
		&models.VolumeProfile{POC: 4500.5, VAH: 4520, VAL: 4480, TotalVolume: 10000},
	)

	det := NewConfluenceDetector(2.0, 10)
	zones := det.Detect(set)

	if len(zones) != 1 {
		t.Fatalf("expected 1 zone, got %d: %+v", len(zones), zones)
	}
	z := zones[0]
	if z.LevelCount != 3 {
		t.Errorf("level count = %d, want 3", z.LevelCount)
	}
	if z.CenterPrice != 4500.5 {
		t.Errorf("center = %v, want 4500.5", z.CenterPrice)
	}
	if z.TotalStrength != 10740 {
		t.Errorf("total strength = %v, want 10740", z.TotalStrength)
	}
	if z.PriceRange.Min != 4500 || z.PriceRange.Max != 4501 {
		t.Errorf("price range = %+v, want [4500, 4501]", z.PriceRange)
	}

	wantKinds := []models.LevelKind{models.KindCallStrike, models.KindPOC, models.KindPutStrike}
	if !reflect.DeepEqual(z.Kinds, wantKinds) {
		t.Errorf("kinds = %v, want %v", z.Kinds, wantKinds)
	}
}

func TestDetectRequiresTwoMembers(t *testing.T) {
	set := levelSet(
		[]models.OptionLevel{
			{Strike: 4500, Side: models.Call, RelevanceScore: 440},
			{Strike: 4600, Side: models.Call, RelevanceScore: 300},
		},
		nil, nil,
	)

	det := NewConfluenceDetector(2.0, 10)
	if zones := det.Detect(set); len(zones) != 0 {
		t.Errorf("isolated levels must not form zones, got %+v", zones)
	}
}

func TestDetectOrdersByCountThenStrength(t *testing.T) {
	set := levelSet(
		[]models.OptionLevel{
			// Pair near 4700 with huge strength.
			{Strike: 4700, Side: models.Call, RelevanceScore: 5000},
			{Strike: 4701, Side: models.Call, RelevanceScore: 5000},
			// Triple near 4500 with modest strength.
			{Strike: 4500, Side: models.Call, RelevanceScore: 100},
		},
		[]models.OptionLevel{
			{Strike: 4500.5, Side: models.Put, RelevanceScore: 100},
			{Strike: 4501, Side: models.Put, RelevanceScore: 100},
		},
		nil,
	)

	det := NewConfluenceDetector(2.0, 10)
	zones := det.Detect(set)

	if len(zones) != 2 {
		t.Fatalf("expected 2 zones, got %d", len(zones))
	}
	if zones[0].LevelCount != 3 {
		t.Errorf("first zone count = %d, want the 3-member zone first", zones[0].LevelCount)
	}
	if zones[1].TotalStrength != 10000 {
		t.Errorf("second zone strength = %v, want 10000", zones[1].TotalStrength)
	}
}

func TestDetectCapsZoneCount(t *testing.T) {
	var calls, puts []models.OptionLevel
	for i := 0; i < 8; i++ {
		price := 4000 + float64(i)*100
		calls = append(calls, models.OptionLevel{Strike: price, Side: models.Call, RelevanceScore: 100})
		puts = append(puts, models.OptionLevel{Strike: price + 1, Side: models.Put, RelevanceScore: 100})
	}

	det := NewConfluenceDetector(2.0, 3)
	zones := det.Detect(levelSet(calls, puts, nil))

	if len(zones) != 3 {
		t.Errorf("expected cap of 3 zones, got %d", len(zones))
	}
}

func TestDetectDeterministicAcrossInputOrder(t *testing.T) {
	forward := levelSet(
		[]models.OptionLevel{
			{Strike: 4500, Side: models.Call, RelevanceScore: 440},
			{Strike: 4501.5, Side: models.Call, RelevanceScore: 200},
		},
		[]models.OptionLevel{{Strike: 4500.5, Side: models.Put, RelevanceScore: 300}},
		nil,
	)
	reversed := levelSet(
		[]models.OptionLevel{
			{Strike: 4501.5, Side: models.Call, RelevanceScore: 200},
			{Strike: 4500, Side: models.Call, RelevanceScore: 440},
		},
		[]models.OptionLevel{{Strike: 4500.5, Side: models.Put, RelevanceScore: 300}},
		nil,
	)

	det := NewConfluenceDetector(2.0, 10)
	a := det.Detect(forward)
	b := det.Detect(reversed)

	if !reflect.DeepEqual(a, b) {
		t.Errorf("zones differ with input order:\n%+v\n%+v", a, b)
	}
}

func TestDetectNilSet(t *testing.T) {
	det := NewConfluenceDetector(2.0, 10)
	if zones := det.Detect(nil); zones != nil {
		t.Errorf("expected nil zones for nil set, got %+v", zones)
	}
}
