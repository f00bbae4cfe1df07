package models

// VolumeProfile holds the session volume distribution statistics derived
// from one instrument's intraday candles: the Point of Control and the
// value area boundaries, plus aggregate session stats.
type VolumeProfile struct {
	POC                  float64 `json:"poc"`
	VAH                  float64 `json:"vah"`
	VAL                  float64 `json:"val"`
	SessionHigh          float64 `json:"session_high"`
	SessionLow           float64 `json:"session_low"`
	TotalVolume          int64   `json:"total_volume"`
	ValueAreaVolume      int64   `json:"value_area_volume"`
	ValueAreaPercentage  float64 `json:"value_area_percentage"`
	TicksInSession       int     `json:"ticks_in_session"`
	AverageVolumePerTick float64 `json:"average_volume_per_tick"`
	PriceRange           float64 `json:"price_range"`
	BinSize              float64 `json:"bin_size"`
}
