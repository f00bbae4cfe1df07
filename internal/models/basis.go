package models

import (
	"time"
)

// Confidence grades the trustworthiness of a basis record.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// BasisRecord is the futures-to-CFD price offset for one instrument at one
// point in time. CFDPrice and FuturePrice are nil on the fallback path.
// A fallback record always carries low confidence.
type BasisRecord struct {
	Instrument         string     `json:"instrument"`
	Basis              float64    `json:"basis"`
	CFDPrice           *float64   `json:"cfd_price"`
	FuturePrice        *float64   `json:"future_price"`
	CFDSymbolUsed      string     `json:"cfd_symbol_used"`
	FutureSymbolUsed   string     `json:"future_symbol_used"`
	CalculationTime    time.Time  `json:"calculation_time"`
	WithinTypicalRange bool       `json:"is_within_typical_range"`
	Confidence         Confidence `json:"confidence"`
	IsFallback         bool       `json:"is_fallback"`
}

// MappedLevel is one future-space price translated into CFD space by
// applying a basis.
type MappedLevel struct {
	OriginalFutureLevel float64    `json:"original_future_level"`
	MappedCFDLevel      float64    `json:"mapped_cfd_level"`
	BasisApplied        float64    `json:"basis_applied"`
	Confidence          Confidence `json:"confidence"`
	Instrument          string     `json:"instrument"`
	MappingTime         time.Time  `json:"mapping_time"`
}
