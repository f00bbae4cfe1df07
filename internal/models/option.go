package models

// OptionSide distinguishes call and put contracts.
type OptionSide string

const (
	Call OptionSide = "CALL"
	Put  OptionSide = "PUT"
)

// OptionContractRecord is one raw row of an options chain: a single strike
// on one side with its session volume and open interest.
type OptionContractRecord struct {
	Date         string     `json:"date"`
	Underlying   string     `json:"underlying"`
	Symbol       string     `json:"option_symbol"`
	Strike       float64    `json:"strike"`
	Side         OptionSide `json:"type"`
	Volume       int64      `json:"volume"`
	OpenInterest int64      `json:"open_interest"`
}

// OptionLevel is a selected high-relevance strike. RelevanceScore combines
// volume and open interest; selections are ordered richest first.
type OptionLevel struct {
	Strike         float64    `json:"strike"`
	Side           OptionSide `json:"type"`
	Volume         int64      `json:"volume"`
	OpenInterest   int64      `json:"open_interest"`
	RelevanceScore float64    `json:"relevance_score"`
	Symbol         string     `json:"option_symbol"`
}
