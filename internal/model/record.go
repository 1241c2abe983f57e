package model

import (
	"strings"
	"time"
)

// Positional layout of a RawRecord as delivered by every source:
// [open, high, low, close, volume, dividends, splits, timestamp, decision?].
const (
	FieldOpen = iota
	FieldHigh
	FieldLow
	FieldClose
	FieldVolume
	FieldDividends
	FieldSplits
	FieldTimestamp
	FieldDecision

	// RequiredFields is the number of positional fields every record must carry.
	RequiredFields = FieldDecision
)

// FieldNames maps positional indexes to human readable names.
var FieldNames = [...]string{
	FieldOpen:      "open",
	FieldHigh:      "high",
	FieldLow:       "low",
	FieldClose:     "close",
	FieldVolume:    "volume",
	FieldDividends: "dividends",
	FieldSplits:    "splits",
	FieldTimestamp: "timestamp",
	FieldDecision:  "decision",
}

// RawRecord is one positional tuple plus the key the source delivered it under.
// Values hold decoded JSON scalars (json.Number, float64, string or nil).
type RawRecord struct {
	Key    string
	Values []any
}

// Batch is an ordered collection of raw records; slice order is canonical.
type Batch []RawRecord

// Signal is the categorical trading decision attached to a bar.
type Signal string

const (
	SignalSell Signal = "Sell"
	SignalHold Signal = "Hold"
	SignalBuy  Signal = "Buy"
)

// Level returns the canonical 0-100 value used when only the label is known.
func (s Signal) Level() float64 {
	switch s {
	case SignalSell:
		return 0
	case SignalBuy:
		return 100
	default:
		return 50
	}
}

// ParseSignal parses a case-insensitive decision label.
func ParseSignal(v string) (Signal, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "sell":
		return SignalSell, true
	case "hold":
		return SignalHold, true
	case "buy":
		return SignalBuy, true
	}
	return "", false
}

// ClassifyScore maps a 0-100 decision score onto a signal.
func ClassifyScore(score float64) Signal {
	switch {
	case score < 45:
		return SignalSell
	case score < 65:
		return SignalHold
	default:
		return SignalBuy
	}
}

// Decision is the optional trading signal of a data point.
type Decision struct {
	Signal Signal  `json:"signal"`
	Value  float64 `json:"value"`
}

// DataPoint is a normalized bar. Values are never mutated after creation.
type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Dividends float64   `json:"dividends"`
	Splits    float64   `json:"splits"`
	Decision  *Decision `json:"decision,omitempty"`
}

// HasDecisions reports whether every point carries a decision.
func HasDecisions(points []DataPoint) bool {
	if len(points) == 0 {
		return false
	}
	for _, p := range points {
		if p.Decision == nil {
			return false
		}
	}
	return true
}

// FirstOutOfOrder returns the first index whose timestamp does not advance, or -1.
func FirstOutOfOrder(points []DataPoint) int {
	for i := 1; i < len(points); i++ {
		if !points[i].Timestamp.After(points[i-1].Timestamp) {
			return i
		}
	}
	return -1
}
