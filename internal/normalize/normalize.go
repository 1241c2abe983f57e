package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"spxreplay/internal/model"
)

// ErrMalformedRecord is matched by every *MalformedRecordError.
var ErrMalformedRecord = errors.New("malformed record")

// MalformedRecordError identifies the offending record and field.
type MalformedRecordError struct {
	Index  int
	Key    string
	Field  string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record %d (key %q): %s %s", e.Index, e.Key, e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrMalformedRecord) succeed.
func (e *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-1-2",
}

// Normalize converts a batch into data points, one per record, in batch order.
func Normalize(batch model.Batch) ([]model.DataPoint, error) {
	points := make([]model.DataPoint, 0, len(batch))
	for i, rec := range batch {
		p, err := normalizeRecord(i, rec)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}

func normalizeRecord(index int, rec model.RawRecord) (model.DataPoint, error) {
	malformed := func(field int, reason string) error {
		return &MalformedRecordError{Index: index, Key: rec.Key, Field: model.FieldNames[field], Reason: reason}
	}

	if len(rec.Values) < model.RequiredFields {
		return model.DataPoint{}, malformed(len(rec.Values), "missing")
	}

	var nums [model.FieldTimestamp]float64
	for field := model.FieldOpen; field < model.FieldTimestamp; field++ {
		v := rec.Values[field]
		if v == nil {
			return model.DataPoint{}, malformed(field, "missing")
		}
		f, ok := toFloat(v)
		if !ok {
			return model.DataPoint{}, malformed(field, fmt.Sprintf("not numeric: %v", v))
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return model.DataPoint{}, malformed(field, "not finite")
		}
		nums[field] = f
	}

	if rec.Values[model.FieldTimestamp] == nil {
		return model.DataPoint{}, malformed(model.FieldTimestamp, "missing")
	}
	ts, err := parseTimestamp(rec.Values[model.FieldTimestamp])
	if err != nil {
		return model.DataPoint{}, malformed(model.FieldTimestamp, err.Error())
	}

	p := model.DataPoint{
		Timestamp: ts,
		Open:      nums[model.FieldOpen],
		High:      nums[model.FieldHigh],
		Low:       nums[model.FieldLow],
		Close:     nums[model.FieldClose],
		Volume:    nums[model.FieldVolume],
		Dividends: nums[model.FieldDividends],
		Splits:    nums[model.FieldSplits],
	}

	if len(rec.Values) > model.FieldDecision && rec.Values[model.FieldDecision] != nil {
		d, err := parseDecision(rec.Values[model.FieldDecision])
		if err != nil {
			return model.DataPoint{}, malformed(model.FieldDecision, err.Error())
		}
		p.Decision = d
	}

	return p, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func parseTimestamp(v any) (time.Time, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, nil
			}
		}
		if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(sec, 0).UTC(), nil
		}
		return time.Time{}, fmt.Errorf("unparseable: %q", s)
	}
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("unsupported value: %v", v)
	}
	return time.Unix(int64(f), 0).UTC(), nil
}

func parseDecision(v any) (*model.Decision, error) {
	if s, ok := v.(string); ok {
		sig, ok := model.ParseSignal(s)
		if !ok {
			return nil, fmt.Errorf("unknown signal %q", s)
		}
		return &model.Decision{Signal: sig, Value: sig.Level()}, nil
	}
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("unsupported value: %v", v)
	}
	return &model.Decision{Signal: model.ClassifyScore(f), Value: f}, nil
}
