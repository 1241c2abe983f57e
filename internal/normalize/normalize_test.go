package normalize

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"spxreplay/internal/model"
)

func record(key string, values ...any) model.RawRecord {
	return model.RawRecord{Key: key, Values: values}
}

func TestNormalizeEmptyBatch(t *testing.T) {
	points, err := Normalize(nil)
	if err != nil {
		t.Fatalf("empty batch should not fail: %v", err)
	}
	if len(points) != 0 {
		t.Fatalf("expected no points, got %d", len(points))
	}
}

func TestNormalizePositionalMapping(t *testing.T) {
	batch := model.Batch{
		record("0", 1.0, 2.0, 0.5, 1.5, json.Number("1000"), 0.0, 0.0, "2021-3-5", "Buy"),
		record("1", 1.5, 2.5, 1.0, 2.0, 2000.0, 0.1, 0.0, "2021-03-08"),
	}

	points, err := Normalize(batch)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}

	p := points[0]
	if p.Open != 1 || p.High != 2 || p.Low != 0.5 || p.Close != 1.5 || p.Volume != 1000 {
		t.Fatalf("unexpected numeric mapping: %+v", p)
	}
	if !p.Timestamp.Equal(time.Date(2021, 3, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %s", p.Timestamp)
	}
	if p.Decision == nil || p.Decision.Signal != model.SignalBuy || p.Decision.Value != 100 {
		t.Fatalf("unexpected decision %+v", p.Decision)
	}
	if points[1].Decision != nil {
		t.Fatal("record without field 8 should have no decision")
	}
	if points[1].Dividends != 0.1 {
		t.Fatalf("dividends not mapped: %v", points[1].Dividends)
	}
}

func TestNormalizeNumericDecisionIsClassified(t *testing.T) {
	batch := model.Batch{
		record("0", 1.0, 1.0, 1.0, 1.0, 1.0, 0.0, 0.0, "2021-01-04", 30.0),
		record("1", 1.0, 1.0, 1.0, 1.0, 1.0, 0.0, 0.0, "2021-01-05", json.Number("50")),
		record("2", 1.0, 1.0, 1.0, 1.0, 1.0, 0.0, 0.0, "2021-01-06", 80.0),
	}
	points, err := Normalize(batch)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	want := []model.Signal{model.SignalSell, model.SignalHold, model.SignalBuy}
	for i, p := range points {
		if p.Decision.Signal != want[i] {
			t.Fatalf("point %d: want %s, got %s", i, want[i], p.Decision.Signal)
		}
	}
	if points[0].Decision.Value != 30 {
		t.Fatalf("raw score should be kept, got %v", points[0].Decision.Value)
	}
}

func TestNormalizeMissingFieldReportsIndex(t *testing.T) {
	batch := model.Batch{
		record("0", 1.0, 1.0, 1.0, 1.0, 1.0, 0.0, 0.0, "2021-01-04"),
		record("1", 1.0, 1.0, 1.0, 1.0, 1.0, 0.0, 0.0, "2021-01-05"),
		record("2", 1.0, 1.0, 1.0, 1.0, 1.0, 0.0, 0.0, "2021-01-06"),
		record("3", 1.0, 1.0, 1.0, 1.0, 1.0, 0.0),
	}

	points, err := Normalize(batch)
	if points != nil {
		t.Fatal("no partial output expected on failure")
	}
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
	var mr *MalformedRecordError
	if !errors.As(err, &mr) {
		t.Fatalf("expected *MalformedRecordError, got %T", err)
	}
	if mr.Index != 3 || mr.Field != "timestamp" || mr.Key != "3" {
		t.Fatalf("unexpected error details: %+v", mr)
	}
}

func TestNormalizeRejectsNullAndGarbage(t *testing.T) {
	cases := map[string]model.RawRecord{
		"null close":    record("0", 1.0, 1.0, 1.0, nil, 1.0, 0.0, 0.0, "2021-01-04"),
		"string open":   record("0", "1.0", 1.0, 1.0, 1.0, 1.0, 0.0, 0.0, "2021-01-04"),
		"bad timestamp": record("0", 1.0, 1.0, 1.0, 1.0, 1.0, 0.0, 0.0, "yesterday"),
		"bad decision":  record("0", 1.0, 1.0, 1.0, 1.0, 1.0, 0.0, 0.0, "2021-01-04", "Maybe"),
	}
	for name, rec := range cases {
		if _, err := Normalize(model.Batch{rec}); !errors.Is(err, ErrMalformedRecord) {
			t.Fatalf("%s: expected malformed record, got %v", name, err)
		}
	}
}

func TestNormalizeKeepsSourceOrder(t *testing.T) {
	batch := model.Batch{
		record("a", 1.0, 1.0, 1.0, 3.0, 1.0, 0.0, 0.0, "2021-01-06"),
		record("b", 1.0, 1.0, 1.0, 1.0, 1.0, 0.0, 0.0, "2021-01-04"),
	}
	points, err := Normalize(batch)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if points[0].Close != 3 || points[1].Close != 1 {
		t.Fatal("normalizer must not reorder by timestamp")
	}
	if model.FirstOutOfOrder(points) != 1 {
		t.Fatal("out-of-order index should be reported")
	}
}

func TestNormalizeUnixTimestamp(t *testing.T) {
	batch := model.Batch{record("0", 1.0, 1.0, 1.0, 1.0, 1.0, 0.0, 0.0, json.Number("1609459200"))}
	points, err := Normalize(batch)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !points[0].Timestamp.Equal(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %s", points[0].Timestamp)
	}
}
