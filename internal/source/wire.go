package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"spxreplay/internal/model"
)

// DecodeBatch parses the batch wire format: either a JSON object keyed by
// record id ({"0": [open, high, ...], ...}) or a JSON array of records.
//
// Object keys are ordered the way a JavaScript consumer enumerates them:
// integer-like keys ascending, then the remaining keys in document order.
// A repeated key keeps its first position and its last value.
func DecodeBatch(data []byte) (model.Batch, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}

	switch tok {
	case json.Delim('['):
		batch := make(model.Batch, 0)
		for dec.More() {
			values, err := decodeValues(dec)
			if err != nil {
				return nil, fmt.Errorf("decode record %d: %w", len(batch), err)
			}
			batch = append(batch, model.RawRecord{Key: strconv.Itoa(len(batch)), Values: values})
		}
		return batch, nil
	case json.Delim('{'):
		var indexed, named model.Batch
		seen := make(map[string]slot)
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("decode batch key: %w", err)
			}
			key, _ := keyTok.(string)
			values, err := decodeValues(dec)
			if err != nil {
				return nil, fmt.Errorf("decode record %q: %w", key, err)
			}
			if at, ok := seen[key]; ok {
				(*at.batch)[at.index].Values = values
				continue
			}
			rec := model.RawRecord{Key: key, Values: values}
			if isArrayIndex(key) {
				seen[key] = slot{batch: &indexed, index: len(indexed)}
				indexed = append(indexed, rec)
			} else {
				seen[key] = slot{batch: &named, index: len(named)}
				named = append(named, rec)
			}
		}
		sort.SliceStable(indexed, func(i, j int) bool {
			a, _ := strconv.ParseUint(indexed[i].Key, 10, 32)
			b, _ := strconv.ParseUint(indexed[j].Key, 10, 32)
			return a < b
		})
		return append(indexed, named...), nil
	default:
		return nil, errors.New("decode batch: expected object or array")
	}
}

type slot struct {
	batch *model.Batch
	index int
}

// decodeValues reads one positional record. A null record decodes to no values.
func decodeValues(dec *json.Decoder) ([]any, error) {
	var values []any
	if err := dec.Decode(&values); err != nil {
		return nil, err
	}
	return values, nil
}

func isArrayIndex(key string) bool {
	if key == "" || (len(key) > 1 && key[0] == '0') {
		return false
	}
	_, err := strconv.ParseUint(key, 10, 32)
	return err == nil
}

// EncodeBatch writes the batch as a keyed JSON object in batch order.
func EncodeBatch(batch model.Batch) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, rec := range batch {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(rec.Key)
		if err != nil {
			return nil, err
		}
		values, err := json.Marshal(rec.Values)
		if err != nil {
			return nil, fmt.Errorf("encode record %q: %w", rec.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(values)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
