// Package encoding holds the JSON helpers shared by the logs.tf client and the row flattener.
package encoding

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

var (
	ErrDecodeJSON = errors.New("failed to decode JSON")
	ErrNotObject  = errors.New("JSON value is not an object")
)

func UnmarshalJSON[T any](reader io.Reader) (T, error) {
	var value T
	if err := json.NewDecoder(reader).Decode(&value); err != nil {
		return value, errors.Join(err, ErrDecodeJSON)
	}

	return value, nil
}

// Decode is UnmarshalJSON for values already held in memory.
func Decode[T any](raw json.RawMessage) (T, error) {
	return UnmarshalJSON[T](bytes.NewReader(raw))
}

// Value converts a raw JSON value into a scalar suitable for a table cell. Numbers are kept as
// json.Number so they are written back out exactly as received. Objects and arrays are returned
// as compacted json.RawMessage.
func Value(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return nil, errors.Join(err, ErrDecodeJSON)
		}

		return json.RawMessage(buf.Bytes()), nil
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, errors.Join(err, ErrDecodeJSON)
	}

	return value, nil
}
