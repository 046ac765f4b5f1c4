package table

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/leighmacdonald/tf-logs/internal/encoding"
)

var errRowDecode = errors.New("failed to decode row")

// Row is a single flattened record. Fields keep the order they were first set in so that the
// column layout of the output follows the source documents.
type Row struct {
	keys   []string
	values map[string]any
}

func NewRow() *Row {
	return &Row{values: map[string]any{}}
}

// Set stores value under key. Overwriting an existing key keeps its original position.
func (r *Row) Set(key string, value any) {
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}

	r.values[key] = value
}

func (r *Row) Get(key string) (any, bool) {
	value, found := r.values[key]

	return value, found
}

// Keys returns the field names in insertion order.
func (r *Row) Keys() []string {
	keys := make([]string, len(r.keys))
	copy(keys, r.keys)

	return keys
}

func (r *Row) Len() int {
	return len(r.keys)
}

// String returns the CSV cell representation of the field. Missing and null fields are empty.
func (r *Row) String(key string) string {
	value, found := r.values[key]
	if !found {
		return ""
	}

	return FormatValue(value)
}

func (r *Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for idx, key := range r.keys {
		if idx > 0 {
			buf.WriteByte(',')
		}

		name, errName := json.Marshal(key)
		if errName != nil {
			return nil, errName
		}

		value, errValue := json.Marshal(r.values[key])
		if errValue != nil {
			return nil, errValue
		}

		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

func (r *Row) UnmarshalJSON(data []byte) error {
	var obj encoding.Object
	if err := json.Unmarshal(data, &obj); err != nil {
		return errors.Join(err, errRowDecode)
	}

	r.keys = nil
	r.values = make(map[string]any, obj.Len())

	for _, key := range obj.Keys {
		value, errValue := encoding.Value(obj.Values[key])
		if errValue != nil {
			return errors.Join(errValue, errRowDecode)
		}

		r.Set(key, value)
	}

	return nil
}

// FormatValue renders a cell value. Floats use the shortest representation that round trips.
func FormatValue(value any) string {
	switch cell := value.(type) {
	case nil:
		return ""
	case string:
		return cell
	case json.Number:
		return cell.String()
	case json.RawMessage:
		return string(cell)
	case float64:
		return strconv.FormatFloat(cell, 'f', -1, 64)
	case int:
		return strconv.Itoa(cell)
	case int64:
		return strconv.FormatInt(cell, 10)
	case bool:
		return strconv.FormatBool(cell)
	default:
		return fmt.Sprint(cell)
	}
}
