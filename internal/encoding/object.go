package encoding

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Object is a JSON object that remembers the order its keys appeared in the document. Duplicate
// keys keep their first position and their last value.
type Object struct {
	Keys   []string
	Values map[string]json.RawMessage
}

func (o *Object) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))

	token, errToken := decoder.Token()
	if errToken != nil {
		return errors.Join(errToken, ErrDecodeJSON)
	}

	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return ErrNotObject
	}

	keys := []string{}
	values := map[string]json.RawMessage{}

	for decoder.More() {
		keyToken, errKey := decoder.Token()
		if errKey != nil {
			return errors.Join(errKey, ErrDecodeJSON)
		}

		key, ok := keyToken.(string)
		if !ok {
			return ErrDecodeJSON
		}

		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			return errors.Join(err, ErrDecodeJSON)
		}

		if _, exists := values[key]; !exists {
			keys = append(keys, key)
		}
		values[key] = raw
	}

	if _, err := decoder.Token(); err != nil {
		return errors.Join(err, ErrDecodeJSON)
	}

	o.Keys = keys
	o.Values = values

	return nil
}

// Len returns the number of distinct keys.
func (o Object) Len() int {
	return len(o.Keys)
}

// Get returns the raw value stored under key.
func (o Object) Get(key string) (json.RawMessage, bool) {
	raw, found := o.Values[key]

	return raw, found
}
