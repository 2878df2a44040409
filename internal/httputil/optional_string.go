package httputil

import (
	"bytes"
	"encoding/json"
)

// OptionalString tracks presence and value for JSON PATCH semantics (RFC 7396).
// Go's *string cannot tell an absent field from an explicit null:
//   - Present=false: field absent from JSON (don't change)
//   - Present=true, Value=nil: field is JSON null
//   - Present=true, Value=&"m": field has a value
//
// Tag fields `json:",omitzero"` so an absent value is also omitted on encode.
type OptionalString struct {
	Present bool
	Value   *string
}

// SetString returns a present OptionalString holding s.
func SetString(s string) OptionalString {
	return OptionalString{Present: true, Value: &s}
}

// NullString returns a present OptionalString that encodes as null.
func NullString() OptionalString {
	return OptionalString{Present: true}
}

// String returns the value and whether the field was present and non-null.
func (o OptionalString) String() (string, bool) {
	if !o.Present || o.Value == nil {
		return "", false
	}
	return *o.Value, true
}

// IsZero reports an absent field, for omitzero.
func (o OptionalString) IsZero() bool {
	return !o.Present
}

// UnmarshalJSON implements json.Unmarshaler.
// It only runs when the field is present in the JSON.
func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Present = true

	if string(bytes.TrimSpace(data)) == "null" {
		o.Value = nil
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// MarshalJSON implements json.Marshaler.
func (o OptionalString) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}
