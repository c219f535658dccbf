package accounts

import "encoding/json"

// Optional records whether a JSON field was supplied at all, so a partial
// update can tell "omitted" apart from "set to the zero value". For pointer
// types an explicit null yields Set with a nil Value.
type Optional[T any] struct {
	Value T
	Set   bool
}

// Some wraps a present value.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// UnmarshalJSON is only invoked for keys present in the payload.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	return json.Unmarshal(data, &o.Value)
}

// MarshalJSON encodes the wrapped value, or null when unset.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}
