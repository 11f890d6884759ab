// Package opt provides a tagged optional value used wherever a gateway
// response field may legitimately be absent.
package opt

import (
	"bytes"
	"encoding/json"
)

// Value holds either a T or nothing. The zero Value is empty.
type Value[T any] struct {
	v  T
	ok bool
}

func Some[T any](v T) Value[T] {
	return Value[T]{v: v, ok: true}
}

func None[T any]() Value[T] {
	return Value[T]{}
}

// Get returns the held value and whether it is present.
func (o Value[T]) Get() (T, bool) {
	return o.v, o.ok
}

func (o Value[T]) IsSome() bool { return o.ok }

// OrElse returns the held value, or fallback when empty.
func (o Value[T]) OrElse(fallback T) T {
	if o.ok {
		return o.v
	}
	return fallback
}

// MarshalJSON encodes an empty Value as null.
func (o Value[T]) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return []byte("null"), nil
	}
	return json.Marshal(o.v)
}

// UnmarshalJSON treats null as empty.
func (o *Value[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Value[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Value[T]{v: v, ok: true}
	return nil
}
