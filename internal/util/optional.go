package util

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Optional is a nullable value that maps to SQL NULL and JSON null.
type Optional[T any] struct {
	Val   T
	IsSet bool
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Val: v, IsSet: true}
}

func None[T any]() Optional[T] {
	return Optional[T]{}
}

// OptionalString treats blank input as absent.
func OptionalString(s string) Optional[string] {
	s = strings.TrimSpace(s)
	if s == "" {
		return None[string]()
	}
	return Some(s)
}

func (o Optional[T]) UnwrapOr(defaultVal T) T {
	if !o.IsSet {
		return defaultVal
	}
	return o.Val
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.IsSet {
		return []byte("null"), nil
	}
	return json.Marshal(o.Val)
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = None[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// Scan implements sql.Scanner.
func (o *Optional[T]) Scan(value any) error {
	if value == nil {
		*o = None[T]()
		return nil
	}

	var v T
	if scanner, ok := any(&v).(interface{ Scan(any) error }); ok {
		if err := scanner.Scan(value); err != nil {
			return err
		}
	} else {
		typed, ok := value.(T)
		if !ok {
			return fmt.Errorf("util: cannot scan %T into Optional[%T]", value, v)
		}
		v = typed
	}

	*o = Some(v)
	return nil
}

// Value implements driver.Valuer.
func (o Optional[T]) Value() (driver.Value, error) {
	if !o.IsSet {
		return nil, nil
	}
	if valuer, ok := any(o.Val).(driver.Valuer); ok {
		return valuer.Value()
	}
	return o.Val, nil
}
