/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package serialization

import (
	"encoding"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// maxSafeInteger is the largest integer a float64 represents exactly (2^53 - 1)
	maxSafeInteger = 1<<53 - 1
	minSafeInteger = -maxSafeInteger
)

var (
	timeType      = reflect.TypeFor[time.Time]()
	errorType     = reflect.TypeFor[error]()
	marshalerType = reflect.TypeFor[json.Marshaler]()
	textType      = reflect.TypeFor[encoding.TextMarshaler]()
	stringerType  = reflect.TypeFor[fmt.Stringer]()
)

// NotSerializable returns the placeholder used for values that cannot be
// represented.
func NotSerializable(v any) string {
	return fmt.Sprintf("<not serializable object of type: %s>", typeName(v))
}

// IsSafeInteger reports whether n survives a round trip through float64
func IsSafeInteger(n int64) bool {
	return n >= minSafeInteger && n <= maxSafeInteger
}

// ToJSONValue converts v into a tree of JSON-safe values: nil, bool, float64,
// int64, string, []any and map[string]any.
func ToJSONValue(v any) (out any) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Serialization failed", "type", typeName(v), "panic", fmt.Sprint(r))
			out = NotSerializable(v)
		}
	}()
	c := &converter{seen: map[visit]struct{}{}}
	return c.convert(reflect.ValueOf(v))
}

// ToString renders v as a string. Strings pass through unchanged, scalars are
// JSON encoded and everything else is converted with ToJSONValue and then
// encoded.
func ToString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return "null"
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		b, err := json.Marshal(ToJSONValue(val))
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}

	b, err := json.Marshal(ToJSONValue(v))
	if err != nil {
		slog.Warn("Serialization failed", "type", typeName(v), "error", err)
		quoted, _ := json.Marshal(NotSerializable(v))
		return string(quoted)
	}
	return string(b)
}

// StringMap converts metadata with arbitrary values into string values. Nil
// becomes the empty string, maps and slices are JSON encoded and other values
// use their default formatting.
func StringMap(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = stringValue(v)
	}
	return out
}

func stringValue(v any) string {
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Pointer:
		return ToString(v)
	}
	return fmt.Sprint(v)
}

// MetadataValue converts a single user metadata value to a string. Nil
// becomes "None" so that an explicitly empty value stays distinguishable.
func MetadataValue(v any) string {
	if v == nil {
		return "None"
	}
	return stringValue(v)
}

// FormatTime renders t as RFC 3339 with nanoseconds. UTC times end in "Z",
// others carry their offset.
func FormatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// visit identifies a reference-typed value currently on the conversion stack
type visit struct {
	ptr uintptr
	typ reflect.Type
	len int
}

type converter struct {
	seen map[visit]struct{}
}

func (c *converter) enter(v reflect.Value) (visit, bool) {
	key := visit{ptr: v.Pointer(), typ: v.Type()}
	if v.Kind() == reflect.Slice {
		key.len = v.Len()
	}
	if _, ok := c.seen[key]; ok {
		return key, false
	}
	c.seen[key] = struct{}{}
	return key, true
}

func (c *converter) convert(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}

	// Concrete types with a dedicated rendering come first.
	switch v.Type() {
	case timeType:
		return FormatTime(v.Interface().(time.Time))
	}

	if v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
	}

	if v.CanInterface() {
		if v.Type().Implements(errorType) {
			err := v.Interface().(error)
			return fmt.Sprintf("%s: %s", baseTypeName(v.Type()), err.Error())
		}
		if v.Type().Implements(marshalerType) {
			return c.fromMarshaler(v)
		}
		if v.Type().Implements(textType) {
			if text, err := v.Interface().(encoding.TextMarshaler).MarshalText(); err == nil {
				return string(text)
			}
		}
	}

	switch v.Kind() {
	case reflect.Interface:
		return c.convert(v.Elem())

	case reflect.Pointer:
		key, ok := c.enter(v)
		if !ok {
			return baseTypeName(v.Type())
		}
		defer delete(c.seen, key)
		return c.convert(v.Elem())

	case reflect.Bool:
		return v.Bool()

	case reflect.String:
		return v.String()

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v.CanInterface() && v.Type().Implements(stringerType) {
			return v.Interface().(fmt.Stringer).String()
		}
		n := v.Int()
		if !IsSafeInteger(n) {
			return fmt.Sprintf("%d", n)
		}
		return n

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if v.CanInterface() && v.Type().Implements(stringerType) {
			return v.Interface().(fmt.Stringer).String()
		}
		n := v.Uint()
		if n > maxSafeInteger {
			return fmt.Sprintf("%d", n)
		}
		return int64(n)

	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Sprint(f)
		}
		return f

	case reflect.Complex64, reflect.Complex128:
		return fmt.Sprint(v.Complex())

	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b := v.Bytes()
			if utf8.Valid(b) {
				return string(b)
			}
			return "<not serializable bytes>"
		}
		key, ok := c.enter(v)
		if !ok {
			return baseTypeName(v.Type())
		}
		defer delete(c.seen, key)
		return c.list(v)

	case reflect.Array:
		return c.list(v)

	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		key, ok := c.enter(v)
		if !ok {
			return baseTypeName(v.Type())
		}
		defer delete(c.seen, key)
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[mapKey(iter.Key())] = c.convert(iter.Value())
		}
		return out

	case reflect.Struct:
		out := make(map[string]any)
		c.structFields(v, out)
		return out

	default:
		// Channels, functions and unsafe pointers.
		return "<" + baseTypeName(v.Type()) + ">"
	}
}

func (c *converter) list(v reflect.Value) []any {
	out := make([]any, v.Len())
	for i := range v.Len() {
		out[i] = c.convert(v.Index(i))
	}
	return out
}

func (c *converter) structFields(v reflect.Value, out map[string]any) {
	t := v.Type()
	for i := range t.NumField() {
		field := t.Field(i)
		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")

		if field.Anonymous && name == "" {
			fv := v.Field(i)
			if fv.Kind() == reflect.Pointer {
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			}
			if fv.Kind() == reflect.Struct {
				c.structFields(fv, out)
				continue
			}
		}
		if !field.IsExported() {
			continue
		}
		if name == "" {
			name = field.Name
		}
		fv := v.Field(i)
		if strings.Contains(opts, "omitempty") && fv.IsZero() {
			continue
		}
		out[name] = c.convert(fv)
	}
}

func (c *converter) fromMarshaler(v reflect.Value) any {
	raw, err := v.Interface().(json.Marshaler).MarshalJSON()
	if err != nil {
		return NotSerializable(v.Interface())
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return NotSerializable(v.Interface())
	}
	return decoded
}

func mapKey(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	if k.CanInterface() {
		if s, ok := k.Interface().(fmt.Stringer); ok {
			return s.String()
		}
		return fmt.Sprint(k.Interface())
	}
	return fmt.Sprint(k)
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return baseTypeName(reflect.TypeOf(v))
}

func baseTypeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}
