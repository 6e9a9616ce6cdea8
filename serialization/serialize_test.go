/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package serialization

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

type address struct {
	Street string `json:"street"`
	Zip    string `json:"zip,omitempty"`
	secret string
}

type person struct {
	Name    string   `json:"name"`
	Age     int      `json:"age"`
	Address *address `json:"address,omitempty"`
	Ignored string   `json:"-"`
	NoTag   bool
}

type node struct {
	Name string `json:"name"`
	Next *node  `json:"next"`
}

type level int

func (l level) String() string { return [...]string{"low", "high"}[l] }

func TestToJSONValue(t *testing.T) {
	id := uuid.MustParse("6b2d7f4e-2c36-4f9b-a1f1-2d6c8f9d5a10")
	ts := time.Date(2026, 3, 4, 5, 6, 7, 8, time.UTC)

	tests := []struct {
		name  string
		input any
		want  any
	}{{
		name:  "nil",
		input: nil,
		want:  nil,
	}, {
		name:  "string",
		input: "hello",
		want:  "hello",
	}, {
		name:  "safe integer",
		input: 42,
		want:  int64(42),
	}, {
		name:  "largest safe integer",
		input: int64(1<<53 - 1),
		want:  int64(1<<53 - 1),
	}, {
		name:  "unsafe integer",
		input: int64(1 << 53),
		want:  "9007199254740992",
	}, {
		name:  "unsafe negative integer",
		input: int64(-(1 << 60)),
		want:  "-1152921504606846976",
	}, {
		name:  "unsafe unsigned integer",
		input: uint64(math.MaxUint64),
		want:  "18446744073709551615",
	}, {
		name:  "float",
		input: 1.5,
		want:  1.5,
	}, {
		name:  "nan",
		input: math.NaN(),
		want:  "NaN",
	}, {
		name:  "time",
		input: ts,
		want:  "2026-03-04T05:06:07.000000008Z",
	}, {
		name:  "uuid",
		input: id,
		want:  id.String(),
	}, {
		name:  "stringer enum",
		input: level(1),
		want:  "high",
	}, {
		name:  "bytes",
		input: []byte("raw"),
		want:  "raw",
	}, {
		name:  "error",
		input: errors.New("boom"),
		want:  "errorString: boom",
	}, {
		name:  "struct with tags",
		input: person{Name: "ada", Age: 36, Address: &address{Street: "main", secret: "x"}, Ignored: "y", NoTag: true},
		want: map[string]any{
			"name":    "ada",
			"age":     int64(36),
			"address": map[string]any{"street": "main"},
			"NoTag":   true,
		},
	}, {
		name:  "map with int keys",
		input: map[int]string{1: "a"},
		want:  map[string]any{"1": "a"},
	}, {
		name:  "nested slices",
		input: []any{1, "two", []int{3}},
		want:  []any{int64(1), "two", []any{int64(3)}},
	}, {
		name:  "raw json",
		input: json.RawMessage(`{"a":[1,2]}`),
		want:  map[string]any{"a": []any{float64(1), float64(2)}},
	}, {
		name:  "function",
		input: func() {},
		want:  "<func()>",
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToJSONValue(tt.input)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ToJSONValue() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestToJSONValueCycles(t *testing.T) {
	a := &node{Name: "a"}
	b := &node{Name: "b", Next: a}
	a.Next = b

	got := ToJSONValue(a)
	want := map[string]any{
		"name": "a",
		"next": map[string]any{
			"name": "b",
			"next": "node",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ToJSONValue() mismatch (-want +got):\n%s", diff)
	}

	m := map[string]any{"k": "v"}
	m["self"] = m
	gotMap, ok := ToJSONValue(m).(map[string]any)
	if !ok {
		t.Fatalf("ToJSONValue(map) = %T, wanted map[string]any", ToJSONValue(m))
	}
	if got, wanted := gotMap["self"], "map[string]interface {}"; got != wanted {
		t.Errorf("self reference = %v, wanted = %v", got, wanted)
	}
}

func TestToJSONValueSharedSiblings(t *testing.T) {
	shared := &address{Street: "elm"}
	got := ToJSONValue([]*address{shared, shared})
	want := []any{
		map[string]any{"street": "elm"},
		map[string]any{"street": "elm"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("shared pointers should not be treated as cycles (-want +got):\n%s", diff)
	}
}

func TestToString(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{{
		name:  "string passes through",
		input: "plain",
		want:  "plain",
	}, {
		name:  "nil",
		input: nil,
		want:  "null",
	}, {
		name:  "integer",
		input: 7,
		want:  "7",
	}, {
		name:  "bool",
		input: true,
		want:  "true",
	}, {
		name:  "map",
		input: map[string]any{"b": 1, "a": "x"},
		want:  `{"a":"x","b":1}`,
	}, {
		name:  "big integer in list",
		input: []int64{1 << 62},
		want:  `["4611686018427387904"]`,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToString(tt.input); got != tt.want {
				t.Errorf("ToString() = %q, wanted = %q", got, tt.want)
			}
		})
	}
}

func TestStringMap(t *testing.T) {
	got := StringMap(map[string]any{
		"nil":    nil,
		"string": "s",
		"int":    3,
		"list":   []string{"a", "b"},
		"level":  level(0),
	})
	want := map[string]string{
		"nil":    "",
		"string": "s",
		"int":    "3",
		"list":   `["a","b"]`,
		"level":  "low",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("StringMap() mismatch (-want +got):\n%s", diff)
	}
}

func TestMetadataValue(t *testing.T) {
	if got, wanted := MetadataValue(nil), "None"; got != wanted {
		t.Errorf("MetadataValue(nil) = %q, wanted = %q", got, wanted)
	}
	if got, wanted := MetadataValue(2.5), "2.5"; got != wanted {
		t.Errorf("MetadataValue(2.5) = %q, wanted = %q", got, wanted)
	}
}

func TestNotSerializable(t *testing.T) {
	got := NotSerializable(make(chan int))
	if !strings.HasPrefix(got, "<not serializable object of type: ") {
		t.Errorf("NotSerializable() = %q, wanted the placeholder prefix", got)
	}
}

func TestFormatTime(t *testing.T) {
	loc := time.FixedZone("test", 2*60*60)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, loc)
	if got, wanted := FormatTime(ts), "2026-01-02T03:04:05+02:00"; got != wanted {
		t.Errorf("FormatTime() = %q, wanted = %q", got, wanted)
	}
	if got, wanted := FormatTime(ts.UTC()), "2026-01-02T01:04:05Z"; got != wanted {
		t.Errorf("FormatTime(UTC) = %q, wanted = %q", got, wanted)
	}
}
