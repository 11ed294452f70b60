// Copyright 2021 FerretDB Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package query

import (
	"encoding/json"
	"reflect"
	"strings"
)

// number returns the value as int64 or float64, and whether it is a number at all.
func number(v any) (i int64, f float64, isInt, ok bool) {
	switch v := v.(type) {
	case int:
		return int64(v), 0, true, true
	case int8:
		return int64(v), 0, true, true
	case int16:
		return int64(v), 0, true, true
	case int32:
		return int64(v), 0, true, true
	case int64:
		return v, 0, true, true
	case uint:
		return int64(v), 0, true, true
	case uint8:
		return int64(v), 0, true, true
	case uint16:
		return int64(v), 0, true, true
	case uint32:
		return int64(v), 0, true, true
	case uint64:
		return int64(v), 0, true, true
	case float32:
		return 0, float64(v), false, true
	case float64:
		return 0, v, false, true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, 0, true, true
		}

		if f, err := v.Float64(); err == nil {
			return 0, f, false, true
		}
	}

	return 0, 0, false, false
}

// Compare compares two scalar values.
//
// Numbers of any Go type are compared by value, strings lexicographically, booleans with false < true.
// Nil is equal only to nil.
// It returns false if values are not comparable.
func Compare(a, b any) (int, bool) {
	ai, af, aInt, aNum := number(a)
	bi, bf, bInt, bNum := number(b)

	switch {
	case aNum && bNum:
		if aInt && bInt {
			switch {
			case ai < bi:
				return -1, true
			case ai > bi:
				return 1, true
			default:
				return 0, true
			}
		}

		if aInt {
			af = float64(ai)
		}

		if bInt {
			bf = float64(bi)
		}

		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}

	case aNum || bNum:
		return 0, false
	}

	switch a := a.(type) {
	case nil:
		if b == nil {
			return 0, true
		}

	case string:
		if b, ok := b.(string); ok {
			return strings.Compare(a, b), true
		}

	case bool:
		if b, ok := b.(bool); ok {
			switch {
			case a == b:
				return 0, true
			case !a:
				return -1, true
			default:
				return 1, true
			}
		}
	}

	return 0, false
}

// Equal returns true if values are equal.
//
// Numbers are compared by value; documents and arrays are compared recursively.
func Equal(a, b any) bool {
	if c, ok := Compare(a, b); ok {
		return c == 0
	}

	switch a := a.(type) {
	case map[string]any:
		b, ok := b.(map[string]any)
		if !ok || len(a) != len(b) {
			return false
		}

		for k, av := range a {
			bv, ok := b[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}

		return true

	case []any:
		b, ok := b.([]any)
		if !ok || len(a) != len(b) {
			return false
		}

		for i := range a {
			if !Equal(a[i], b[i]) {
				return false
			}
		}

		return true
	}

	return reflect.DeepEqual(a, b)
}
