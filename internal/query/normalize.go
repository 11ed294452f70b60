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
	"bytes"
	"encoding/json"
	"math"

	"github.com/FerretDB/datastore/internal/storeerrors"
)

// Normalize returns a deep copy of the given document with canonical value types:
// nested documents become map[string]any, arrays become []any,
// integral numbers become int64 and other numbers become float64.
//
// Values are converted the same way encoding/json encodes them
// (for example, time.Time becomes an RFC 3339 string).
func Normalize(doc map[string]any) (map[string]any, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, storeerrors.New(storeerrors.ErrorCodeValidation, err)
	}

	return Unmarshal(b)
}

// Unmarshal decodes a JSON document into a normalized mapping.
func Unmarshal(b []byte) (map[string]any, error) {
	d := json.NewDecoder(bytes.NewReader(b))
	d.UseNumber()

	var res map[string]any
	if err := d.Decode(&res); err != nil {
		return nil, storeerrors.New(storeerrors.ErrorCodeOperation, err)
	}

	return normalizeValue(res).(map[string]any), nil
}

// NormalizeValue converts a single value the same way as [Normalize].
func NormalizeValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, storeerrors.New(storeerrors.ErrorCodeValidation, err)
	}

	d := json.NewDecoder(bytes.NewReader(b))
	d.UseNumber()

	var res any
	if err = d.Decode(&res); err != nil {
		return nil, storeerrors.New(storeerrors.ErrorCodeOperation, err)
	}

	return normalizeValue(res), nil
}

// normalizeValue replaces json.Number values in-place.
func normalizeValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		for k, e := range v {
			v[k] = normalizeValue(e)
		}

		return v

	case []any:
		for i, e := range v {
			v[i] = normalizeValue(e)
		}

		return v

	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}

		f, err := v.Float64()
		if err != nil {
			// out of float64 range; keep the text form
			return v.String()
		}

		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f)
		}

		return f

	default:
		return v
	}
}
