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
	"strconv"
	"strings"
)

// Get returns the value at the given dotted path.
func Get(doc map[string]any, path string) (any, bool) {
	var cur any = doc

	for _, p := range strings.Split(path, ".") {
		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[p]
			if !ok {
				return nil, false
			}

			cur = v

		case []any:
			i, err := strconv.Atoi(p)
			if err != nil || i < 0 || i >= len(c) {
				return nil, false
			}

			cur = c[i]

		default:
			return nil, false
		}
	}

	return cur, true
}

// set sets the value at the given dotted path, creating intermediate documents.
func set(doc map[string]any, path string, value any) error {
	parts := strings.Split(path, ".")
	cur := doc

	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p]
		if !ok {
			m := map[string]any{}
			cur[p] = m
			cur = m

			continue
		}

		m, ok := next.(map[string]any)
		if !ok {
			return errorf("cannot create field %q in element {%s: %v}", path, p, next)
		}

		cur = m
	}

	cur[parts[len(parts)-1]] = value

	return nil
}

// unset removes the value at the given dotted path and returns true if it was present.
func unset(doc map[string]any, path string) bool {
	parts := strings.Split(path, ".")
	cur := doc

	for _, p := range parts[:len(parts)-1] {
		m, ok := cur[p].(map[string]any)
		if !ok {
			return false
		}

		cur = m
	}

	last := parts[len(parts)-1]
	if _, ok := cur[last]; !ok {
		return false
	}

	delete(cur, last)

	return true
}
