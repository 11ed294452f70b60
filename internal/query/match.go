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

// Match returns true if the document matches the filter.
//
// Nil or empty filter matches all documents.
func Match(doc, filter map[string]any) (bool, error) {
	for k, v := range filter {
		var ok bool
		var err error

		switch k {
		case "$and", "$or", "$nor":
			ok, err = matchLogical(doc, k, v)
		default:
			if IsOperator(k) {
				return false, errorf("unknown top level operator: %s", k)
			}

			ok, err = matchField(doc, k, v)
		}

		if err != nil || !ok {
			return false, err
		}
	}

	return true, nil
}

// matchLogical handles $and, $or, and $nor.
func matchLogical(doc map[string]any, op string, arg any) (bool, error) {
	filters, err := filterList(op, arg)
	if err != nil {
		return false, err
	}

	for _, f := range filters {
		ok, err := Match(doc, f)
		if err != nil {
			return false, err
		}

		switch {
		case op == "$and" && !ok:
			return false, nil
		case op == "$or" && ok:
			return true, nil
		case op == "$nor" && ok:
			return false, nil
		}
	}

	return op != "$or", nil
}

// filterList converts the argument of a logical operator.
func filterList(op string, arg any) ([]map[string]any, error) {
	var res []map[string]any

	switch arg := arg.(type) {
	case []map[string]any:
		res = arg
	case []any:
		res = make([]map[string]any, len(arg))

		for i, e := range arg {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, errorf("%s elements must be documents", op)
			}

			res[i] = m
		}
	default:
		return nil, errorf("%s must be an array", op)
	}

	if len(res) == 0 {
		return nil, errorf("%s must be a nonempty array", op)
	}

	return res, nil
}

// matchField matches a single field condition.
func matchField(doc map[string]any, path string, cond any) (bool, error) {
	v, found := Get(doc, path)

	m, ok := cond.(map[string]any)
	if !ok {
		return equal(v, found, cond), nil
	}

	ops, fields := OperatorKeys(m)

	switch {
	case ops && fields:
		return false, errorf("unknown operator in %v", m)
	case !ops:
		// literal document
		return equal(v, found, cond), nil
	}

	for op, arg := range m {
		ok, err := matchOperator(v, found, op, arg)
		if err != nil || !ok {
			return false, err
		}
	}

	return true, nil
}

// matchOperator evaluates one comparison operator.
func matchOperator(v any, found bool, op string, arg any) (bool, error) {
	switch op {
	case "$eq":
		return equal(v, found, arg), nil

	case "$ne":
		return !equal(v, found, arg), nil

	case "$gt", "$gte", "$lt", "$lte":
		if !found {
			return false, nil
		}

		return anyElement(v, func(e any) bool {
			c, ok := Compare(e, arg)
			if !ok {
				return false
			}

			switch op {
			case "$gt":
				return c > 0
			case "$gte":
				return c >= 0
			case "$lt":
				return c < 0
			default:
				return c <= 0
			}
		}), nil

	case "$in", "$nin":
		list, ok := arg.([]any)
		if !ok {
			return false, errorf("%s needs an array", op)
		}

		var in bool

		for _, e := range list {
			if equal(v, found, e) {
				in = true
				break
			}
		}

		return in == (op == "$in"), nil

	case "$exists":
		b, ok := arg.(bool)
		if !ok {
			return false, errorf("$exists needs a boolean")
		}

		return found == b, nil

	default:
		return false, errorf("unknown operator: %s", op)
	}
}

// equal implements equality semantics of filters:
// missing field equals nil, and an array field matches if any element is equal.
func equal(v any, found bool, arg any) bool {
	if !found {
		return arg == nil
	}

	if Equal(v, arg) {
		return true
	}

	if arr, ok := v.([]any); ok {
		for _, e := range arr {
			if Equal(e, arg) {
				return true
			}
		}
	}

	return false
}

// anyElement applies f to the value, or to each element if the value is an array.
func anyElement(v any, f func(any) bool) bool {
	arr, ok := v.([]any)
	if !ok {
		return f(v)
	}

	for _, e := range arr {
		if f(e) {
			return true
		}
	}

	return false
}
