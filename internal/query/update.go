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
	"sort"
	"strings"
)

// Apply applies operator update to the document in-place.
//
// $setOnInsert is applied only if insert is true.
// It returns true if the document was changed.
func Apply(doc, update map[string]any, insert bool) (bool, error) {
	if err := checkConflicts(update); err != nil {
		return false, err
	}

	// apply operators in a stable order
	ops := make([]string, 0, len(update))
	for op := range update {
		ops = append(ops, op)
	}

	sort.Strings(ops)

	var changed bool

	for _, op := range ops {
		fields, ok := update[op].(map[string]any)
		if !ok {
			return false, errorf("modifiers for %s must be a document", op)
		}

		for path, arg := range fields {
			if op == "$setOnInsert" && !insert {
				continue
			}

			if err := checkID(doc, path, arg, insert); err != nil {
				return false, err
			}

			var c bool
			var err error

			switch op {
			case "$set":
				c, err = applySet(doc, path, arg)
			case "$setOnInsert":
				c, err = applySet(doc, path, arg)
			case "$unset":
				c = unset(doc, path)
			case "$inc":
				c, err = applyInc(doc, path, arg)
			default:
				return false, errorf("unknown update operator: %s", op)
			}

			if err != nil {
				return false, err
			}

			changed = changed || c
		}
	}

	return changed, nil
}

// checkConflicts returns an error if the same path (or its parent) is used by several operators.
func checkConflicts(update map[string]any) error {
	seen := map[string]string{}

	for op, v := range update {
		fields, _ := v.(map[string]any)

		for path := range fields {
			for other, otherOp := range seen {
				if path == other || strings.HasPrefix(path, other+".") || strings.HasPrefix(other, path+".") {
					return errorf("updating the path %q would create a conflict at %q (%s and %s)", path, other, op, otherOp)
				}
			}

			seen[path] = op
		}
	}

	return nil
}

// checkID returns an error if the update modifies _id of an existing document.
func checkID(doc map[string]any, path string, arg any, insert bool) error {
	if path != "_id" && !strings.HasPrefix(path, "_id.") {
		return nil
	}

	id, found := doc["_id"]
	if !found && insert {
		return nil
	}

	if path == "_id" && found && Equal(id, arg) {
		return nil
	}

	return errorf("performing an update on the path '_id' would modify the immutable field '_id'")
}

// applySet implements $set.
func applySet(doc map[string]any, path string, arg any) (bool, error) {
	arg, err := NormalizeValue(arg)
	if err != nil {
		return false, err
	}

	if old, found := Get(doc, path); found && Equal(old, arg) {
		return false, nil
	}

	if err = set(doc, path, arg); err != nil {
		return false, err
	}

	return true, nil
}

// applyInc implements $inc.
func applyInc(doc map[string]any, path string, arg any) (bool, error) {
	ai, af, aInt, ok := number(arg)
	if !ok {
		return false, errorf("cannot increment with non-numeric argument: {%s: %v}", path, arg)
	}

	old, found := Get(doc, path)
	if !found {
		if aInt {
			return true, set(doc, path, ai)
		}

		return true, set(doc, path, af)
	}

	oi, of, oInt, ok := number(old)
	if !ok {
		return false, errorf("cannot apply $inc to a value of non-numeric type: {%s: %v}", path, old)
	}

	var res any

	switch {
	case oInt && aInt:
		if ai == 0 {
			return false, nil
		}

		res = oi + ai
	default:
		if oInt {
			of = float64(oi)
		}

		if aInt {
			af = float64(ai)
		}

		if af == 0 {
			return false, nil
		}

		res = of + af
	}

	return true, set(doc, path, res)
}

// Upsert builds a new document for an upsert that matched nothing:
// equality conditions of the filter are copied, then the update is applied as an insert.
func Upsert(filter, update map[string]any) (map[string]any, error) {
	doc := map[string]any{}

	for k, v := range filter {
		if IsOperator(k) {
			continue
		}

		if m, ok := v.(map[string]any); ok {
			ops, _ := OperatorKeys(m)
			if ops {
				eq, ok := m["$eq"]
				if !ok {
					continue
				}

				v = eq
			}
		}

		v, err := NormalizeValue(v)
		if err != nil {
			return nil, err
		}

		if err = set(doc, k, v); err != nil {
			return nil, err
		}
	}

	if _, err := Apply(doc, update, true); err != nil {
		return nil, err
	}

	return doc, nil
}
