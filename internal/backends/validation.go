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

package backends

import (
	"fmt"
	"strconv"

	"github.com/FerretDB/datastore/internal/query"
	"github.com/FerretDB/datastore/internal/storeerrors"
)

// ValidateDocument checks that the document can be inserted.
//
// Top-level field names can't start with '$', as such fields would be indistinguishable from operators.
func ValidateDocument(doc Document) error {
	if len(doc) == 0 {
		return storeerrors.Errorf(storeerrors.ErrorCodeValidation, "document must not be null or empty")
	}

	for k := range doc {
		if query.IsOperator(k) {
			return storeerrors.Errorf(storeerrors.ErrorCodeValidation, "field name %q must not start with '$'", k)
		}
	}

	if id := doc["_id"]; id != nil && !ValidID(id) {
		return storeerrors.Errorf(storeerrors.ErrorCodeValidation, "_id must be a non-empty string, a number or a boolean, got %T", id)
	}

	return nil
}

// NormalizeUpdate validates the update and wraps it into $set if it has no operator keys.
//
// Mixing operator and plain keys is rejected.
func NormalizeUpdate(update Update) (Update, error) {
	if len(update) == 0 {
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeValidation, "update must not be null or empty")
	}

	ops, fields := query.OperatorKeys(update)

	switch {
	case ops && fields:
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeValidation, "update must not mix operators and field names")
	case ops:
		return update, nil
	default:
		return Update{"$set": update}, nil
	}
}

// ValidID returns true if v can be used as a document's _id.
//
// Identifiers are scalars: non-empty strings, numbers, booleans,
// and values with hex form such as ObjectIDs.
func ValidID(v any) bool {
	switch v := v.(type) {
	case string:
		return v != ""
	case bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	case interface{ Hex() string }:
		return true
	default:
		return false
	}
}

// IDString returns _id value in the form returned to callers.
//
// Backends also use it as the uniqueness key,
// so identifiers with the same string form (like 42 and "42") are duplicates.
func IDString(id any) string {
	switch id := id.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(id), 'f', -1, 32)
	case interface{ Hex() string }:
		return id.Hex()
	default:
		return fmt.Sprint(id)
	}
}

// PrepareID sets a new _id for the normalized document if it has none,
// and returns _id's string form.
func PrepareID(doc Document) (string, error) {
	id, ok := doc["_id"]
	if !ok || id == nil {
		s := NewID()
		doc["_id"] = s

		return s, nil
	}

	if !ValidID(id) {
		return "", storeerrors.Errorf(storeerrors.ErrorCodeValidation, "_id must be a non-empty string, a number or a boolean, got %T", id)
	}

	return IDString(id), nil
}
