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

// Package query implements document filter matching, update operators, and projections
// for backends without a native document query language.
//
// Supported filter operators: $eq, $ne, $gt, $gte, $lt, $lte, $in, $nin, $exists,
// and top-level $and, $or, $nor.
// Supported update operators: $set, $unset, $inc, $setOnInsert.
//
// Field paths may be dotted ("a.b.c"); numeric path elements index arrays.
package query

import (
	"strings"

	"github.com/FerretDB/datastore/internal/storeerrors"
)

// IsOperator returns true if the given key is an operator.
func IsOperator(key string) bool {
	return strings.HasPrefix(key, "$")
}

// OperatorKeys reports whether the given mapping has operator keys and non-operator keys.
func OperatorKeys(m map[string]any) (operators, fields bool) {
	for k := range m {
		if IsOperator(k) {
			operators = true
		} else {
			fields = true
		}
	}

	return
}

// errorf returns a new operation error.
func errorf(format string, args ...any) error {
	return storeerrors.Errorf(storeerrors.ErrorCodeOperation, format, args...)
}
