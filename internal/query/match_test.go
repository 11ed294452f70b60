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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FerretDB/datastore/internal/storeerrors"
)

func TestMatch(t *testing.T) {
	t.Parallel()

	doc := map[string]any{
		"_id":    "1",
		"name":   "alice",
		"age":    int64(30),
		"score":  9.5,
		"active": true,
		"tags":   []any{"a", "b"},
		"nested": map[string]any{"city": "Berlin", "zip": int64(10115)},
		"none":   nil,
	}

	for name, tc := range map[string]struct {
		filter   map[string]any
		expected bool
		err      bool
	}{
		"Nil":               {filter: nil, expected: true},
		"Empty":             {filter: map[string]any{}, expected: true},
		"Equality":          {filter: map[string]any{"name": "alice"}, expected: true},
		"EqualityMismatch":  {filter: map[string]any{"name": "bob"}},
		"IntAsInt":          {filter: map[string]any{"age": 30}, expected: true},
		"IntAsFloat":        {filter: map[string]any{"age": 30.0}, expected: true},
		"DottedPath":        {filter: map[string]any{"nested.city": "Berlin"}, expected: true},
		"ArrayIndex":        {filter: map[string]any{"tags.1": "b"}, expected: true},
		"ArrayContains":     {filter: map[string]any{"tags": "a"}, expected: true},
		"ArrayWhole":        {filter: map[string]any{"tags": []any{"a", "b"}}, expected: true},
		"Document":          {filter: map[string]any{"nested": map[string]any{"zip": 10115, "city": "Berlin"}}, expected: true},
		"MissingIsNull":     {filter: map[string]any{"missing": nil}, expected: true},
		"NullIsNull":        {filter: map[string]any{"none": nil}, expected: true},
		"Eq":                {filter: map[string]any{"name": map[string]any{"$eq": "alice"}}, expected: true},
		"Ne":                {filter: map[string]any{"name": map[string]any{"$ne": "alice"}}},
		"NeMissing":         {filter: map[string]any{"missing": map[string]any{"$ne": 1}}, expected: true},
		"Gt":                {filter: map[string]any{"age": map[string]any{"$gt": 29}}, expected: true},
		"GtEqual":           {filter: map[string]any{"age": map[string]any{"$gt": 30}}},
		"Gte":               {filter: map[string]any{"age": map[string]any{"$gte": 30}}, expected: true},
		"Lt":                {filter: map[string]any{"score": map[string]any{"$lt": 10}}, expected: true},
		"Lte":               {filter: map[string]any{"score": map[string]any{"$lte": 9.5}}, expected: true},
		"Range":             {filter: map[string]any{"age": map[string]any{"$gt": 18, "$lt": 65}}, expected: true},
		"GtMissing":         {filter: map[string]any{"missing": map[string]any{"$gt": 0}}},
		"GtString":          {filter: map[string]any{"name": map[string]any{"$gt": "a"}}, expected: true},
		"GtTypeMismatch":    {filter: map[string]any{"name": map[string]any{"$gt": 1}}},
		"In":                {filter: map[string]any{"name": map[string]any{"$in": []any{"bob", "alice"}}}, expected: true},
		"InArrayField":      {filter: map[string]any{"tags": map[string]any{"$in": []any{"b"}}}, expected: true},
		"Nin":               {filter: map[string]any{"name": map[string]any{"$nin": []any{"bob"}}}, expected: true},
		"ExistsTrue":        {filter: map[string]any{"none": map[string]any{"$exists": true}}, expected: true},
		"ExistsFalse":       {filter: map[string]any{"missing": map[string]any{"$exists": false}}, expected: true},
		"And":               {filter: map[string]any{"$and": []any{map[string]any{"name": "alice"}, map[string]any{"active": true}}}, expected: true},
		"AndFalse":          {filter: map[string]any{"$and": []any{map[string]any{"name": "alice"}, map[string]any{"active": false}}}},
		"Or":                {filter: map[string]any{"$or": []map[string]any{{"name": "bob"}, {"age": 30}}}, expected: true},
		"OrFalse":           {filter: map[string]any{"$or": []map[string]any{{"name": "bob"}, {"age": 31}}}},
		"Nor":               {filter: map[string]any{"$nor": []any{map[string]any{"name": "bob"}}}, expected: true},
		"UnknownTopLevel":   {filter: map[string]any{"$where": "1"}, err: true},
		"UnknownOperator":   {filter: map[string]any{"age": map[string]any{"$regex": "x"}}, err: true},
		"MixedOperator":     {filter: map[string]any{"age": map[string]any{"$gt": 1, "x": 1}}, err: true},
		"InNotArray":        {filter: map[string]any{"age": map[string]any{"$in": 30}}, err: true},
		"ExistsNotBool":     {filter: map[string]any{"age": map[string]any{"$exists": 1}}, err: true},
		"OrNotArray":        {filter: map[string]any{"$or": map[string]any{"a": 1}}, err: true},
		"OrEmpty":           {filter: map[string]any{"$or": []any{}}, err: true},
		"OrElementNotDoc":   {filter: map[string]any{"$or": []any{1}}, err: true},
		"DottedPathMissing": {filter: map[string]any{"nested.street": "x"}},
	} {
		name, tc := name, tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			actual, err := Match(doc, tc.filter)
			if tc.err {
				require.Error(t, err)
				assert.True(t, storeerrors.ErrorCodeIs(err, storeerrors.ErrorCodeOperation))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}
