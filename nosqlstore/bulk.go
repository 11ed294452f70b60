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

package nosqlstore

import (
	"context"

	"github.com/FerretDB/datastore/internal/backends"
	"github.com/FerretDB/datastore/internal/storeerrors"
)

// BulkInsert inserts documents in order and returns their _id values.
//
// Empty list is a validation error.
// On error, documents before the failed one may have been inserted.
func (s *Store) BulkInsert(ctx context.Context, collection string, docs []Document) (ids []string, err error) {
	ctx, end := s.startSpan(ctx, "BulkInsert", collection)
	defer func() { end(err) }()

	if len(docs) == 0 {
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeValidation, "documents must be a non-empty list")
	}

	for i, doc := range docs {
		if err = backends.ValidateDocument(doc); err != nil {
			return nil, storeerrors.Errorf(storeerrors.ErrorCodeValidation, "document %d: %v", i, err)
		}
	}

	b, err := s.backend(ctx)
	if err != nil {
		return nil, err
	}

	res, err := b.InsertMany(ctx, &backends.InsertManyParams{
		Collection: collection,
		Documents:  docs,
	})
	if err != nil {
		return nil, err
	}

	return res.IDs, nil
}

// BulkUpdate applies each update in order with the same filter
// and returns the sum of modified counts.
//
// All updates are validated before the first one is applied.
// On error, effects of earlier updates are kept.
func (s *Store) BulkUpdate(ctx context.Context, collection string, filter Filter, updates []Update, upsert bool) (modified int64, err error) {
	ctx, end := s.startSpan(ctx, "BulkUpdate", collection)
	defer func() { end(err) }()

	if len(updates) == 0 {
		return 0, storeerrors.Errorf(storeerrors.ErrorCodeValidation, "updates must be a non-empty list")
	}

	for i, u := range updates {
		if err = validateUpdate(filter, u); err != nil {
			if len(updates) > 1 {
				err = storeerrors.Errorf(storeerrors.ErrorCodeValidation, "update %d: %v", i, err)
			}

			return 0, err
		}
	}

	b, err := s.backend(ctx)
	if err != nil {
		return 0, err
	}

	for _, u := range updates {
		n, err := s.update(ctx, b, collection, filter, u, upsert)
		if err != nil {
			return modified, err
		}

		modified += n
	}

	return modified, nil
}

// BulkDelete deletes documents matching filters and returns the sum of deleted counts.
//
// Filters is either a single filter (applied once),
// or a list of filters ([]Filter or []any of filters) applied in order.
// Any other shape, including nil filters, is a validation error.
// Empty list deletes nothing.
// On error, effects of earlier filters are kept.
func (s *Store) BulkDelete(ctx context.Context, collection string, filters any) (deleted int64, err error) {
	ctx, end := s.startSpan(ctx, "BulkDelete", collection)
	defer func() { end(err) }()

	list, err := filterList(filters)
	if err != nil {
		return 0, err
	}

	if len(list) == 0 {
		return 0, nil
	}

	b, err := s.backend(ctx)
	if err != nil {
		return 0, err
	}

	for _, f := range list {
		n, err := s.delete(ctx, b, collection, f)
		if err != nil {
			return deleted, err
		}

		deleted += n
	}

	return deleted, nil
}

// filterList converts BulkDelete argument to a list of filters.
func filterList(filters any) ([]Filter, error) {
	var list []Filter

	switch f := filters.(type) {
	case map[string]any:
		list = []Filter{f}

	case []map[string]any:
		list = f

	case []any:
		list = make([]Filter, len(f))

		for i, e := range f {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, storeerrors.Errorf(storeerrors.ErrorCodeValidation, "filter %d: expected mapping, got %T", i, e)
			}

			list[i] = m
		}

	default:
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeValidation, "filters must be a mapping or a list of mappings, got %T", filters)
	}

	for i, f := range list {
		if f == nil {
			return nil, storeerrors.Errorf(storeerrors.ErrorCodeValidation, "filter %d must not be null", i)
		}
	}

	return list, nil
}
