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

	"go.opentelemetry.io/otel/attribute"

	"github.com/FerretDB/datastore/internal/backends"
	"github.com/FerretDB/datastore/internal/storeerrors"
	"github.com/FerretDB/datastore/internal/util/observability"
)

// FindOptions represents optional parameters of Find.
type FindOptions struct {
	// Projection lists fields to return; empty means all fields.
	// _id is always returned unless ExcludeID is set.
	Projection []string
	ExcludeID  bool

	Skip  int64
	Limit int64 // 0 means no limit
}

// startSpan starts a span for the Store operation.
func (s *Store) startSpan(ctx context.Context, op, collection string) (context.Context, func(error)) {
	return observability.StartSpan(
		ctx, "nosqlstore."+op,
		attribute.String("db.system", string(s.cfg.Framework)),
		attribute.String("db.collection", collection),
	)
}

// Insert inserts a single document and returns its _id.
func (s *Store) Insert(ctx context.Context, collection string, doc Document) (id string, err error) {
	ctx, end := s.startSpan(ctx, "Insert", collection)
	defer func() { end(err) }()

	if err = backends.ValidateDocument(doc); err != nil {
		return "", err
	}

	b, err := s.backend(ctx)
	if err != nil {
		return "", err
	}

	res, err := b.Insert(ctx, &backends.InsertParams{
		Collection: collection,
		Document:   doc,
	})
	if err != nil {
		return "", err
	}

	return res.ID, nil
}

// Find returns documents matching the filter.
//
// Nil or empty filter matches all documents. Opts may be nil.
func (s *Store) Find(ctx context.Context, collection string, filter Filter, opts *FindOptions) (docs []Document, err error) {
	ctx, end := s.startSpan(ctx, "Find", collection)
	defer func() { end(err) }()

	if opts == nil {
		opts = new(FindOptions)
	}

	if opts.Skip < 0 || opts.Limit < 0 {
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeValidation, "skip and limit must not be negative")
	}

	b, err := s.backend(ctx)
	if err != nil {
		return nil, err
	}

	res, err := b.Find(ctx, &backends.FindParams{
		Collection: collection,
		Filter:     filter,
		Projection: opts.Projection,
		ExcludeID:  opts.ExcludeID,
		Skip:       opts.Skip,
		Limit:      opts.Limit,
	})
	if err != nil {
		return nil, err
	}

	return res.Documents, nil
}

// Update updates all documents matching the filter and returns the number of modified documents.
//
// Filter must not be nil; empty filter matches all documents.
// Update without operator keys sets the given fields and leaves others untouched.
// A document inserted by upsert is not counted.
func (s *Store) Update(ctx context.Context, collection string, filter Filter, update Update, upsert bool) (modified int64, err error) {
	ctx, end := s.startSpan(ctx, "Update", collection)
	defer func() { end(err) }()

	if err = validateUpdate(filter, update); err != nil {
		return 0, err
	}

	b, err := s.backend(ctx)
	if err != nil {
		return 0, err
	}

	return s.update(ctx, b, collection, filter, update, upsert)
}

// update calls backend's Update.
func (s *Store) update(ctx context.Context, b backends.Backend, collection string, filter Filter, update Update, upsert bool) (int64, error) {
	res, err := b.Update(ctx, &backends.UpdateParams{
		Collection: collection,
		Filter:     filter,
		Update:     update,
		Upsert:     upsert,
	})
	if err != nil {
		return 0, err
	}

	return res.Modified, nil
}

// Delete deletes all documents matching the filter and returns their number.
//
// Filter must not be nil; empty filter deletes all documents.
func (s *Store) Delete(ctx context.Context, collection string, filter Filter) (deleted int64, err error) {
	ctx, end := s.startSpan(ctx, "Delete", collection)
	defer func() { end(err) }()

	if filter == nil {
		return 0, storeerrors.Errorf(storeerrors.ErrorCodeValidation, "filter must not be null")
	}

	b, err := s.backend(ctx)
	if err != nil {
		return 0, err
	}

	return s.delete(ctx, b, collection, filter)
}

// delete calls backend's Delete.
func (s *Store) delete(ctx context.Context, b backends.Backend, collection string, filter Filter) (int64, error) {
	res, err := b.Delete(ctx, &backends.DeleteParams{
		Collection: collection,
		Filter:     filter,
	})
	if err != nil {
		return 0, err
	}

	return res.Deleted, nil
}

// validateUpdate checks filter and update before dispatch.
func validateUpdate(filter Filter, update Update) error {
	if filter == nil {
		return storeerrors.Errorf(storeerrors.ErrorCodeValidation, "filter must not be null")
	}

	_, err := backends.NormalizeUpdate(update)

	return err
}
