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

package memory

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/FerretDB/datastore/internal/backends"
	"github.com/FerretDB/datastore/internal/query"
	"github.com/FerretDB/datastore/internal/storeerrors"
	"github.com/FerretDB/datastore/internal/util/lazyerrors"
)

// backend implements backends.Backend interface.
type backend struct {
	name string
	l    *zap.Logger
	db   atomic.Pointer[database]
}

// NewBackendParams represents the parameters of NewBackend function.
//
//nolint:vet // for readability
type NewBackendParams struct {
	// Database name; backends with the same name share data.
	Name string
	L    *zap.Logger
}

// NewBackend creates a new unconnected backend.
func NewBackend(params *NewBackendParams) (backends.Backend, error) {
	if params.Name == "" {
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeConfiguration, "memory: database name is required")
	}

	return &backend{
		name: params.Name,
		l:    params.L,
	}, nil
}

// Name implements backends.Backend interface.
func (b *backend) Name() string {
	return "memory"
}

// Connect implements backends.Backend interface.
func (b *backend) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return backends.ConnectionError(ctx, err)
	}

	b.db.Store(getDatabase(b.name))
	b.l.Debug("Connected", zap.String("database", b.name))

	return nil
}

// Close implements backends.Backend interface.
func (b *backend) Close() error {
	b.db.Store(nil)
	return nil
}

// collection returns the named collection of the connected database.
func (b *backend) collection(name string) (*collection, error) {
	db := b.db.Load()
	if db == nil {
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeConnection, "memory: not connected")
	}

	return db.collection(name), nil
}

// Insert implements backends.Backend interface.
func (b *backend) Insert(ctx context.Context, params *backends.InsertParams) (*backends.InsertResult, error) {
	res, err := b.InsertMany(ctx, &backends.InsertManyParams{
		Collection: params.Collection,
		Documents:  []backends.Document{params.Document},
	})
	if err != nil {
		return nil, err
	}

	return &backends.InsertResult{ID: res.IDs[0]}, nil
}

// InsertMany implements backends.Backend interface.
func (b *backend) InsertMany(ctx context.Context, params *backends.InsertManyParams) (*backends.InsertManyResult, error) {
	c, err := b.collection(params.Collection)
	if err != nil {
		return nil, err
	}

	docs := make([]backends.Document, len(params.Documents))
	for i, d := range params.Documents {
		if docs[i], err = prepare(d); err != nil {
			return nil, err
		}
	}

	c.m.Lock()
	defer c.m.Unlock()

	ids := make([]string, 0, len(docs))

	for _, doc := range docs {
		if err = c.insert(doc); err != nil {
			return nil, err
		}

		ids = append(ids, backends.IDString(doc["_id"]))
	}

	return &backends.InsertManyResult{IDs: ids}, nil
}

// Find implements backends.Backend interface.
func (b *backend) Find(ctx context.Context, params *backends.FindParams) (*backends.FindResult, error) {
	c, err := b.collection(params.Collection)
	if err != nil {
		return nil, err
	}

	c.m.RLock()
	defer c.m.RUnlock()

	res := []backends.Document{}
	skip := params.Skip

	for _, doc := range c.docs {
		ok, err := query.Match(doc, params.Filter)
		if err != nil {
			return nil, err
		}

		if !ok {
			continue
		}

		if skip > 0 {
			skip--
			continue
		}

		// return copies to keep stored documents intact
		cp, err := query.Normalize(query.Project(doc, params.Projection, params.ExcludeID))
		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		res = append(res, cp)

		if params.Limit > 0 && int64(len(res)) >= params.Limit {
			break
		}
	}

	return &backends.FindResult{Documents: res}, nil
}

// Update implements backends.Backend interface.
func (b *backend) Update(ctx context.Context, params *backends.UpdateParams) (*backends.UpdateResult, error) {
	c, err := b.collection(params.Collection)
	if err != nil {
		return nil, err
	}

	c.m.Lock()
	defer c.m.Unlock()

	var res backends.UpdateResult
	var matched bool

	for i, doc := range c.docs {
		ok, err := query.Match(doc, params.Filter)
		if err != nil {
			return nil, err
		}

		if !ok {
			continue
		}

		matched = true

		// documents are updated atomically: changes are applied to a copy
		cp, err := query.Normalize(doc)
		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		changed, err := query.Apply(cp, params.Update, false)
		if err != nil {
			return nil, err
		}

		if changed {
			c.docs[i] = cp
			res.Modified++
		}
	}

	if matched || !params.Upsert {
		return &res, nil
	}

	doc, err := query.Upsert(params.Filter, params.Update)
	if err != nil {
		return nil, err
	}

	if doc, err = prepare(doc); err != nil {
		return nil, err
	}

	if err = c.insert(doc); err != nil {
		return nil, err
	}

	res.UpsertedID = backends.IDString(doc["_id"])

	return &res, nil
}

// Delete implements backends.Backend interface.
func (b *backend) Delete(ctx context.Context, params *backends.DeleteParams) (*backends.DeleteResult, error) {
	c, err := b.collection(params.Collection)
	if err != nil {
		return nil, err
	}

	c.m.Lock()
	defer c.m.Unlock()

	matches := make([]bool, len(c.docs))

	for i, doc := range c.docs {
		if matches[i], err = query.Match(doc, params.Filter); err != nil {
			return nil, err
		}
	}

	var deleted int64

	kept := c.docs[:0]

	for i, doc := range c.docs {
		if !matches[i] {
			kept = append(kept, doc)
			continue
		}

		delete(c.ids, backends.IDString(doc["_id"]))
		deleted++
	}

	// clear references to removed documents
	for i := len(kept); i < len(c.docs); i++ {
		c.docs[i] = nil
	}

	c.docs = kept

	return &backends.DeleteResult{Deleted: deleted}, nil
}

// check interfaces
var (
	_ backends.Backend = (*backend)(nil)
)
