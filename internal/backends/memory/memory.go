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

// Package memory provides the in-process backend.
//
// Data lives in named databases shared by all backends of the process
// that use the same name, like connections to the same server.
// It is lost when the process exits.
package memory

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/FerretDB/datastore/internal/backends"
	"github.com/FerretDB/datastore/internal/query"
	"github.com/FerretDB/datastore/internal/storeerrors"
)

// databases contains all databases of the process by name.
var databases = xsync.NewMapOf[string, *database]()

// database is a set of collections.
type database struct {
	collections *xsync.MapOf[string, *collection]
}

// getDatabase returns an existing or new database.
func getDatabase(name string) *database {
	db, _ := databases.LoadOrCompute(name, func() *database {
		return &database{
			collections: xsync.NewMapOf[string, *collection](),
		}
	})

	return db
}

// collection returns an existing or new collection.
func (db *database) collection(name string) *collection {
	c, _ := db.collections.LoadOrCompute(name, func() *collection {
		return &collection{
			ids: map[string]struct{}{},
		}
	})

	return c
}

// collection stores documents in insertion order.
type collection struct {
	m    sync.RWMutex
	docs []backends.Document
	ids  map[string]struct{}
}

// insert adds a normalized document with _id set.
//
// It must be called with the lock held.
func (c *collection) insert(doc backends.Document) error {
	id := backends.IDString(doc["_id"])

	if _, ok := c.ids[id]; ok {
		return storeerrors.Errorf(storeerrors.ErrorCodeDuplicateKey, "duplicate key error, _id: %q", id)
	}

	c.ids[id] = struct{}{}
	c.docs = append(c.docs, doc)

	return nil
}

// prepare returns a normalized copy of the document with _id set.
func prepare(doc backends.Document) (backends.Document, error) {
	res, err := query.Normalize(doc)
	if err != nil {
		return nil, err
	}

	if _, err = backends.PrepareID(res); err != nil {
		return nil, err
	}

	return res, nil
}
