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
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FerretDB/datastore/internal/backends"
	"github.com/FerretDB/datastore/internal/backends/memory"
	"github.com/FerretDB/datastore/internal/config"
	"github.com/FerretDB/datastore/internal/registry"
	"github.com/FerretDB/datastore/internal/util/teststress"
	dstestutil "github.com/FerretDB/datastore/internal/util/testutil"
)

// countingFramework is a memory backend that counts constructions, connects and closes.
const countingFramework config.Framework = "counting"

// counts of calls for a single database.
type counts struct {
	created  atomic.Int32
	connects atomic.Int32
	closes   atomic.Int32
}

// allCounts maps database names to counts.
var allCounts sync.Map

func getCounts(database string) *counts {
	c, _ := allCounts.LoadOrStore(database, new(counts))
	return c.(*counts)
}

// countingBackend wraps a backend and counts calls.
type countingBackend struct {
	backends.Backend
	c *counts
}

func (b *countingBackend) Connect(ctx context.Context) error {
	b.c.connects.Add(1)
	return b.Backend.Connect(ctx)
}

func (b *countingBackend) Close() error {
	b.c.closes.Add(1)
	return b.Backend.Close()
}

// failingCloseFramework is a memory backend that fails to close.
const failingCloseFramework config.Framework = "failing-close"

// errClose is returned by failingCloseBackend.
var errClose = errors.New("close failed")

// failingCloseBackend wraps a backend and returns errClose on Close.
type failingCloseBackend struct {
	backends.Backend
}

func (b *failingCloseBackend) Close() error {
	if err := b.Backend.Close(); err != nil {
		return err
	}

	return errClose
}

func init() {
	registry.Register(failingCloseFramework, func(opts *registry.NewBackendOpts) (backends.Backend, error) {
		b, err := memory.NewBackend(&memory.NewBackendParams{
			Name: opts.Config.Connection.Database,
			L:    opts.Logger,
		})
		if err != nil {
			return nil, err
		}

		return &failingCloseBackend{Backend: b}, nil
	})

	registry.Register(countingFramework, func(opts *registry.NewBackendOpts) (backends.Backend, error) {
		c := getCounts(opts.Config.Connection.Database)
		c.created.Add(1)

		b, err := memory.NewBackend(&memory.NewBackendParams{
			Name: opts.Config.Connection.Database,
			L:    opts.Logger,
		})
		if err != nil {
			return nil, err
		}

		return &countingBackend{Backend: b, c: c}, nil
	})
}

// setup returns a new Store with the given framework and a database unique for the test.
func setup(t *testing.T, framework config.Framework, opts ...Option) (*Store, *counts) {
	t.Helper()

	cfg, err := config.New(framework, config.Connection{Host: "localhost", Database: t.Name()})
	require.NoError(t, err)

	s, err := New(cfg, append([]Option{WithLogger(dstestutil.Logger(t))}, opts...)...)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})

	return s, getCounts(t.Name())
}

func TestState(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Unbound", StateUnbound.String())
	assert.Equal(t, "BoundDisconnected", StateBoundDisconnected.String())
	assert.Equal(t, "Connected", StateConnected.String())
	assert.Equal(t, "Closed", StateClosed.String())
	assert.Equal(t, "State(42)", State(42).String())
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("UnknownFramework", func(t *testing.T) {
		t.Parallel()

		cfg, err := config.New("couchdb", config.Connection{Host: "localhost", Database: t.Name()})
		require.NoError(t, err)

		_, err = New(cfg)
		require.Error(t, err)
		assert.True(t, ErrorCodeIs(err, ErrorCodeConfiguration))
	})

	t.Run("FromMap", func(t *testing.T) {
		t.Parallel()

		s, err := NewFromMap(map[string]any{
			"framework": "memory",
			"connection": map[string]any{
				"host":     "localhost",
				"database": t.Name(),
			},
			"custom": "kept",
		})
		require.NoError(t, err)

		assert.Equal(t, config.FrameworkMemory, s.Framework())
		assert.Equal(t, "kept", s.Config().ExtraString("custom"))
		assert.Equal(t, StateUnbound, s.State())
		require.NoError(t, s.Close())
	})

	t.Run("FromMapUnknownFramework", func(t *testing.T) {
		t.Parallel()

		_, err := NewFromMap(map[string]any{
			"framework":  "couchdb",
			"connection": map[string]any{"host": "localhost"},
		})
		assert.True(t, ErrorCodeIs(err, ErrorCodeConfiguration))
	})

	t.Run("FromMapNoConnection", func(t *testing.T) {
		t.Parallel()

		_, err := NewFromMap(map[string]any{
			"framework":  "memory",
			"connection": map[string]any{"port": 27017},
		})
		assert.True(t, ErrorCodeIs(err, ErrorCodeConfiguration))
	})

	t.Run("Nil", func(t *testing.T) {
		t.Parallel()

		_, err := New(nil)
		assert.True(t, ErrorCodeIs(err, ErrorCodeConfiguration))
	})
}

func TestLifecycle(t *testing.T) {
	t.Parallel()

	ctx := dstestutil.Ctx(t)
	s, c := setup(t, countingFramework)

	assert.Equal(t, StateUnbound, s.State())
	assert.Equal(t, int32(0), c.created.Load(), "backend must be created lazily")

	docs, err := s.Find(ctx, "c", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Equal(t, StateConnected, s.State())
	assert.Equal(t, int32(1), c.created.Load())
	assert.Equal(t, int32(1), c.connects.Load())

	require.NoError(t, s.Connect(ctx))
	assert.Equal(t, int32(1), c.connects.Load(), "Connect must be idempotent")

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, int32(1), c.closes.Load())

	_, err = s.Find(ctx, "c", nil, nil)
	assert.True(t, ErrorCodeIs(err, ErrorCodeConnectionClosed), "closed store must not reconnect implicitly")
	assert.Equal(t, int32(1), c.connects.Load())

	require.NoError(t, s.Connect(ctx))
	assert.Equal(t, StateConnected, s.State())
	assert.Equal(t, int32(2), c.created.Load(), "a new backend is created after Close")
	assert.Equal(t, int32(2), c.connects.Load())
}

func TestWithConnection(t *testing.T) {
	t.Parallel()

	t.Run("Error", func(t *testing.T) {
		t.Parallel()

		ctx := dstestutil.Ctx(t)
		s, c := setup(t, countingFramework)

		blockErr := errors.New("block failed")

		err := s.WithConnection(ctx, func(s *Store) error {
			assert.Equal(t, StateConnected, s.State())

			_, err := s.Insert(ctx, "c", Document{"v": 1})
			require.NoError(t, err)

			return blockErr
		})
		assert.Same(t, blockErr, err)
		assert.Equal(t, int32(1), c.closes.Load())
		assert.Equal(t, StateClosed, s.State())

		_, err = s.Find(ctx, "c", Filter{}, nil)
		assert.True(t, ErrorCodeIs(err, ErrorCodeConnectionClosed))
	})

	t.Run("CloseError", func(t *testing.T) {
		t.Parallel()

		ctx := dstestutil.Ctx(t)

		t.Run("BlockSucceeded", func(t *testing.T) {
			s, _ := setup(t, failingCloseFramework)

			err := s.WithConnection(ctx, func(s *Store) error {
				_, err := s.Insert(ctx, "c", Document{"v": 1})
				return err
			})
			assert.ErrorIs(t, err, errClose)
			assert.Equal(t, StateClosed, s.State())
		})

		t.Run("BlockFailed", func(t *testing.T) {
			s, _ := setup(t, failingCloseFramework)

			blockErr := errors.New("block failed")

			err := s.WithConnection(ctx, func(*Store) error {
				return blockErr
			})
			assert.Same(t, blockErr, err)
			assert.Equal(t, StateClosed, s.State())
		})
	})

	t.Run("Panic", func(t *testing.T) {
		t.Parallel()

		ctx := dstestutil.Ctx(t)
		s, c := setup(t, countingFramework)

		assert.PanicsWithValue(t, "boom", func() {
			_ = s.WithConnection(ctx, func(*Store) error {
				panic("boom")
			})
		})

		assert.Equal(t, int32(1), c.closes.Load())
		assert.Equal(t, StateClosed, s.State())
	})

	t.Run("Nested", func(t *testing.T) {
		t.Parallel()

		ctx := dstestutil.Ctx(t)
		s, c := setup(t, countingFramework)

		err := s.WithConnection(ctx, func(outer *Store) error {
			err := outer.WithConnection(ctx, func(inner *Store) error {
				_, err := inner.Insert(ctx, "c", Document{"v": 1})
				return err
			})
			if err != nil {
				return err
			}

			// inner exit keeps the connection
			assert.Equal(t, StateConnected, outer.State())

			docs, err := outer.Find(ctx, "c", Filter{}, nil)
			if err != nil {
				return err
			}

			assert.Len(t, docs, 1)

			return nil
		})
		require.NoError(t, err)

		assert.Equal(t, int32(1), c.created.Load())
		assert.Equal(t, int32(1), c.connects.Load())
		assert.Equal(t, int32(1), c.closes.Load())
		assert.Equal(t, StateClosed, s.State())
	})

	t.Run("Reopen", func(t *testing.T) {
		t.Parallel()

		ctx := dstestutil.Ctx(t)
		s, c := setup(t, countingFramework)

		for i := 0; i < 2; i++ {
			err := s.WithConnection(ctx, func(s *Store) error {
				_, err := s.Insert(ctx, "c", Document{"i": i})
				return err
			})
			require.NoError(t, err)
		}

		assert.Equal(t, int32(2), c.connects.Load())
		assert.Equal(t, int32(2), c.closes.Load())
	})
}

func TestCRUD(t *testing.T) {
	t.Parallel()

	ctx := dstestutil.Ctx(t)
	s, _ := setup(t, config.FrameworkMemory)

	id, err := s.Insert(ctx, "users", Document{"name": "alice", "age": 30, "city": "Berlin"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	docs, err := s.Find(ctx, "users", Filter{"name": "alice"}, nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, Document{"_id": id, "name": "alice", "age": int64(30), "city": "Berlin"}, docs[0])

	modified, err := s.Update(ctx, "users", Filter{"name": "alice"}, Update{"age": 31}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), modified)

	docs, err = s.Find(ctx, "users", Filter{"_id": id}, nil)
	require.NoError(t, err)
	assert.Equal(t, []Document{{"_id": id, "name": "alice", "age": int64(31), "city": "Berlin"}}, docs)

	modified, err = s.Update(ctx, "users", Filter{"name": "bob"}, Update{"age": 25}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), modified)

	docs, err = s.Find(ctx, "users", Filter{"name": "bob"}, nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, int64(25), docs[0]["age"])

	docs, err = s.Find(ctx, "users", Filter{}, &FindOptions{Projection: []string{"name"}, ExcludeID: true, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []Document{{"name": "alice"}}, docs)

	_, err = s.Update(ctx, "users", nil, Update{"age": 1}, false)
	assert.True(t, ErrorCodeIs(err, ErrorCodeValidation))

	_, err = s.Update(ctx, "users", Filter{}, nil, false)
	assert.True(t, ErrorCodeIs(err, ErrorCodeValidation))

	_, err = s.Insert(ctx, "users", Document{"_id": id})
	assert.True(t, ErrorCodeIs(err, ErrorCodeDuplicateKey))

	deleted, err := s.Delete(ctx, "users", Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, err = s.Delete(ctx, "users", nil)
	assert.True(t, ErrorCodeIs(err, ErrorCodeValidation))
}

func TestValidationBeforeConnect(t *testing.T) {
	t.Parallel()

	ctx := dstestutil.Ctx(t)
	s, c := setup(t, countingFramework)

	_, err := s.Insert(ctx, "c", nil)
	assert.True(t, ErrorCodeIs(err, ErrorCodeValidation))

	_, err = s.BulkInsert(ctx, "c", []Document{})
	assert.True(t, ErrorCodeIs(err, ErrorCodeValidation))

	_, err = s.BulkInsert(ctx, "c", nil)
	assert.True(t, ErrorCodeIs(err, ErrorCodeValidation))

	_, err = s.BulkUpdate(ctx, "c", nil, []Update{{"a": 1}}, false)
	assert.True(t, ErrorCodeIs(err, ErrorCodeValidation))

	_, err = s.BulkUpdate(ctx, "c", Filter{}, nil, false)
	assert.True(t, ErrorCodeIs(err, ErrorCodeValidation))

	_, err = s.BulkDelete(ctx, "c", "not a filter")
	assert.True(t, ErrorCodeIs(err, ErrorCodeValidation))

	_, err = s.BulkDelete(ctx, "c", []any{Filter{}, 42})
	assert.True(t, ErrorCodeIs(err, ErrorCodeValidation))

	_, err = s.BulkDelete(ctx, "c", []Filter{nil})
	assert.True(t, ErrorCodeIs(err, ErrorCodeValidation))

	_, err = s.BulkDelete(ctx, "c", nil)
	assert.True(t, ErrorCodeIs(err, ErrorCodeValidation))

	n, err := s.BulkDelete(ctx, "c", []Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	assert.Equal(t, StateUnbound, s.State())
	assert.Equal(t, int32(0), c.created.Load())
}

func TestBulk(t *testing.T) {
	t.Parallel()

	ctx := dstestutil.Ctx(t)
	s, _ := setup(t, config.FrameworkMemory)

	ids, err := s.BulkInsert(ctx, "items", []Document{{"kind": "single"}})
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	docs := make([]Document, 10)
	for i := range docs {
		docs[i] = Document{"n": i, "kind": "many"}
	}

	ids, err = s.BulkInsert(ctx, "items", docs)
	require.NoError(t, err)
	assert.Len(t, ids, 10)

	count := func(f Filter) int {
		docs, err := s.Find(ctx, "items", f, nil)
		require.NoError(t, err)

		return len(docs)
	}

	t.Run("Update", func(t *testing.T) {
		modified, err := s.BulkUpdate(ctx, "items", Filter{"kind": "many"}, []Update{
			{"flag": true},
			{"$inc": map[string]any{"n": 100}},
		}, false)
		require.NoError(t, err)
		assert.Equal(t, int64(20), modified)
		assert.Equal(t, 10, count(Filter{"flag": true}))

		// earlier entries are kept when a later one fails
		modified, err = s.BulkUpdate(ctx, "items", Filter{"kind": "single"}, []Update{
			{"step": 1},
			{"$inc": map[string]any{"kind": 1}},
		}, false)
		assert.True(t, ErrorCodeIs(err, ErrorCodeOperation), "%v", err)
		assert.Equal(t, int64(1), modified)
		assert.Equal(t, 1, count(Filter{"step": 1}))
	})

	t.Run("Delete", func(t *testing.T) {
		before := count(Filter{})

		filters := []Filter{
			{"n": map[string]any{"$lt": 103}},
			{"n": map[string]any{"$gte": 108}},
			{"n": 1000},
		}

		deleted, err := s.BulkDelete(ctx, "items", filters)
		require.NoError(t, err)
		assert.Equal(t, int64(5), deleted)
		assert.Equal(t, before-5, count(Filter{}))

		deleted, err = s.BulkDelete(ctx, "items", Filter{"kind": "single"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		deleted, err = s.BulkDelete(ctx, "items", []any{map[string]any{"n": 103}, map[string]any{"n": 104}})
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)
	})
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	ctx := dstestutil.Ctx(t)
	m := NewMetrics()
	s, _ := setup(t, config.FrameworkMemory, WithMetrics(m))

	_, err := s.Insert(ctx, "c", Document{"v": 1})
	require.NoError(t, err)

	// connect and insert
	assert.Equal(t, 2, testutil.CollectAndCount(m, "datastore_backend_requests_total"))
}

func TestConcurrentOperations(t *testing.T) {
	t.Parallel()

	ctx := dstestutil.Ctx(t)
	s, c := setup(t, countingFramework)

	n := teststress.Stress(t, func(i int, ready chan<- struct{}, start <-chan struct{}) {
		doc := Document{"_id": fmt.Sprintf("doc%d", i), "v": int64(i)}

		ready <- struct{}{}
		<-start

		_, err := s.Insert(ctx, "c", doc)
		assert.NoError(t, err)
	})

	docs, err := s.Find(ctx, "c", nil, nil)
	require.NoError(t, err)
	assert.Len(t, docs, n)

	assert.Equal(t, int32(1), c.created.Load())
	assert.Equal(t, int32(1), c.connects.Load())
	assert.Equal(t, StateConnected, s.State())
}

func TestCollectionNames(t *testing.T) {
	t.Parallel()

	ctx := dstestutil.Ctx(t)
	s, _ := setup(t, config.FrameworkMemory)

	for _, c := range []string{"orders$2024", "system.events", "_datastore_x", ".hidden"} {
		_, err := s.Insert(ctx, c, Document{"v": 1})
		require.NoError(t, err, c)

		docs, err := s.Find(ctx, c, nil, &FindOptions{ExcludeID: true})
		require.NoError(t, err, c)
		assert.Equal(t, []Document{{"v": int64(1)}}, docs, c)
	}
}

func TestScalarID(t *testing.T) {
	t.Parallel()

	ctx := dstestutil.Ctx(t)
	s, _ := setup(t, config.FrameworkMemory)

	id, err := s.Insert(ctx, "c", Document{"_id": 42, "v": 1})
	require.NoError(t, err)
	assert.Equal(t, "42", id)

	ids, err := s.BulkInsert(ctx, "c", []Document{{"_id": 1.5}, {"_id": false}})
	require.NoError(t, err)
	assert.Equal(t, []string{"1.5", "false"}, ids)

	docs, err := s.Find(ctx, "c", Filter{"_id": 42}, nil)
	require.NoError(t, err)
	assert.Equal(t, []Document{{"_id": "42", "v": int64(1)}}, docs)

	// identifiers are unique by their string form
	_, err = s.Insert(ctx, "c", Document{"_id": "42"})
	assert.True(t, ErrorCodeIs(err, ErrorCodeDuplicateKey), "%v", err)

	_, err = s.Insert(ctx, "c", Document{"_id": []any{42}})
	assert.True(t, ErrorCodeIs(err, ErrorCodeValidation), "%v", err)
}

func TestLoadData(t *testing.T) {
	t.Parallel()

	ctx := dstestutil.Ctx(t)

	cfg, err := config.New(config.FrameworkMemory, config.Connection{Host: "localhost", Database: t.Name()})
	require.NoError(t, err)

	cfg.Query = &QueryParams{
		Collection: "events",
		Fields:     []string{"name", "day"},
		DateField:  "day",
		StartDate:  "2024-1-5",
		EndDate:    "2024-02-10",
	}

	s, err := New(cfg, WithLogger(dstestutil.Logger(t)))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})

	_, err = s.BulkInsert(ctx, "events", []Document{
		{"name": "a", "day": "2024-01-04", "kind": "click"},
		{"name": "b", "day": "2024-01-05", "kind": "view"},
		{"name": "c", "day": "2024-02-10", "kind": "click"},
		{"name": "d", "day": "2024-02-11", "kind": "click"},
		{"name": "e", "kind": "click"},
	})
	require.NoError(t, err)

	t.Run("Configured", func(t *testing.T) {
		docs, err := s.LoadData(ctx, nil)
		require.NoError(t, err)

		expected := []Document{
			{"name": "b", "day": "2024-01-05"},
			{"name": "c", "day": "2024-02-10"},
		}
		assert.Equal(t, expected, docs)
	})

	t.Run("FilterLimit", func(t *testing.T) {
		docs, err := s.LoadData(ctx, &QueryParams{
			Collection: "events",
			Fields:     []string{"name"},
			DateField:  "day",
			StartDate:  "2024-01-01",
			Filter:     map[string]any{"kind": "click"},
			Limit:      2,
		})
		require.NoError(t, err)
		assert.Equal(t, []Document{{"name": "a"}, {"name": "c"}}, docs)
	})

	t.Run("DateFieldInFilter", func(t *testing.T) {
		docs, err := s.LoadData(ctx, &QueryParams{
			Collection: "events",
			Fields:     []string{"name"},
			DateField:  "day",
			StartDate:  "05.01.2024",
			EndDate:    "11.02.2024",
			DateFormat: "%d.%m.%Y",
			Filter:     map[string]any{"day": map[string]any{"$ne": "2024-01-05"}},
		})
		require.NoError(t, err)
		assert.Empty(t, docs, "dates are compared in the query format")

		docs, err = s.LoadData(ctx, &QueryParams{
			Collection: "events",
			Fields:     []string{"name"},
			DateField:  "day",
			StartDate:  "2024-01-05",
			EndDate:    "2024-02-11",
			Filter:     map[string]any{"day": map[string]any{"$ne": "2024-01-05"}},
		})
		require.NoError(t, err)
		assert.Equal(t, []Document{{"name": "c"}, {"name": "d"}}, docs)
	})

	t.Run("AllFields", func(t *testing.T) {
		docs, err := s.LoadData(ctx, &QueryParams{Collection: "events", Filter: map[string]any{"name": "e"}})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.NotEmpty(t, docs[0]["_id"])
		assert.Equal(t, "click", docs[0]["kind"])
	})

	t.Run("Errors", func(t *testing.T) {
		_, err := s.LoadData(ctx, &QueryParams{})
		assert.True(t, ErrorCodeIs(err, ErrorCodeValidation), "%v", err)

		_, err = s.LoadData(ctx, &QueryParams{Collection: "events", DateField: "day", StartDate: "yesterday"})
		assert.True(t, ErrorCodeIs(err, ErrorCodeValidation), "%v", err)

		_, err = s.LoadData(ctx, &QueryParams{Collection: "events", Limit: -1})
		assert.True(t, ErrorCodeIs(err, ErrorCodeValidation), "%v", err)

		unconfigured, _ := setup(t, config.FrameworkMemory)
		_, err = unconfigured.LoadData(ctx, nil)
		assert.True(t, ErrorCodeIs(err, ErrorCodeValidation), "%v", err)
	})
}
