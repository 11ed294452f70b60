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

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // register database/sql driver

	"github.com/FerretDB/datastore/internal/backends"
	"github.com/FerretDB/datastore/internal/storeerrors"
	"github.com/FerretDB/datastore/internal/util/fsql"
	"github.com/FerretDB/datastore/internal/util/lazyerrors"
)

// backend implements backends.Backend interface.
type backend struct {
	dsn string
	l   *zap.Logger

	m  sync.RWMutex
	db *fsql.DB

	// tables known to exist
	tables *xsync.MapOf[string, struct{}]
}

// NewBackendParams represents the parameters of NewBackend function.
type NewBackendParams struct {
	URI string
	L   *zap.Logger
}

// NewBackend creates a new unconnected SQLite backend.
func NewBackend(params *NewBackendParams) (backends.Backend, error) {
	dsn, err := validateURI(params.URI)
	if err != nil {
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeConfiguration, "failed to parse SQLite URI %q: %s", params.URI, err)
	}

	return &backend{
		dsn:    dsn,
		l:      params.L,
		tables: xsync.NewMapOf[string, struct{}](),
	}, nil
}

// Name implements backends.Backend interface.
func (b *backend) Name() string {
	return "sqlite"
}

// Connect implements backends.Backend interface.
func (b *backend) Connect(ctx context.Context) error {
	sqlDB, err := sql.Open("sqlite", b.dsn)
	if err != nil {
		return storeerrors.New(storeerrors.ErrorCodeConfiguration, err)
	}

	sqlDB.SetConnMaxIdleTime(0)
	sqlDB.SetConnMaxLifetime(0)

	// https://www.sqlite.org/inmemorydb.html
	if memory(b.dsn) {
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetMaxOpenConns(1)
	}

	if err = sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return backends.ConnectionError(ctx, err)
	}

	db := fsql.WrapDB(sqlDB, "sqlite", b.l)

	var version string
	if err = db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&version); err != nil {
		_ = db.Close()
		return backends.ConnectionError(ctx, err)
	}

	b.l.Debug("Connected", zap.String("version", version))

	b.m.Lock()
	b.db = db
	b.m.Unlock()

	return nil
}

// Close implements backends.Backend interface.
func (b *backend) Close() error {
	b.m.Lock()
	defer b.m.Unlock()

	if b.db == nil {
		return nil
	}

	err := b.db.Close()
	b.db = nil
	b.tables.Clear()

	if err != nil {
		return storeerrors.New(storeerrors.ErrorCodeConnection, err)
	}

	return nil
}

// Describe implements prometheus.Collector.
func (b *backend) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(b, ch)
}

// Collect implements prometheus.Collector.
func (b *backend) Collect(ch chan<- prometheus.Metric) {
	b.m.RLock()
	defer b.m.RUnlock()

	if b.db != nil {
		b.db.Collect(ch)
	}
}

// getDB returns the connected database.
func (b *backend) getDB() (*fsql.DB, error) {
	b.m.RLock()
	defer b.m.RUnlock()

	if b.db == nil {
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeConnection, "sqlite: not connected")
	}

	return b.db, nil
}

// table returns the quoted table name for the given collection, creating the table if needed.
func (b *backend) table(ctx context.Context, db *fsql.DB, collection string) (string, error) {
	if strings.HasPrefix(strings.ToLower(collection), "sqlite_") {
		return "", storeerrors.Errorf(storeerrors.ErrorCodeValidation, "collection name %q is reserved by SQLite", collection)
	}

	table := quoteIdentifier(collection)

	if _, ok := b.tables.Load(collection); ok {
		return table, nil
	}

	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s TEXT PRIMARY KEY, %s TEXT NOT NULL)`, table, idColumn, defaultColumn)
	if _, err := db.ExecContext(ctx, q); err != nil {
		return "", lazyerrors.Error(err)
	}

	b.tables.Store(collection, struct{}{})

	return table, nil
}

// check interfaces
var (
	_ backends.Backend     = (*backend)(nil)
	_ prometheus.Collector = (*backend)(nil)
)
