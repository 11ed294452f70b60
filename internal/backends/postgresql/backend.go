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

package postgresql

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/jackc/pgerrcode"
	zapadapter "github.com/jackc/pgx-zap"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/FerretDB/datastore/internal/backends"
	"github.com/FerretDB/datastore/internal/storeerrors"
	"github.com/FerretDB/datastore/internal/util/lazyerrors"
	"github.com/FerretDB/datastore/internal/util/observability"
)

// Parts of Prometheus metric names.
const (
	namespace = "datastore"
	subsystem = "postgresql_pool"
)

// DefaultSchema is used when schema is not configured.
const DefaultSchema = "public"

// backend implements backends.Backend interface.
type backend struct {
	uri    string
	schema string
	l      *zap.Logger

	m sync.RWMutex
	p *pgxpool.Pool

	// tables known to exist
	tables *xsync.MapOf[string, struct{}]
}

// NewBackendParams represents the parameters of NewBackend function.
type NewBackendParams struct {
	URI    string
	Schema string
	L      *zap.Logger
}

// NewBackend creates a new unconnected PostgreSQL backend.
func NewBackend(params *NewBackendParams) (backends.Backend, error) {
	u, err := url.Parse(params.URI)
	if err != nil {
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeConfiguration, "failed to parse PostgreSQL URI: %s", err)
	}

	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeConfiguration, `expected "postgres://" schema, got %q`, u.Scheme)
	}

	values := u.Query()
	setDefaultValues(values)
	u.RawQuery = values.Encode()

	schema := params.Schema
	if schema == "" {
		schema = DefaultSchema
	}

	return &backend{
		uri:    u.String(),
		schema: schema,
		l:      params.L,
		tables: xsync.NewMapOf[string, struct{}](),
	}, nil
}

// Name implements backends.Backend interface.
func (b *backend) Name() string {
	return "postgresql"
}

// Connect implements backends.Backend interface.
func (b *backend) Connect(ctx context.Context) error {
	config, err := pgxpool.ParseConfig(b.uri)
	if err != nil {
		return storeerrors.New(storeerrors.ErrorCodeConfiguration, err)
	}

	// try to log everything; logger's configuration will skip extra levels if needed
	config.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   zapadapter.NewLogger(b.l),
		LogLevel: tracelog.LogLevelTrace,
	}

	p, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return backends.ConnectionError(ctx, err)
	}

	var version string
	if err = p.QueryRow(ctx, `SHOW server_version`).Scan(&version); err != nil {
		p.Close()
		return backends.ConnectionError(ctx, err)
	}

	if _, err = p.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{b.schema}.Sanitize()); err != nil {
		p.Close()
		return backends.ConnectionError(ctx, err)
	}

	b.l.Debug("Connected", zap.String("version", version), zap.String("schema", b.schema))

	b.m.Lock()
	b.p = p
	b.m.Unlock()

	return nil
}

// Close implements backends.Backend interface.
func (b *backend) Close() error {
	b.m.Lock()
	defer b.m.Unlock()

	if b.p != nil {
		b.p.Close()
		b.p = nil
	}

	b.tables.Clear()

	return nil
}

// getPool returns the connected pool.
func (b *backend) getPool() (*pgxpool.Pool, error) {
	b.m.RLock()
	defer b.m.RUnlock()

	if b.p == nil {
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeConnection, "postgresql: not connected")
	}

	return b.p, nil
}

// table returns the sanitized table name for the given collection, creating the table if needed.
func (b *backend) table(ctx context.Context, p *pgxpool.Pool, collection string) (string, error) {
	table := tableIdentifier(b.schema, collection)

	if _, ok := b.tables.Load(collection); ok {
		return table, nil
	}

	q := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (%s text PRIMARY KEY, %s jsonb NOT NULL, %s bigserial)`,
		table, idColumn, defaultColumn, seqColumn,
	)

	if _, err := p.Exec(ctx, q); err != nil {
		// concurrent CREATE TABLE IF NOT EXISTS may fail with unique violation on pg_type
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
			return "", lazyerrors.Error(err)
		}
	}

	b.tables.Store(collection, struct{}{})

	return table, nil
}

// inTransaction uses pool p and wraps the given function f in a transaction.
//
// If f returns an error or context is canceled, the transaction is rolled back.
func inTransaction(ctx context.Context, p *pgxpool.Pool, f func(tx pgx.Tx) error) error {
	defer observability.FuncCall(ctx)()

	// do not wrap error because the caller of f depends on it in some cases
	return pgx.BeginFunc(ctx, p, f)
}

// Describe implements prometheus.Collector.
func (b *backend) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(b, ch)
}

// Collect implements prometheus.Collector.
func (b *backend) Collect(ch chan<- prometheus.Metric) {
	b.m.RLock()
	defer b.m.RUnlock()

	if b.p == nil {
		return
	}

	stats := b.p.Stat()

	ch <- prometheus.MustNewConstMetric(
		prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "size"),
			"The current number of connections in the pool.",
			nil, nil,
		),
		prometheus.GaugeValue,
		float64(stats.TotalConns()),
	)

	ch <- prometheus.MustNewConstMetric(
		prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "acquired"),
			"The current number of acquired connections in the pool.",
			nil, nil,
		),
		prometheus.GaugeValue,
		float64(stats.AcquiredConns()),
	)
}

// check interfaces
var (
	_ backends.Backend     = (*backend)(nil)
	_ prometheus.Collector = (*backend)(nil)
)
