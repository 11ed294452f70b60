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

// Package sqlstore provides a relational store facade that loads table rows
// from SQLite, MySQL, PostgreSQL, or SAP HANA.
package sqlstore

import (
	"context"
	"database/sql"
	"sync"

	_ "github.com/SAP/go-hdb/driver"   // register database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib" // register database/sql driver
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // register database/sql driver

	"github.com/FerretDB/datastore/internal/config"
	"github.com/FerretDB/datastore/internal/sqlquery"
	"github.com/FerretDB/datastore/internal/storeerrors"
	"github.com/FerretDB/datastore/internal/util/fsql"
)

// DefaultFramework is used when framework is not set.
const DefaultFramework = sqlquery.DialectSQLite

// QueryParams represents parameters of the loading query.
type QueryParams = sqlquery.Params

// Connection represents relational database connection parameters.
type Connection struct {
	URI string `mapstructure:"uri"`
}

// Config represents relational store configuration.
type Config struct {
	Framework  string       `mapstructure:"framework"`
	Connection Connection   `mapstructure:"connection"`
	Query      *QueryParams `mapstructure:"query"`
}

// drivers maps frameworks to database/sql driver names.
var drivers = map[sqlquery.Dialect]string{
	sqlquery.DialectSQLite:     "sqlite",
	sqlquery.DialectMySQL:      "mysql",
	sqlquery.DialectPostgreSQL: "pgx",
	sqlquery.DialectHANA:       "hdb",
}

// Store is a relational store facade.
//
// It is safe for concurrent use.
type Store struct {
	dialect sqlquery.Dialect
	dsn     string
	query   *QueryParams
	l       *zap.Logger

	m  sync.Mutex
	db *fsql.DB
}

// New creates a new Store.
//
// The framework and connection URI are validated immediately; the database is opened on the first load.
// Logger may be nil; zap.L() is used then.
func New(cfg *Config, l *zap.Logger) (*Store, error) {
	if cfg == nil || cfg.Connection.URI == "" {
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeConfiguration, "connection URI is required")
	}

	d := sqlquery.Dialect(cfg.Framework)
	if d == "" {
		d = DefaultFramework
	}

	if _, ok := drivers[d]; !ok {
		return nil, storeerrors.Errorf(
			storeerrors.ErrorCodeConfiguration,
			"unsupported SQL framework %q, expected one of %v", d, Frameworks(),
		)
	}

	dsn, err := dataSourceName(d, cfg.Connection.URI)
	if err != nil {
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeConfiguration, "invalid %s connection URI: %s", d, err)
	}

	if l == nil {
		l = zap.L()
	}

	return &Store{
		dialect: d,
		dsn:     dsn,
		query:   cfg.Query,
		l:       l.Named("sqlstore"),
	}, nil
}

// NewFromMap creates a new Store from a loosely typed configuration mapping.
func NewFromMap(m map[string]any, l *zap.Logger) (*Store, error) {
	var cfg Config
	if err := config.Decode(m, &cfg); err != nil {
		return nil, err
	}

	return New(&cfg, l)
}

// Frameworks returns all supported frameworks.
func Frameworks() []string {
	return []string{
		string(sqlquery.DialectHANA),
		string(sqlquery.DialectMySQL),
		string(sqlquery.DialectPostgreSQL),
		string(sqlquery.DialectSQLite),
	}
}

// Framework returns the configured framework.
func (s *Store) Framework() string {
	return string(s.dialect)
}

// getDB returns the database, opening it if needed.
func (s *Store) getDB(ctx context.Context) (*fsql.DB, error) {
	s.m.Lock()
	defer s.m.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	sqlDB, err := sql.Open(drivers[s.dialect], s.dsn)
	if err != nil {
		return nil, storeerrors.New(storeerrors.ErrorCodeConfiguration, err)
	}

	if err = sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, storeerrors.New(storeerrors.ErrorCodeConnection, err)
	}

	s.db = fsql.WrapDB(sqlDB, string(s.dialect), s.l)

	return s.db, nil
}

// Close closes the database, if it was opened.
// The Store can be used again after that.
func (s *Store) Close() error {
	s.m.Lock()
	defer s.m.Unlock()

	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil

	return err
}

// Describe implements prometheus.Collector.
func (s *Store) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(s, ch)
}

// Collect implements prometheus.Collector.
func (s *Store) Collect(ch chan<- prometheus.Metric) {
	s.m.Lock()
	db := s.db
	s.m.Unlock()

	if db != nil {
		db.Collect(ch)
	}
}

// check interfaces
var (
	_ prometheus.Collector = (*Store)(nil)
)
