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

package sqlstore

import (
	"context"
	"database/sql"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/FerretDB/datastore/internal/sqlquery"
	"github.com/FerretDB/datastore/internal/storeerrors"
	"github.com/FerretDB/datastore/internal/util/lazyerrors"
	"github.com/FerretDB/datastore/internal/util/observability"
)

// Row represents a single loaded row keyed by column name.
type Row = map[string]any

// LoadData runs the query built from params and returns all rows.
//
// If params is nil, the configured query is used.
// Byte slices are returned as strings.
func (s *Store) LoadData(ctx context.Context, params *QueryParams) (rows []Row, err error) {
	ctx, end := observability.StartSpan(ctx, "sqlstore.LoadData", attribute.String("db.system", string(s.dialect)))
	defer func() { end(err) }()

	if params == nil {
		params = s.query
	}

	if params == nil {
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeValidation, "query is not configured")
	}

	q, err := sqlquery.Build(s.dialect, params)
	if err != nil {
		return nil, err
	}

	db, err := s.getDB(ctx)
	if err != nil {
		return nil, err
	}

	if rows, err = load(ctx, db, q); err != nil {
		s.l.Error("Failed to load data", zap.String("query", q.SQL), zap.Error(err))
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeOperation, "failed to load data using query %q: %w", q.SQL, err)
	}

	return rows, nil
}

// querier is implemented by *fsql.DB.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// load runs the query and scans all rows.
func load(ctx context.Context, db querier, q *sqlquery.Query) ([]Row, error) {
	rows, err := db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	res := []Row{}

	for rows.Next() {
		values := make([]any, len(cols))
		dest := make([]any, len(cols))

		for i := range values {
			dest[i] = &values[i]
		}

		if err = rows.Scan(dest...); err != nil {
			return nil, lazyerrors.Error(err)
		}

		row := make(Row, len(cols))

		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}

			row[c] = values[i]
		}

		res = append(res, row)
	}

	if err = rows.Err(); err != nil {
		return nil, lazyerrors.Error(err)
	}

	return res, nil
}
