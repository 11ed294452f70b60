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

	"github.com/FerretDB/datastore/internal/config"
	"github.com/FerretDB/datastore/internal/sqlquery"
	"github.com/FerretDB/datastore/internal/storeerrors"
)

// QueryParams represents parameters of the document loading query.
type QueryParams = config.Query

// DefaultDateFormat is used when the date format is not set.
const DefaultDateFormat = sqlquery.DefaultDateFormat

// LoadData returns documents selected by the given query parameters.
//
// If params is nil, the configured query is used.
// When fields are set, only they are returned, without _id.
// Start and end dates are normalized with the date format and compared with stored values
// inclusively, so the format must sort chronologically, like the default "%Y-%m-%d".
func (s *Store) LoadData(ctx context.Context, params *QueryParams) (docs []Document, err error) {
	if params == nil {
		params = s.cfg.Query
	}

	if params == nil {
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeValidation, "query is not configured")
	}

	ctx, end := s.startSpan(ctx, "LoadData", params.Collection)
	defer func() { end(err) }()

	if params.Collection == "" {
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeValidation, "query collection is required")
	}

	if params.Limit < 0 {
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeValidation, "query limit must not be negative")
	}

	filter, err := loadFilter(params)
	if err != nil {
		return nil, err
	}

	return s.Find(ctx, params.Collection, filter, &FindOptions{
		Projection: params.Fields,
		ExcludeID:  len(params.Fields) > 0,
		Limit:      params.Limit,
	})
}

// loadFilter returns the filter of the loading query.
func loadFilter(params *QueryParams) (Filter, error) {
	filter := make(Filter, len(params.Filter)+1)
	for k, v := range params.Filter {
		filter[k] = v
	}

	if params.DateField == "" || (params.StartDate == "" && params.EndDate == "") {
		return filter, nil
	}

	format := params.DateFormat
	if format == "" {
		format = DefaultDateFormat
	}

	dates := map[string]any{}

	for op, value := range map[string]string{"$gte": params.StartDate, "$lte": params.EndDate} {
		if value == "" {
			continue
		}

		v, err := sqlquery.FormatDate(value, format)
		if err != nil {
			return nil, err
		}

		dates[op] = v
	}

	if _, ok := filter[params.DateField]; !ok {
		filter[params.DateField] = dates
		return filter, nil
	}

	return Filter{"$and": []any{filter, map[string]any{params.DateField: dates}}}, nil
}
