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

// Package postgresql provides PostgreSQL backend.
//
// Each collection is stored in a separate table of the configured schema with columns
// _id (primary key), _jsonb (the document), and _seq (insertion order).
//
// Filters on _id and scalar top-level equality conditions are pushed down to SQL;
// all conditions are evaluated again after fetching.
package postgresql

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/FerretDB/datastore/internal/backends"
	"github.com/FerretDB/datastore/internal/query"
)

// Column names.
const (
	idColumn      = "_id"
	defaultColumn = "_jsonb"
	seqColumn     = "_seq"
)

// setDefaultValues sets default query parameters.
func setDefaultValues(values url.Values) {
	if !values.Has("pool_max_conns") {
		// the default is too low
		values.Set("pool_max_conns", "50")
	}

	values.Set("application_name", "datastore")
	values.Set("timezone", "UTC")
}

// Placeholder stores the number of the relevant placeholder of the query.
type Placeholder int

// Next increases the identifier value for the next parameter in the PostgreSQL query.
func (p *Placeholder) Next() string {
	*p++
	return "$" + fmt.Sprint(*p)
}

// prepareWhereClause returns WHERE clause for pushed down filter conditions and its arguments.
//
// Only conditions that can't exclude matching documents are pushed down.
func prepareWhereClause(p *Placeholder, filter backends.Filter) (string, []any) {
	var filters []string
	var args []any

	// iterate in a stable order
	keys := maps.Keys(filter)
	slices.Sort(keys)

	for _, k := range keys {
		v := filter[k]

		if query.IsOperator(k) || strings.Contains(k, ".") {
			continue
		}

		if k == "_id" {
			if backends.ValidID(v) {
				filters = append(filters, fmt.Sprintf(`%s = %s`, idColumn, p.Next()))
				args = append(args, backends.IDString(v))
			}

			continue
		}

		switch v.(type) {
		case string, bool, int, int32, int64, float64:
			// for array fields, containment of a scalar checks elements
			b, err := json.Marshal(v)
			if err != nil {
				continue
			}

			filters = append(filters, fmt.Sprintf(`%s->%s @> %s`, defaultColumn, p.Next(), p.Next()))
			args = append(args, k, string(b))

		default:
			// nil matches missing fields; documents and arrays have different semantics
		}
	}

	if len(filters) == 0 {
		return "", nil
	}

	return " WHERE " + strings.Join(filters, " AND "), args
}

// tableIdentifier returns a sanitized schema-qualified table name.
func tableIdentifier(schema, collection string) string {
	return pgx.Identifier{schema, collection}.Sanitize()
}
