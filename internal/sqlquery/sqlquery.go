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

// Package sqlquery builds SELECT statements for relational databases.
package sqlquery

import (
	"fmt"
	"strings"

	"github.com/ncruces/go-strftime"

	"github.com/FerretDB/datastore/internal/storeerrors"
)

// Dialect represents an SQL dialect.
type Dialect string

// Supported dialects.
const (
	DialectSQLite     Dialect = "sqlite"
	DialectMySQL      Dialect = "mysql"
	DialectPostgreSQL Dialect = "postgresql"
	DialectHANA       Dialect = "hana"
)

// DefaultDateFormat is used when the date format is not set.
const DefaultDateFormat = "%Y-%m-%d"

// Params represents query parameters.
type Params struct {
	Table   string   `mapstructure:"table"`
	Columns []string `mapstructure:"columns"`

	// Rows are filtered by DateColumn only if it is set.
	DateColumn string `mapstructure:"date_column"`
	StartDate  string `mapstructure:"start_date"`
	EndDate    string `mapstructure:"end_date"`
	DateFormat string `mapstructure:"date_format"` // strftime-style

	Limit int `mapstructure:"limit"` // 0 means no limit
}

// Query is a built statement with its arguments.
type Query struct {
	SQL  string
	Args []any
}

// Build returns a SELECT statement for the given dialect.
//
// Identifiers are quoted; dates are passed as arguments after normalization
// to the date format.
func Build(d Dialect, params *Params) (*Query, error) {
	switch d {
	case DialectSQLite, DialectMySQL, DialectPostgreSQL, DialectHANA:
	default:
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeConfiguration, "unsupported SQL dialect %q", d)
	}

	if params == nil || params.Table == "" {
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeValidation, "table is required")
	}

	if params.Limit < 0 {
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeValidation, "limit must not be negative")
	}

	columns := "*"

	if len(params.Columns) > 0 {
		cols := make([]string, len(params.Columns))

		for i, c := range params.Columns {
			if c == "" {
				return nil, storeerrors.Errorf(storeerrors.ErrorCodeValidation, "column name must not be empty")
			}

			cols[i] = quote(d, c)
		}

		columns = strings.Join(cols, ", ")
	}

	var q Query

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", columns, quote(d, params.Table))

	if params.DateColumn != "" {
		format := params.DateFormat
		if format == "" {
			format = DefaultDateFormat
		}

		var conds []string

		for _, c := range []struct {
			op    string
			value string
		}{
			{">=", params.StartDate},
			{"<=", params.EndDate},
		} {
			if c.value == "" {
				continue
			}

			v, err := FormatDate(c.value, format)
			if err != nil {
				return nil, err
			}

			q.Args = append(q.Args, v)
			conds = append(conds, fmt.Sprintf("%s %s %s", quote(d, params.DateColumn), c.op, placeholder(d, len(q.Args))))
		}

		if len(conds) > 0 {
			sb.WriteString(" WHERE ")
			sb.WriteString(strings.Join(conds, " AND "))
		}
	}

	if params.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", params.Limit)
	}

	q.SQL = sb.String()

	return &q, nil
}

// quote quotes a possibly schema-qualified identifier.
func quote(d Dialect, name string) string {
	q := `"`
	if d == DialectMySQL {
		q = "`"
	}

	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = q + strings.ReplaceAll(p, q, q+q) + q
	}

	return strings.Join(parts, ".")
}

// placeholder returns the n-th (1-based) argument placeholder.
func placeholder(d Dialect, n int) string {
	if d == DialectPostgreSQL {
		return fmt.Sprintf("$%d", n)
	}

	return "?"
}

// FormatDate parses the value with the strftime-style format and formats it back,
// normalizing values like "2024-1-2" to "2024-01-02".
//
// Formats with literal text that Go layouts can't express (like digits) are rejected.
func FormatDate(value, format string) (string, error) {
	t, err := strftime.Parse(format, value)
	if err != nil {
		return "", storeerrors.Errorf(storeerrors.ErrorCodeValidation, "date %q does not match format %q: %w", value, format, err)
	}

	return strftime.Format(format, t), nil
}
