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

// Package sqlite provides SQLite backend.
//
// Each collection is stored in a separate table with two columns:
// _id (primary key) and _jsonb (the document as JSON text).
// Rows are returned in rowid (insertion) order.
//
// Filters on _id are pushed down to SQL; all other conditions are evaluated after fetching.
package sqlite

import (
	"fmt"
	"net/url"
	"strings"
)

// https://www.sqlite.org/limits.html#max_variable_number
const maxPlaceholders = 1000

// Column names.
const (
	idColumn      = "_id"
	defaultColumn = "_jsonb"
)

// quoteIdentifier returns the SQL identifier quoted for SQLite.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func placeholders(n int) []string {
	if n > maxPlaceholders {
		panic("too many placeholders")
	}

	r := make([]string, n)
	for i := 0; i < n; i++ {
		r[i] = "?"
	}

	return r
}

// validateURI checks given URI value and returns a connection string for the driver.
// URI should contain 'file' scheme and a path; or mode=memory query parameter.
// Authority should be empty or absent.
func validateURI(value string) (string, error) {
	uri, err := url.Parse(value)
	if err != nil {
		return "", err
	}

	if uri.Scheme != "file" {
		return "", fmt.Errorf(`expected "file:" schema, got %q`, uri.Scheme)
	}

	if uri.User != nil {
		return "", fmt.Errorf(`expected empty user info, got %q`, uri.User)
	}

	if uri.Host != "" {
		return "", fmt.Errorf(`expected empty host, got %q`, uri.Host)
	}

	if uri.Path == "" && uri.Opaque != "" {
		uri.Path = uri.Opaque
	}

	q := uri.Query()

	if uri.Path == "" && q.Get("mode") != "memory" {
		return "", fmt.Errorf(`expected path or "mode=memory", got %q`, value)
	}

	if strings.HasSuffix(uri.Path, "/") {
		return "", fmt.Errorf(`expected file path, got directory %q`, uri.Path)
	}

	if !q.Has("_pragma") {
		q.Set("_pragma", "busy_timeout(5000)")
	}

	return "file:" + uri.Path + "?" + q.Encode(), nil
}

// memory returns true if the connection string is for the in-memory database.
func memory(dsn string) bool {
	u, err := url.Parse(dsn)
	if err != nil {
		return false
	}

	return u.Query().Get("mode") == "memory"
}
