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

//go:build !datastore_no_sqlite

package registry

import (
	"github.com/FerretDB/datastore/internal/backends"
	"github.com/FerretDB/datastore/internal/backends/sqlite"
	"github.com/FerretDB/datastore/internal/config"
)

// init registers "sqlite" backend.
func init() {
	registry[config.FrameworkSQLite] = func(opts *NewBackendOpts) (backends.Backend, error) {
		c := opts.Config.Connection

		// host is treated as a database file path
		uri := c.URI
		if uri == "" {
			uri = "file:" + c.Host
		}

		return sqlite.NewBackend(&sqlite.NewBackendParams{
			URI: uri,
			L:   opts.Logger,
		})
	}
}
