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

//go:build !datastore_no_postgresql

package registry

import (
	"net"
	"net/url"
	"strconv"

	"github.com/FerretDB/datastore/internal/backends"
	"github.com/FerretDB/datastore/internal/backends/postgresql"
	"github.com/FerretDB/datastore/internal/config"
)

// init registers "postgresql" backend.
func init() {
	registry[config.FrameworkPostgreSQL] = func(opts *NewBackendOpts) (backends.Backend, error) {
		return postgresql.NewBackend(&postgresql.NewBackendParams{
			URI:    postgreSQLURI(opts.Config.Connection),
			Schema: opts.Config.ExtraString("schema"),
			L:      opts.Logger,
		})
	}
}

// postgreSQLURI returns the configured URI, or builds one from components.
func postgreSQLURI(c *config.Connection) string {
	if c.URI != "" {
		return c.URI
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   c.Host,
	}

	if c.Port != nil {
		u.Host = net.JoinHostPort(c.Host, strconv.Itoa(*c.Port))
	}

	switch {
	case c.Username != "" && c.Password != "":
		u.User = url.UserPassword(c.Username, c.Password)
	case c.Username != "":
		u.User = url.User(c.Username)
	}

	if c.Database != "" {
		u.Path = "/" + c.Database
	}

	q := u.Query()

	if c.SSL {
		q.Set("sslmode", "require")
	}

	if t := c.Timeout(); t > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(t.Seconds())))
	}

	u.RawQuery = q.Encode()

	return u.String()
}
