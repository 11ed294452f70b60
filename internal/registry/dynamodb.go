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

//go:build !datastore_no_dynamodb

package registry

import (
	"net"
	"strconv"

	"github.com/FerretDB/datastore/internal/backends"
	"github.com/FerretDB/datastore/internal/backends/dynamodb"
	"github.com/FerretDB/datastore/internal/config"
)

// init registers "dynamodb" backend.
func init() {
	registry[config.FrameworkDynamoDB] = func(opts *NewBackendOpts) (backends.Backend, error) {
		c := opts.Config.Connection

		return dynamodb.NewBackend(&dynamodb.NewBackendParams{
			Endpoint:    dynamoDBEndpoint(c),
			Region:      opts.Config.ExtraString("region"),
			AccessKey:   c.Username,
			SecretKey:   c.Password,
			TablePrefix: opts.Config.ExtraString("table_prefix"),
			L:           opts.Logger,
		})
	}
}

// dynamoDBEndpoint returns the configured URI, or builds an endpoint URL from host and port.
func dynamoDBEndpoint(c *config.Connection) string {
	if c.URI != "" {
		return c.URI
	}

	scheme := "http://"
	if c.SSL {
		scheme = "https://"
	}

	host := c.Host
	if c.Port != nil {
		host = net.JoinHostPort(c.Host, strconv.Itoa(*c.Port))
	}

	return scheme + host
}
