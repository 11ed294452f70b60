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

package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/FerretDB/datastore/internal/storeerrors"
)

// DefaultConnectionTimeout is used when connection_timeout is not set.
const DefaultConnectionTimeout = 30

// Connection describes how to reach a document store.
//
// Empty strings and nil Port mean "absent".
// At least one of URI and Host must be present.
type Connection struct {
	URI               string `mapstructure:"uri" json:"uri,omitempty"`
	Host              string `mapstructure:"host" json:"host,omitempty"`
	Port              *int   `mapstructure:"port" json:"port,omitempty"`
	Username          string `mapstructure:"username" json:"username,omitempty"`
	Password          string `mapstructure:"password" json:"password,omitempty"`
	Database          string `mapstructure:"database" json:"database,omitempty"`
	AuthSource        string `mapstructure:"auth_source" json:"auth_source,omitempty"`
	SSL               bool   `mapstructure:"ssl" json:"ssl"`
	ConnectionTimeout int    `mapstructure:"connection_timeout" json:"connection_timeout,omitempty"`
}

// NewConnection validates the given descriptor and returns a copy with defaults applied.
func NewConnection(c Connection) (*Connection, error) {
	if c.ConnectionTimeout == 0 {
		c.ConnectionTimeout = DefaultConnectionTimeout
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

// Validate checks descriptor invariants.
func (c *Connection) Validate() error {
	if c.URI == "" && c.Host == "" {
		return storeerrors.Errorf(storeerrors.ErrorCodeConfiguration, "Either 'uri' or 'host' must be provided")
	}

	if c.Port != nil && (*c.Port <= 0 || *c.Port > 65535) {
		return storeerrors.Errorf(storeerrors.ErrorCodeConfiguration, "invalid port %d", *c.Port)
	}

	if c.ConnectionTimeout < 0 {
		return storeerrors.Errorf(storeerrors.ErrorCodeConfiguration, "invalid connection_timeout %d", c.ConnectionTimeout)
	}

	return nil
}

// ConnectionURI returns URI if it is set, or derives a canonical one from component fields:
//
//	mongodb[+srv]://[username[:password]@]host[:port][/database][?authSource=auth_source]
//
// Component values are used verbatim.
func (c *Connection) ConnectionURI() (string, error) {
	if c.URI != "" {
		return c.URI, nil
	}

	if c.Host == "" {
		return "", storeerrors.Errorf(storeerrors.ErrorCodeConfiguration, "Host is required to build URI")
	}

	var b strings.Builder

	if c.SSL {
		b.WriteString("mongodb+srv://")
	} else {
		b.WriteString("mongodb://")
	}

	if c.Username != "" {
		b.WriteString(c.Username)

		if c.Password != "" {
			b.WriteString(":")
			b.WriteString(c.Password)
		}

		b.WriteString("@")
	}

	b.WriteString(c.Host)

	if c.Port != nil {
		b.WriteString(":")
		b.WriteString(strconv.Itoa(*c.Port))
	}

	if c.Database != "" {
		b.WriteString("/")
		b.WriteString(c.Database)
	}

	if c.AuthSource != "" {
		b.WriteString("?authSource=")
		b.WriteString(c.AuthSource)
	}

	return b.String(), nil
}

// Timeout returns the connect timeout.
func (c *Connection) Timeout() time.Duration {
	t := c.ConnectionTimeout
	if t <= 0 {
		t = DefaultConnectionTimeout
	}

	return time.Duration(t) * time.Second
}
