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

// Package config provides store configuration and its loading from
// loosely typed mappings, JSON documents, and configuration files.
package config

import (
	"encoding/json"

	"github.com/spf13/viper"

	"github.com/FerretDB/datastore/internal/storeerrors"
	"github.com/FerretDB/datastore/internal/util/lazyerrors"
)

// Framework selects a concrete backend.
type Framework string

// Known frameworks.
//
// The backend registry is the source of truth; these constants are provided for convenience.
const (
	FrameworkMongoDB    Framework = "mongodb"
	FrameworkPostgreSQL Framework = "postgresql"
	FrameworkSQLite     Framework = "sqlite"
	FrameworkDynamoDB   Framework = "dynamodb"
	FrameworkMemory     Framework = "memory"
)

// DefaultFramework is used when framework is not set.
const DefaultFramework = FrameworkMongoDB

// Config is a validated document store configuration.
//
// It is constructed once and never re-validated.
type Config struct {
	Framework  Framework
	Connection *Connection

	// Query holds default parameters of the document loading query, if configured.
	Query *Query

	// Extra holds unknown keys of the configuration root.
	// They are not interpreted by the store itself, but backends may read them.
	Extra map[string]any
}

// New creates a new validated configuration.
func New(framework Framework, conn Connection) (*Config, error) {
	if framework == "" {
		framework = DefaultFramework
	}

	c, err := NewConnection(conn)
	if err != nil {
		return nil, err
	}

	return &Config{
		Framework:  framework,
		Connection: c,
		Extra:      map[string]any{},
	}, nil
}

// Query represents parameters of the document loading query.
type Query struct {
	Collection string `mapstructure:"collection"`

	// Fields to return; empty means all fields (with _id).
	Fields []string `mapstructure:"fields"`

	// Documents are filtered by DateField only if it is set.
	DateField  string `mapstructure:"date_field"`
	StartDate  string `mapstructure:"start_date"`
	EndDate    string `mapstructure:"end_date"`
	DateFormat string `mapstructure:"date_format"` // strftime-style

	// Filter holds additional conditions.
	Filter map[string]any `mapstructure:"filter"`

	Limit int64 `mapstructure:"limit"` // 0 means no limit
}

// ExtraString returns a string value of the extra key, or an empty string.
func (c *Config) ExtraString(key string) string {
	s, _ := c.Extra[key].(string)
	return s
}

// payload is the shape of the configuration mapping.
type payload struct {
	Framework  string      `mapstructure:"framework"`
	Connection *Connection `mapstructure:"connection"`
	Query      *Query      `mapstructure:"query"`
}

// FromMap parses a loosely typed configuration mapping.
func FromMap(m map[string]any) (*Config, error) {
	var p payload
	if err := Decode(m, &p); err != nil {
		return nil, err
	}

	if p.Connection == nil {
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeConfiguration, "connection is required")
	}

	c, err := New(Framework(p.Framework), *p.Connection)
	if err != nil {
		return nil, err
	}

	if p.Query != nil && p.Query.Limit < 0 {
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeConfiguration, "query limit must not be negative")
	}

	if p.Query != nil {
		// keys of decoded maps are lowercased; filter field names must be kept as-is
		if q, ok := m["query"].(map[string]any); ok {
			p.Query.Filter, _ = q["filter"].(map[string]any)
		}
	}

	c.Query = p.Query

	for k, v := range m {
		switch k {
		case "framework", "connection", "query":
		default:
			c.Extra[k] = v
		}
	}

	return c, nil
}

// FromJSON parses a JSON configuration document.
func FromJSON(b []byte) (*Config, error) {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, storeerrors.New(storeerrors.ErrorCodeConfiguration, err)
	}

	return FromMap(m)
}

// Decode decodes a loosely typed mapping into out using mapstructure tags.
//
// Numbers are converted between types where it is lossless enough for configuration
// (for example, JSON's float64 port number into int).
func Decode(m map[string]any, out any) error {
	v := viper.New()

	if err := v.MergeConfigMap(m); err != nil {
		return storeerrors.New(storeerrors.ErrorCodeConfiguration, lazyerrors.Error(err))
	}

	if err := v.Unmarshal(out); err != nil {
		return storeerrors.New(storeerrors.ErrorCodeConfiguration, lazyerrors.Error(err))
	}

	return nil
}
