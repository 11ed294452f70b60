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
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/FerretDB/datastore/internal/storeerrors"
)

// EnvPrefix is a prefix of environment variables that override configuration file values.
const EnvPrefix = "DATASTORE"

// LoadSection reads the given section of a YAML, JSON, or TOML configuration file.
//
// .env and .env.local files in the current directory are loaded first, if present.
// Every value present in the file can be overridden by an environment variable,
// for example DATASTORE_NOSQL_STORE_CONNECTION_URI for nosql_store.connection.uri.
func LoadSection(path, section string) (map[string]any, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(strings.ToLower(EnvPrefix))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, storeerrors.New(storeerrors.ErrorCodeConfiguration, err)
	}

	section = strings.ToLower(section)
	prefix := section + "."

	res := map[string]any{}

	for _, key := range v.AllKeys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}

		// v.Get consults the environment first
		setPath(res, strings.Split(strings.TrimPrefix(key, prefix), "."), v.Get(key))
	}

	if len(res) == 0 {
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeConfiguration, "section %q not found in %s", section, path)
	}

	return res, nil
}

// Load reads the given section of a configuration file as a document store configuration.
func Load(path, section string) (*Config, error) {
	m, err := LoadSection(path, section)
	if err != nil {
		return nil, err
	}

	return FromMap(m)
}

// setPath sets value at the given path, creating intermediate maps.
func setPath(m map[string]any, path []string, value any) {
	for _, p := range path[:len(path)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}

		m = next
	}

	m[path[len(path)-1]] = value
}
