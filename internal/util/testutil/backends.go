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

package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Environment variables that enable tests against real servers.
const (
	PostgreSQLURIEnv    = "DATASTORE_TEST_POSTGRESQL_URI"
	MongoDBURIEnv       = "DATASTORE_TEST_MONGODB_URI"
	DynamoDBEndpointEnv = "DATASTORE_TEST_DYNAMODB_ENDPOINT"
	MinIOEndpointEnv    = "DATASTORE_TEST_MINIO_ENDPOINT"
)

// TestSQLiteURI returns a file URI of a fresh SQLite database removed after the test.
func TestSQLiteURI(tb testing.TB) string {
	tb.Helper()

	return "file:" + filepath.Join(tb.TempDir(), "datastore.db")
}

// EnvOrSkip returns the value of the given environment variable,
// or skips the test if it is not set or the -short flag is given.
func EnvOrSkip(tb testing.TB, name string) string {
	tb.Helper()

	if testing.Short() {
		tb.Skip("skipping in -short mode")
	}

	v := os.Getenv(name)
	if v == "" {
		tb.Skipf("%s is not set", name)
	}

	return v
}
