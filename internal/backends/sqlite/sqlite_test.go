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

package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateURI(t *testing.T) {
	t.Parallel()

	for name, tc := range map[string]struct {
		in  string
		out string
		err string
	}{
		"File": {
			in:  "file:/tmp/datastore.db",
			out: "file:/tmp/datastore.db?_pragma=busy_timeout%285000%29",
		},
		"Relative": {
			in:  "file:datastore.db",
			out: "file:datastore.db?_pragma=busy_timeout%285000%29",
		},
		"Memory": {
			in:  "file:test?mode=memory",
			out: "file:test?_pragma=busy_timeout%285000%29&mode=memory",
		},
		"Pragma": {
			in:  "file:datastore.db?_pragma=journal_mode(WAL)",
			out: "file:datastore.db?_pragma=journal_mode%28WAL%29",
		},
		"WrongScheme": {
			in:  "http:datastore.db",
			err: `expected "file:" schema, got "http"`,
		},
		"Host": {
			in:  "file://localhost/datastore.db",
			err: `expected empty host, got "localhost"`,
		},
		"Directory": {
			in:  "file:/tmp/",
			err: `expected file path, got directory "/tmp/"`,
		},
		"Empty": {
			in:  "file:",
			err: `expected path or "mode=memory", got "file:"`,
		},
	} {
		name, tc := name, tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			out, err := validateURI(tc.in)
			if tc.err != "" {
				require.EqualError(t, err, tc.err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.out, out)
			assert.Equal(t, tc.in == "file:test?mode=memory", memory(out))
		})
	}
}

func TestPlaceholders(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"?", "?", "?"}, placeholders(3))
	assert.Panics(t, func() { placeholders(maxPlaceholders + 1) })
}

func TestQuoteIdentifier(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `"orders$2024"`, quoteIdentifier("orders$2024"))
	assert.Equal(t, `"a""b"`, quoteIdentifier(`a"b`))
}
