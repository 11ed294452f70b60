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

package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FerretDB/datastore/internal/backends"
	"github.com/FerretDB/datastore/internal/backends/memory"
	"github.com/FerretDB/datastore/internal/storeerrors"
	dstestutil "github.com/FerretDB/datastore/internal/util/testutil"
)

func TestMetrics(t *testing.T) {
	t.Parallel()

	ctx := dstestutil.Ctx(t)
	l := dstestutil.Logger(t)

	mb, err := memory.NewBackend(&memory.NewBackendParams{Name: t.Name(), L: l})
	require.NoError(t, err)

	m := NewMetrics()
	b := Wrap(backends.BackendContract(mb, l), m)

	require.NoError(t, b.Connect(ctx))

	t.Cleanup(func() {
		require.NoError(t, b.Close())
	})

	_, err = b.Insert(ctx, &backends.InsertParams{Collection: "c", Document: backends.Document{"_id": "1"}})
	require.NoError(t, err)

	_, err = b.Insert(ctx, &backends.InsertParams{Collection: "c", Document: backends.Document{"_id": "1"}})
	require.True(t, storeerrors.ErrorCodeIs(err, storeerrors.ErrorCodeDuplicateKey))

	_, err = b.Find(ctx, &backends.FindParams{Collection: "c", Filter: backends.Filter{}})
	require.NoError(t, err)

	expected := `
		# HELP datastore_backend_requests_total Total number of backend requests.
		# TYPE datastore_backend_requests_total counter
		datastore_backend_requests_total{framework="memory",op="connect",result="ok"} 1
		datastore_backend_requests_total{framework="memory",op="find",result="ok"} 1
		datastore_backend_requests_total{framework="memory",op="insert",result="DuplicateKey"} 1
		datastore_backend_requests_total{framework="memory",op="insert",result="ok"} 1
	`
	err = testutil.CollectAndCompare(m, strings.NewReader(expected), "datastore_backend_requests_total")
	require.NoError(t, err)

	assert.Equal(t, 3, testutil.CollectAndCount(m, "datastore_backend_request_duration_seconds"))
}
