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

package minio

import (
	"bytes"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FerretDB/datastore/internal/objects"
	"github.com/FerretDB/datastore/internal/storeerrors"
	"github.com/FerretDB/datastore/internal/util/testutil"
)

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := New(&objects.Params{}, testutil.Logger(t))
	assert.True(t, storeerrors.ErrorCodeIs(err, storeerrors.ErrorCodeConfiguration))
}

func TestPresignedGetURL(t *testing.T) {
	t.Parallel()

	// with the region set, presigning does not make requests
	c, err := New(&objects.Params{
		Endpoint:  "localhost:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Region:    "us-east-1",
	}, testutil.Logger(t))
	require.NoError(t, err)

	s, err := c.PresignedGetURL(testutil.Ctx(t), "bucket", "dir/file.txt", time.Hour)
	require.NoError(t, err)

	u, err := url.Parse(s)
	require.NoError(t, err)
	assert.Equal(t, "http", u.Scheme)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/bucket/dir/file.txt", u.Path)
	assert.Equal(t, "3600", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestMetadata(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	actual := metadata(minio.ObjectInfo{Key: "a/b", LastModified: ts, Size: 42, ETag: "abc"})
	assert.Equal(t, objects.ObjectMetadata{Key: "a/b", UpdatedTime: ts, Size: 42, ETag: "abc"}, actual)
}

// TestServer requires a running MinIO server.
func TestServer(t *testing.T) {
	t.Parallel()

	endpoint := testutil.EnvOrSkip(t, testutil.MinIOEndpointEnv)
	ctx := testutil.Ctx(t)

	c, err := New(&objects.Params{
		Endpoint:  endpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Region:    "us-east-1",
	}, testutil.Logger(t))
	require.NoError(t, err)

	bucket := "datastore-test"
	mc := c.(*client).c

	exists, err := mc.BucketExists(ctx, bucket)
	require.NoError(t, err)

	if !exists {
		require.NoError(t, mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	data := []byte("hello")
	require.NoError(t, c.PutObject(ctx, bucket, "test/hello.txt", bytes.NewReader(data), int64(len(data))))

	obj, err := c.GetObject(ctx, bucket, "test/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, data, obj.Body)

	require.NoError(t, c.CopyObject(ctx, bucket, "test/hello.txt", bucket, "test/copy.txt"))

	list, err := c.ListObjects(ctx, bucket, "test/")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	path := filepath.Join(t.TempDir(), "copy.txt")
	require.NoError(t, c.DownloadFile(ctx, bucket, "test/copy.txt", path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, b)

	require.NoError(t, c.DeleteObject(ctx, bucket, "test/hello.txt", ""))
	require.NoError(t, c.DeleteObject(ctx, bucket, "test/copy.txt", ""))
}
