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

package s3

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FerretDB/datastore/internal/storeerrors"
	"github.com/FerretDB/datastore/internal/util/testutil"
)

// fakeAPI implements API for a single bucket in memory.
//
// Multipart methods are not implemented; tests use small bodies.
type fakeAPI struct {
	API

	objects map[string][]byte
	deleted []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{objects: map[string][]byte{}}
}

func (f *fakeAPI) ListBuckets(context.Context, *s3.ListBucketsInput, ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	return &s3.ListBucketsOutput{
		Buckets: []types.Bucket{{Name: aws.String("bucket"), CreationDate: &created}},
	}, nil
}

func (f *fakeAPI) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var contents []types.Object

	for k, v := range f.objects {
		if !strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			continue
		}

		contents = append(contents, types.Object{
			Key:  aws.String(k),
			Size: aws.Int64(int64(len(v))),
			ETag: aws.String(`"etag"`),
		})
	}

	return &s3.ListObjectsV2Output{Contents: contents}, nil
}

func (f *fakeAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("no such key")}
	}

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(b)),
		ContentLength: aws.Int64(int64(len(b))),
		ContentType:   aws.String("text/plain"),
	}, nil
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.objects[aws.ToString(in.Key)] = b

	return &s3.PutObjectOutput{ETag: aws.String(`"etag"`)}, nil
}

func (f *fakeAPI) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	src := aws.ToString(in.CopySource)
	src = src[len("bucket/"):]

	b, ok := f.objects[src]
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	f.objects[aws.ToString(in.Key)] = b

	return new(s3.CopyObjectOutput), nil
}

func (f *fakeAPI) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	f.deleted = append(f.deleted, aws.ToString(in.Key)+"@"+aws.ToString(in.VersionId))

	return new(s3.DeleteObjectOutput), nil
}

func TestEndpointURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", endpointURL("", true))
	assert.Equal(t, "http://localhost:9000", endpointURL("localhost:9000", false))
	assert.Equal(t, "https://s3.example.com", endpointURL("s3.example.com", true))
	assert.Equal(t, "http://s3.example.com", endpointURL("http://s3.example.com", true))
}

func TestClient(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	api := newFakeAPI()
	c := NewWithAPI(api, nil, testutil.Logger(t))

	buckets, err := c.ListBuckets(ctx)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, "bucket", buckets[0].Name)
	assert.Equal(t, 2024, buckets[0].CreatedTime.Year())

	require.NoError(t, c.PutObject(ctx, "bucket", "dir/a.txt", bytes.NewReader([]byte("hello")), 5))

	obj, err := c.GetObject(ctx, "bucket", "dir/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), obj.Body)
	assert.Equal(t, "text/plain", obj.ContentType)

	_, err = c.GetObject(ctx, "bucket", "missing")
	assert.True(t, storeerrors.ErrorCodeIs(err, storeerrors.ErrorCodeOperation))

	require.NoError(t, c.CopyObject(ctx, "bucket", "dir/a.txt", "bucket", "other/b.txt"))

	list, err := c.ListObjects(ctx, "bucket", "dir/")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "dir/a.txt", list[0].Key)
	assert.Equal(t, int64(5), list[0].Size)
	assert.Equal(t, "etag", list[0].ETag)

	require.NoError(t, c.DeleteObject(ctx, "bucket", "dir/a.txt", "v1"))
	assert.Equal(t, []string{"dir/a.txt@v1"}, api.deleted)

	list, err = c.ListObjects(ctx, "bucket", "dir/")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFiles(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	api := newFakeAPI()
	c := NewWithAPI(api, nil, testutil.Logger(t))

	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("file content"), 0o600))

	require.NoError(t, c.UploadFile(ctx, "bucket", "file.txt", src))
	assert.Equal(t, []byte("file content"), api.objects["file.txt"])

	dst := filepath.Join(dir, "dst.txt")
	require.NoError(t, c.DownloadFile(ctx, "bucket", "file.txt", dst))

	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("file content"), b)

	missing := filepath.Join(dir, "missing.txt")
	err = c.DownloadFile(ctx, "bucket", "missing", missing)
	assert.True(t, storeerrors.ErrorCodeIs(err, storeerrors.ErrorCodeOperation))
	assert.NoFileExists(t, missing)

	err = c.UploadFile(ctx, "bucket", "x", filepath.Join(dir, "nope"))
	assert.True(t, storeerrors.ErrorCodeIs(err, storeerrors.ErrorCodeValidation))
}

func TestPresignedGetURL(t *testing.T) {
	t.Parallel()

	api := s3.New(s3.Options{
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider("access", "secret", ""),
		BaseEndpoint: aws.String("http://localhost:9000"),
		UsePathStyle: true,
	})

	c := NewWithAPI(api, s3.NewPresignClient(api), testutil.Logger(t))

	s, err := c.PresignedGetURL(testutil.Ctx(t), "bucket", "dir/file.txt", time.Hour)
	require.NoError(t, err)

	u, err := url.Parse(s)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/bucket/dir/file.txt", u.Path)
	assert.Equal(t, "3600", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}
