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

// Package minio provides an object storage client for MinIO and S3-compatible servers.
package minio

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/FerretDB/datastore/internal/objects"
	"github.com/FerretDB/datastore/internal/storeerrors"
)

// client implements objects.Client interface.
type client struct {
	c *minio.Client
	l *zap.Logger
}

// New creates a new client.
//
// No request is made.
func New(params *objects.Params, l *zap.Logger) (objects.Client, error) {
	if params.Endpoint == "" {
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeConfiguration, "minio: endpoint is required")
	}

	c, err := minio.New(params.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(params.AccessKey, params.SecretKey, ""),
		Secure: params.Secure,
		Region: params.Region,
	})
	if err != nil {
		return nil, storeerrors.New(storeerrors.ErrorCodeConfiguration, err)
	}

	return &client{c: c, l: l}, nil
}

// ListBuckets implements objects.Client interface.
func (c *client) ListBuckets(ctx context.Context) ([]objects.Bucket, error) {
	buckets, err := c.c.ListBuckets(ctx)
	if err != nil {
		return nil, objects.OperationError(err)
	}

	res := make([]objects.Bucket, len(buckets))
	for i, b := range buckets {
		res[i] = objects.Bucket{Name: b.Name, CreatedTime: b.CreationDate}
	}

	return res, nil
}

// ListObjects implements objects.Client interface.
func (c *client) ListObjects(ctx context.Context, bucket, prefix string) ([]objects.ObjectMetadata, error) {
	var res []objects.ObjectMetadata

	for obj := range c.c.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, objects.OperationError(obj.Err)
		}

		res = append(res, metadata(obj))
	}

	return res, nil
}

// metadata converts listed object information.
func metadata(obj minio.ObjectInfo) objects.ObjectMetadata {
	return objects.ObjectMetadata{
		Key:         obj.Key,
		UpdatedTime: obj.LastModified,
		Size:        obj.Size,
		ETag:        obj.ETag,
	}
}

// GetObject implements objects.Client interface.
func (c *client) GetObject(ctx context.Context, bucket, key string) (*objects.Object, error) {
	obj, err := c.c.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, objects.OperationError(err)
	}

	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, objects.OperationError(err)
	}

	body, err := io.ReadAll(obj)
	if err != nil {
		return nil, objects.OperationError(err)
	}

	return &objects.Object{
		Body:        body,
		UpdatedTime: info.LastModified,
		ContentType: info.ContentType,
	}, nil
}

// PutObject implements objects.Client interface.
func (c *client) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64) error {
	if _, err := c.c.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{}); err != nil {
		return objects.OperationError(err)
	}

	return nil
}

// UploadFile implements objects.Client interface.
func (c *client) UploadFile(ctx context.Context, bucket, key, path string) error {
	info, err := c.c.FPutObject(ctx, bucket, key, path, minio.PutObjectOptions{})
	if err != nil {
		return objects.OperationError(err)
	}

	c.l.Debug("Uploaded", zap.String("bucket", bucket), zap.String("key", key), zap.Int64("size", info.Size))

	return nil
}

// DownloadFile implements objects.Client interface.
func (c *client) DownloadFile(ctx context.Context, bucket, key, path string) error {
	if err := c.c.FGetObject(ctx, bucket, key, path, minio.GetObjectOptions{}); err != nil {
		return objects.OperationError(err)
	}

	return nil
}

// CopyObject implements objects.Client interface.
func (c *client) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	_, err := c.c.CopyObject(
		ctx,
		minio.CopyDestOptions{Bucket: dstBucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: srcBucket, Object: srcKey},
	)
	if err != nil {
		return objects.OperationError(err)
	}

	return nil
}

// DeleteObject implements objects.Client interface.
func (c *client) DeleteObject(ctx context.Context, bucket, key, version string) error {
	if err := c.c.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{VersionID: version}); err != nil {
		return objects.OperationError(err)
	}

	return nil
}

// PresignedGetURL implements objects.Client interface.
func (c *client) PresignedGetURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	u, err := c.c.PresignedGetObject(ctx, bucket, key, expiry, url.Values{})
	if err != nil {
		return "", objects.OperationError(err)
	}

	return u.String(), nil
}

// check interfaces
var (
	_ objects.Client = (*client)(nil)
)
