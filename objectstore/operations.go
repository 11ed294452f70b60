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

package objectstore

import (
	"bytes"
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/FerretDB/datastore/internal/objects"
	"github.com/FerretDB/datastore/internal/storeerrors"
	"github.com/FerretDB/datastore/internal/util/observability"
)

// DefaultPresignExpiry is used by PresignedGetURL when expiry is zero.
const DefaultPresignExpiry = time.Hour

// startSpan starts a span for the Store operation.
func (s *Store) startSpan(ctx context.Context, op, bucket string) (context.Context, func(error)) {
	return observability.StartSpan(
		ctx, "objectstore."+op,
		attribute.String("objectstore.framework", s.cfg.Framework),
		attribute.String("objectstore.bucket", bucket),
	)
}

// prepare resolves the bucket, checks the key, and returns the client.
func (s *Store) prepare(ctx context.Context, bucket, key string) (objects.Client, string, error) {
	bucket, err := s.bucket(bucket)
	if err != nil {
		return nil, "", err
	}

	if key == "" {
		return nil, "", storeerrors.Errorf(storeerrors.ErrorCodeValidation, "key is required")
	}

	c, err := s.client(ctx)
	if err != nil {
		return nil, "", err
	}

	return c, bucket, nil
}

// ListBuckets returns all buckets visible to the configured credentials.
func (s *Store) ListBuckets(ctx context.Context) (res []Bucket, err error) {
	ctx, end := s.startSpan(ctx, "ListBuckets", "")
	defer func() { end(err) }()

	c, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	return c.ListBuckets(ctx)
}

// ListObjects returns metadata of all objects with the given key prefix.
// An empty prefix lists the whole bucket.
func (s *Store) ListObjects(ctx context.Context, bucket, prefix string) (res []ObjectMetadata, err error) {
	ctx, end := s.startSpan(ctx, "ListObjects", bucket)
	defer func() { end(err) }()

	if bucket, err = s.bucket(bucket); err != nil {
		return nil, err
	}

	c, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	return c.ListObjects(ctx, bucket, prefix)
}

// GetObject returns the object with its content.
func (s *Store) GetObject(ctx context.Context, bucket, key string) (obj *Object, err error) {
	ctx, end := s.startSpan(ctx, "GetObject", bucket)
	defer func() { end(err) }()

	c, bucket, err := s.prepare(ctx, bucket, key)
	if err != nil {
		return nil, err
	}

	return c.GetObject(ctx, bucket, key)
}

// PutObject stores data under the key, replacing any existing object.
func (s *Store) PutObject(ctx context.Context, bucket, key string, data []byte) (err error) {
	ctx, end := s.startSpan(ctx, "PutObject", bucket)
	defer func() { end(err) }()

	c, bucket, err := s.prepare(ctx, bucket, key)
	if err != nil {
		return err
	}

	return c.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)))
}

// UploadFile stores the local file under the key.
func (s *Store) UploadFile(ctx context.Context, bucket, key, path string) (err error) {
	ctx, end := s.startSpan(ctx, "UploadFile", bucket)
	defer func() { end(err) }()

	if path == "" {
		return storeerrors.Errorf(storeerrors.ErrorCodeValidation, "file path is required")
	}

	c, bucket, err := s.prepare(ctx, bucket, key)
	if err != nil {
		return err
	}

	return c.UploadFile(ctx, bucket, key, path)
}

// DownloadFile writes the object to the local file, replacing it.
func (s *Store) DownloadFile(ctx context.Context, bucket, key, path string) (err error) {
	ctx, end := s.startSpan(ctx, "DownloadFile", bucket)
	defer func() { end(err) }()

	if path == "" {
		return storeerrors.Errorf(storeerrors.ErrorCodeValidation, "file path is required")
	}

	c, bucket, err := s.prepare(ctx, bucket, key)
	if err != nil {
		return err
	}

	return c.DownloadFile(ctx, bucket, key, path)
}

// CopyObject copies an object on the server side.
// Empty buckets mean the root bucket.
func (s *Store) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (err error) {
	ctx, end := s.startSpan(ctx, "CopyObject", dstBucket)
	defer func() { end(err) }()

	if srcBucket, err = s.bucket(srcBucket); err != nil {
		return err
	}

	if srcKey == "" {
		return storeerrors.Errorf(storeerrors.ErrorCodeValidation, "source key is required")
	}

	c, dstBucket, err := s.prepare(ctx, dstBucket, dstKey)
	if err != nil {
		return err
	}

	return c.CopyObject(ctx, srcBucket, srcKey, dstBucket, dstKey)
}

// DeleteObject deletes the object.
// Version is optional; an empty version deletes the latest one.
func (s *Store) DeleteObject(ctx context.Context, bucket, key, version string) (err error) {
	ctx, end := s.startSpan(ctx, "DeleteObject", bucket)
	defer func() { end(err) }()

	c, bucket, err := s.prepare(ctx, bucket, key)
	if err != nil {
		return err
	}

	return c.DeleteObject(ctx, bucket, key, version)
}

// PresignedGetURL returns a URL that allows to download the object without credentials until it expires.
//
// Zero expiry means DefaultPresignExpiry.
func (s *Store) PresignedGetURL(ctx context.Context, bucket, key string, expiry time.Duration) (u string, err error) {
	ctx, end := s.startSpan(ctx, "PresignedGetURL", bucket)
	defer func() { end(err) }()

	if expiry == 0 {
		expiry = DefaultPresignExpiry
	}

	if expiry < time.Second || expiry > objects.MaxPresignExpiry {
		return "", storeerrors.Errorf(
			storeerrors.ErrorCodeValidation,
			"expiry must be between 1s and %s, got %s", objects.MaxPresignExpiry, expiry,
		)
	}

	c, bucket, err := s.prepare(ctx, bucket, key)
	if err != nil {
		return "", err
	}

	return c.PresignedGetURL(ctx, bucket, key, expiry)
}
