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

// Package objects provides a common interface for object storage clients.
package objects

import (
	"context"
	"io"
	"time"

	"github.com/FerretDB/datastore/internal/storeerrors"
)

// MaxPresignExpiry is the maximum expiry of presigned URLs supported by S3 signatures.
const MaxPresignExpiry = 7 * 24 * time.Hour

// Bucket represents a bucket.
type Bucket struct {
	Name        string
	CreatedTime time.Time
}

// ObjectMetadata represents a listed object.
type ObjectMetadata struct {
	Key         string
	UpdatedTime time.Time
	Size        int64
	ETag        string
}

// Object represents an object with its content.
type Object struct {
	Body        []byte
	UpdatedTime time.Time
	ContentType string
}

// Client is a generic interface for object storage clients.
//
// All methods return *storeerrors.Error values.
type Client interface {
	ListBuckets(ctx context.Context) ([]Bucket, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectMetadata, error)
	GetObject(ctx context.Context, bucket, key string) (*Object, error)
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64) error
	UploadFile(ctx context.Context, bucket, key, path string) error
	DownloadFile(ctx context.Context, bucket, key, path string) error
	CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error
	DeleteObject(ctx context.Context, bucket, key, version string) error
	PresignedGetURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}

// Params represents common client parameters.
type Params struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
	Region    string
}

// OperationError converts a client error to an operation error.
func OperationError(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := err.(*storeerrors.Error); ok { //nolint:errorlint // do not inspect error chain
		return err
	}

	return storeerrors.New(storeerrors.ErrorCodeOperation, err)
}
