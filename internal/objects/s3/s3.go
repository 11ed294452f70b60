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

// Package s3 provides an object storage client for Amazon S3.
//
// Files are uploaded and downloaded with the transfer manager,
// so large files use multipart transfers.
package s3

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/FerretDB/datastore/internal/objects"
	"github.com/FerretDB/datastore/internal/storeerrors"
	"github.com/FerretDB/datastore/internal/util/lazyerrors"
)

// DefaultRegion is used when region is not configured.
const DefaultRegion = "us-east-1"

// API is a subset of *s3.Client methods used by the client.
type API interface {
	manager.UploadAPIClient
	manager.DownloadAPIClient
	s3.ListObjectsV2APIClient

	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Presigner is a subset of *s3.PresignClient methods used by the client.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// client implements objects.Client interface.
type client struct {
	api     API
	presign Presigner
	l       *zap.Logger
}

// New creates a new client from the parameters.
//
// Endpoint is optional; when set, path-style addressing is used as required by most S3-compatible servers.
func New(ctx context.Context, params *objects.Params, l *zap.Logger) (objects.Client, error) {
	region := params.Region
	if region == "" {
		region = DefaultRegion
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	if params.AccessKey != "" {
		provider := credentials.NewStaticCredentialsProvider(params.AccessKey, params.SecretKey, "")
		opts = append(opts, config.WithCredentialsProvider(provider))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, storeerrors.New(storeerrors.ErrorCodeConfiguration, err)
	}

	endpoint := endpointURL(params.Endpoint, params.Secure)

	c := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return NewWithAPI(c, s3.NewPresignClient(c), l), nil
}

// NewWithAPI creates a new client with the given API implementations.
func NewWithAPI(api API, presign Presigner, l *zap.Logger) objects.Client {
	return &client{api: api, presign: presign, l: l}
}

// endpointURL adds a scheme to the endpoint if needed.
func endpointURL(endpoint string, secure bool) string {
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}

	if secure {
		return "https://" + endpoint
	}

	return "http://" + endpoint
}

// ListBuckets implements objects.Client interface.
func (c *client) ListBuckets(ctx context.Context) ([]objects.Bucket, error) {
	out, err := c.api.ListBuckets(ctx, new(s3.ListBucketsInput))
	if err != nil {
		return nil, objects.OperationError(err)
	}

	res := make([]objects.Bucket, len(out.Buckets))
	for i, b := range out.Buckets {
		res[i] = objects.Bucket{
			Name:        aws.ToString(b.Name),
			CreatedTime: aws.ToTime(b.CreationDate),
		}
	}

	return res, nil
}

// ListObjects implements objects.Client interface.
func (c *client) ListObjects(ctx context.Context, bucket, prefix string) ([]objects.ObjectMetadata, error) {
	p := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	var res []objects.ObjectMetadata

	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, objects.OperationError(err)
		}

		for _, obj := range page.Contents {
			res = append(res, metadata(obj))
		}
	}

	return res, nil
}

// metadata converts listed object information.
func metadata(obj types.Object) objects.ObjectMetadata {
	return objects.ObjectMetadata{
		Key:         aws.ToString(obj.Key),
		UpdatedTime: aws.ToTime(obj.LastModified),
		Size:        aws.ToInt64(obj.Size),
		ETag:        strings.Trim(aws.ToString(obj.ETag), `"`),
	}
}

// GetObject implements objects.Client interface.
func (c *client) GetObject(ctx context.Context, bucket, key string) (*objects.Object, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, notFound(err, bucket, key)
	}

	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, objects.OperationError(err)
	}

	return &objects.Object{
		Body:        body,
		UpdatedTime: aws.ToTime(out.LastModified),
		ContentType: aws.ToString(out.ContentType),
	}, nil
}

// PutObject implements objects.Client interface.
func (c *client) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   r,
	}

	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}

	if _, err := c.api.PutObject(ctx, in); err != nil {
		return objects.OperationError(err)
	}

	return nil
}

// UploadFile implements objects.Client interface.
func (c *client) UploadFile(ctx context.Context, bucket, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return storeerrors.New(storeerrors.ErrorCodeValidation, err)
	}

	defer f.Close() //nolint:errcheck // read-only file

	res, err := manager.NewUploader(c.api).Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return objects.OperationError(err)
	}

	c.l.Debug("Uploaded", zap.String("bucket", bucket), zap.String("key", aws.ToString(res.Key)))

	return nil
}

// DownloadFile implements objects.Client interface.
//
// The file is removed if the download fails.
func (c *client) DownloadFile(ctx context.Context, bucket, key, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return storeerrors.New(storeerrors.ErrorCodeValidation, err)
	}

	defer func() {
		if e := f.Close(); e != nil && err == nil {
			err = objects.OperationError(lazyerrors.Error(e))
		}

		if err != nil {
			_ = os.Remove(path)
		}
	}()

	n, err := manager.NewDownloader(c.api).Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return notFound(err, bucket, key)
	}

	c.l.Debug("Downloaded", zap.String("bucket", bucket), zap.String("key", key), zap.Int64("size", n))

	return nil
}

// CopyObject implements objects.Client interface.
func (c *client) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	_, err := c.api.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dstBucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(srcBucket + "/" + srcKey),
	})
	if err != nil {
		return notFound(err, srcBucket, srcKey)
	}

	return nil
}

// DeleteObject implements objects.Client interface.
func (c *client) DeleteObject(ctx context.Context, bucket, key, version string) error {
	in := &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}

	if version != "" {
		in.VersionId = aws.String(version)
	}

	if _, err := c.api.DeleteObject(ctx, in); err != nil {
		return objects.OperationError(err)
	}

	return nil
}

// PresignedGetURL implements objects.Client interface.
func (c *client) PresignedGetURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", objects.OperationError(err)
	}

	return req.URL, nil
}

// notFound converts missing key errors to operation errors with a readable message.
func notFound(err error, bucket, key string) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return storeerrors.Errorf(storeerrors.ErrorCodeOperation, "object %s/%s not found", bucket, key)
	}

	return objects.OperationError(err)
}

// check interfaces
var (
	_ objects.Client = (*client)(nil)
	_ API            = (*s3.Client)(nil)
	_ Presigner      = (*s3.PresignClient)(nil)
)
