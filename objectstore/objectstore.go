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

// Package objectstore provides an object storage facade over MinIO and Amazon S3.
//
// Every method accepts an optional bucket; an empty bucket means the configured root bucket.
package objectstore

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/FerretDB/datastore/internal/config"
	"github.com/FerretDB/datastore/internal/objects"
	"github.com/FerretDB/datastore/internal/objects/minio"
	"github.com/FerretDB/datastore/internal/objects/s3"
	"github.com/FerretDB/datastore/internal/storeerrors"
)

// Known frameworks.
const (
	FrameworkMinIO = "minio"
	FrameworkS3    = "s3"
)

// DefaultFramework is used when framework is not set.
const DefaultFramework = FrameworkMinIO

// Models shared with object storage clients.
type (
	// Bucket represents a bucket.
	Bucket = objects.Bucket

	// ObjectMetadata represents a listed object.
	ObjectMetadata = objects.ObjectMetadata

	// Object represents an object with its content.
	Object = objects.Object
)

// Connection represents object storage connection parameters.
type Connection struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Secure    bool   `mapstructure:"secure"`
	Region    string `mapstructure:"region"`
}

// Config represents object store configuration.
type Config struct {
	Framework  string     `mapstructure:"framework"`
	RootBucket string     `mapstructure:"root_bucket"`
	Connection Connection `mapstructure:"connection"`
}

// newClientFunc creates a new client for the framework.
type newClientFunc func(ctx context.Context, params *objects.Params, l *zap.Logger) (objects.Client, error)

// clients maps frameworks to client constructors.
var clients = map[string]newClientFunc{
	FrameworkMinIO: func(_ context.Context, params *objects.Params, l *zap.Logger) (objects.Client, error) {
		return minio.New(params, l)
	},
	FrameworkS3: s3.New,
}

// Frameworks returns all known frameworks, sorted.
func Frameworks() []string {
	res := make([]string, 0, len(clients))
	for f := range clients {
		res = append(res, f)
	}

	sort.Strings(res)

	return res
}

// Store is an object store facade.
//
// It is safe for concurrent use.
type Store struct {
	cfg     Config
	l       *zap.Logger
	newFunc newClientFunc

	m sync.Mutex
	c objects.Client
}

// New creates a new Store.
//
// The framework is resolved immediately; the client is created on the first operation.
// Logger may be nil; zap.L() is used then.
func New(cfg *Config, l *zap.Logger) (*Store, error) {
	if cfg == nil {
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeConfiguration, "configuration is required")
	}

	c := *cfg
	if c.Framework == "" {
		c.Framework = DefaultFramework
	}

	f, ok := clients[c.Framework]
	if !ok {
		return nil, storeerrors.Errorf(
			storeerrors.ErrorCodeConfiguration,
			"unknown framework %q, expected one of %v", c.Framework, Frameworks(),
		)
	}

	if l == nil {
		l = zap.L()
	}

	return &Store{
		cfg:     c,
		l:       l.Named("objectstore"),
		newFunc: f,
	}, nil
}

// NewFromMap creates a new Store from a loosely typed configuration mapping.
func NewFromMap(m map[string]any, l *zap.Logger) (*Store, error) {
	var cfg Config
	if err := config.Decode(m, &cfg); err != nil {
		return nil, err
	}

	return New(&cfg, l)
}

// Framework returns the configured framework.
func (s *Store) Framework() string {
	return s.cfg.Framework
}

// RootBucket returns the configured root bucket.
func (s *Store) RootBucket() string {
	return s.cfg.RootBucket
}

// client returns the client, creating it if needed.
func (s *Store) client(ctx context.Context) (objects.Client, error) {
	s.m.Lock()
	defer s.m.Unlock()

	if s.c != nil {
		return s.c, nil
	}

	c, err := s.newFunc(ctx, &objects.Params{
		Endpoint:  s.cfg.Connection.Endpoint,
		AccessKey: s.cfg.Connection.AccessKey,
		SecretKey: s.cfg.Connection.SecretKey,
		Secure:    s.cfg.Connection.Secure,
		Region:    s.cfg.Connection.Region,
	}, s.l)
	if err != nil {
		return nil, err
	}

	s.l.Debug("Client created", zap.String("framework", s.cfg.Framework))

	s.c = c

	return c, nil
}

// bucket returns the given bucket or the root bucket.
func (s *Store) bucket(bucket string) (string, error) {
	if bucket == "" {
		bucket = s.cfg.RootBucket
	}

	if bucket == "" {
		return "", storeerrors.Errorf(storeerrors.ErrorCodeValidation, "bucket is required: no root bucket configured")
	}

	return bucket, nil
}
