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

package mongodb

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"go.uber.org/zap"

	"github.com/FerretDB/datastore/internal/backends"
	"github.com/FerretDB/datastore/internal/storeerrors"
)

// backend implements backends.Backend interface.
type backend struct {
	uri      string
	database string
	timeout  time.Duration
	l        *zap.Logger

	m      sync.RWMutex
	client *mongo.Client
}

// NewBackendParams represents the parameters of NewBackend function.
//
//nolint:vet // for readability
type NewBackendParams struct {
	URI      string
	Database string
	Timeout  time.Duration
	L        *zap.Logger
}

// NewBackend creates a new unconnected MongoDB backend.
func NewBackend(params *NewBackendParams) (backends.Backend, error) {
	uri := normalizeURI(params.URI)

	database, err := databaseName(uri, params.Database)
	if err != nil {
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeConfiguration, "failed to parse MongoDB URI: %s", err)
	}

	return &backend{
		uri:      uri,
		database: database,
		timeout:  params.Timeout,
		l:        params.L,
	}, nil
}

// Name implements backends.Backend interface.
func (b *backend) Name() string {
	return "mongodb"
}

// Connect implements backends.Backend interface.
func (b *backend) Connect(ctx context.Context) error {
	opts := options.Client().ApplyURI(b.uri)
	opts.SetMonitor(otelmongo.NewMonitor())

	if b.timeout > 0 {
		opts.SetConnectTimeout(b.timeout)
		opts.SetServerSelectionTimeout(b.timeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return storeerrors.New(storeerrors.ErrorCodeConfiguration, err)
	}

	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return connectError(ctx, err)
	}

	b.l.Debug("Connected", zap.String("database", b.database))

	b.m.Lock()
	b.client = client
	b.m.Unlock()

	return nil
}

// Close implements backends.Backend interface.
func (b *backend) Close() error {
	b.m.Lock()
	defer b.m.Unlock()

	if b.client == nil {
		return nil
	}

	err := b.client.Disconnect(context.Background())
	b.client = nil

	if err != nil {
		return storeerrors.New(storeerrors.ErrorCodeConnection, err)
	}

	return nil
}

// collection returns a collection handle of the connected client.
func (b *backend) collection(name string) (*mongo.Collection, error) {
	b.m.RLock()
	defer b.m.RUnlock()

	if b.client == nil {
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeConnection, "mongodb: not connected")
	}

	return b.client.Database(b.database).Collection(name), nil
}

// Insert implements backends.Backend interface.
func (b *backend) Insert(ctx context.Context, params *backends.InsertParams) (*backends.InsertResult, error) {
	c, err := b.collection(params.Collection)
	if err != nil {
		return nil, err
	}

	res, err := c.InsertOne(ctx, prepareDocument(params.Document))
	if err != nil {
		return nil, operationError(err)
	}

	return &backends.InsertResult{ID: backends.IDString(res.InsertedID)}, nil
}

// InsertMany implements backends.Backend interface.
func (b *backend) InsertMany(ctx context.Context, params *backends.InsertManyParams) (*backends.InsertManyResult, error) {
	c, err := b.collection(params.Collection)
	if err != nil {
		return nil, err
	}

	docs := make([]any, len(params.Documents))
	for i, d := range params.Documents {
		docs[i] = prepareDocument(d)
	}

	res, err := c.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err != nil {
		return nil, operationError(err)
	}

	ids := make([]string, len(res.InsertedIDs))
	for i, id := range res.InsertedIDs {
		ids[i] = backends.IDString(id)
	}

	return &backends.InsertManyResult{IDs: ids}, nil
}

// Find implements backends.Backend interface.
func (b *backend) Find(ctx context.Context, params *backends.FindParams) (*backends.FindResult, error) {
	c, err := b.collection(params.Collection)
	if err != nil {
		return nil, err
	}

	opts := options.Find()

	if params.Skip > 0 {
		opts.SetSkip(params.Skip)
	}

	if params.Limit > 0 {
		opts.SetLimit(params.Limit)
	}

	if len(params.Projection) > 0 || params.ExcludeID {
		projection := bson.D{}
		for _, f := range params.Projection {
			projection = append(projection, bson.E{Key: f, Value: 1})
		}

		if params.ExcludeID {
			projection = append(projection, bson.E{Key: "_id", Value: 0})
		}

		opts.SetProjection(projection)
	}

	cursor, err := c.Find(ctx, convertFilter(params.Filter), opts)
	if err != nil {
		return nil, operationError(err)
	}

	var docs []bson.M
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, operationError(err)
	}

	res := make([]backends.Document, len(docs))
	for i, d := range docs {
		res[i] = convertDocument(d)
	}

	return &backends.FindResult{Documents: res}, nil
}

// Update implements backends.Backend interface.
func (b *backend) Update(ctx context.Context, params *backends.UpdateParams) (*backends.UpdateResult, error) {
	c, err := b.collection(params.Collection)
	if err != nil {
		return nil, err
	}

	res, err := c.UpdateMany(ctx, convertFilter(params.Filter), params.Update, options.Update().SetUpsert(params.Upsert))
	if err != nil {
		return nil, operationError(err)
	}

	r := &backends.UpdateResult{Modified: res.ModifiedCount}
	if res.UpsertedID != nil {
		r.UpsertedID = backends.IDString(res.UpsertedID)
	}

	return r, nil
}

// Delete implements backends.Backend interface.
func (b *backend) Delete(ctx context.Context, params *backends.DeleteParams) (*backends.DeleteResult, error) {
	c, err := b.collection(params.Collection)
	if err != nil {
		return nil, err
	}

	res, err := c.DeleteMany(ctx, convertFilter(params.Filter))
	if err != nil {
		return nil, operationError(err)
	}

	return &backends.DeleteResult{Deleted: res.DeletedCount}, nil
}

// connectError converts driver errors returned while connecting.
func connectError(ctx context.Context, err error) error {
	if mongo.IsTimeout(err) {
		return storeerrors.New(storeerrors.ErrorCodeConnectionTimeout, err)
	}

	var se mongo.ServerError
	if errors.As(err, &se) {
		// authentication failures and other server-side rejections
		return storeerrors.New(storeerrors.ErrorCodeConnection, err)
	}

	return backends.ConnectionError(ctx, err)
}

// operationError converts driver errors returned by operations.
func operationError(err error) error {
	switch {
	case mongo.IsDuplicateKeyError(err):
		return storeerrors.New(storeerrors.ErrorCodeDuplicateKey, err)
	case mongo.IsTimeout(err):
		return storeerrors.New(storeerrors.ErrorCodeConnectionTimeout, err)
	case mongo.IsNetworkError(err):
		return storeerrors.New(storeerrors.ErrorCodeConnection, err)
	default:
		return storeerrors.New(storeerrors.ErrorCodeOperation, err)
	}
}

// check interfaces
var (
	_ backends.Backend = (*backend)(nil)
)
