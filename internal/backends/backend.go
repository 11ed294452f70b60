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

package backends

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/FerretDB/datastore/internal/storeerrors"
	"github.com/FerretDB/datastore/internal/util/observability"
	"github.com/FerretDB/datastore/internal/util/resource"
)

// Document is a single stored record.
type Document = map[string]any

// Filter selects documents.
// Nil filter is "null"; non-nil empty filter matches all documents.
type Filter = map[string]any

// Update describes changes to apply to matching documents.
type Update = map[string]any

// Backend is a generic interface for all document store backends.
//
// Backend object is expected to be stateful and wrap database connection(s).
// Backend methods can be called concurrently after Connect returns.
//
// See backendContract and its methods for additional details.
type Backend interface {
	Name() string
	Connect(context.Context) error
	Close() error

	Insert(context.Context, *InsertParams) (*InsertResult, error)
	InsertMany(context.Context, *InsertManyParams) (*InsertManyResult, error)
	Find(context.Context, *FindParams) (*FindResult, error)
	Update(context.Context, *UpdateParams) (*UpdateResult, error)
	Delete(context.Context, *DeleteParams) (*DeleteResult, error)
}

// backendContract implements Backend interface.
type backendContract struct {
	b     Backend
	l     *zap.Logger
	token *resource.Token

	m         sync.RWMutex
	connected bool
}

// BackendContract wraps Backend and enforces its contract.
//
// Registry uses that function when it creates new Backend instances.
//
// See backendContract and its methods for additional details.
func BackendContract(b Backend, l *zap.Logger) Backend {
	bc := &backendContract{
		b:     b,
		l:     l,
		token: resource.NewToken(),
	}
	resource.Track(bc, bc.token)

	return bc
}

// Name returns the backend's framework name.
func (bc *backendContract) Name() string {
	return bc.b.Name()
}

// Connect establishes the connection.
//
// It is a no-op if the backend is already connected.
func (bc *backendContract) Connect(ctx context.Context) error {
	defer observability.FuncCall(ctx)()

	bc.m.Lock()
	defer bc.m.Unlock()

	if bc.connected {
		return nil
	}

	err := bc.b.Connect(ctx)
	checkError(err, storeerrors.ErrorCodeConnection, storeerrors.ErrorCodeConnectionTimeout, storeerrors.ErrorCodeConfiguration)

	if err != nil {
		return connectionError(ctx, err)
	}

	bc.connected = true

	return nil
}

// Close closes all connections and frees all resources associated with the backend.
//
// It is safe to call Close several times, or without Connect.
func (bc *backendContract) Close() error {
	bc.m.Lock()
	defer bc.m.Unlock()

	resource.Untrack(bc, bc.token)

	if !bc.connected {
		return nil
	}

	bc.connected = false

	err := bc.b.Close()
	checkError(err, storeerrors.ErrorCodeConnection)

	return err
}

// Describe implements prometheus.Collector.
//
// Backends that do not implement it describe nothing.
func (bc *backendContract) Describe(ch chan<- *prometheus.Desc) {
	if c, ok := bc.b.(prometheus.Collector); ok {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (bc *backendContract) Collect(ch chan<- prometheus.Metric) {
	if c, ok := bc.b.(prometheus.Collector); ok {
		c.Collect(ch)
	}
}

// checkConnected returns an error if the backend is not connected.
func (bc *backendContract) checkConnected() error {
	bc.m.RLock()
	defer bc.m.RUnlock()

	if !bc.connected {
		return storeerrors.Errorf(storeerrors.ErrorCodeConnectionClosed, "backend %s is not connected", bc.b.Name())
	}

	return nil
}

// InsertParams represents the parameters of Backend.Insert method.
type InsertParams struct {
	Collection string
	Document   Document
}

// InsertResult represents the results of Backend.Insert method.
type InsertResult struct {
	ID string
}

// Insert inserts a single document.
//
// Document's _id, if present, must be a scalar; it is generated otherwise.
func (bc *backendContract) Insert(ctx context.Context, params *InsertParams) (*InsertResult, error) {
	defer observability.FuncCall(ctx)()

	err := ValidateDocument(params.Document)
	if err == nil {
		err = bc.checkConnected()
	}

	if err != nil {
		return nil, err
	}

	res, err := bc.b.Insert(ctx, params)
	checkError(err, insertCodes...)

	return res, operationError(err)
}

// InsertManyParams represents the parameters of Backend.InsertMany method.
type InsertManyParams struct {
	Collection string
	Documents  []Document
}

// InsertManyResult represents the results of Backend.InsertMany method.
type InsertManyResult struct {
	IDs []string
}

// InsertMany inserts documents in order.
//
// All documents are validated before any of them is inserted.
// On error, documents before the failed one may have been inserted.
func (bc *backendContract) InsertMany(ctx context.Context, params *InsertManyParams) (*InsertManyResult, error) {
	defer observability.FuncCall(ctx)()

	var err error
	if len(params.Documents) == 0 {
		err = storeerrors.Errorf(storeerrors.ErrorCodeValidation, "documents must be a non-empty list")
	}

	for i := 0; err == nil && i < len(params.Documents); i++ {
		if err = ValidateDocument(params.Documents[i]); err != nil {
			err = storeerrors.Errorf(storeerrors.ErrorCodeValidation, "document %d: %v", i, err)
		}
	}

	if err == nil {
		err = bc.checkConnected()
	}

	if err != nil {
		return nil, err
	}

	res, err := bc.b.InsertMany(ctx, params)
	checkError(err, insertCodes...)

	return res, operationError(err)
}

// FindParams represents the parameters of Backend.Find method.
type FindParams struct {
	Collection string
	Filter     Filter

	// Projection lists fields to return; empty means all fields.
	Projection []string

	// ExcludeID removes _id from returned documents.
	ExcludeID bool

	Skip  int64
	Limit int64 // 0 means no limit
}

// FindResult represents the results of Backend.Find method.
type FindResult struct {
	Documents []Document
}

// Find returns documents matching the filter in insertion order (where the backend preserves it).
//
// Nil or empty filter matches all documents.
// Returned documents carry _id in its string form.
func (bc *backendContract) Find(ctx context.Context, params *FindParams) (*FindResult, error) {
	defer observability.FuncCall(ctx)()

	var err error
	if params.Skip < 0 || params.Limit < 0 {
		err = storeerrors.Errorf(storeerrors.ErrorCodeValidation, "skip and limit must not be negative")
	}

	if err == nil {
		err = bc.checkConnected()
	}

	if err != nil {
		return nil, err
	}

	p := *params
	if p.Filter == nil {
		p.Filter = Filter{}
	}

	res, err := bc.b.Find(ctx, &p)
	checkError(err, queryCodes...)

	if err != nil {
		return nil, operationError(err)
	}

	for _, doc := range res.Documents {
		if id, ok := doc["_id"]; ok {
			doc["_id"] = IDString(id)
		}
	}

	return res, nil
}

// UpdateParams represents the parameters of Backend.Update method.
type UpdateParams struct {
	Collection string
	Filter     Filter
	Update     Update
	Upsert     bool
}

// UpdateResult represents the results of Backend.Update method.
type UpdateResult struct {
	// Modified is the number of existing documents that were changed.
	// A document inserted by upsert is not counted.
	Modified int64

	// UpsertedID is set if a document was inserted by upsert.
	UpsertedID string
}

// Update updates all documents matching the filter.
//
// Update without operator keys is wrapped into $set.
func (bc *backendContract) Update(ctx context.Context, params *UpdateParams) (*UpdateResult, error) {
	defer observability.FuncCall(ctx)()

	var err error
	if params.Filter == nil {
		err = storeerrors.Errorf(storeerrors.ErrorCodeValidation, "filter must not be null")
	}

	var update Update
	if err == nil {
		update, err = NormalizeUpdate(params.Update)
	}

	if err == nil {
		err = bc.checkConnected()
	}

	if err != nil {
		return nil, err
	}

	if len(params.Filter) == 0 {
		bc.l.Warn("Update with empty filter matches all documents", zap.String("collection", params.Collection))
	}

	p := *params
	p.Update = update

	res, err := bc.b.Update(ctx, &p)
	checkError(err, updateCodes...)

	return res, operationError(err)
}

// DeleteParams represents the parameters of Backend.Delete method.
type DeleteParams struct {
	Collection string
	Filter     Filter
}

// DeleteResult represents the results of Backend.Delete method.
type DeleteResult struct {
	Deleted int64
}

// Delete deletes all documents matching the filter.
//
// Empty filter deletes all documents.
func (bc *backendContract) Delete(ctx context.Context, params *DeleteParams) (*DeleteResult, error) {
	defer observability.FuncCall(ctx)()

	var err error
	if params.Filter == nil {
		err = storeerrors.Errorf(storeerrors.ErrorCodeValidation, "filter must not be null")
	}

	if err == nil {
		err = bc.checkConnected()
	}

	if err != nil {
		return nil, err
	}

	if len(params.Filter) == 0 {
		bc.l.Warn("Delete with empty filter matches all documents", zap.String("collection", params.Collection))
	}

	res, err := bc.b.Delete(ctx, params)
	checkError(err, queryCodes...)

	return res, operationError(err)
}

// check interfaces
var (
	_ Backend              = (*backendContract)(nil)
	_ prometheus.Collector = (*backendContract)(nil)
)
