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

package dynamodb

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/FerretDB/datastore/internal/backends"
	"github.com/FerretDB/datastore/internal/query"
	"github.com/FerretDB/datastore/internal/storeerrors"
	"github.com/FerretDB/datastore/internal/util/lazyerrors"
)

// DefaultRegion is used when region is not configured.
const DefaultRegion = "us-east-1"

// tableWaitTimeout limits waiting for a newly created table.
const tableWaitTimeout = 2 * time.Minute

// tableNameRe matches valid DynamoDB table names.
var tableNameRe = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,255}$`)

// backend implements backends.Backend interface.
type backend struct {
	endpoint    string
	region      string
	accessKey   string
	secretKey   string
	tablePrefix string
	l           *zap.Logger

	m      sync.RWMutex
	client Client
	static Client

	tables *xsync.MapOf[string, struct{}]
	seq    atomic.Int64
}

// NewBackendParams represents the parameters of NewBackend function.
//
//nolint:vet // for readability
type NewBackendParams struct {
	// Endpoint overrides the default AWS endpoint, for example for DynamoDB Local.
	Endpoint    string
	Region      string
	AccessKey   string
	SecretKey   string
	TablePrefix string
	L           *zap.Logger

	// Client, if set, is used instead of the client built from the configuration.
	Client Client
}

// NewBackend creates a new unconnected DynamoDB backend.
func NewBackend(params *NewBackendParams) (backends.Backend, error) {
	if (params.AccessKey == "") != (params.SecretKey == "") {
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeConfiguration, "dynamodb: both access key and secret key must be set")
	}

	region := params.Region
	if region == "" {
		region = DefaultRegion
	}

	return &backend{
		endpoint:    params.Endpoint,
		region:      region,
		accessKey:   params.AccessKey,
		secretKey:   params.SecretKey,
		tablePrefix: params.TablePrefix,
		l:           params.L,
		static:      params.Client,
		tables:      xsync.NewMapOf[string, struct{}](),
	}, nil
}

// Name implements backends.Backend interface.
func (b *backend) Name() string {
	return "dynamodb"
}

// newClient builds a client from the backend configuration.
func (b *backend) newClient(ctx context.Context) (Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(b.region),
	}

	if b.accessKey != "" {
		provider := credentials.NewStaticCredentialsProvider(b.accessKey, b.secretKey, "")
		opts = append(opts, config.WithCredentialsProvider(provider))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, storeerrors.New(storeerrors.ErrorCodeConfiguration, err)
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if b.endpoint != "" {
			o.BaseEndpoint = aws.String(b.endpoint)
		}
	}), nil
}

// Connect implements backends.Backend interface.
func (b *backend) Connect(ctx context.Context) error {
	client := b.static

	if client == nil {
		var err error
		if client, err = b.newClient(ctx); err != nil {
			return err
		}
	}

	if _, err := client.ListTables(ctx, &dynamodb.ListTablesInput{Limit: aws.Int32(1)}); err != nil {
		return backends.ConnectionError(ctx, err)
	}

	b.l.Debug("Connected", zap.String("endpoint", b.endpoint), zap.String("region", b.region))

	b.m.Lock()
	b.client = client
	b.m.Unlock()

	return nil
}

// Close implements backends.Backend interface.
func (b *backend) Close() error {
	b.m.Lock()
	b.client = nil
	b.m.Unlock()

	b.tables.Clear()

	return nil
}

// conn returns the client and the table name for the given collection.
func (b *backend) conn(collection string) (Client, string, error) {
	b.m.RLock()
	client := b.client
	b.m.RUnlock()

	if client == nil {
		return nil, "", storeerrors.Errorf(storeerrors.ErrorCodeConnection, "dynamodb: not connected")
	}

	table := b.tablePrefix + collection
	if !tableNameRe.MatchString(table) {
		return nil, "", storeerrors.Errorf(storeerrors.ErrorCodeValidation, "invalid DynamoDB table name %q", table)
	}

	return client, table, nil
}

// ensureTable creates the table if it does not exist.
func (b *backend) ensureTable(ctx context.Context, client Client, table string) error {
	if _, ok := b.tables.Load(table); ok {
		return nil
	}

	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	if err == nil {
		b.tables.Store(table, struct{}{})
		return nil
	}

	if !isNotFound(err) {
		return operationError(err)
	}

	out, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		AttributeDefinitions: []types.AttributeDefinition{{
			AttributeName: aws.String("_id"),
			AttributeType: types.ScalarAttributeTypeS,
		}},
		KeySchema: []types.KeySchemaElement{{
			AttributeName: aws.String("_id"),
			KeyType:       types.KeyTypeHash,
		}},
		BillingMode: types.BillingModePayPerRequest,
	})

	var inUse *types.ResourceInUseException

	switch {
	case err == nil && out.TableDescription != nil && out.TableDescription.TableStatus == types.TableStatusActive:
		// nothing
	case err == nil || errors.As(err, &inUse):
		w := dynamodb.NewTableExistsWaiter(client)
		if err = w.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}, tableWaitTimeout); err != nil {
			return operationError(err)
		}
	default:
		return operationError(err)
	}

	b.l.Debug("Table created", zap.String("table", table))
	b.tables.Store(table, struct{}{})

	return nil
}

// nextSeq returns the next insertion order value.
func (b *backend) nextSeq() int64 {
	for {
		last := b.seq.Load()

		next := time.Now().UnixNano()
		if next <= last {
			next = last + 1
		}

		if b.seq.CompareAndSwap(last, next) {
			return next
		}
	}
}

// stored represents a document with its insertion order.
type stored struct {
	doc backends.Document
	seq int64
}

// decode converts an item to a stored document.
func decode(item map[string]types.AttributeValue) (*stored, error) {
	var seq int64

	if n, ok := item[seqAttribute].(*types.AttributeValueMemberN); ok {
		var err error
		if seq, err = strconv.ParseInt(n.Value, 10, 64); err != nil {
			return nil, lazyerrors.Error(err)
		}
	}

	delete(item, seqAttribute)

	if id, ok := item[idAttribute]; ok {
		item["_id"] = id
		delete(item, idAttribute)
	}

	doc, err := unmarshalMap(item)
	if err != nil {
		return nil, err
	}

	return &stored{doc: doc, seq: seq}, nil
}

// fetch returns matching documents in insertion order.
//
// Missing table is the same as an empty one.
func (b *backend) fetch(ctx context.Context, client Client, table string, filter backends.Filter) ([]*stored, error) {
	var items []map[string]types.AttributeValue

	if id, ok := filter["_id"]; ok && backends.ValidID(id) {
		out, err := client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(table),
			Key:            map[string]types.AttributeValue{"_id": idKey(id)},
			ConsistentRead: aws.Bool(true),
		})
		if err != nil {
			if isNotFound(err) {
				return nil, nil
			}

			return nil, operationError(err)
		}

		if out.Item != nil {
			items = append(items, out.Item)
		}
	} else {
		p := dynamodb.NewScanPaginator(client, &dynamodb.ScanInput{
			TableName:      aws.String(table),
			ConsistentRead: aws.Bool(true),
		})

		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				if isNotFound(err) {
					return nil, nil
				}

				return nil, operationError(err)
			}

			items = append(items, page.Items...)
		}
	}

	res := make([]*stored, 0, len(items))

	for _, item := range items {
		s, err := decode(item)
		if err != nil {
			return nil, operationError(err)
		}

		ok, err := query.Match(s.doc, filter)
		if err != nil {
			return nil, err
		}

		if ok {
			res = append(res, s)
		}
	}

	sort.SliceStable(res, func(i, j int) bool { return res[i].seq < res[j].seq })

	return res, nil
}

// put writes the document with the given condition expression.
func (b *backend) put(ctx context.Context, client Client, table string, s *stored, condition string) error {
	item, err := marshalMap(s.doc)
	if err != nil {
		return storeerrors.New(storeerrors.ErrorCodeValidation, err)
	}

	item[seqAttribute] = &types.AttributeValueMemberN{Value: strconv.FormatInt(s.seq, 10)}

	// the hash key is always a string; other identifiers are kept aside
	if _, ok := s.doc["_id"].(string); !ok {
		item[idAttribute] = item["_id"]
		item["_id"] = idKey(s.doc["_id"])
	}

	_, err = client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(table),
		Item:                     item,
		ConditionExpression:      aws.String(condition),
		ExpressionAttributeNames: map[string]string{"#id": "_id"},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) && condition == notExists {
			return storeerrors.Errorf(storeerrors.ErrorCodeDuplicateKey, "duplicate key: _id %q", backends.IDString(s.doc["_id"]))
		}

		return operationError(err)
	}

	return nil
}

// Condition expressions used by put.
const (
	notExists = "attribute_not_exists(#id)"
	exists    = "attribute_exists(#id)"
)

// prepare returns a normalized copy of the document with _id set.
func prepare(doc backends.Document) (backends.Document, error) {
	res, err := query.Normalize(doc)
	if err != nil {
		return nil, err
	}

	if _, err = backends.PrepareID(res); err != nil {
		return nil, err
	}

	return res, nil
}

// Insert implements backends.Backend interface.
func (b *backend) Insert(ctx context.Context, params *backends.InsertParams) (*backends.InsertResult, error) {
	res, err := b.InsertMany(ctx, &backends.InsertManyParams{
		Collection: params.Collection,
		Documents:  []backends.Document{params.Document},
	})
	if err != nil {
		return nil, err
	}

	return &backends.InsertResult{ID: res.IDs[0]}, nil
}

// InsertMany implements backends.Backend interface.
//
// DynamoDB has no multi-item atomicity for conditional puts;
// documents before the failed one stay inserted.
func (b *backend) InsertMany(ctx context.Context, params *backends.InsertManyParams) (*backends.InsertManyResult, error) {
	client, table, err := b.conn(params.Collection)
	if err != nil {
		return nil, err
	}

	docs := make([]backends.Document, len(params.Documents))
	seen := make(map[string]struct{}, len(docs))

	for i, d := range params.Documents {
		if docs[i], err = prepare(d); err != nil {
			return nil, err
		}

		id := backends.IDString(docs[i]["_id"])
		if _, ok := seen[id]; ok {
			return nil, storeerrors.Errorf(storeerrors.ErrorCodeDuplicateKey, "duplicate key: _id %q", id)
		}

		seen[id] = struct{}{}
	}

	if err = b.ensureTable(ctx, client, table); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(docs))

	for _, doc := range docs {
		if err = b.put(ctx, client, table, &stored{doc: doc, seq: b.nextSeq()}, notExists); err != nil {
			return nil, err
		}

		ids = append(ids, backends.IDString(doc["_id"]))
	}

	return &backends.InsertManyResult{IDs: ids}, nil
}

// Find implements backends.Backend interface.
func (b *backend) Find(ctx context.Context, params *backends.FindParams) (*backends.FindResult, error) {
	client, table, err := b.conn(params.Collection)
	if err != nil {
		return nil, err
	}

	found, err := b.fetch(ctx, client, table, params.Filter)
	if err != nil {
		return nil, err
	}

	if params.Skip >= int64(len(found)) {
		found = nil
	} else {
		found = found[params.Skip:]
	}

	if params.Limit > 0 && int64(len(found)) > params.Limit {
		found = found[:params.Limit]
	}

	res := make([]backends.Document, len(found))
	for i, s := range found {
		res[i] = query.Project(s.doc, params.Projection, params.ExcludeID)
	}

	return &backends.FindResult{Documents: res}, nil
}

// Update implements backends.Backend interface.
func (b *backend) Update(ctx context.Context, params *backends.UpdateParams) (*backends.UpdateResult, error) {
	client, table, err := b.conn(params.Collection)
	if err != nil {
		return nil, err
	}

	found, err := b.fetch(ctx, client, table, params.Filter)
	if err != nil {
		return nil, err
	}

	var res backends.UpdateResult

	for _, s := range found {
		changed, err := query.Apply(s.doc, params.Update, false)
		if err != nil {
			return nil, err
		}

		if !changed {
			continue
		}

		if err = b.put(ctx, client, table, s, exists); err != nil {
			return nil, err
		}

		res.Modified++
	}

	if len(found) > 0 || !params.Upsert {
		return &res, nil
	}

	doc, err := query.Upsert(params.Filter, params.Update)
	if err != nil {
		return nil, err
	}

	if doc, err = prepare(doc); err != nil {
		return nil, err
	}

	if err = b.ensureTable(ctx, client, table); err != nil {
		return nil, err
	}

	if err = b.put(ctx, client, table, &stored{doc: doc, seq: b.nextSeq()}, notExists); err != nil {
		return nil, err
	}

	res.UpsertedID = backends.IDString(doc["_id"])

	return &res, nil
}

// Delete implements backends.Backend interface.
func (b *backend) Delete(ctx context.Context, params *backends.DeleteParams) (*backends.DeleteResult, error) {
	client, table, err := b.conn(params.Collection)
	if err != nil {
		return nil, err
	}

	found, err := b.fetch(ctx, client, table, params.Filter)
	if err != nil {
		return nil, err
	}

	var deleted int64

	for _, s := range found {
		_, err = client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(table),
			Key: map[string]types.AttributeValue{
				"_id": idKey(s.doc["_id"]),
			},
		})
		if err != nil {
			return nil, operationError(err)
		}

		deleted++
	}

	return &backends.DeleteResult{Deleted: deleted}, nil
}

// isNotFound returns true if err is caused by the missing table.
func isNotFound(err error) bool {
	var nf *types.ResourceNotFoundException
	return errors.As(err, &nf)
}

// operationError converts SDK errors returned by operations.
func operationError(err error) error {
	if _, ok := err.(*storeerrors.Error); ok { //nolint:errorlint // do not inspect error chain
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return storeerrors.New(storeerrors.ErrorCodeConnectionTimeout, err)
	}

	return storeerrors.New(storeerrors.ErrorCodeOperation, err)
}

// check interfaces
var (
	_ backends.Backend = (*backend)(nil)
	_ Client           = (*dynamodb.Client)(nil)
)
