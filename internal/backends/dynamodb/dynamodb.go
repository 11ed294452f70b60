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

// Package dynamodb provides Amazon DynamoDB backend.
//
// # Design principles
//
//  1. Each collection is stored in its own table with a string `_id` hash key.
//     Non-string identifiers use their string form as the key and are kept in a reserved attribute.
//  2. Documents are stored as native attribute values (maps, lists, strings, numbers, booleans, nulls).
//  3. Insertion order is kept in a reserved numeric attribute and restored after scans.
//  4. Filtering, updating and projecting are done in Go by the query package.
package dynamodb

import (
	"context"
	"math"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/FerretDB/datastore/internal/backends"
	"github.com/FerretDB/datastore/internal/util/lazyerrors"
)

// seqAttribute keeps insertion order; it is never returned to callers.
const seqAttribute = "_datastore_seq"

// idAttribute keeps non-string _id values.
const idAttribute = "_datastore_id"

// Client is a subset of *dynamodb.Client methods used by the backend.
type Client interface {
	ListTables(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// idKey returns the hash key value for the given _id.
func idKey(id any) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: backends.IDString(id)}
}

// marshalValue converts a normalized document value to an attribute value.
func marshalValue(v any) (types.AttributeValue, error) {
	switch v := v.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case bool:
		return &types.AttributeValueMemberBOOL{Value: v}, nil
	case string:
		return &types.AttributeValueMemberS{Value: v}, nil
	case int64:
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, lazyerrors.Errorf("unsupported number %v", v)
		}

		return &types.AttributeValueMemberN{Value: strconv.FormatFloat(v, 'g', -1, 64)}, nil

	case []any:
		l := make([]types.AttributeValue, len(v))
		for i, e := range v {
			av, err := marshalValue(e)
			if err != nil {
				return nil, err
			}

			l[i] = av
		}

		return &types.AttributeValueMemberL{Value: l}, nil

	case map[string]any:
		m, err := marshalMap(v)
		if err != nil {
			return nil, err
		}

		return &types.AttributeValueMemberM{Value: m}, nil

	default:
		return nil, lazyerrors.Errorf("unsupported type %T", v)
	}
}

// marshalMap converts a normalized document to an item.
func marshalMap(doc map[string]any) (map[string]types.AttributeValue, error) {
	res := make(map[string]types.AttributeValue, len(doc))

	for k, v := range doc {
		av, err := marshalValue(v)
		if err != nil {
			return nil, lazyerrors.Errorf("%s: %w", k, err)
		}

		res[k] = av
	}

	return res, nil
}

// unmarshalValue converts an attribute value to a plain Go value.
func unmarshalValue(av types.AttributeValue) (any, error) {
	switch av := av.(type) {
	case *types.AttributeValueMemberNULL:
		return nil, nil
	case *types.AttributeValueMemberBOOL:
		return av.Value, nil
	case *types.AttributeValueMemberS:
		return av.Value, nil
	case *types.AttributeValueMemberN:
		return parseNumber(av.Value)

	case *types.AttributeValueMemberL:
		l := make([]any, len(av.Value))
		for i, e := range av.Value {
			v, err := unmarshalValue(e)
			if err != nil {
				return nil, err
			}

			l[i] = v
		}

		return l, nil

	case *types.AttributeValueMemberM:
		return unmarshalMap(av.Value)

	case *types.AttributeValueMemberSS:
		l := make([]any, len(av.Value))
		for i, s := range av.Value {
			l[i] = s
		}

		return l, nil

	case *types.AttributeValueMemberNS:
		l := make([]any, len(av.Value))
		for i, s := range av.Value {
			n, err := parseNumber(s)
			if err != nil {
				return nil, err
			}

			l[i] = n
		}

		return l, nil

	case *types.AttributeValueMemberB:
		return av.Value, nil

	default:
		return nil, lazyerrors.Errorf("unsupported attribute value %T", av)
	}
}

// unmarshalMap converts an item to a document.
func unmarshalMap(item map[string]types.AttributeValue) (map[string]any, error) {
	res := make(map[string]any, len(item))

	for k, av := range item {
		v, err := unmarshalValue(av)
		if err != nil {
			return nil, lazyerrors.Errorf("%s: %w", k, err)
		}

		res[k] = v
	}

	return res, nil
}

// parseNumber parses a number attribute as int64 if possible, float64 otherwise.
func parseNumber(s string) (any, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	return f, nil
}
