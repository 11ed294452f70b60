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

// Package mongodb provides MongoDB backend.
//
// Documents are stored as-is. Identifiers generated by MongoDB are returned as
// hex-encoded ObjectIDs, and string _id filters match both forms.
package mongodb

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/FerretDB/datastore/internal/backends"
)

// DefaultDatabase is used when neither configuration nor URI set a database.
const DefaultDatabase = "test"

// normalizeURI adds the slash required by the driver between hosts and options,
// as in "mongodb://host?authSource=admin".
func normalizeURI(uri string) string {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return uri
	}

	q := strings.Index(rest, "?")
	if q < 0 {
		return uri
	}

	if slash := strings.Index(rest, "/"); slash >= 0 && slash < q {
		return uri
	}

	return scheme + "://" + rest[:q] + "/" + rest[q:]
}

// databaseName returns the database to use.
func databaseName(uri, database string) (string, error) {
	if database != "" {
		return database, nil
	}

	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return "", err
	}

	if cs.Database != "" {
		return cs.Database, nil
	}

	return DefaultDatabase, nil
}

// prepareDocument returns a shallow copy of the document
// where a string _id that is a valid ObjectID is stored as ObjectID.
func prepareDocument(doc map[string]any) map[string]any {
	s, ok := doc["_id"].(string)
	if !ok {
		return doc
	}

	oid, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return doc
	}

	res := make(map[string]any, len(doc))
	for k, v := range doc {
		res[k] = v
	}

	res["_id"] = oid

	return res
}

// convertFilter returns a copy of the filter where string _id values
// that are valid ObjectIDs also match ObjectID _id values.
func convertFilter(filter map[string]any) map[string]any {
	res := make(map[string]any, len(filter))

	for k, v := range filter {
		switch k {
		case "_id":
			if s, ok := v.(string); ok {
				if oid, err := primitive.ObjectIDFromHex(s); err == nil {
					v = bson.M{"$in": bson.A{s, oid}}
				}
			}

		case "$and", "$or", "$nor":
			switch list := v.(type) {
			case []any:
				converted := make(bson.A, len(list))

				for i, e := range list {
					if m, ok := e.(map[string]any); ok {
						converted[i] = convertFilter(m)
					} else {
						converted[i] = e
					}
				}

				v = converted

			case []map[string]any:
				converted := make(bson.A, len(list))
				for i, m := range list {
					converted[i] = convertFilter(m)
				}

				v = converted
			}
		}

		res[k] = v
	}

	return res
}

// convertDocument converts a document returned by the driver.
func convertDocument(doc bson.M) map[string]any {
	res := make(map[string]any, len(doc))

	for k, v := range doc {
		res[k] = convertValue(v)
	}

	if id, ok := res["_id"]; ok {
		res["_id"] = backends.IDString(id)
	}

	return res
}

// convertValue converts BSON values to plain Go values.
func convertValue(v any) any {
	switch v := v.(type) {
	case bson.M:
		res := make(map[string]any, len(v))
		for k, e := range v {
			res[k] = convertValue(e)
		}

		return res

	case bson.D:
		res := make(map[string]any, len(v))
		for _, e := range v {
			res[e.Key] = convertValue(e.Value)
		}

		return res

	case bson.A:
		res := make([]any, len(v))
		for i, e := range v {
			res[i] = convertValue(e)
		}

		return res

	case int32:
		return int64(v)

	case primitive.ObjectID:
		return v.Hex()

	case primitive.DateTime:
		return v.Time().UTC().Format(time.RFC3339Nano)

	case primitive.Decimal128:
		return v.String()

	default:
		return v
	}
}
