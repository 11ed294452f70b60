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

package query

// Project returns a new document with only the given fields (and _id unless excludeID is true).
//
// If fields is empty, all fields are included.
func Project(doc map[string]any, fields []string, excludeID bool) map[string]any {
	res := make(map[string]any, len(fields)+1)

	if len(fields) == 0 {
		for k, v := range doc {
			res[k] = v
		}
	} else {
		if id, ok := doc["_id"]; ok {
			res["_id"] = id
		}

		for _, f := range fields {
			if v, ok := Get(doc, f); ok {
				// paths are taken from an existing document, so set can't fail
				_ = set(res, f, v)
			}
		}
	}

	if excludeID {
		delete(res, "_id")
	}

	return res
}
