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

package nosqlstore

import "github.com/FerretDB/datastore/internal/storeerrors"

// Error is the error type returned by Store methods.
type Error = storeerrors.Error

// ErrorCode represents the error kind.
type ErrorCode = storeerrors.ErrorCode

// Error codes.
const (
	ErrorCodeConfiguration     = storeerrors.ErrorCodeConfiguration
	ErrorCodeConnection        = storeerrors.ErrorCodeConnection
	ErrorCodeConnectionTimeout = storeerrors.ErrorCodeConnectionTimeout
	ErrorCodeConnectionClosed  = storeerrors.ErrorCodeConnectionClosed
	ErrorCodeValidation        = storeerrors.ErrorCodeValidation
	ErrorCodeOperation         = storeerrors.ErrorCodeOperation
	ErrorCodeDuplicateKey      = storeerrors.ErrorCodeDuplicateKey
)

// ErrorCodeIs returns true if err is *Error with one of the given error codes.
func ErrorCodeIs(err error, code ErrorCode, codes ...ErrorCode) bool {
	return storeerrors.ErrorCodeIs(err, code, codes...)
}
