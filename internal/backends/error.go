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
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/exp/slices"

	"github.com/FerretDB/datastore/internal/storeerrors"
	"github.com/FerretDB/datastore/internal/util/debugbuild"
)

// Allowed error codes per method group.
var (
	insertCodes = []storeerrors.ErrorCode{
		storeerrors.ErrorCodeValidation,
		storeerrors.ErrorCodeDuplicateKey,
		storeerrors.ErrorCodeOperation,
		storeerrors.ErrorCodeConnection,
		storeerrors.ErrorCodeConnectionTimeout,
	}

	queryCodes = []storeerrors.ErrorCode{
		storeerrors.ErrorCodeValidation,
		storeerrors.ErrorCodeOperation,
		storeerrors.ErrorCodeConnection,
		storeerrors.ErrorCodeConnectionTimeout,
	}

	updateCodes = append(slices.Clone(queryCodes), storeerrors.ErrorCodeDuplicateKey)
)

// checkError enforces backend interfaces contracts.
//
// Err must be nil, *storeerrors.Error, or some other opaque error.
// *storeerrors.Error values can't be wrapped.
// If err is *storeerrors.Error, it must have one of the given error codes.
// If that's not the case, checkError panics in debug builds.
//
// It does nothing in non-debug builds.
func checkError(err error, codes ...storeerrors.ErrorCode) {
	if !debugbuild.Enabled {
		return
	}

	if err == nil {
		return
	}

	e, ok := err.(*storeerrors.Error) //nolint:errorlint // do not inspect error chain
	if !ok {
		if errors.As(err, &e) {
			panic(fmt.Sprintf("error should not be wrapped: %v", err))
		}

		return
	}

	if e.Code() == 0 {
		panic(fmt.Sprintf("error code is 0: %v", err))
	}

	if len(codes) == 0 {
		panic(fmt.Sprintf("no allowed error codes: %v", err))
	}

	if !slices.Contains(codes, e.Code()) {
		panic(fmt.Sprintf("error code is not in %v: %v", codes, err))
	}
}

// operationError converts opaque backend errors to operation errors.
func operationError(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := err.(*storeerrors.Error); ok { //nolint:errorlint // do not inspect error chain
		return err
	}

	return storeerrors.New(storeerrors.ErrorCodeOperation, err)
}

// connectionError converts opaque connect errors to connection errors.
//
// Errors caused by the expired context deadline become connection timeouts.
func connectionError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	if _, ok := err.(*storeerrors.Error); ok { //nolint:errorlint // do not inspect error chain
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return storeerrors.New(storeerrors.ErrorCodeConnectionTimeout, err)
	}

	return storeerrors.New(storeerrors.ErrorCodeConnection, err)
}

// ConnectionError is used by backends to convert driver connect errors.
func ConnectionError(ctx context.Context, err error) error {
	return connectionError(ctx, err)
}

// NewID returns a new document identifier as a hex-encoded ObjectID.
func NewID() string {
	return primitive.NewObjectID().Hex()
}
