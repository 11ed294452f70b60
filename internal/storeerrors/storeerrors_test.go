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

package storeerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	t.Parallel()

	err := Errorf(ErrorCodeConfiguration, "Either 'uri' or 'host' must be provided")
	assert.EqualError(t, err, "ConfigurationError: Either 'uri' or 'host' must be provided")
	assert.Equal(t, ErrorCodeConfiguration, err.Code())

	assert.EqualError(t, New(ErrorCodeConnectionClosed, nil), "ConnectionClosed")

	assert.Panics(t, func() { New(0, nil) })
}

func TestErrorCodeIs(t *testing.T) {
	t.Parallel()

	dup := New(ErrorCodeDuplicateKey, errors.New("_id"))
	wrapped := fmt.Errorf("insert: %w", dup)

	for name, tc := range map[string]struct {
		err        error
		connection bool
		operation  bool
	}{
		"Nil": {},
		"Opaque": {
			err: errors.New("opaque"),
		},
		"Connection": {
			err:        New(ErrorCodeConnection, nil),
			connection: true,
		},
		"Timeout": {
			err:        New(ErrorCodeConnectionTimeout, nil),
			connection: true,
		},
		"Closed": {
			err:        New(ErrorCodeConnectionClosed, nil),
			connection: true,
		},
		"Validation": {
			err: New(ErrorCodeValidation, nil),
		},
		"DuplicateKey": {
			err:       dup,
			operation: true,
		},
		"Wrapped": {
			err:       wrapped,
			operation: true,
		},
	} {
		name, tc := name, tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.connection, IsConnectionError(tc.err))
			assert.Equal(t, tc.operation, IsOperationError(tc.err))
		})
	}

	assert.True(t, ErrorCodeIs(wrapped, ErrorCodeDuplicateKey))
	assert.False(t, ErrorCodeIs(wrapped, ErrorCodeValidation))
}

func TestErrorCodeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ValidationError", ErrorCodeValidation.String())
	assert.Equal(t, "ErrorCode(42)", ErrorCode(42).String())
}

func TestUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("E11000 duplicate key error")
	err := New(ErrorCodeDuplicateKey, cause)

	assert.ErrorIs(t, err, cause)
	assert.Nil(t, New(ErrorCodeValidation, nil).Unwrap())
}
