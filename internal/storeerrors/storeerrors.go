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

// Package storeerrors defines the error taxonomy shared by all stores and backends.
//
// Every failure surfaced by the public facades is an *Error with one of the codes below,
// or an opaque error for programming mistakes.
// Errors are never retried by this module.
package storeerrors

import (
	"errors"
	"fmt"

	"golang.org/x/exp/slices"
)

// ErrorCode represent a store error code.
type ErrorCode int

// Error codes.
const (
	_ ErrorCode = iota

	// ErrorCodeConfiguration is returned for invalid or incomplete configuration,
	// including an unknown framework selector.
	ErrorCodeConfiguration // ConfigurationError

	// ErrorCodeConnection is returned when a backend can't be reached.
	ErrorCodeConnection // ConnectionError

	// ErrorCodeConnectionTimeout is returned when connect does not complete within the timeout.
	ErrorCodeConnectionTimeout // ConnectionTimeout

	// ErrorCodeConnectionClosed is returned for operations on a closed store.
	ErrorCodeConnectionClosed // ConnectionClosed

	// ErrorCodeValidation is returned for malformed operation arguments.
	ErrorCodeValidation // ValidationError

	// ErrorCodeOperation is returned when a backend rejects an operation.
	ErrorCodeOperation // OperationError

	// ErrorCodeDuplicateKey is returned when an insert conflicts with an existing _id.
	ErrorCodeDuplicateKey // DuplicateKey
)

// String implements fmt.Stringer.
func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeConfiguration:
		return "ConfigurationError"
	case ErrorCodeConnection:
		return "ConnectionError"
	case ErrorCodeConnectionTimeout:
		return "ConnectionTimeout"
	case ErrorCodeConnectionClosed:
		return "ConnectionClosed"
	case ErrorCodeValidation:
		return "ValidationError"
	case ErrorCodeOperation:
		return "OperationError"
	case ErrorCodeDuplicateKey:
		return "DuplicateKey"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// Error represents a store error.
type Error struct {
	// Backend-specific cause; may be nil.
	err error

	code ErrorCode
}

// New creates a new store error.
//
// Code must not be 0. Err may be nil.
func New(code ErrorCode, err error) *Error {
	if code == 0 {
		panic("storeerrors.New: code must not be 0")
	}

	return &Error{
		code: code,
		err:  err,
	}
}

// Errorf creates a new store error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return New(code, fmt.Errorf(format, args...))
}

// Code returns the error code.
func (err *Error) Code() ErrorCode {
	return err.code
}

// Error implements error interface.
func (err *Error) Error() string {
	if err.err == nil {
		return err.code.String()
	}

	return fmt.Sprintf("%s: %v", err.code, err.err)
}

// Unwrap returns the backend-specific cause, if any.
func (err *Error) Unwrap() error {
	return err.err
}

// ErrorCodeIs returns true if err or any error in its chain is *Error with one of the given error codes.
//
// At least one error code must be given.
func ErrorCodeIs(err error, code ErrorCode, codes ...ErrorCode) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	return e.code == code || slices.Contains(codes, e.code)
}

// IsConnectionError returns true for connection errors and their timeout and closed variants.
func IsConnectionError(err error) bool {
	return ErrorCodeIs(err, ErrorCodeConnection, ErrorCodeConnectionTimeout, ErrorCodeConnectionClosed)
}

// IsOperationError returns true for operation errors including duplicate keys.
func IsOperationError(err error) bool {
	return ErrorCodeIs(err, ErrorCodeOperation, ErrorCodeDuplicateKey)
}

// check interfaces
var (
	_ error        = (*Error)(nil)
	_ fmt.Stringer = ErrorCode(0)
)
