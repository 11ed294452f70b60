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

// Package backends provides common interfaces and code for all document store backends.
//
// # Design principles
//
//  1. One interface, many implementations.
//     Every backend implements the same Backend interface and is selected by the registry;
//     callers never inspect concrete types.
//  2. Backend objects are stateful and wrap database connection(s).
//     They are created unconnected; Connect and Close manage the connection.
//  3. Contexts are per-operation and should not be stored.
//  4. Errors returned by methods could be nil, *storeerrors.Error, or some other opaque error type.
//     *storeerrors.Error values returned by backends can't be wrapped.
//     Contracts enforce error codes; they are not documented in the code comments
//     but are visible in the contract's code (to avoid duplication).
//  5. Arguments are validated and normalized by the contract before they reach backends.
//     In particular, updates without operators are wrapped into $set,
//     so backends always receive operator updates.
package backends
