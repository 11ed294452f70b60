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

// Package registry provides a registry of backends.
//
// Each backend registers itself in a separate file;
// they could be excluded from the build with build tags.
package registry

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/FerretDB/datastore/internal/backends"
	"github.com/FerretDB/datastore/internal/config"
	"github.com/FerretDB/datastore/internal/storeerrors"
)

// NewBackendFunc represents a function that constructs a new unconnected backend.
type NewBackendFunc func(opts *NewBackendOpts) (backends.Backend, error)

// registry maps framework names to constructors.
//
// Map values must be added through the `init()` functions in separate files
// so that we can control which backends will be included in the build with build tags.
var registry = map[config.Framework]NewBackendFunc{}

// NewBackendOpts represents configuration for constructing backends.
type NewBackendOpts struct {
	Config *config.Config
	Logger *zap.Logger
}

// Register adds a constructor for the given framework.
//
// It should be called from init functions; it panics if the framework is already registered.
func Register(framework config.Framework, f NewBackendFunc) {
	if _, ok := registry[framework]; ok {
		panic(fmt.Sprintf("framework %q already registered", framework))
	}

	registry[framework] = f
}

// Lookup returns the constructor of the given framework.
//
// Unknown framework is a configuration error.
func Lookup(framework config.Framework) (NewBackendFunc, error) {
	f, ok := registry[framework]
	if !ok {
		return nil, storeerrors.Errorf(
			storeerrors.ErrorCodeConfiguration,
			"unknown framework %q, expected one of %v", framework, Frameworks(),
		)
	}

	return f, nil
}

// NewBackend constructs a new unconnected backend of the configured framework
// wrapped with the contract.
func NewBackend(opts *NewBackendOpts) (backends.Backend, error) {
	f, err := Lookup(opts.Config.Framework)
	if err != nil {
		return nil, err
	}

	l := opts.Logger.Named(string(opts.Config.Framework))

	b, err := f(&NewBackendOpts{Config: opts.Config, Logger: l})
	if err != nil {
		return nil, err
	}

	return backends.BackendContract(b, l), nil
}

// Frameworks returns a list of all registered frameworks, sorted.
func Frameworks() []string {
	res := make([]string, 0, len(registry))

	for f := range registry {
		res = append(res, string(f))
	}

	sort.Strings(res)

	return res
}
