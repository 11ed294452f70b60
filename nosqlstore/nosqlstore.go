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

// Package nosqlstore provides a document store facade over interchangeable backends.
//
// The backend is selected by the configured framework when the Store is created.
// The backend is instantiated and connected lazily, on the first operation or explicit Connect call.
//
// Store operations are not serialized by the Store itself;
// concurrent use relies on the thread-safety of the selected backend.
package nosqlstore

import (
	"sync"

	"go.uber.org/zap"

	"github.com/FerretDB/datastore/internal/backends"
	"github.com/FerretDB/datastore/internal/backends/decorators/metrics"
	"github.com/FerretDB/datastore/internal/config"
	"github.com/FerretDB/datastore/internal/registry"
	"github.com/FerretDB/datastore/internal/storeerrors"
)

// Types shared with the configuration and backend packages.
type (
	// Config is a validated store configuration.
	Config = config.Config

	// Connection is a connection descriptor.
	Connection = config.Connection

	// Framework selects a backend.
	Framework = config.Framework

	// Document is a single stored record.
	Document = backends.Document

	// Filter selects documents; empty filter matches all documents.
	Filter = backends.Filter

	// Update describes changes; without operator keys, fields are set.
	Update = backends.Update

	// Metrics records backend requests; it implements prometheus.Collector.
	Metrics = metrics.Metrics
)

// NewMetrics creates new backend metrics that could be shared by several stores.
func NewMetrics() *Metrics {
	return metrics.NewMetrics()
}

// Frameworks returns all known frameworks, sorted.
func Frameworks() []string {
	return registry.Frameworks()
}

// Store is a document store facade.
//
// It owns at most one backend at a time.
type Store struct {
	cfg     *config.Config
	l       *zap.Logger
	metrics *metrics.Metrics

	// lifecycle fields
	m     sync.Mutex
	state State
	b     backends.Backend
	depth int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger; zap.L() is used by default.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.l = l
	}
}

// WithMetrics enables recording of backend request metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// New creates a new Store for the given configuration.
//
// The framework is resolved immediately; an unknown framework is a configuration error.
// No backend is created and no I/O is performed.
func New(cfg *Config, opts ...Option) (*Store, error) {
	if cfg == nil || cfg.Connection == nil {
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeConfiguration, "configuration and connection are required")
	}

	if _, err := registry.Lookup(cfg.Framework); err != nil {
		return nil, err
	}

	s := &Store{
		cfg:   cfg,
		state: StateUnbound,
	}

	for _, o := range opts {
		o(s)
	}

	if s.l == nil {
		s.l = zap.L()
	}

	s.l = s.l.Named("nosqlstore")

	return s, nil
}

// NewFromMap creates a new Store from a loosely typed configuration mapping,
// such as decoded JSON or YAML.
func NewFromMap(m map[string]any, opts ...Option) (*Store, error) {
	cfg, err := config.FromMap(m)
	if err != nil {
		return nil, err
	}

	return New(cfg, opts...)
}

// State returns the current lifecycle state.
func (s *Store) State() State {
	s.m.Lock()
	defer s.m.Unlock()

	return s.state
}

// Framework returns the configured framework.
func (s *Store) Framework() Framework {
	return s.cfg.Framework
}

// Config returns the store configuration.
//
// It must not be modified.
func (s *Store) Config() *Config {
	return s.cfg
}

// bind creates a new backend.
//
// s.m must be held.
func (s *Store) bind() error {
	b, err := registry.NewBackend(&registry.NewBackendOpts{
		Config: s.cfg,
		Logger: s.l,
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		b = metrics.Wrap(b, s.metrics)
	}

	s.b = b
	s.state = StateBoundDisconnected

	s.l.Debug("Backend created", zap.String("framework", string(s.cfg.Framework)))

	return nil
}
