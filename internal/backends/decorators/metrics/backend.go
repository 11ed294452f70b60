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

package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/FerretDB/datastore/internal/backends"
	"github.com/FerretDB/datastore/internal/storeerrors"
)

// backend implements backends.Backend interface by recording metrics
// and delegating all methods to the wrapped backend.
type backend struct {
	b backends.Backend
	m *Metrics
}

// Wrap returns a backend that records metrics of the given backend.
func Wrap(b backends.Backend, m *Metrics) backends.Backend {
	return &backend{b: b, m: m}
}

// observe records a single request.
func (b *backend) observe(op string, start time.Time, err error) {
	framework := b.b.Name()

	result := "ok"

	if err != nil {
		result = "error"

		var e *storeerrors.Error
		if errors.As(err, &e) {
			result = e.Code().String()
		}
	}

	b.m.requests.WithLabelValues(framework, op, result).Inc()
	b.m.duration.WithLabelValues(framework, op).Observe(time.Since(start).Seconds())
}

// Name implements backends.Backend interface.
func (b *backend) Name() string {
	return b.b.Name()
}

// Connect implements backends.Backend interface.
func (b *backend) Connect(ctx context.Context) error {
	start := time.Now()
	err := b.b.Connect(ctx)
	b.observe("connect", start, err)

	return err
}

// Close implements backends.Backend interface.
func (b *backend) Close() error {
	return b.b.Close()
}

// Insert implements backends.Backend interface.
func (b *backend) Insert(ctx context.Context, params *backends.InsertParams) (*backends.InsertResult, error) {
	start := time.Now()
	res, err := b.b.Insert(ctx, params)
	b.observe("insert", start, err)

	return res, err
}

// InsertMany implements backends.Backend interface.
func (b *backend) InsertMany(ctx context.Context, params *backends.InsertManyParams) (*backends.InsertManyResult, error) {
	start := time.Now()
	res, err := b.b.InsertMany(ctx, params)
	b.observe("insert_many", start, err)

	return res, err
}

// Find implements backends.Backend interface.
func (b *backend) Find(ctx context.Context, params *backends.FindParams) (*backends.FindResult, error) {
	start := time.Now()
	res, err := b.b.Find(ctx, params)
	b.observe("find", start, err)

	return res, err
}

// Update implements backends.Backend interface.
func (b *backend) Update(ctx context.Context, params *backends.UpdateParams) (*backends.UpdateResult, error) {
	start := time.Now()
	res, err := b.b.Update(ctx, params)
	b.observe("update", start, err)

	return res, err
}

// Delete implements backends.Backend interface.
func (b *backend) Delete(ctx context.Context, params *backends.DeleteParams) (*backends.DeleteResult, error) {
	start := time.Now()
	res, err := b.b.Delete(ctx, params)
	b.observe("delete", start, err)

	return res, err
}

// Describe implements prometheus.Collector.
func (b *backend) Describe(ch chan<- *prometheus.Desc) {
	if c, ok := b.b.(prometheus.Collector); ok {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (b *backend) Collect(ch chan<- prometheus.Metric) {
	if c, ok := b.b.(prometheus.Collector); ok {
		c.Collect(ch)
	}
}

// check interfaces
var (
	_ backends.Backend     = (*backend)(nil)
	_ prometheus.Collector = (*backend)(nil)
)
