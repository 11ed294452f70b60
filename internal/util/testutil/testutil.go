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

// Package testutil provides testing helpers.
package testutil

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

// Ctx returns a test context with a span named after the test.
// It is canceled just before cleanup functions are called.
func Ctx(tb testing.TB) context.Context {
	tb.Helper()

	ctx, span := otel.Tracer("").Start(tb.Context(), tb.Name())
	tb.Cleanup(func() { span.End() })

	return ctx
}
