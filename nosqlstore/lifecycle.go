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

import (
	"context"

	"go.uber.org/zap"

	"github.com/FerretDB/datastore/internal/backends"
	"github.com/FerretDB/datastore/internal/storeerrors"
)

// Connect creates the backend if needed and connects it
// within the configured connection timeout.
//
// It is a no-op if the Store is already connected.
// Calling it after Close creates and connects a new backend.
func (s *Store) Connect(ctx context.Context) error {
	s.m.Lock()
	defer s.m.Unlock()

	return s.connect(ctx)
}

// connect implements Connect.
//
// s.m must be held.
func (s *Store) connect(ctx context.Context) error {
	if s.state == StateConnected {
		return nil
	}

	if s.b == nil {
		if err := s.bind(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Connection.Timeout())
	defer cancel()

	if err := s.b.Connect(ctx); err != nil {
		s.l.Warn("Failed to connect", zap.Error(err))
		return err
	}

	s.state = StateConnected
	s.l.Debug("Connected")

	return nil
}

// Close releases the backend.
//
// It is safe to call Close several times, or without Connect.
// The Store stays usable: Connect could be called again.
func (s *Store) Close() error {
	s.m.Lock()
	defer s.m.Unlock()

	b := s.b
	s.b = nil
	s.state = StateClosed

	if b == nil {
		return nil
	}

	s.l.Debug("Closing")

	return b.Close()
}

// WithConnection connects the Store, calls f, and closes the Store when the outermost call returns.
//
// Nested calls reuse the existing connection.
// The Store is closed even if f returns an error or panics.
// A close error is returned only if f succeeded; otherwise it is logged.
func (s *Store) WithConnection(ctx context.Context, f func(*Store) error) (err error) {
	s.m.Lock()

	if err = s.connect(ctx); err != nil {
		s.m.Unlock()
		return err
	}

	s.depth++
	s.m.Unlock()

	panicked := true

	defer func() {
		s.m.Lock()
		s.depth--
		outermost := s.depth == 0
		s.m.Unlock()

		if !outermost {
			return
		}

		closeErr := s.Close()
		if closeErr == nil {
			return
		}

		if panicked || err != nil {
			s.l.Error("Failed to close store", zap.Error(closeErr))
			return
		}

		err = closeErr
	}()

	err = f(s)
	panicked = false

	return err
}

// backend returns the connected backend, connecting lazily if needed.
//
// Closed Store is not reconnected implicitly.
func (s *Store) backend(ctx context.Context) (backends.Backend, error) {
	s.m.Lock()
	defer s.m.Unlock()

	switch s.state {
	case StateConnected:
		return s.b, nil
	case StateClosed:
		return nil, storeerrors.Errorf(storeerrors.ErrorCodeConnectionClosed, "store is closed")
	case StateUnbound, StateBoundDisconnected:
		if err := s.connect(ctx); err != nil {
			return nil, err
		}

		return s.b, nil
	default:
		panic("unexpected state " + s.state.String())
	}
}
