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

import "fmt"

// State represents the Store lifecycle state.
type State int

// Store lifecycle states.
const (
	// StateUnbound is the initial state: no backend was created yet.
	StateUnbound State = iota

	// StateBoundDisconnected means the backend was created but is not connected.
	StateBoundDisconnected

	// StateConnected means the backend is connected.
	StateConnected

	// StateClosed means the backend was released.
	// Operations fail until Connect is called again.
	StateClosed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUnbound:
		return "Unbound"
	case StateBoundDisconnected:
		return "BoundDisconnected"
	case StateConnected:
		return "Connected"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
