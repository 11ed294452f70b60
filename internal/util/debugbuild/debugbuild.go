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

// Package debugbuild provides information about whether this is a debug build.
//
// Debug builds are enabled by the datastore_debug build tag or the race detector.
// They check internal contracts more strictly and panic on violations.
package debugbuild

import "runtime/debug"

// Enabled is true for debug builds.
var Enabled = enabled

// Stack returns the current goroutine stack for debug builds, nil otherwise.
func Stack() []byte {
	if Enabled {
		return debug.Stack()
	}

	return nil
}
