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

package version

import (
	runtimedebug "runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	t.Parallel()

	v := Get()
	assert.Regexp(t, semVer, v.Version)
	assert.NotEmpty(t, v.Commit)
	assert.NotEmpty(t, v.BuildEnvironment["go.runtime"])
}

func TestNewInfo(t *testing.T) {
	t.Parallel()

	info, err := newInfo("v1.2.3-rc.1\n", &runtimedebug.BuildInfo{
		GoVersion: "go1.24.11",
		Settings: []runtimedebug.BuildSetting{
			{Key: "vcs.revision", Value: "abcdef"},
			{Key: "vcs.modified", Value: "true"},
			{Key: "GOOS", Value: "linux"},
			{Key: "vcs.time", Value: "2024-01-01T00:00:00Z"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "v1.2.3-rc.1", info.Version)
	assert.Equal(t, "abcdef", info.Commit)
	assert.True(t, info.Dirty)
	assert.Equal(t, "linux", info.BuildEnvironment["GOOS"])
	assert.Equal(t, "go1.24.11", info.BuildEnvironment["go.version"])
	assert.NotContains(t, info.BuildEnvironment, "vcs.time")

	info, err = newInfo("v0.1.0", nil)
	require.NoError(t, err)
	assert.Equal(t, "unknown", info.Commit)

	_, err = newInfo("1.0", nil)
	assert.Error(t, err)
}
