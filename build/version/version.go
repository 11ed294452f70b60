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

// Package version provides information about datastore version and build configuration.
//
// version.txt contains the release version and is embedded into the binary.
// The commit is read from the Go build information when available.
//
// # Go build tags
//
//	datastore_debug - enables debug build (implied by builds with race detector)
//	datastore_no_{postgresql,mongodb,dynamodb,sqlite,memory} - excludes a backend from the registry
//
// Debug builds check that backends return only documented error codes,
// panic on leaked resources, and use debug logging level by default.
package version

import (
	_ "embed"
	"fmt"
	"regexp"
	"runtime"
	runtimedebug "runtime/debug"
	"strconv"
	"strings"

	"github.com/FerretDB/datastore/internal/util/debugbuild"
)

//go:embed version.txt
var versionTxt string

// Info provides details about the current build.
type Info struct {
	Version          string
	Commit           string
	Dirty            bool
	DebugBuild       bool
	BuildEnvironment map[string]string
}

// info is set by init().
var info *Info

// semVer matches semantic versions with a leading v.
var semVer = regexp.MustCompile(`^v(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?$`)

// Get returns current build's info.
//
// It returns a shared instance without any synchronization.
func Get() *Info {
	return info
}

// newInfo creates build info from the version file and Go build information.
func newInfo(version string, bi *runtimedebug.BuildInfo) (*Info, error) {
	version = strings.TrimSpace(version)
	if !semVer.MatchString(version) {
		return nil, fmt.Errorf("invalid version %q", version)
	}

	res := &Info{
		Version:    version,
		Commit:     "unknown",
		DebugBuild: debugbuild.Enabled,
		BuildEnvironment: map[string]string{
			"go.runtime": runtime.Version(),
		},
	}

	if bi == nil {
		return res, nil
	}

	res.BuildEnvironment["go.version"] = bi.GoVersion

	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			res.Commit = s.Value
		case "vcs.modified":
			res.Dirty, _ = strconv.ParseBool(s.Value)
		case "-race", "-tags", "CGO_ENABLED", "GOARCH", "GOOS":
			res.BuildEnvironment[s.Key] = s.Value
		}
	}

	return res, nil
}

func init() {
	bi, _ := runtimedebug.ReadBuildInfo()

	var err error
	if info, err = newInfo(versionTxt, bi); err != nil {
		panic(fmt.Sprintf("build/version/version.txt: %s", err))
	}
}
