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

// Package resource tracks objects that own external resources (connections, pools, transactions)
// and reports those that become unreachable without being released.
package resource

import (
	"fmt"
	"reflect"
	"runtime"
	"runtime/pprof"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/FerretDB/datastore/internal/util/debugbuild"
)

// Token should be a field of a tracked object.
//
// It holds cleanup state that must not reference the object itself,
// otherwise the object would never become unreachable.
type Token struct {
	h   atomic.Pointer[runtime.Cleanup]
	msg string
}

// NewToken returns a new token for a tracked object.
func NewToken() *Token {
	return new(Token)
}

var profilesM sync.Mutex

// profileName returns a pprof profile name for the object's type.
func profileName(obj any) string {
	return "datastore/" + reflect.TypeOf(obj).Elem().String()
}

// leaked is called when the tracked object was garbage collected without Untrack.
func leaked(t *Token) {
	if debugbuild.Enabled {
		panic(t.msg)
	}

	zap.L().Warn(t.msg)
}

// Track tracks the lifetime of the object until Untrack is called.
//
// obj must be a pointer to a struct with a token field.
func Track[T any](obj *T, token *Token) {
	checkArgs(obj, token)

	name := profileName(obj)

	p := pprof.Lookup(name)
	if p == nil {
		profilesM.Lock()

		// another goroutine might have created it already
		if p = pprof.Lookup(name); p == nil {
			p = pprof.NewProfile(name)
		}

		profilesM.Unlock()
	}

	p.Add(token, 1)

	token.msg = fmt.Sprintf("%T has not been closed", obj)
	if stack := debugbuild.Stack(); stack != nil {
		token.msg += "\nObject created by " + string(stack)
	}

	h := runtime.AddCleanup(obj, leaked, token)
	token.h.Store(&h)
}

// Untrack stops tracking the object.
//
// It is safe to call it more than once.
func Untrack[T any](obj *T, token *Token) {
	checkArgs(obj, token)

	h := token.h.Swap(nil)
	if h == nil {
		return
	}

	h.Stop()

	if p := pprof.Lookup(profileName(obj)); p != nil {
		p.Remove(token)
	}
}

// checkArgs panics if obj or token are invalid.
func checkArgs(obj any, token *Token) {
	if obj == nil || token == nil {
		panic("resource: obj and token must not be nil")
	}

	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("resource: obj must be a pointer to struct, got %T", obj))
	}
}
