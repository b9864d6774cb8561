// Copyright 2023 LiveKit, Inc.
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

package gstreamer

import (
	"github.com/linkdata/deadlock"
	"github.com/petermattis/goid"
	"go.uber.org/atomic"
)

// RecMutex is a reentrant mutex owned by a goroutine. Handlers triggered
// while the lock is held may take it again on the same goroutine.
type RecMutex struct {
	mu    deadlock.Mutex
	owner atomic.Int64
	depth int
}

func (m *RecMutex) Lock() {
	id := goid.Get()
	if m.owner.Load() == id {
		m.depth++
		return
	}
	m.mu.Lock()
	m.owner.Store(id)
	m.depth = 1
}

func (m *RecMutex) Unlock() {
	if m.owner.Load() != goid.Get() {
		panic("RecMutex unlocked by non-owner")
	}
	m.depth--
	if m.depth == 0 {
		m.owner.Store(0)
		m.mu.Unlock()
	}
}

// HeldByCurrent reports whether the calling goroutine owns the lock.
func (m *RecMutex) HeldByCurrent() bool {
	return m.owner.Load() == goid.Get()
}
