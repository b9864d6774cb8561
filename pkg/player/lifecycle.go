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

package player

import (
	"time"

	"github.com/linkdata/deadlock"

	"github.com/livekit/protocol/logger"
)

// LifecycleState only moves forward.
type LifecycleState int

const (
	LifecycleBuilding LifecycleState = iota
	LifecycleStarted
	LifecycleRunning
	LifecycleEOS
	LifecycleFailed
	LifecycleStopping
	LifecycleFinished
)

func (s LifecycleState) String() string {
	switch s {
	case LifecycleBuilding:
		return "building"
	case LifecycleStarted:
		return "starting"
	case LifecycleRunning:
		return "running"
	case LifecycleEOS:
		return "eos"
	case LifecycleFailed:
		return "failed"
	case LifecycleStopping:
		return "stopping"
	case LifecycleFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Lifecycle records the player's progress and the first error that ended it.
type Lifecycle struct {
	mu      deadlock.RWMutex
	state   LifecycleState
	err     error
	entered map[LifecycleState]time.Time
	logger  logger.Logger
}

func NewLifecycle(l logger.Logger) *Lifecycle {
	return &Lifecycle{
		entered: map[LifecycleState]time.Time{LifecycleBuilding: time.Now()},
		logger:  l,
	}
}

func (l *Lifecycle) State() LifecycleState {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.state
}

// Upgrade moves to state if it is ahead of the current one.
func (l *Lifecycle) Upgrade(state LifecycleState) (LifecycleState, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.upgrade(state)
}

func (l *Lifecycle) upgrade(state LifecycleState) (LifecycleState, bool) {
	old := l.state
	if old >= state {
		return old, false
	}
	l.logger.Debugw("player state changed", "from", old, "to", state, "after", time.Since(l.entered[old]))
	l.state = state
	l.entered[state] = time.Now()
	return old, true
}

// Fail keeps the first error. It returns false if an error was already
// recorded. A player already stopping keeps its state.
func (l *Lifecycle) Fail(err error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return false
	}
	l.err = err
	if _, ok := l.upgrade(LifecycleFailed); !ok {
		l.logger.Debugw("error after shutdown began", "state", l.state, "error", err)
	}
	return true
}

func (l *Lifecycle) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.err
}

// Since returns how long ago state was entered.
func (l *Lifecycle) Since(state LifecycleState) (time.Duration, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	t, ok := l.entered[state]
	if !ok {
		return 0, false
	}
	return time.Since(t), true
}
