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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/livekit/playback/pkg/errors"
	"github.com/livekit/protocol/logger"
)

func TestLifecycle(t *testing.T) {
	t.Run("forward only", func(t *testing.T) {
		l := NewLifecycle(logger.GetLogger())
		old, ok := l.Upgrade(LifecycleRunning)
		require.True(t, ok)
		require.Equal(t, LifecycleBuilding, old)

		_, ok = l.Upgrade(LifecycleStarted)
		require.False(t, ok)
		require.Equal(t, LifecycleRunning, l.State())

		_, entered := l.Since(LifecycleStarted)
		require.False(t, entered)
		_, entered = l.Since(LifecycleRunning)
		require.True(t, entered)
	})

	t.Run("first error wins", func(t *testing.T) {
		l := NewLifecycle(logger.GetLogger())
		l.Upgrade(LifecycleRunning)

		first := errors.New("decoder failed")
		require.True(t, l.Fail(first))
		require.False(t, l.Fail(errors.New("sink failed")))
		require.Equal(t, first, l.Err())
		require.Equal(t, LifecycleFailed, l.State())
	})

	t.Run("error while stopping", func(t *testing.T) {
		l := NewLifecycle(logger.GetLogger())
		l.Upgrade(LifecycleStopping)

		require.True(t, l.Fail(errors.New("late")))
		require.Error(t, l.Err())
		require.Equal(t, LifecycleStopping, l.State())
		require.Equal(t, "stopping", l.State().String())
	})
}
