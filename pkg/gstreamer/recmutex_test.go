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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecMutex(t *testing.T) {
	t.Run("reentrant", func(t *testing.T) {
		var m RecMutex
		m.Lock()
		m.Lock()
		require.True(t, m.HeldByCurrent())
		m.Unlock()
		require.True(t, m.HeldByCurrent())
		m.Unlock()
		require.False(t, m.HeldByCurrent())
	})

	t.Run("exclusive", func(t *testing.T) {
		var m RecMutex
		m.Lock()

		acquired := make(chan struct{})
		go func() {
			m.Lock()
			close(acquired)
			m.Unlock()
		}()

		select {
		case <-acquired:
			t.Fatal("lock acquired by second goroutine")
		case <-time.After(50 * time.Millisecond):
		}

		m.Unlock()
		<-acquired
	})

	t.Run("counter", func(t *testing.T) {
		var m RecMutex
		var wg sync.WaitGroup
		count := 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					m.Lock()
					m.Lock()
					count++
					m.Unlock()
					m.Unlock()
				}
			}()
		}
		wg.Wait()
		require.Equal(t, 800, count)
	})

	t.Run("non-owner unlock", func(t *testing.T) {
		var m RecMutex
		m.Lock()
		defer m.Unlock()

		done := make(chan any)
		go func() {
			defer func() { done <- recover() }()
			m.Unlock()
		}()
		require.NotNil(t, <-done)
	})
}
