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

package stats

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/livekit/playback/pkg/types"
)

func TestMonitor(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMonitor(reg, "PL_test")

	m.ObserveReconfigure("success", 3*time.Millisecond)
	m.ObserveReconfigure("success", time.Millisecond)
	m.ObserveReconfigure("noop", 0)
	require.Equal(t, float64(2), testutil.ToFloat64(m.reconfigureCounter.With(prometheus.Labels{"status": "success"})))

	m.IncChainBuild("audio")
	m.IncChainBuild("audio")
	m.IncChainBuild("video")
	require.Equal(t, float64(2), testutil.ToFloat64(m.chainBuilds.With(prometheus.Labels{"chain": "audio"})))

	m.GroupSwitched(4)
	require.Equal(t, float64(1), testutil.ToFloat64(m.groupSwitches))
	require.Equal(t, float64(4), testutil.ToFloat64(m.activeGroup))

	m.SetStreamCounts(map[types.MediaType]int{types.MediaAudio: 2, types.MediaVideo: 1})
	require.Equal(t, float64(2), testutil.ToFloat64(m.streams.With(prometheus.Labels{"media_type": "audio"})))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestNilMonitor(t *testing.T) {
	var m *Monitor
	require.NotPanics(t, func() {
		m.ObserveReconfigure("success", time.Second)
		m.IncChainBuild("text")
		m.IncSinkFallback(types.MediaAudio, "alsasink")
		m.IncDemotedError("subtitle")
		m.GroupSwitched(1)
		m.SetStreamCounts(nil)
	})
}
