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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/exp/maps"

	"github.com/livekit/playback/pkg/types"
)

// Monitor collects playback metrics. A nil *Monitor is valid and records nothing.
type Monitor struct {
	reconfigureCounter  *prometheus.CounterVec
	reconfigureDuration prometheus.Histogram
	chainBuilds         *prometheus.CounterVec
	groupSwitches       prometheus.Counter
	sinkFallbacks       *prometheus.CounterVec
	demotedErrors       *prometheus.CounterVec
	activeGroup         prometheus.Gauge
	streams             *prometheus.GaugeVec
}

func NewMonitor(reg prometheus.Registerer, playerID string) *Monitor {
	m := &Monitor{}

	constantLabels := prometheus.Labels{"player_id": playerID}

	m.reconfigureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "livekit",
		Subsystem:   "playback",
		Name:        "reconfigures",
		Help:        "Number of output reconfigurations by result",
		ConstLabels: constantLabels,
	}, []string{"status"}) // status: success, failure, noop

	m.reconfigureDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   "livekit",
		Subsystem:   "playback",
		Name:        "reconfigure_duration_ms",
		Help:        "A histogram of output reconfiguration latencies in milliseconds.",
		Buckets:     []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000},
		ConstLabels: constantLabels,
	})

	m.chainBuilds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "livekit",
		Subsystem:   "playback",
		Name:        "chain_builds",
		Help:        "Number of output chains constructed by chain type",
		ConstLabels: constantLabels,
	}, []string{"chain"})

	m.groupSwitches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "livekit",
		Subsystem:   "playback",
		Name:        "group_switches",
		Help:        "Number of source group handoffs",
		ConstLabels: constantLabels,
	})

	m.sinkFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "livekit",
		Subsystem:   "playback",
		Name:        "sink_fallbacks",
		Help:        "Number of times a sink candidate was rejected by media type",
		ConstLabels: constantLabels,
	}, []string{"media_type", "factory"})

	m.demotedErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "livekit",
		Subsystem:   "playback",
		Name:        "demoted_errors",
		Help:        "Number of errors downgraded to warnings",
		ConstLabels: constantLabels,
	}, []string{"reason"})

	m.activeGroup = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "livekit",
		Subsystem:   "playback",
		Name:        "active_group",
		Help:        "Sequence number of the source group currently linked to the output",
		ConstLabels: constantLabels,
	})

	m.streams = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   "livekit",
		Subsystem:   "playback",
		Name:        "streams",
		Help:        "Number of discovered streams by media type",
		ConstLabels: constantLabels,
	}, []string{"media_type"})

	reg.MustRegister(m.reconfigureCounter, m.reconfigureDuration, m.chainBuilds, m.groupSwitches,
		m.sinkFallbacks, m.demotedErrors, m.activeGroup, m.streams)

	return m
}

func (m *Monitor) ObserveReconfigure(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.reconfigureCounter.With(prometheus.Labels{"status": status}).Inc()
	m.reconfigureDuration.Observe(float64(elapsed.Milliseconds()))
}

func (m *Monitor) IncChainBuild(chain string) {
	if m == nil {
		return
	}
	m.chainBuilds.With(prometheus.Labels{"chain": chain}).Inc()
}

func (m *Monitor) IncSinkFallback(mediaType types.MediaType, factory string) {
	if m == nil {
		return
	}
	m.sinkFallbacks.With(prometheus.Labels{"media_type": mediaType.String(), "factory": factory}).Inc()
}

func (m *Monitor) IncDemotedError(reason string) {
	if m == nil {
		return
	}
	m.demotedErrors.With(prometheus.Labels{"reason": reason}).Inc()
}

func (m *Monitor) GroupSwitched(seq uint64) {
	if m == nil {
		return
	}
	m.groupSwitches.Inc()
	m.activeGroup.Set(float64(seq))
}

func (m *Monitor) SetStreamCounts(counts map[types.MediaType]int) {
	if m == nil {
		return
	}
	for _, t := range maps.Keys(counts) {
		m.streams.With(prometheus.Labels{"media_type": t.String()}).Set(float64(counts[t]))
	}
}
