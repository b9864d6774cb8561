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

package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/livekit/playback/pkg/gstreamer"
)

func TestMessageLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewMessageLogger(zap.New(core).Sugar())

	l.Log(gstreamer.NewErrorMessage(nil, errors.New("boom"), "details"))
	l.Log(gstreamer.NewWarningMessage(nil, errors.New("careful"), ""))
	l.Log(gstreamer.NewBufferingMessage(nil, 50))
	l.Log(gstreamer.NewStreamCollectionMessage(nil, &gstreamer.StreamCollection{
		Streams: []*gstreamer.Stream{{ID: "a"}, {ID: "b"}},
	}))

	entries := logs.All()
	require.Len(t, entries, 4)
	require.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.Equal(t, zapcore.DebugLevel, entries[2].Level)
	require.Equal(t, int64(50), entries[2].ContextMap()["percent"])
	require.Equal(t, zapcore.InfoLevel, entries[3].Level)
}

func TestNilMessageLogger(t *testing.T) {
	l := NewMessageLogger(nil)
	require.NotPanics(t, func() {
		l.Log(gstreamer.NewAsyncDoneMessage(nil))
		l.Sync()
	})
}
