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

package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlayFlags(t *testing.T) {
	t.Run("parse", func(t *testing.T) {
		flags, err := ParseFlags("audio+video+soft-volume")
		require.NoError(t, err)
		require.True(t, flags.Has(FlagAudio|FlagVideo))
		require.True(t, flags.Has(FlagSoftVolume))
		require.False(t, flags.Has(FlagText))
		require.Equal(t, "video+audio+soft-volume", flags.String())
	})

	t.Run("separators", func(t *testing.T) {
		flags, err := ParseFlags("vis, native-audio | text")
		require.NoError(t, err)
		require.Equal(t, FlagVis|FlagNativeAudio|FlagText, flags)
	})

	t.Run("none", func(t *testing.T) {
		flags, err := ParseFlagList([]string{"none", ""})
		require.NoError(t, err)
		require.Equal(t, PlayFlags(0), flags)
		require.Equal(t, "none", flags.String())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := ParseFlags("audio+dolby")
		require.Error(t, err)
	})
}

func TestMediaTypeOf(t *testing.T) {
	for _, test := range []struct {
		stream StreamType
		media  MediaType
		ok     bool
	}{
		{StreamTypeAudio, MediaAudio, true},
		{StreamTypeVideo, MediaVideo, true},
		{StreamTypeVideo | StreamTypeImage, MediaVideo, true},
		{StreamTypeImage, MediaVideo, true},
		{StreamTypeText, MediaText, true},
		{StreamTypeContainer, MediaLast, false},
		{StreamTypeUnknown, MediaLast, false},
	} {
		t.Run(test.stream.String(), func(t *testing.T) {
			media, ok := MediaTypeOf(test.stream)
			require.Equal(t, test.ok, ok)
			require.Equal(t, test.media, media)
		})
	}

	require.Equal(t, SinkTypeText, MediaText.SinkType())
	m, ok := SinkTypeVideoRaw.MediaType()
	require.True(t, ok)
	require.Equal(t, MediaVideo, m)
	_, ok = SinkTypeFlushing.MediaType()
	require.False(t, ok)
	require.Equal(t, StreamTypeAudio, MediaAudio.StreamType())
}
