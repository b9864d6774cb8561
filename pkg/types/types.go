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
	"fmt"
	"strings"
)

type PlayFlags uint32

const (
	FlagVideo PlayFlags = 1 << iota
	FlagAudio
	FlagText
	FlagVis
	FlagSoftVolume
	FlagNativeAudio
	FlagNativeVideo
	FlagDownload
	FlagBuffering
	FlagDeinterlace
	FlagSoftColorbalance
	FlagForceFilters
	FlagForceSwDecoders

	DefaultFlags = FlagAudio | FlagVideo | FlagText | FlagSoftVolume | FlagDeinterlace | FlagSoftColorbalance
)

var flagNames = []struct {
	flag PlayFlags
	name string
}{
	{FlagVideo, "video"},
	{FlagAudio, "audio"},
	{FlagText, "text"},
	{FlagVis, "vis"},
	{FlagSoftVolume, "soft-volume"},
	{FlagNativeAudio, "native-audio"},
	{FlagNativeVideo, "native-video"},
	{FlagDownload, "download"},
	{FlagBuffering, "buffering"},
	{FlagDeinterlace, "deinterlace"},
	{FlagSoftColorbalance, "soft-colorbalance"},
	{FlagForceFilters, "force-filters"},
	{FlagForceSwDecoders, "force-sw-decoders"},
}

func (f PlayFlags) Has(flag PlayFlags) bool {
	return f&flag == flag
}

func (f PlayFlags) String() string {
	var names []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			names = append(names, fn.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "+")
}

// ParseFlags accepts names joined by '+', ',' or whitespace, e.g. "audio+video+vis".
func ParseFlags(s string) (PlayFlags, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '+' || r == ',' || r == ' ' || r == '|'
	})
	return ParseFlagList(fields)
}

func ParseFlagList(names []string) (PlayFlags, error) {
	var flags PlayFlags
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || name == "none" {
			continue
		}
		found := false
		for _, fn := range flagNames {
			if fn.name == name {
				flags |= fn.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown flag %q", name)
		}
	}
	return flags, nil
}

// StreamType is a bitmask, a stream may carry several marks.
type StreamType uint32

const (
	StreamTypeUnknown StreamType = 1 << iota
	StreamTypeAudio
	StreamTypeVideo
	StreamTypeContainer
	StreamTypeText
	StreamTypeImage
)

func (t StreamType) String() string {
	var names []string
	for _, s := range []struct {
		t    StreamType
		name string
	}{
		{StreamTypeUnknown, "unknown"},
		{StreamTypeAudio, "audio"},
		{StreamTypeVideo, "video"},
		{StreamTypeContainer, "container"},
		{StreamTypeText, "text"},
		{StreamTypeImage, "image"},
	} {
		if t&s.t != 0 {
			names = append(names, s.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "+")
}

// MediaType is the index of a combiner slot.
type MediaType int

const (
	MediaAudio MediaType = iota
	MediaVideo
	MediaText
	MediaLast
)

var MediaTypes = []MediaType{MediaAudio, MediaVideo, MediaText}

func (m MediaType) String() string {
	switch m {
	case MediaAudio:
		return "audio"
	case MediaVideo:
		return "video"
	case MediaText:
		return "text"
	default:
		return "unknown"
	}
}

func (m MediaType) StreamType() StreamType {
	switch m {
	case MediaAudio:
		return StreamTypeAudio
	case MediaVideo:
		return StreamTypeVideo
	case MediaText:
		return StreamTypeText
	default:
		return StreamTypeUnknown
	}
}

func (m MediaType) SinkType() SinkType {
	switch m {
	case MediaAudio:
		return SinkTypeAudio
	case MediaVideo:
		return SinkTypeVideo
	case MediaText:
		return SinkTypeText
	default:
		return SinkTypeLast
	}
}

// MediaTypeOf classifies a stream type in audio, video, text order.
func MediaTypeOf(t StreamType) (MediaType, bool) {
	switch {
	case t&StreamTypeAudio != 0:
		return MediaAudio, true
	case t&(StreamTypeVideo|StreamTypeImage) != 0:
		return MediaVideo, true
	case t&StreamTypeText != 0:
		return MediaText, true
	default:
		return MediaLast, false
	}
}

// SinkType identifies a playsink request pad kind.
type SinkType int

const (
	SinkTypeAudio SinkType = iota
	SinkTypeAudioRaw
	SinkTypeVideo
	SinkTypeVideoRaw
	SinkTypeText
	SinkTypeFlushing
	SinkTypeLast
)

// MediaType returns the media carried by pads of this kind.
func (t SinkType) MediaType() (MediaType, bool) {
	switch t {
	case SinkTypeAudio, SinkTypeAudioRaw:
		return MediaAudio, true
	case SinkTypeVideo, SinkTypeVideoRaw:
		return MediaVideo, true
	case SinkTypeText:
		return MediaText, true
	default:
		return 0, false
	}
}

func (t SinkType) String() string {
	switch t {
	case SinkTypeAudio:
		return "audio"
	case SinkTypeAudioRaw:
		return "audio_raw"
	case SinkTypeVideo:
		return "video"
	case SinkTypeVideoRaw:
		return "video_raw"
	case SinkTypeText:
		return "text"
	case SinkTypeFlushing:
		return "flushing"
	default:
		return "unknown"
	}
}

const (
	MimeTypeRawAudio = "audio/x-raw"
	MimeTypeRawVideo = "video/x-raw"
	MimeTypeRawText  = "text/x-raw"

	// default factories
	FactoryAutoAudioSink      = "autoaudiosink"
	FactoryAutoVideoSink      = "autovideosink"
	FactoryDefaultAudioSink   = "alsasink"
	FactoryDefaultVideoSink   = "xvimagesink"
	FactoryDefaultVis         = "goom"
	FactoryQueue              = "queue"
	FactoryIdentity           = "identity"
	FactoryAudioConvert       = "audioconvert"
	FactoryAudioResample      = "audioresample"
	FactoryVideoConvert       = "videoconvert"
	FactoryVolume             = "volume"
	FactoryDeinterlace        = "deinterlace"
	FactorySubtitleOverlay    = "subtitleoverlay"
	FactoryStreamSynchronizer = "streamsynchronizer"
	FactoryURIDecodeBin       = "uridecodebin"
	FactoryInputSelector      = "input-selector"
	FactoryTee                = "tee"
)
