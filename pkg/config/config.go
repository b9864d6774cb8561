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

package config

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/livekit/playback/pkg/errors"
	"github.com/livekit/playback/pkg/gstreamer"
	"github.com/livekit/playback/pkg/types"
	"github.com/livekit/protocol/logger"
	"github.com/livekit/protocol/utils"
)

const (
	defaultVolume = 1.0
	maxVolume     = 10.0

	defaultProfilePathPrefix = "/tmp/playback"
)

type PlaybackConfig struct {
	PlayerID string `yaml:"-"` // do not supply - will be overwritten

	// logging
	Logging     *logger.Config `yaml:"logging"`                // logging config
	LoggingFile *FileLogConfig `yaml:"logging_file,omitempty"` // rotating event log for bus messages

	// media
	Flags    []string `yaml:"flags"`    // play flags, e.g. [audio, video, text, soft-volume]
	URI      string   `yaml:"uri"`      // media to play
	SubURI   string   `yaml:"suburi"`   // optional subtitle uri
	Playlist []string `yaml:"playlist"` // uris played gaplessly after uri

	// output
	AudioSink   string `yaml:"audio_sink"`   // audio sink factory, auto-detected when empty
	VideoSink   string `yaml:"video_sink"`   // video sink factory, auto-detected when empty
	TextSink    string `yaml:"text_sink"`    // text sink factory, rendered by subtitleoverlay when empty
	VisPlugin   string `yaml:"vis_plugin"`   // visualization factory, goom when empty
	AudioFilter string `yaml:"audio_filter"` // optional audio filter factory inserted before the sink
	VideoFilter string `yaml:"video_filter"` // optional video filter factory inserted before the sink

	AudioStreamCombiner string `yaml:"audio_stream_combiner"` // combiner factory for audio streams, e.g. audiomixer
	VideoStreamCombiner string `yaml:"video_stream_combiner"` // combiner factory for video streams
	TextStreamCombiner  string `yaml:"text_stream_combiner"`  // combiner factory for text streams

	Volume           float64       `yaml:"volume"`             // linear volume, 0.0 to 10.0
	Mute             bool          `yaml:"mute"`               // mute audio
	AVOffset         time.Duration `yaml:"av_offset"`          // positive values delay video
	TextOffset       time.Duration `yaml:"text_offset"`        // subtitle offset
	SubtitleEncoding string        `yaml:"subtitle_encoding"`  // subtitle character encoding
	SubtitleFontDesc string        `yaml:"subtitle_font_desc"` // pango font description for subtitles

	// source
	ConnectionSpeed   uint64        `yaml:"connection_speed"`     // network connection speed in kbps, 0 is unknown
	BufferSize        int           `yaml:"buffer_size"`          // buffer size in bytes, -1 for default
	BufferDuration    time.Duration `yaml:"buffer_duration"`      // buffer duration, -1 for default
	RingBufferMaxSize uint64        `yaml:"ring_buffer_max_size"` // max ring buffer size in bytes for download buffering

	CurrentAudio int `yaml:"current_audio"` // audio stream index, -1 for automatic
	CurrentVideo int `yaml:"current_video"` // video stream index, -1 for automatic
	CurrentText  int `yaml:"current_text"`  // text stream index, -1 for automatic

	// advanced
	Factories      []*gstreamer.Factory `yaml:"factories"`       // extra ranked factories for sink and decoder selection
	PrometheusPort int                  `yaml:"prometheus_port"` // prometheus handler port
	Debug          DebugConfig          `yaml:"debug"`           // create dot file on internal error

	PlayFlags types.PlayFlags `yaml:"-"`
}

type FileLogConfig struct {
	Filename   string `yaml:"filename"`    // log file path
	MaxSize    int    `yaml:"max_size"`    // megabytes before rotation
	MaxBackups int    `yaml:"max_backups"` // rotated files to keep
	MaxAge     int    `yaml:"max_age"`     // days to keep rotated files
	Compress   bool   `yaml:"compress"`    // gzip rotated files
}

type DebugConfig struct {
	EnableProfiling bool   `yaml:"enable_profiling"` // create dot file and pprof on internal error
	PathPrefix      string `yaml:"path_prefix"`      // directory for debug dumps
}

func NewPlaybackConfig(confString string) (*PlaybackConfig, error) {
	conf, err := parsePlaybackConfig(confString)
	if err != nil {
		return nil, err
	}

	// always create a new player ID
	conf.PlayerID = utils.NewGuid("PL_")

	if err = conf.initLogger("playerID", conf.PlayerID); err != nil {
		return nil, err
	}

	return conf, nil
}

func parsePlaybackConfig(confString string) (*PlaybackConfig, error) {
	conf := &PlaybackConfig{
		Logging: &logger.Config{
			Level: "info",
		},
		Volume:         defaultVolume,
		BufferSize:     -1,
		BufferDuration: -1,
		CurrentAudio:   -1,
		CurrentVideo:   -1,
		CurrentText:    -1,
	}
	if confString != "" {
		if err := yaml.Unmarshal([]byte(confString), conf); err != nil {
			return nil, errors.ErrCouldNotParseConfig(err)
		}
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *PlaybackConfig) validate() error {
	if c.Volume < 0 || c.Volume > maxVolume {
		return errors.ErrInvalidConfig("volume", c.Volume)
	}
	if c.CurrentAudio < -1 {
		return errors.ErrInvalidConfig("current_audio", c.CurrentAudio)
	}
	if c.CurrentVideo < -1 {
		return errors.ErrInvalidConfig("current_video", c.CurrentVideo)
	}
	if c.CurrentText < -1 {
		return errors.ErrInvalidConfig("current_text", c.CurrentText)
	}

	if len(c.Flags) == 0 {
		c.PlayFlags = types.DefaultFlags
	} else {
		flags, err := types.ParseFlagList(c.Flags)
		if err != nil {
			return errors.ErrInvalidConfig("flags", c.Flags)
		}
		c.PlayFlags = flags
	}

	for _, f := range c.Factories {
		if f.Name == "" {
			return errors.ErrInvalidConfig("factories", "missing name")
		}
	}

	if c.Debug.EnableProfiling && c.Debug.PathPrefix == "" {
		c.Debug.PathPrefix = defaultProfilePathPrefix
	}
	return nil
}

// URIs returns the uri followed by the playlist.
func (c *PlaybackConfig) URIs() []string {
	uris := make([]string, 0, len(c.Playlist)+1)
	if c.URI != "" {
		uris = append(uris, c.URI)
	}
	return append(uris, c.Playlist...)
}
