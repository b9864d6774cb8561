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
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/livekit/protocol/logger"
)

func (c *PlaybackConfig) initLogger(values ...interface{}) error {
	_, exists := os.LookupEnv("GST_DEBUG")

	// If GST_DEBUG is not set, use pre-defined values based on logging level
	if !exists {
		var gstDebug []string
		switch c.Logging.Level {
		case "debug":
			gstDebug = []string{"3"}
		case "info", "warn":
			gstDebug = []string{"2"}
		case "error":
			gstDebug = []string{"1"}
		}
		gstDebug = append(gstDebug,
			"playbin:3",
			"playsink:3",
		)

		if err := os.Setenv("GST_DEBUG", strings.Join(gstDebug, ",")); err != nil {
			return err
		}
	}

	zl, err := logger.NewZapLogger(c.Logging)
	if err != nil {
		return err
	}

	l := zl.WithValues(values...)

	logger.SetLogger(l, "playback")
	return nil
}

// NewEventLogger returns a logger for bus messages. It writes to a rotating
// file when logging_file is set, and to the process logger otherwise.
func (c *PlaybackConfig) NewEventLogger() *zap.SugaredLogger {
	if c.LoggingFile == nil || c.LoggingFile.Filename == "" {
		if zl, ok := logger.GetLogger().(logger.ZapLogger); ok {
			return zl.ToZap().WithOptions(zap.WithCaller(false))
		}
		return zap.NewNop().Sugar()
	}

	level := zapcore.InfoLevel
	if c.Logging != nil && c.Logging.Level != "" {
		if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
			level = zapcore.InfoLevel
		}
	}

	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   c.LoggingFile.Filename,
		MaxSize:    c.LoggingFile.MaxSize,
		MaxBackups: c.LoggingFile.MaxBackups,
		MaxAge:     c.LoggingFile.MaxAge,
		Compress:   c.LoggingFile.Compress,
	})
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), w, level)
	return zap.New(core).Sugar().With("playerID", c.PlayerID)
}
