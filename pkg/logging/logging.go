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
	"go.uber.org/zap"

	"github.com/livekit/playback/pkg/gstreamer"
	"github.com/livekit/protocol/logger"
)

// DowngradeLogger logs errors as warnings.
type DowngradeLogger struct {
	logger.Logger
}

func NewDowngradeLogger(l logger.Logger) *DowngradeLogger {
	if l == nil {
		l = logger.GetLogger()
	}
	return &DowngradeLogger{
		Logger: l,
	}
}

func (l *DowngradeLogger) Errorw(msg string, err error, keysAndValues ...interface{}) {
	l.Logger.Warnw(msg, err, keysAndValues...)
}

// MessageLogger writes bus messages to the event log.
type MessageLogger struct {
	logger *zap.SugaredLogger
}

func NewMessageLogger(l *zap.SugaredLogger) *MessageLogger {
	if l == nil {
		l = zap.NewNop().Sugar()
	}
	return &MessageLogger{
		logger: l,
	}
}

func (l *MessageLogger) Log(msg *gstreamer.Message) {
	switch msg.Type {
	case gstreamer.MessageError:
		l.logger.Errorw(msg.String(), "error", msg.Err, "debug", msg.Debug)
	case gstreamer.MessageWarning:
		l.logger.Warnw(msg.String(), "error", msg.Err, "debug", msg.Debug)
	case gstreamer.MessageBuffering:
		l.logger.Debugw(msg.String(), "percent", msg.Percent)
	case gstreamer.MessageStateChanged:
		l.logger.Debugw(msg.String(), "old", msg.OldState, "new", msg.NewState)
	case gstreamer.MessageStreamStart:
		l.logger.Infow(msg.String(), "groupID", msg.GroupID, "hasGroupID", msg.HasGroupID)
	case gstreamer.MessageStreamCollection:
		l.logger.Infow(msg.String(), "streams", msg.Collection.IDs())
	default:
		l.logger.Debugw(msg.String())
	}
}

func (l *MessageLogger) Sync() {
	_ = l.logger.Sync()
}
