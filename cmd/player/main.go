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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/livekit/playback/pkg/config"
	"github.com/livekit/playback/pkg/errors"
	"github.com/livekit/playback/pkg/gstreamer/native"
	"github.com/livekit/playback/pkg/player"
	"github.com/livekit/playback/pkg/types"
	"github.com/livekit/protocol/logger"
)

func main() {
	cmd := &cli.Command{
		Name:        "player",
		Usage:       "LiveKit Playback",
		Description: "plays a uri and its playlist gaplessly",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "LiveKit Playback yaml config file",
				Sources: cli.EnvVars("PLAYBACK_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "config-body",
				Usage:   "LiveKit Playback yaml config body",
				Sources: cli.EnvVars("PLAYBACK_CONFIG_BODY"),
			},
			&cli.StringFlag{
				Name:  "uri",
				Usage: "media to play, overrides the config",
			},
			&cli.StringFlag{
				Name:  "suburi",
				Usage: "subtitle uri, overrides the config",
			},
			&cli.StringFlag{
				Name:  "flags",
				Usage: "play flags joined by '+', e.g. audio+video+text",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "reload the config file on change",
			},
		},
		Action: runPlayer,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runPlayer(ctx context.Context, c *cli.Command) error {
	conf, err := getConfig(c)
	if err != nil {
		return err
	}

	backend, err := native.NewBackend()
	if err != nil {
		return err
	}

	p, err := player.New(ctx, conf, backend)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if c.Bool("watch") {
		watcher := config.NewWatcher(c.String("config"), conf)
		watcher.OnReload(p.ApplyConfig)
		if err = watcher.Start(ctx); err != nil {
			logger.Warnw("failed to watch config", err)
		}
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		select {
		case sig := <-stopChan:
			logger.Infow("exit requested, stopping playback", "signal", sig)
			p.Stop()
		case <-ctx.Done():
		}
	}()

	return p.Play(ctx)
}

func getConfig(c *cli.Command) (*config.PlaybackConfig, error) {
	configFile := c.String("config")
	configBody := c.String("config-body")
	if configBody == "" && configFile != "" {
		content, err := os.ReadFile(configFile)
		if err != nil {
			return nil, err
		}
		configBody = string(content)
	}
	if configBody == "" && c.String("uri") == "" {
		return nil, errors.ErrNoConfig
	}

	conf, err := config.NewPlaybackConfig(configBody)
	if err != nil {
		return nil, err
	}

	if uri := c.String("uri"); uri != "" {
		conf.URI = uri
	}
	if suburi := c.String("suburi"); suburi != "" {
		conf.SubURI = suburi
	}
	if s := c.String("flags"); s != "" {
		flags, err := types.ParseFlags(s)
		if err != nil {
			return nil, errors.ErrInvalidConfig("flags", s)
		}
		conf.PlayFlags = flags
	}
	return conf, nil
}
