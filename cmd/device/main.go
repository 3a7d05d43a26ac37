/*
 * Copyright 2026 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"strconv"

	"github.com/carverauto/fleetcam/pkg/config"
	"github.com/carverauto/fleetcam/pkg/deviceserver"
	"github.com/carverauto/fleetcam/pkg/discovery"
	"github.com/carverauto/fleetcam/pkg/lifecycle"
	"github.com/carverauto/fleetcam/pkg/logger"
	"github.com/carverauto/fleetcam/pkg/pipeline"
	"github.com/carverauto/fleetcam/pkg/version"
)

var errFailedToLoadConfig = fmt.Errorf("failed to load config")

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/fleetcam/device.json", "Path to device config file")
	flag.Parse()

	ctx := context.Background()

	cfgLoader := config.NewConfig(nil)

	var cfg deviceserver.Config

	if err := cfgLoader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	logConfig := cfg.Logging
	if logConfig == nil {
		logConfig = &logger.Config{
			Level:  "info",
			Output: "stdout",
		}
	}

	deviceLogger, err := lifecycle.CreateComponentLogger(ctx, "device", logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	deviceLogger.Info().
		Str("version", version.GetFullVersion()).
		Str("alias", cfg.Alias).
		Msg("Starting fleetcam device")

	pipe := pipeline.NewSim(deviceLogger)
	server := deviceserver.New(&cfg, pipe, deviceLogger)

	services := []lifecycle.Service{server}

	if cfg.Advertise {
		port, err := listenPort(cfg.ListenAddr)
		if err != nil {
			return err
		}

		services = append(services, discovery.NewAdvertiser(discovery.AdvertiserConfig{
			Alias:   cfg.Alias,
			Port:    port,
			Version: version.GetVersion(),
		}, deviceLogger))
	}

	return lifecycle.Run(ctx, &lifecycle.Options{
		ServiceName: "fleetcam-device",
		Services:    services,
		Logger:      deviceLogger,
	})
}

func listenPort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("invalid listen_addr %q: %w", addr, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid listen port %q: %w", portStr, err)
	}

	return port, nil
}
