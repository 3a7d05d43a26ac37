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
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/carverauto/fleetcam/pkg/config"
	"github.com/carverauto/fleetcam/pkg/consoleapi"
	"github.com/carverauto/fleetcam/pkg/discovery"
	"github.com/carverauto/fleetcam/pkg/lifecycle"
	"github.com/carverauto/fleetcam/pkg/logger"
	"github.com/carverauto/fleetcam/pkg/models"
	"github.com/carverauto/fleetcam/pkg/orchestrator"
	"github.com/carverauto/fleetcam/pkg/profiles"
	"github.com/carverauto/fleetcam/pkg/registry"
	"github.com/carverauto/fleetcam/pkg/version"
)

var (
	errFailedToLoadConfig = fmt.Errorf("failed to load config")
	errRegistryFile       = fmt.Errorf("registry_file is required")
	errProfilesFile       = fmt.Errorf("profiles_file is required")
)

const defaultAPIListenAddr = ":8090"

// StaticDevice is a device claimed from configuration at startup
// instead of through discovery.
type StaticDevice struct {
	Alias string `json:"alias"`
	Host  string `json:"host"`
	Port  int    `json:"port"`
	Token string `json:"token,omitempty"`
}

// Config is the console configuration.
type Config struct {
	RegistryFile     string          `json:"registry_file"`
	ProfilesFile     string          `json:"profiles_file"`
	APIListenAddr    string          `json:"api_listen_addr,omitempty"`
	RefreshInterval  models.Duration `json:"refresh_interval,omitempty"`
	OfflineThreshold int             `json:"offline_threshold,omitempty"`
	BrowseInterval   models.Duration `json:"browse_interval,omitempty"`
	DebounceWindow   models.Duration `json:"debounce_window,omitempty"`
	CommandTimeout   models.Duration `json:"command_timeout,omitempty"`
	Devices          []StaticDevice  `json:"devices,omitempty"`
	Logging          *logger.Config  `json:"logging,omitempty"`
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if c.RegistryFile == "" {
		return errRegistryFile
	}

	if c.ProfilesFile == "" {
		return errProfilesFile
	}

	if c.APIListenAddr == "" {
		c.APIListenAddr = defaultAPIListenAddr
	}

	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/fleetcam/console.json", "Path to console config file")
	flag.Parse()

	ctx := context.Background()

	cfgLoader := config.NewConfig(nil)

	var cfg Config

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

	consoleLogger, err := lifecycle.CreateComponentLogger(ctx, "console", logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	consoleLogger.Info().
		Str("version", version.GetFullVersion()).
		Msg("Starting fleetcam console")

	registryOpts := []registry.Option{
		registry.WithStore(registry.NewStore(cfg.RegistryFile)),
	}

	if interval := time.Duration(cfg.RefreshInterval); interval > 0 {
		registryOpts = append(registryOpts, registry.WithRefreshInterval(interval))
	}

	if cfg.OfflineThreshold > 0 {
		registryOpts = append(registryOpts, registry.WithOfflineThreshold(cfg.OfflineThreshold))
	}

	reg, err := registry.New(consoleLogger, registryOpts...)
	if err != nil {
		return err
	}

	claimStaticDevices(reg, cfg.Devices, consoleLogger)

	orchestratorOpts := []orchestrator.Option{}

	if window := time.Duration(cfg.DebounceWindow); window > 0 {
		orchestratorOpts = append(orchestratorOpts, orchestrator.WithDebounceWindow(window))
	}

	if timeout := time.Duration(cfg.CommandTimeout); timeout > 0 {
		orchestratorOpts = append(orchestratorOpts, orchestrator.WithCallTimeout(timeout))
	}

	fleet := orchestrator.New(reg, consoleLogger, orchestratorOpts...)
	defer fleet.Close()

	profileStore, err := profiles.NewStore(cfg.ProfilesFile, fleet, consoleLogger)
	if err != nil {
		return err
	}

	browserOpts := []discovery.BrowserOption{}

	if interval := time.Duration(cfg.BrowseInterval); interval > 0 {
		browserOpts = append(browserOpts, discovery.WithBrowseInterval(interval))
	}

	browser := discovery.NewBrowser(consoleLogger, browserOpts...)

	api := consoleapi.New(consoleapi.Config{ListenAddr: cfg.APIListenAddr},
		reg, fleet, profileStore, browser, consoleLogger)

	return lifecycle.Run(ctx, &lifecycle.Options{
		ServiceName: "fleetcam-console",
		Services:    []lifecycle.Service{reg, browser, api},
		Logger:      consoleLogger,
	})
}

// claimStaticDevices claims configured devices that are not yet in the
// registry. Aliases that are already claimed, for example from the
// persisted registry file, are skipped.
func claimStaticDevices(reg *registry.Registry, devices []StaticDevice, log logger.Logger) {
	for _, device := range devices {
		_, err := reg.Claim(registry.ClaimRequest{
			Alias: device.Alias,
			Host:  device.Host,
			Port:  device.Port,
			Token: device.Token,
		})
		if err != nil {
			if errors.Is(err, registry.ErrAliasClaimed) {
				continue
			}

			log.Warn().Err(err).Str("alias", device.Alias).Msg("Failed to claim configured device")
		}
	}
}
