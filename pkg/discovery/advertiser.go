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

// Package discovery advertises device control servers over mDNS and
// browses for them from the console. Candidates are ephemeral: the
// browser rebuilds its view every cycle and nothing here is persisted.
package discovery

import (
	"context"
	"fmt"

	"github.com/grandcat/zeroconf"

	"github.com/carverauto/fleetcam/pkg/logger"
)

const (
	// ServiceType is the mDNS service devices register under.
	ServiceType = "_fleetcam-ctrl._tcp"

	// ServiceDomain is the mDNS domain for local discovery.
	ServiceDomain = "local."

	// ProtocolVersion is advertised in TXT so consoles can skip
	// incompatible devices.
	ProtocolVersion = "1"
)

// AdvertiserConfig describes one device's mDNS record.
type AdvertiserConfig struct {
	Alias   string
	Port    int
	Version string
}

// Advertiser registers the device's control server in mDNS for the
// lifetime of the process. It implements lifecycle.Service.
type Advertiser struct {
	config AdvertiserConfig
	log    logger.Logger

	server *zeroconf.Server
	stopCh chan struct{}
}

// NewAdvertiser creates an advertiser for the given record.
func NewAdvertiser(config AdvertiserConfig, log logger.Logger) *Advertiser {
	return &Advertiser{
		config: config,
		log:    log,
		stopCh: make(chan struct{}),
	}
}

// Start registers the record and blocks until Stop or ctx cancellation.
func (a *Advertiser) Start(ctx context.Context) error {
	server, err := zeroconf.Register(
		a.config.Alias,
		ServiceType,
		ServiceDomain,
		a.config.Port,
		advertiseTXT(a.config),
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register mDNS record: %w", err)
	}

	a.server = server

	a.log.Info().
		Str("alias", a.config.Alias).
		Int("port", a.config.Port).
		Str("service", ServiceType).
		Msg("Advertising device on mDNS")

	select {
	case <-ctx.Done():
	case <-a.stopCh:
	}

	return nil
}

// Stop deregisters the record.
func (a *Advertiser) Stop(_ context.Context) error {
	close(a.stopCh)

	if a.server != nil {
		a.server.Shutdown()
	}

	a.log.Info().Str("alias", a.config.Alias).Msg("Stopped mDNS advertisement")

	return nil
}

func advertiseTXT(config AdvertiserConfig) []string {
	return []string{
		"alias=" + config.Alias,
		"version=" + config.Version,
		"protocol=" + ProtocolVersion,
	}
}
