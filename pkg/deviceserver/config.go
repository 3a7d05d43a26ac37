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

package deviceserver

import (
	"fmt"
	"time"

	"github.com/carverauto/fleetcam/pkg/logger"
	"github.com/carverauto/fleetcam/pkg/models"
)

var (
	errAliasRequired = fmt.Errorf("device alias is required")
	errTokenRequired = fmt.Errorf("auth_token is required when auth is enabled")
)

const (
	defaultListenAddr        = ":8080"
	defaultRateMinInterval   = 50 * time.Millisecond
	defaultTelemetryInterval = time.Second
)

// Config represents device control server configuration.
type Config struct {
	ListenAddr        string          `json:"listen_addr"`
	Alias             string          `json:"alias"`
	AuthEnabled       bool            `json:"auth_enabled"`
	AuthToken         string          `json:"auth_token,omitempty"`
	RateMinInterval   models.Duration `json:"rate_min_interval,omitempty"`
	TelemetryInterval models.Duration `json:"telemetry_interval,omitempty"`
	AllowedOrigins    []string        `json:"allowed_origins,omitempty"`
	Advertise         bool            `json:"advertise"`
	Logging           *logger.Config  `json:"logging,omitempty"`
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if c.Alias == "" {
		return errAliasRequired
	}

	if c.AuthEnabled && c.AuthToken == "" {
		return errTokenRequired
	}

	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}

	if time.Duration(c.RateMinInterval) == 0 {
		c.RateMinInterval = models.Duration(defaultRateMinInterval)
	}

	if time.Duration(c.TelemetryInterval) == 0 {
		c.TelemetryInterval = models.Duration(defaultTelemetryInterval)
	}

	return nil
}
