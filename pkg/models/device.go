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

package models

import (
	"fmt"
	"time"
)

// Liveness is the console-side view of a claimed device's reachability.
type Liveness string

const (
	LivenessUnknown Liveness = "unknown"
	LivenessOnline  Liveness = "online"
	LivenessStale   Liveness = "stale"
	LivenessOffline Liveness = "offline"
)

// Device is a claimed camera device as tracked by the console registry.
type Device struct {
	ID       string        `json:"id"`
	Alias    string        `json:"alias"`
	Host     string        `json:"host"`
	Port     int           `json:"port"`
	Token    string        `json:"token,omitempty"`
	Liveness Liveness      `json:"liveness"`
	Status   *DeviceStatus `json:"status,omitempty"`
	LastSeen time.Time     `json:"last_seen,omitempty"`
	AddedAt  time.Time     `json:"added_at"`
}

// Address returns the host:port pair of the device control server.
func (d *Device) Address() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// CandidateMetadata is the TXT metadata carried by a discovery record.
type CandidateMetadata struct {
	Version  string `json:"version,omitempty"`
	Protocol string `json:"protocol,omitempty"`
}

// DiscoveredCandidate is an unclaimed device seen on the network.
// Candidates are rebuilt from scratch every browse cycle and never
// persisted.
type DiscoveredCandidate struct {
	Alias    string            `json:"alias"`
	Host     string            `json:"host"`
	Port     int               `json:"port"`
	Metadata CandidateMetadata `json:"metadata"`
}
