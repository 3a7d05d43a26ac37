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

// Package models defines the shared wire schema for the fleet control
// protocol: settings bundles, telemetry frames, commands, and the
// error-code vocabulary used by both the device servers and the console.
package models

// StreamSettings describes the encoder configuration for an outgoing stream.
type StreamSettings struct {
	Resolution  string `json:"resolution"`
	Framerate   int    `json:"framerate"`
	BitrateKbps int    `json:"bitrate"`
	Codec       string `json:"codec"`
}

// CameraSettings carries optional camera adjustments. Nil fields are
// left untouched by the device, so a caller can adjust white balance
// without resetting zoom.
type CameraSettings struct {
	WBMode         *string  `json:"wb_mode,omitempty"`
	WBKelvin       *int     `json:"wb_kelvin,omitempty"`
	ISO            *int     `json:"iso,omitempty"`
	ShutterSeconds *float64 `json:"shutter_s,omitempty"`
	FocusMode      *string  `json:"focus_mode,omitempty"`
	ZoomFactor     *float64 `json:"zoom_factor,omitempty"`
	Lens           *string  `json:"lens,omitempty"`
	CameraPosition *string  `json:"camera_position,omitempty"`
}

// Empty reports whether no field is set.
func (s *CameraSettings) Empty() bool {
	return s.WBMode == nil && s.WBKelvin == nil && s.ISO == nil &&
		s.ShutterSeconds == nil && s.FocusMode == nil && s.ZoomFactor == nil &&
		s.Lens == nil && s.CameraPosition == nil
}

// VideoSettings configures the transmission side of the pipeline.
type VideoSettings struct {
	SourceName       string   `json:"source_name"`
	GroupName        string   `json:"group_name,omitempty"`
	LowBandwidthMode bool     `json:"low_bandwidth_mode"`
	IdleTimeout      Duration `json:"idle_timeout,omitempty"`
}

// CapabilityMode is one advertised capture mode of a device.
type CapabilityMode struct {
	Resolution string   `json:"resolution"`
	FPS        []int    `json:"fps"`
	Codec      []string `json:"codec"`
}

// CurrentSettings is the flattened stream+camera state reported by
// GET /api/v1/status.
type CurrentSettings struct {
	Resolution     string  `json:"resolution"`
	FPS            int     `json:"fps"`
	BitrateKbps    int     `json:"bitrate"`
	Codec          string  `json:"codec"`
	WBMode         string  `json:"wb_mode"`
	WBKelvin       int     `json:"wb_kelvin"`
	ISO            int     `json:"iso"`
	ShutterSeconds float64 `json:"shutter_s"`
	FocusMode      string  `json:"focus_mode"`
	ZoomFactor     float64 `json:"zoom_factor"`
	Lens           string  `json:"lens"`
	CameraPosition string  `json:"camera_position"`
}
