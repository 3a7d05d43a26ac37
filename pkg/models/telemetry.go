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

// NDIState is the transmission state of the device's video source.
type NDIState string

const (
	NDIStateIdle       NDIState = "idle"
	NDIStateConnecting NDIState = "connecting"
	NDIStateStreaming  NDIState = "streaming"
	NDIStateError      NDIState = "error"
)

// ChargingState reports the device battery charger status.
type ChargingState string

const (
	ChargingStateDischarging ChargingState = "discharging"
	ChargingStateCharging    ChargingState = "charging"
	ChargingStateFull        ChargingState = "full"
)

// TelemetryFrame is the periodic device health snapshot pushed over the
// WebSocket at a fixed cadence and embedded in status responses.
type TelemetryFrame struct {
	FPS           float64       `json:"fps"`
	BitrateKbps   int           `json:"bitrate"`
	QueueMs       float64       `json:"queue_ms"`
	Battery       float64       `json:"battery"`
	TempC         float64       `json:"temp_c"`
	WifiRSSI      int           `json:"wifi_rssi"`
	NDIState      NDIState      `json:"ndi_state"`
	DroppedFrames int64         `json:"dropped_frames"`
	ChargingState ChargingState `json:"charging_state"`
}

// PipelineStatus is the collaborator-reported slice of a device status.
type PipelineStatus struct {
	NDIState  NDIState        `json:"ndi_state"`
	Current   CurrentSettings `json:"current"`
	Telemetry TelemetryFrame  `json:"telemetry"`
}

// DeviceStatus is the full status document returned by GET /api/v1/status.
type DeviceStatus struct {
	Alias        string           `json:"alias"`
	NDIState     NDIState         `json:"ndi_state"`
	Current      CurrentSettings  `json:"current"`
	Telemetry    TelemetryFrame   `json:"telemetry"`
	Capabilities []CapabilityMode `json:"capabilities"`
}
