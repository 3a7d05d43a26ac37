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

// CommandOp tags a fleet command with the device operation it performs.
type CommandOp string

const (
	OpStartStream          CommandOp = "start-stream"
	OpStopStream           CommandOp = "stop-stream"
	OpUpdateCameraSettings CommandOp = "update-camera-settings"
	OpUpdateVideoSettings  CommandOp = "update-video-settings"
	OpForceKeyframe        CommandOp = "force-keyframe"
	OpApplyProfile         CommandOp = "apply-profile"
	OpSetScreenBrightness  CommandOp = "set-screen-brightness"
)

// CommandPayload carries the operation-specific body of a command.
// Only the field matching the operation is consulted.
type CommandPayload struct {
	Stream  *StreamSettings `json:"stream,omitempty"`
	Camera  *CameraSettings `json:"camera,omitempty"`
	Video   *VideoSettings  `json:"video,omitempty"`
	Dimmed  *bool           `json:"dimmed,omitempty"`
	Profile string          `json:"profile,omitempty"`
}

// Command is a logical fleet command aimed at one or many devices.
type Command struct {
	Op      CommandOp      `json:"op"`
	Payload CommandPayload `json:"payload"`
	Targets []string       `json:"targets"`
}

// GroupOperationResult is the per-device outcome of a group command.
type GroupOperationResult struct {
	DeviceID string `json:"device_id"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// GroupResults holds one entry per requested device id. The dispatcher
// guarantees length equals the requested target count and that each id
// appears exactly once.
type GroupResults []GroupOperationResult

// Succeeded counts the successful entries.
func (r GroupResults) Succeeded() int {
	n := 0

	for i := range r {
		if r[i].Success {
			n++
		}
	}

	return n
}

// ForDevice returns the entry for the given device id, if present.
func (r GroupResults) ForDevice(id string) (GroupOperationResult, bool) {
	for i := range r {
		if r[i].DeviceID == id {
			return r[i], true
		}
	}

	return GroupOperationResult{}, false
}

// WSEnvelope is a client-to-server WebSocket command. The only
// supported op is "set", which applies embedded camera settings through
// the same path as POST /api/v1/camera.
type WSEnvelope struct {
	Op     string          `json:"op"`
	Camera *CameraSettings `json:"camera,omitempty"`
}

// WSOpSet is the camera-settings mutation op on the WebSocket channel.
const WSOpSet = "set"
