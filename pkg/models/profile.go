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

import "time"

// Profile is a named settings bundle applied to devices as a group
// command. Profiles are keyed by name; saving an existing name
// overwrites the bundle.
type Profile struct {
	Name      string         `json:"name"`
	Stream    StreamSettings `json:"stream"`
	Camera    CameraSettings `json:"camera"`
	Video     *VideoSettings `json:"video,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}
