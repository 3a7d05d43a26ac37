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

// Package pipeline defines the boundary to the capture/encode/transmit
// collaborator. The device control server depends only on the
// VideoPipeline interface; the concrete capture stack lives behind it.
package pipeline

import (
	"context"
	"errors"

	"github.com/carverauto/fleetcam/pkg/models"
)

var (
	// ErrInvalidSettings reports settings the device cannot apply
	// (unknown resolution, out-of-range values).
	ErrInvalidSettings = errors.New("invalid settings")

	// ErrNotStreaming reports an operation that requires an active stream.
	ErrNotStreaming = errors.New("not streaming")
)

// VideoPipeline is the fixed operation set of the capture/encode
// collaborator. All calls take a context; implementations may block on
// hardware and must honor cancellation.
type VideoPipeline interface {
	Start(ctx context.Context, settings models.StreamSettings) error
	Stop(ctx context.Context) error
	ForceKeyframe(ctx context.Context) error
	Telemetry(ctx context.Context) (models.TelemetryFrame, error)
	Status(ctx context.Context) (models.PipelineStatus, error)
	Capabilities(ctx context.Context) ([]models.CapabilityMode, error)
	UpdateCameraSettings(ctx context.Context, settings models.CameraSettings) error
	VideoSettings(ctx context.Context) (models.VideoSettings, error)
	UpdateVideoSettings(ctx context.Context, settings models.VideoSettings) error
	SetScreenDimmed(ctx context.Context, dimmed bool) error
}
