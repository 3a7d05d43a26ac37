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
	"context"
	"sync"

	"github.com/carverauto/fleetcam/pkg/models"
)

// fakePipeline records every call so handlers can be asserted against.
type fakePipeline struct {
	mu sync.Mutex

	startCalls    []models.StreamSettings
	stopCalls     int
	keyframeCalls int
	cameraCalls   []models.CameraSettings
	videoCalls    []models.VideoSettings
	dimCalls      []bool

	status    models.PipelineStatus
	caps      []models.CapabilityMode
	telemetry models.TelemetryFrame
	video     models.VideoSettings

	startErr    error
	stopErr     error
	keyframeErr error
	cameraErr   error
	videoErr    error
	statusErr   error
	capsErr     error
	telErr      error
	dimErr      error
}

func (f *fakePipeline) Start(_ context.Context, settings models.StreamSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.startErr != nil {
		return f.startErr
	}

	f.startCalls = append(f.startCalls, settings)

	return nil
}

func (f *fakePipeline) Stop(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopErr != nil {
		return f.stopErr
	}

	f.stopCalls++

	return nil
}

func (f *fakePipeline) ForceKeyframe(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.keyframeErr != nil {
		return f.keyframeErr
	}

	f.keyframeCalls++

	return nil
}

func (f *fakePipeline) Telemetry(_ context.Context) (models.TelemetryFrame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.telemetry, f.telErr
}

func (f *fakePipeline) Status(_ context.Context) (models.PipelineStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.status, f.statusErr
}

func (f *fakePipeline) Capabilities(_ context.Context) ([]models.CapabilityMode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.caps, f.capsErr
}

func (f *fakePipeline) UpdateCameraSettings(_ context.Context, settings models.CameraSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cameraErr != nil {
		return f.cameraErr
	}

	f.cameraCalls = append(f.cameraCalls, settings)

	return nil
}

func (f *fakePipeline) VideoSettings(_ context.Context) (models.VideoSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.video, f.videoErr
}

func (f *fakePipeline) UpdateVideoSettings(_ context.Context, settings models.VideoSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.videoErr != nil {
		return f.videoErr
	}

	f.videoCalls = append(f.videoCalls, settings)

	return nil
}

func (f *fakePipeline) SetScreenDimmed(_ context.Context, dimmed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.dimErr != nil {
		return f.dimErr
	}

	f.dimCalls = append(f.dimCalls, dimmed)

	return nil
}

func (f *fakePipeline) cameraCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.cameraCalls)
}

func (f *fakePipeline) lastCameraCall() models.CameraSettings {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.cameraCalls[len(f.cameraCalls)-1]
}
