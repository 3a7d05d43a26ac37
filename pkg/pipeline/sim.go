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

package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/carverauto/fleetcam/pkg/logger"
	"github.com/carverauto/fleetcam/pkg/models"
)

const (
	defaultSourceName   = "FleetCam"
	highLoadPercent     = 90.0
	batteryDrainPerHr   = 22.0
	defaultConnectDelay = 150 * time.Millisecond
)

// SimPipeline is a software stand-in for a camera device's capture
// stack. It keeps the full settings state machine of a real device and
// synthesizes telemetry from host metrics, so bench fleets report
// plausible, moving numbers.
type SimPipeline struct {
	mu            sync.Mutex
	state         models.NDIState
	stream        models.StreamSettings
	current       models.CurrentSettings
	video         models.VideoSettings
	dimmed        bool
	droppedFrames int64
	bootedAt      time.Time

	// connectDelay is how long a started stream sits in the connecting
	// state before going live; connectGen invalidates stale transitions
	// after a stop or restart.
	connectDelay time.Duration
	connectGen   uint64

	// Samplers are injectable so tests run without host metrics.
	cpuPercent func(ctx context.Context) (float64, error)
	memPercent func(ctx context.Context) (float64, error)
	uptime     func(ctx context.Context) (time.Duration, error)

	log logger.Logger
}

// NewSim creates a simulated pipeline with host-metric samplers.
func NewSim(log logger.Logger) *SimPipeline {
	return &SimPipeline{
		state: models.NDIStateIdle,
		current: models.CurrentSettings{
			WBMode:         "auto",
			WBKelvin:       5600,
			ISO:            100,
			ShutterSeconds: 1.0 / 60.0,
			FocusMode:      "auto",
			ZoomFactor:     1.0,
			Lens:           "wide",
			CameraPosition: "back",
		},
		video:        models.VideoSettings{SourceName: defaultSourceName},
		bootedAt:     time.Now(),
		connectDelay: defaultConnectDelay,
		cpuPercent:   sampleCPUPercent,
		memPercent:   sampleMemPercent,
		uptime:       sampleUptime,
		log:          log,
	}
}

func sampleCPUPercent(ctx context.Context) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}

	if len(percents) == 0 {
		return 0, nil
	}

	return percents[0], nil
}

func sampleMemPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}

	return vm.UsedPercent, nil
}

func sampleUptime(ctx context.Context) (time.Duration, error) {
	secs, err := host.UptimeWithContext(ctx)
	if err != nil {
		return 0, err
	}

	return time.Duration(secs) * time.Second, nil
}

// simCapabilities is the fixed mode table the simulator advertises.
var simCapabilities = []models.CapabilityMode{
	{Resolution: "1280x720", FPS: []int{30, 60}, Codec: []string{"h264"}},
	{Resolution: "1920x1080", FPS: []int{24, 25, 30, 50, 60}, Codec: []string{"h264", "hevc"}},
	{Resolution: "3840x2160", FPS: []int{24, 25, 30}, Codec: []string{"hevc"}},
}

func validateStreamSettings(s models.StreamSettings) error {
	for _, mode := range simCapabilities {
		if mode.Resolution != s.Resolution {
			continue
		}

		fpsOK := false

		for _, fps := range mode.FPS {
			if fps == s.Framerate {
				fpsOK = true
				break
			}
		}

		if !fpsOK {
			return fmt.Errorf("%w: %d fps unsupported at %s", ErrInvalidSettings, s.Framerate, s.Resolution)
		}

		for _, codec := range mode.Codec {
			if codec == s.Codec {
				return nil
			}
		}

		return fmt.Errorf("%w: codec %q unsupported at %s", ErrInvalidSettings, s.Codec, s.Resolution)
	}

	return fmt.Errorf("%w: unknown resolution %q", ErrInvalidSettings, s.Resolution)
}

// Start begins (or restarts) streaming with the given settings.
func (p *SimPipeline) Start(_ context.Context, settings models.StreamSettings) error {
	if err := validateStreamSettings(settings); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.stream = settings
	p.current.Resolution = settings.Resolution
	p.current.FPS = settings.Framerate
	p.current.BitrateKbps = settings.BitrateKbps
	p.current.Codec = settings.Codec
	p.connectGen++

	if p.connectDelay <= 0 {
		p.state = models.NDIStateStreaming
	} else {
		p.state = models.NDIStateConnecting
		gen := p.connectGen

		time.AfterFunc(p.connectDelay, func() { p.goLive(gen) })
	}

	p.log.Info().
		Str("resolution", settings.Resolution).
		Int("framerate", settings.Framerate).
		Str("codec", settings.Codec).
		Msg("Stream started")

	return nil
}

// goLive completes the connecting phase, unless the stream was stopped
// or restarted in the meantime.
func (p *SimPipeline) goLive(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connectGen != gen || p.state != models.NDIStateConnecting {
		return
	}

	p.state = models.NDIStateStreaming
	p.log.Debug().Msg("Stream connected")
}

func (p *SimPipeline) Stop(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.connectGen++
	p.state = models.NDIStateIdle
	p.log.Info().Msg("Stream stopped")

	return nil
}

func (p *SimPipeline) ForceKeyframe(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != models.NDIStateStreaming {
		return ErrNotStreaming
	}

	p.log.Debug().Msg("Keyframe forced")

	return nil
}

func (p *SimPipeline) Telemetry(ctx context.Context) (models.TelemetryFrame, error) {
	cpuPct, err := p.cpuPercent(ctx)
	if err != nil {
		p.fault(err)
		return models.TelemetryFrame{}, fmt.Errorf("cpu sample failed: %w", err)
	}

	memPct, err := p.memPercent(ctx)
	if err != nil {
		p.fault(err)
		return models.TelemetryFrame{}, fmt.Errorf("memory sample failed: %w", err)
	}

	up, err := p.uptime(ctx)
	if err != nil {
		p.fault(err)
		return models.TelemetryFrame{}, fmt.Errorf("uptime sample failed: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if cpuPct > highLoadPercent && p.state == models.NDIStateStreaming {
		p.droppedFrames++
	}

	battery := 100.0 - up.Hours()*batteryDrainPerHr
	if battery < 5 {
		battery = 5
	}

	charging := models.ChargingStateDischarging
	if battery >= 100 {
		charging = models.ChargingStateFull
	}

	frame := models.TelemetryFrame{
		Battery:       battery,
		TempC:         28.0 + cpuPct*0.25,
		QueueMs:       cpuPct * 0.3,
		WifiRSSI:      -44 - int(memPct/10),
		NDIState:      p.state,
		DroppedFrames: p.droppedFrames,
		ChargingState: charging,
	}

	if p.state == models.NDIStateStreaming {
		frame.FPS = float64(p.stream.Framerate)
		frame.BitrateKbps = p.stream.BitrateKbps
	}

	return frame, nil
}

// fault marks a live stream faulted when the capture stack stops
// answering. Start and Stop clear the state.
func (p *SimPipeline) fault(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != models.NDIStateStreaming && p.state != models.NDIStateConnecting {
		return
	}

	p.connectGen++
	p.state = models.NDIStateError
	p.log.Error().Err(err).Msg("Pipeline fault")
}

func (p *SimPipeline) Status(ctx context.Context) (models.PipelineStatus, error) {
	frame, err := p.Telemetry(ctx)
	if err != nil {
		return models.PipelineStatus{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return models.PipelineStatus{
		NDIState:  p.state,
		Current:   p.current,
		Telemetry: frame,
	}, nil
}

func (p *SimPipeline) Capabilities(_ context.Context) ([]models.CapabilityMode, error) {
	modes := make([]models.CapabilityMode, len(simCapabilities))
	copy(modes, simCapabilities)

	return modes, nil
}

func (p *SimPipeline) UpdateCameraSettings(_ context.Context, settings models.CameraSettings) error {
	if err := validateCameraSettings(settings); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if settings.WBMode != nil {
		p.current.WBMode = *settings.WBMode
	}

	if settings.WBKelvin != nil {
		p.current.WBKelvin = *settings.WBKelvin
	}

	if settings.ISO != nil {
		p.current.ISO = *settings.ISO
	}

	if settings.ShutterSeconds != nil {
		p.current.ShutterSeconds = *settings.ShutterSeconds
	}

	if settings.FocusMode != nil {
		p.current.FocusMode = *settings.FocusMode
	}

	if settings.ZoomFactor != nil {
		p.current.ZoomFactor = *settings.ZoomFactor
	}

	if settings.Lens != nil {
		p.current.Lens = *settings.Lens
	}

	if settings.CameraPosition != nil {
		p.current.CameraPosition = *settings.CameraPosition
	}

	return nil
}

func validateCameraSettings(s models.CameraSettings) error {
	if s.WBKelvin != nil && (*s.WBKelvin < 2000 || *s.WBKelvin > 10000) {
		return fmt.Errorf("%w: wb_kelvin %d out of range", ErrInvalidSettings, *s.WBKelvin)
	}

	if s.ISO != nil && (*s.ISO < 25 || *s.ISO > 12800) {
		return fmt.Errorf("%w: iso %d out of range", ErrInvalidSettings, *s.ISO)
	}

	if s.ZoomFactor != nil && (*s.ZoomFactor < 0.5 || *s.ZoomFactor > 10.0) {
		return fmt.Errorf("%w: zoom_factor %.2f out of range", ErrInvalidSettings, *s.ZoomFactor)
	}

	return nil
}

func (p *SimPipeline) VideoSettings(_ context.Context) (models.VideoSettings, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.video, nil
}

func (p *SimPipeline) UpdateVideoSettings(_ context.Context, settings models.VideoSettings) error {
	if settings.SourceName == "" {
		return fmt.Errorf("%w: source_name is required", ErrInvalidSettings)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.video = settings

	return nil
}

func (p *SimPipeline) SetScreenDimmed(_ context.Context, dimmed bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.dimmed = dimmed

	return nil
}
