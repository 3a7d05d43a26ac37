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

// Package orchestrator fans fleet commands out to devices: single
// commands, group commands with a fixed result contract, debounced
// settings edits, and profile application.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/fleetcam/pkg/deviceapi"
	"github.com/carverauto/fleetcam/pkg/logger"
	"github.com/carverauto/fleetcam/pkg/models"
)

var (
	errUnsupportedOp  = errors.New("unsupported operation")
	errMissingPayload = errors.New("operation payload missing")
)

const (
	defaultCallTimeout    = 5 * time.Second
	defaultDebounceWindow = 300 * time.Millisecond
)

// DeviceClient is the command surface the orchestrator drives per
// device. *deviceapi.Client satisfies it.
type DeviceClient interface {
	StartStream(ctx context.Context, settings models.StreamSettings) error
	StopStream(ctx context.Context) error
	UpdateCameraSettings(ctx context.Context, settings models.CameraSettings) error
	UpdateVideoSettings(ctx context.Context, settings models.VideoSettings) error
	ForceKeyframe(ctx context.Context) error
	SetScreenBrightness(ctx context.Context, dimmed bool) error
}

// DeviceResolver resolves a device id to its claimed record. The
// registry satisfies it.
type DeviceResolver interface {
	Device(id string) (*models.Device, error)
}

// ClientFactory builds a command client for one device.
type ClientFactory func(device *models.Device) DeviceClient

func defaultClientFactory(device *models.Device) DeviceClient {
	opts := []deviceapi.Option{}
	if device.Token != "" {
		opts = append(opts, deviceapi.WithToken(device.Token))
	}

	return deviceapi.NewClient("http://"+device.Address(), opts...)
}

// Orchestrator dispatches commands against the claimed fleet.
type Orchestrator struct {
	resolver    DeviceResolver
	clients     ClientFactory
	callTimeout time.Duration
	log         logger.Logger

	debounceMu     sync.Mutex
	debounceCond   *sync.Cond
	debounceWindow time.Duration
	windows        map[debounceKey]*debounceEntry
	closed         bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClientFactory swaps the device client constructor.
func WithClientFactory(factory ClientFactory) Option {
	return func(o *Orchestrator) {
		o.clients = factory
	}
}

// WithCallTimeout overrides the per-device command timeout.
func WithCallTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		o.callTimeout = timeout
	}
}

// WithDebounceWindow overrides the settings debounce window.
func WithDebounceWindow(window time.Duration) Option {
	return func(o *Orchestrator) {
		o.debounceWindow = window
	}
}

// New creates an orchestrator over the given resolver.
func New(resolver DeviceResolver, log logger.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		resolver:       resolver,
		clients:        defaultClientFactory,
		callTimeout:    defaultCallTimeout,
		debounceWindow: defaultDebounceWindow,
		windows:        make(map[debounceKey]*debounceEntry),
		log:            log,
	}

	o.debounceCond = sync.NewCond(&o.debounceMu)

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Execute runs one command against one device with a bounded timeout.
func (o *Orchestrator) Execute(ctx context.Context, op models.CommandOp, payload models.CommandPayload, deviceID string) error {
	device, err := o.resolver.Device(deviceID)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	client := o.clients(device)

	if err := dispatch(callCtx, client, op, payload); err != nil {
		o.log.Warn().
			Err(err).
			Str("op", string(op)).
			Str("device_id", deviceID).
			Str("alias", device.Alias).
			Msg("Device command failed")

		return err
	}

	o.log.Debug().
		Str("op", string(op)).
		Str("device_id", deviceID).
		Str("alias", device.Alias).
		Msg("Device command completed")

	return nil
}

// ExecuteGroup runs one command against many devices concurrently. The
// result has exactly one entry per unique requested id, in the order
// first requested; duplicates in the input collapse into one entry.
func (o *Orchestrator) ExecuteGroup(ctx context.Context, op models.CommandOp, payload models.CommandPayload, deviceIDs []string) models.GroupResults {
	out := o.fanOut(deviceIDs, func(deviceID string) error {
		return o.Execute(ctx, op, payload, deviceID)
	})

	o.log.Info().
		Str("op", string(op)).
		Int("targets", len(out)).
		Int("succeeded", out.Succeeded()).
		Msg("Group command finished")

	return out
}

// ApplyProfile pushes a profile's camera and video bundles to every
// target. Each device gets one result entry; when both bundles are sent
// the first failure wins the entry.
func (o *Orchestrator) ApplyProfile(ctx context.Context, profile *models.Profile, deviceIDs []string) models.GroupResults {
	out := o.fanOut(deviceIDs, func(deviceID string) error {
		return o.applyProfileToDevice(ctx, profile, deviceID)
	})

	o.log.Info().
		Str("profile", profile.Name).
		Int("targets", len(out)).
		Int("succeeded", out.Succeeded()).
		Msg("Profile applied")

	return out
}

// fanOut runs call once per unique id concurrently and joins the
// outcomes into the group result contract: one entry per unique id, in
// first-requested order.
func (o *Orchestrator) fanOut(deviceIDs []string, call func(deviceID string) error) models.GroupResults {
	ids := dedupe(deviceIDs)
	if len(ids) == 0 {
		return models.GroupResults{}
	}

	type outcome struct {
		id  string
		err error
	}

	results := make(chan outcome, len(ids))

	var wg sync.WaitGroup

	for _, id := range ids {
		wg.Add(1)

		go func(deviceID string) {
			defer wg.Done()

			results <- outcome{id: deviceID, err: call(deviceID)}
		}(id)
	}

	wg.Wait()
	close(results)

	byID := make(map[string]error, len(ids))
	for result := range results {
		byID[result.id] = result.err
	}

	out := make(models.GroupResults, 0, len(ids))

	for _, id := range ids {
		entry := models.GroupOperationResult{DeviceID: id, Success: true}

		if err := byID[id]; err != nil {
			entry.Success = false
			entry.Error = err.Error()
		}

		out = append(out, entry)
	}

	return out
}

func (o *Orchestrator) applyProfileToDevice(ctx context.Context, profile *models.Profile, deviceID string) error {
	if !profile.Camera.Empty() {
		camera := profile.Camera

		err := o.Execute(ctx, models.OpUpdateCameraSettings, models.CommandPayload{Camera: &camera}, deviceID)
		if err != nil {
			return err
		}
	}

	if profile.Video != nil {
		err := o.Execute(ctx, models.OpUpdateVideoSettings, models.CommandPayload{Video: profile.Video}, deviceID)
		if err != nil {
			return err
		}
	}

	return nil
}

// dispatch maps the operation tag onto the client call, checking the
// payload field the operation requires.
func dispatch(ctx context.Context, client DeviceClient, op models.CommandOp, payload models.CommandPayload) error {
	switch op {
	case models.OpStartStream:
		if payload.Stream == nil {
			return fmt.Errorf("%w: stream settings", errMissingPayload)
		}

		return client.StartStream(ctx, *payload.Stream)
	case models.OpStopStream:
		return client.StopStream(ctx)
	case models.OpUpdateCameraSettings:
		if payload.Camera == nil {
			return fmt.Errorf("%w: camera settings", errMissingPayload)
		}

		return client.UpdateCameraSettings(ctx, *payload.Camera)
	case models.OpUpdateVideoSettings:
		if payload.Video == nil {
			return fmt.Errorf("%w: video settings", errMissingPayload)
		}

		return client.UpdateVideoSettings(ctx, *payload.Video)
	case models.OpForceKeyframe:
		return client.ForceKeyframe(ctx)
	case models.OpSetScreenBrightness:
		if payload.Dimmed == nil {
			return fmt.Errorf("%w: dimmed flag", errMissingPayload)
		}

		return client.SetScreenBrightness(ctx, *payload.Dimmed)
	case models.OpApplyProfile:
		// Profile expansion happens in the profile store, which calls
		// ApplyProfile directly.
		return fmt.Errorf("%w: %s", errUnsupportedOp, op)
	default:
		return fmt.Errorf("%w: %s", errUnsupportedOp, op)
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))

	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}

		out = append(out, id)
	}

	return out
}
