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

// Package registry tracks the fleet's claimed devices: who is claimed,
// where they live, and whether they currently answer. Claims persist
// across restarts; liveness is always observed fresh, never replayed
// from disk.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/fleetcam/pkg/deviceapi"
	"github.com/carverauto/fleetcam/pkg/logger"
	"github.com/carverauto/fleetcam/pkg/models"
)

var (
	// ErrDeviceNotFound reports an id with no claimed device.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrAliasClaimed reports a claim for an alias already in the fleet.
	ErrAliasClaimed = errors.New("alias already claimed")
)

const (
	defaultRefreshInterval  = 2 * time.Second
	defaultOfflineThreshold = 3
	defaultProbeTimeout     = 2 * time.Second
)

// StatusClient is the slice of the device client the refresh loop uses.
type StatusClient interface {
	Status(ctx context.Context) (*models.DeviceStatus, error)
}

// ClientFactory builds a status client for one claimed device.
type ClientFactory func(device *models.Device) StatusClient

func defaultClientFactory(device *models.Device) StatusClient {
	opts := []deviceapi.Option{}
	if device.Token != "" {
		opts = append(opts, deviceapi.WithToken(device.Token))
	}

	return deviceapi.NewClient("http://"+device.Address(), opts...)
}

// ClaimRequest describes a device being claimed into the fleet.
type ClaimRequest struct {
	Alias string
	Host  string
	Port  int
	Token string
}

// Registry holds the claimed devices and runs the liveness refresh
// loop. It implements lifecycle.Service.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*models.Device
	misses  map[string]int

	store            *Store
	clients          ClientFactory
	refreshInterval  time.Duration
	offlineThreshold int
	probeTimeout     time.Duration
	log              logger.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// Option configures a Registry.
type Option func(*Registry)

// WithStore attaches persistence; claims are loaded at construction and
// written back on every claim and unclaim.
func WithStore(store *Store) Option {
	return func(r *Registry) {
		r.store = store
	}
}

// WithClientFactory swaps the device client constructor.
func WithClientFactory(factory ClientFactory) Option {
	return func(r *Registry) {
		r.clients = factory
	}
}

// WithRefreshInterval overrides the refresh tick.
func WithRefreshInterval(interval time.Duration) Option {
	return func(r *Registry) {
		r.refreshInterval = interval
	}
}

// WithOfflineThreshold overrides how many consecutive misses mark a
// device offline.
func WithOfflineThreshold(n int) Option {
	return func(r *Registry) {
		r.offlineThreshold = n
	}
}

// New creates a registry. When a store is attached, previously claimed
// devices are loaded with unknown liveness.
func New(log logger.Logger, opts ...Option) (*Registry, error) {
	r := &Registry{
		devices:          make(map[string]*models.Device),
		misses:           make(map[string]int),
		clients:          defaultClientFactory,
		refreshInterval:  defaultRefreshInterval,
		offlineThreshold: defaultOfflineThreshold,
		probeTimeout:     defaultProbeTimeout,
		log:              log,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.store != nil {
		devices, err := r.store.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load registry: %w", err)
		}

		for i := range devices {
			device := devices[i]
			r.devices[device.ID] = &device
		}

		if len(devices) > 0 {
			log.Info().Int("devices", len(devices)).Msg("Loaded claimed devices from store")
		}
	}

	return r, nil
}

// Claim adds a device to the fleet and persists the claim. The alias
// must be unique within the fleet.
func (r *Registry) Claim(req ClaimRequest) (*models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.devices {
		if existing.Alias == req.Alias {
			return nil, fmt.Errorf("%w: %s", ErrAliasClaimed, req.Alias)
		}
	}

	device := &models.Device{
		ID:       uuid.New().String(),
		Alias:    req.Alias,
		Host:     req.Host,
		Port:     req.Port,
		Token:    req.Token,
		Liveness: models.LivenessUnknown,
		AddedAt:  time.Now(),
	}

	r.devices[device.ID] = device

	if err := r.persistLocked(); err != nil {
		delete(r.devices, device.ID)
		return nil, err
	}

	r.log.Info().
		Str("device_id", device.ID).
		Str("alias", device.Alias).
		Str("address", device.Address()).
		Msg("Device claimed")

	snapshot := *device

	return &snapshot, nil
}

// Unclaim removes a device from the fleet and persists the removal.
func (r *Registry) Unclaim(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	delete(r.devices, id)
	delete(r.misses, id)

	if err := r.persistLocked(); err != nil {
		r.devices[id] = device
		return err
	}

	r.log.Info().Str("device_id", id).Str("alias", device.Alias).Msg("Device unclaimed")

	return nil
}

// persistLocked writes the claim list through the store, if any. The
// caller holds the write lock.
func (r *Registry) persistLocked() error {
	if r.store == nil {
		return nil
	}

	devices := make([]models.Device, 0, len(r.devices))
	for _, device := range r.devices {
		devices = append(devices, *device)
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].Alias < devices[j].Alias })

	if err := r.store.Save(devices); err != nil {
		return fmt.Errorf("failed to persist registry: %w", err)
	}

	return nil
}

// Device returns a snapshot of one claimed device.
func (r *Registry) Device(id string) (*models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	snapshot := *device

	return &snapshot, nil
}

// Devices returns snapshots of every claimed device, ordered by alias.
func (r *Registry) Devices() []models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Device, 0, len(r.devices))

	for _, device := range r.devices {
		out = append(out, *device)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })

	return out
}

// KnownAliases returns the claimed alias set, for filtering discovery
// candidates.
func (r *Registry) KnownAliases() map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]struct{}, len(r.devices))

	for _, device := range r.devices {
		out[device.Alias] = struct{}{}
	}

	return out
}

// Start runs the refresh loop until Stop or ctx cancellation.
func (r *Registry) Start(ctx context.Context) error {
	defer close(r.doneCh)

	r.log.Info().
		Dur("interval", r.refreshInterval).
		Int("offline_threshold", r.offlineThreshold).
		Msg("Starting registry refresh loop")

	ticker := time.NewTicker(r.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.stopCh:
			return nil
		case <-ticker.C:
			r.refreshAll(ctx)
		}
	}
}

// Stop ends the refresh loop.
func (r *Registry) Stop(ctx context.Context) error {
	close(r.stopCh)

	select {
	case <-r.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

// refreshAll probes every claimed device concurrently and folds the
// results back in. Liveness always comes from the live probe, never
// from what the previous tick saw.
func (r *Registry) refreshAll(ctx context.Context) {
	devices := r.Devices()
	if len(devices) == 0 {
		return
	}

	type probeResult struct {
		id     string
		status *models.DeviceStatus
		err    error
	}

	results := make(chan probeResult, len(devices))

	var wg sync.WaitGroup

	for i := range devices {
		device := devices[i]

		wg.Add(1)

		go func() {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
			defer cancel()

			status, err := r.clients(&device).Status(probeCtx)
			results <- probeResult{id: device.ID, status: status, err: err}
		}()
	}

	wg.Wait()
	close(results)

	for result := range results {
		r.applyProbe(result.id, result.status, result.err)
	}
}

// applyProbe folds one probe outcome into the snapshot. The device may
// have been unclaimed while the probe was in flight.
func (r *Registry) applyProbe(id string, status *models.DeviceStatus, probeErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[id]
	if !ok {
		return
	}

	if probeErr != nil {
		r.misses[id]++

		// The last-known snapshot stays on the record; Liveness carries
		// the staleness signal.
		if r.misses[id] >= r.offlineThreshold {
			device.Liveness = models.LivenessOffline
		} else {
			device.Liveness = models.LivenessStale
		}

		r.log.Debug().
			Err(probeErr).
			Str("device_id", id).
			Str("alias", device.Alias).
			Int("misses", r.misses[id]).
			Str("liveness", string(device.Liveness)).
			Msg("Device probe failed")

		return
	}

	r.misses[id] = 0
	device.Status = status
	device.Liveness = models.LivenessOnline
	device.LastSeen = time.Now()
}
