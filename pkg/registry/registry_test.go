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

package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/fleetcam/pkg/logger"
	"github.com/carverauto/fleetcam/pkg/models"
)

var errProbeFailed = errors.New("connection refused")

// fakeStatusClient answers probes from a switchable script.
type fakeStatusClient struct {
	mu     sync.Mutex
	status *models.DeviceStatus
	err    error
	calls  int
}

func (f *fakeStatusClient) Status(_ context.Context) (*models.DeviceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++

	if f.err != nil {
		return nil, f.err
	}

	return f.status, nil
}

func (f *fakeStatusClient) set(status *models.DeviceStatus, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.status = status
	f.err = err
}

// fakeFleet routes client lookups by alias.
type fakeFleet struct {
	mu      sync.Mutex
	clients map[string]*fakeStatusClient
}

func newFakeFleet() *fakeFleet {
	return &fakeFleet{clients: make(map[string]*fakeStatusClient)}
}

func (f *fakeFleet) client(alias string) *fakeStatusClient {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.clients[alias]; !ok {
		f.clients[alias] = &fakeStatusClient{
			status: &models.DeviceStatus{Alias: alias, NDIState: models.NDIStateIdle},
		}
	}

	return f.clients[alias]
}

func (f *fakeFleet) factory(device *models.Device) StatusClient {
	return f.client(device.Alias)
}

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *fakeFleet) {
	t.Helper()

	fleet := newFakeFleet()

	opts = append([]Option{WithClientFactory(fleet.factory)}, opts...)

	r, err := New(logger.NewTestLogger(), opts...)
	require.NoError(t, err)

	return r, fleet
}

func TestClaimAssignsIDAndUnknownLiveness(t *testing.T) {
	r, _ := newTestRegistry(t)

	device, err := r.Claim(ClaimRequest{Alias: "cam-1", Host: "10.0.1.20", Port: 8080})
	require.NoError(t, err)

	assert.NotEmpty(t, device.ID)
	assert.Equal(t, "cam-1", device.Alias)
	assert.Equal(t, models.LivenessUnknown, device.Liveness)
	assert.Equal(t, "10.0.1.20:8080", device.Address())
	assert.False(t, device.AddedAt.IsZero())
}

func TestClaimRejectsDuplicateAlias(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Claim(ClaimRequest{Alias: "cam-1", Host: "10.0.1.20", Port: 8080})
	require.NoError(t, err)

	_, err = r.Claim(ClaimRequest{Alias: "cam-1", Host: "10.0.1.99", Port: 8080})
	assert.ErrorIs(t, err, ErrAliasClaimed)
	assert.Len(t, r.Devices(), 1)
}

func TestUnclaimRemovesDevice(t *testing.T) {
	r, _ := newTestRegistry(t)

	device, err := r.Claim(ClaimRequest{Alias: "cam-1", Host: "10.0.1.20", Port: 8080})
	require.NoError(t, err)

	require.NoError(t, r.Unclaim(device.ID))

	_, err = r.Device(device.ID)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestUnclaimUnknownID(t *testing.T) {
	r, _ := newTestRegistry(t)

	assert.ErrorIs(t, r.Unclaim("no-such-id"), ErrDeviceNotFound)
}

func TestDevicesSortedByAlias(t *testing.T) {
	r, _ := newTestRegistry(t)

	for _, alias := range []string{"stage-right", "booth", "stage-left"} {
		_, err := r.Claim(ClaimRequest{Alias: alias, Host: "10.0.1.20", Port: 8080})
		require.NoError(t, err)
	}

	devices := r.Devices()
	require.Len(t, devices, 3)
	assert.Equal(t, "booth", devices[0].Alias)
	assert.Equal(t, "stage-left", devices[1].Alias)
	assert.Equal(t, "stage-right", devices[2].Alias)
}

func TestKnownAliases(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Claim(ClaimRequest{Alias: "cam-1", Host: "10.0.1.20", Port: 8080})
	require.NoError(t, err)

	aliases := r.KnownAliases()
	assert.Contains(t, aliases, "cam-1")
	assert.NotContains(t, aliases, "cam-2")
}

func TestRefreshMarksOnline(t *testing.T) {
	r, fleet := newTestRegistry(t)

	device, err := r.Claim(ClaimRequest{Alias: "cam-1", Host: "10.0.1.20", Port: 8080})
	require.NoError(t, err)

	fleet.client("cam-1").set(&models.DeviceStatus{
		Alias:    "cam-1",
		NDIState: models.NDIStateStreaming,
	}, nil)

	r.refreshAll(context.Background())

	got, err := r.Device(device.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LivenessOnline, got.Liveness)
	require.NotNil(t, got.Status)
	assert.Equal(t, models.NDIStateStreaming, got.Status.NDIState)
	assert.False(t, got.LastSeen.IsZero())
}

func TestRefreshSingleMissMarksStale(t *testing.T) {
	r, fleet := newTestRegistry(t)

	device, err := r.Claim(ClaimRequest{Alias: "cam-1", Host: "10.0.1.20", Port: 8080})
	require.NoError(t, err)

	fleet.client("cam-1").set(&models.DeviceStatus{
		Alias:    "cam-1",
		NDIState: models.NDIStateStreaming,
	}, nil)
	r.refreshAll(context.Background())

	fleet.client("cam-1").set(nil, errProbeFailed)
	r.refreshAll(context.Background())

	got, err := r.Device(device.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LivenessStale, got.Liveness)

	// The last-known snapshot survives a miss; only liveness degrades.
	require.NotNil(t, got.Status)
	assert.Equal(t, models.NDIStateStreaming, got.Status.NDIState)
}

func TestRefreshThresholdMarksOffline(t *testing.T) {
	r, fleet := newTestRegistry(t, WithOfflineThreshold(3))

	device, err := r.Claim(ClaimRequest{Alias: "cam-1", Host: "10.0.1.20", Port: 8080})
	require.NoError(t, err)

	fleet.client("cam-1").set(nil, errProbeFailed)

	for i := 0; i < 2; i++ {
		r.refreshAll(context.Background())
	}

	got, err := r.Device(device.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LivenessStale, got.Liveness)

	r.refreshAll(context.Background())

	got, err = r.Device(device.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LivenessOffline, got.Liveness)

	// Offline devices stay claimed.
	assert.Len(t, r.Devices(), 1)
}

func TestRefreshRecoveryResetsMissCount(t *testing.T) {
	r, fleet := newTestRegistry(t, WithOfflineThreshold(3))

	device, err := r.Claim(ClaimRequest{Alias: "cam-1", Host: "10.0.1.20", Port: 8080})
	require.NoError(t, err)

	fleet.client("cam-1").set(nil, errProbeFailed)
	r.refreshAll(context.Background())
	r.refreshAll(context.Background())

	fleet.client("cam-1").set(&models.DeviceStatus{Alias: "cam-1"}, nil)
	r.refreshAll(context.Background())

	got, err := r.Device(device.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LivenessOnline, got.Liveness)

	// The miss streak starts over after a recovery.
	fleet.client("cam-1").set(nil, errProbeFailed)
	r.refreshAll(context.Background())

	got, err = r.Device(device.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LivenessStale, got.Liveness)
}

func TestRefreshProbesEveryDevice(t *testing.T) {
	r, fleet := newTestRegistry(t)

	for _, alias := range []string{"cam-1", "cam-2", "cam-3"} {
		_, err := r.Claim(ClaimRequest{Alias: alias, Host: "10.0.1.20", Port: 8080})
		require.NoError(t, err)
	}

	r.refreshAll(context.Background())

	for _, alias := range []string{"cam-1", "cam-2", "cam-3"} {
		client := fleet.client(alias)
		client.mu.Lock()
		assert.Equal(t, 1, client.calls, alias)
		client.mu.Unlock()
	}
}

func TestStorePersistsClaimsAcrossRestart(t *testing.T) {
	path := t.TempDir() + "/registry.json"

	r, _ := newTestRegistry(t, WithStore(NewStore(path)))

	device, err := r.Claim(ClaimRequest{
		Alias: "cam-1",
		Host:  "10.0.1.20",
		Port:  8080,
		Token: "secret",
	})
	require.NoError(t, err)

	// Mark it online so we can verify liveness does not survive restart.
	r.applyProbe(device.ID, &models.DeviceStatus{Alias: "cam-1"}, nil)

	reloaded, _ := newTestRegistry(t, WithStore(NewStore(path)))

	devices := reloaded.Devices()
	require.Len(t, devices, 1)
	assert.Equal(t, device.ID, devices[0].ID)
	assert.Equal(t, "cam-1", devices[0].Alias)
	assert.Equal(t, "secret", devices[0].Token)
	assert.Equal(t, models.LivenessUnknown, devices[0].Liveness)
	assert.Nil(t, devices[0].Status)
}

func TestStoreUnclaimPersisted(t *testing.T) {
	path := t.TempDir() + "/registry.json"

	r, _ := newTestRegistry(t, WithStore(NewStore(path)))

	device, err := r.Claim(ClaimRequest{Alias: "cam-1", Host: "10.0.1.20", Port: 8080})
	require.NoError(t, err)
	require.NoError(t, r.Unclaim(device.ID))

	reloaded, _ := newTestRegistry(t, WithStore(NewStore(path)))
	assert.Empty(t, reloaded.Devices())
}

func TestStoreLoadMissingFile(t *testing.T) {
	store := NewStore(t.TempDir() + "/does-not-exist.json")

	devices, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, devices)
}
