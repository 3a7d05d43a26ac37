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

package consoleapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/fleetcam/pkg/logger"
	"github.com/carverauto/fleetcam/pkg/models"
	"github.com/carverauto/fleetcam/pkg/profiles"
	"github.com/carverauto/fleetcam/pkg/registry"
)

// fakeRegistry keeps claims in memory with the real registry's error
// contract.
type fakeRegistry struct {
	mu      sync.Mutex
	devices map[string]models.Device
	nextID  int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{devices: make(map[string]models.Device)}
}

func (f *fakeRegistry) Claim(req registry.ClaimRequest) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.devices {
		if existing.Alias == req.Alias {
			return nil, fmt.Errorf("%w: %s", registry.ErrAliasClaimed, req.Alias)
		}
	}

	f.nextID++
	device := models.Device{
		ID:       fmt.Sprintf("dev-%d", f.nextID),
		Alias:    req.Alias,
		Host:     req.Host,
		Port:     req.Port,
		Token:    req.Token,
		Liveness: models.LivenessUnknown,
	}
	f.devices[device.ID] = device

	return &device, nil
}

func (f *fakeRegistry) Unclaim(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.devices[id]; !ok {
		return fmt.Errorf("%w: %s", registry.ErrDeviceNotFound, id)
	}

	delete(f.devices, id)

	return nil
}

func (f *fakeRegistry) Devices() []models.Device {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]models.Device, 0, len(f.devices))
	for _, device := range f.devices {
		out = append(out, device)
	}

	return out
}

func (f *fakeRegistry) KnownAliases() map[string]struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]struct{}, len(f.devices))
	for _, device := range f.devices {
		out[device.Alias] = struct{}{}
	}

	return out
}

// fakeCommander records dispatches and answers with canned results.
type fakeCommander struct {
	mu          sync.Mutex
	op          models.CommandOp
	payload     models.CommandPayload
	ids         []string
	results     models.GroupResults
	cameraEdits map[string]models.CameraSettings
	videoEdits  map[string]models.VideoSettings
}

func newFakeCommander() *fakeCommander {
	return &fakeCommander{
		cameraEdits: make(map[string]models.CameraSettings),
		videoEdits:  make(map[string]models.VideoSettings),
	}
}

func (f *fakeCommander) ExecuteGroup(_ context.Context, op models.CommandOp, payload models.CommandPayload, deviceIDs []string) models.GroupResults {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.op = op
	f.payload = payload
	f.ids = deviceIDs

	return f.results
}

func (f *fakeCommander) DebounceCameraSettings(deviceID string, settings models.CameraSettings) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cameraEdits[deviceID] = settings
}

func (f *fakeCommander) DebounceVideoSettings(deviceID string, settings models.VideoSettings) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.videoEdits[deviceID] = settings
}

// fakeProfileStore answers from an in-memory map.
type fakeProfileStore struct {
	mu       sync.Mutex
	profiles map[string]models.Profile
	applied  []string
	results  models.GroupResults
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{profiles: make(map[string]models.Profile)}
}

func (f *fakeProfileStore) Save(profile models.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.profiles[profile.Name] = profile

	return nil
}

func (f *fakeProfileStore) Delete(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.profiles, name)

	return nil
}

func (f *fakeProfileStore) List() []models.Profile {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]models.Profile, 0, len(f.profiles))
	for _, profile := range f.profiles {
		out = append(out, profile)
	}

	return out
}

func (f *fakeProfileStore) Apply(_ context.Context, name string, deviceIDs []string) (models.GroupResults, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.profiles[name]; !ok {
		return nil, fmt.Errorf("%w: %s", profiles.ErrProfileNotFound, name)
	}

	f.applied = deviceIDs

	return f.results, nil
}

// fakeCandidates records the claimed set it was filtered with.
type fakeCandidates struct {
	mu       sync.Mutex
	claimed  map[string]struct{}
	answered []models.DiscoveredCandidate
}

func (f *fakeCandidates) Candidates(claimed map[string]struct{}) []models.DiscoveredCandidate {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.claimed = claimed

	return f.answered
}

type testFixture struct {
	server     *Server
	registry   *fakeRegistry
	fleet      *fakeCommander
	profiles   *fakeProfileStore
	candidates *fakeCandidates
}

func newTestServer(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		registry:   newFakeRegistry(),
		fleet:      newFakeCommander(),
		profiles:   newFakeProfileStore(),
		candidates: &fakeCandidates{},
	}

	f.server = New(Config{ListenAddr: "127.0.0.1:0"},
		f.registry, f.fleet, f.profiles, f.candidates, logger.NewTestLogger())

	return f
}

func doRequest(f *testFixture, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()

	f.server.httpServer.Handler.ServeHTTP(rec, req)

	return rec
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorBody {
	t.Helper()

	var body models.ErrorBody

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	return body
}

func TestClaimAndListDevices(t *testing.T) {
	f := newTestServer(t)

	rec := doRequest(f, http.MethodPost, "/api/v1/devices",
		`{"alias":"cam-1","host":"10.0.1.20","port":8080,"token":"secret"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var claimed models.Device

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &claimed))
	assert.NotEmpty(t, claimed.ID)
	assert.Equal(t, "cam-1", claimed.Alias)

	rec = doRequest(f, http.MethodGet, "/api/v1/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var devices []models.Device

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &devices))
	require.Len(t, devices, 1)
	assert.Equal(t, claimed.ID, devices[0].ID)
}

func TestClaimDuplicateAlias(t *testing.T) {
	f := newTestServer(t)

	rec := doRequest(f, http.MethodPost, "/api/v1/devices",
		`{"alias":"cam-1","host":"10.0.1.20","port":8080}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(f, http.MethodPost, "/api/v1/devices",
		`{"alias":"cam-1","host":"10.0.1.99","port":8080}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, models.ErrCodeInvalidRequest, decodeErrorBody(t, rec).Code)
}

func TestClaimMissingBody(t *testing.T) {
	f := newTestServer(t)

	rec := doRequest(f, http.MethodPost, "/api/v1/devices", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, models.ErrCodeMissingBody, decodeErrorBody(t, rec).Code)
}

func TestClaimRequiresAddress(t *testing.T) {
	f := newTestServer(t)

	rec := doRequest(f, http.MethodPost, "/api/v1/devices", `{"alias":"cam-1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnclaimDevice(t *testing.T) {
	f := newTestServer(t)

	rec := doRequest(f, http.MethodPost, "/api/v1/devices",
		`{"alias":"cam-1","host":"10.0.1.20","port":8080}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var claimed models.Device
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &claimed))

	rec = doRequest(f, http.MethodPost, "/api/v1/devices/unclaim",
		`{"device_id":"`+claimed.ID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.registry.Devices())
}

func TestUnclaimUnknownDevice(t *testing.T) {
	f := newTestServer(t)

	rec := doRequest(f, http.MethodPost, "/api/v1/devices/unclaim", `{"device_id":"ghost"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, models.ErrCodeNotFound, decodeErrorBody(t, rec).Code)
}

func TestCandidatesFilteredByClaimedAliases(t *testing.T) {
	f := newTestServer(t)

	f.candidates.answered = []models.DiscoveredCandidate{
		{Alias: "cam-2", Host: "10.0.1.21", Port: 8080},
	}

	rec := doRequest(f, http.MethodPost, "/api/v1/devices",
		`{"alias":"cam-1","host":"10.0.1.20","port":8080}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(f, http.MethodGet, "/api/v1/candidates", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var candidates []models.DiscoveredCandidate

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &candidates))
	require.Len(t, candidates, 1)
	assert.Equal(t, "cam-2", candidates[0].Alias)

	// The browser was asked to exclude the claimed alias.
	f.candidates.mu.Lock()
	defer f.candidates.mu.Unlock()
	assert.Contains(t, f.candidates.claimed, "cam-1")
}

func TestGroupCommandDelegatesToOrchestrator(t *testing.T) {
	f := newTestServer(t)

	f.fleet.results = models.GroupResults{
		{DeviceID: "dev-1", Success: true},
		{DeviceID: "dev-2", Success: false, Error: "device unreachable"},
	}

	rec := doRequest(f, http.MethodPost, "/api/v1/command",
		`{"op":"start-stream","device_ids":["dev-1","dev-2"],`+
			`"stream":{"resolution":"1920x1080","framerate":30,"bitrate":8000,"codec":"h264"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var results models.GroupResults

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 2)
	assert.Equal(t, 1, results.Succeeded())

	f.fleet.mu.Lock()
	defer f.fleet.mu.Unlock()
	assert.Equal(t, models.OpStartStream, f.fleet.op)
	assert.Equal(t, []string{"dev-1", "dev-2"}, f.fleet.ids)
	require.NotNil(t, f.fleet.payload.Stream)
	assert.Equal(t, "1920x1080", f.fleet.payload.Stream.Resolution)
}

func TestGroupCommandRequiresTargets(t *testing.T) {
	f := newTestServer(t)

	rec := doRequest(f, http.MethodPost, "/api/v1/command", `{"op":"stop-stream"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, models.ErrCodeInvalidRequest, decodeErrorBody(t, rec).Code)
}

func TestGroupCommandRejectsApplyProfileOp(t *testing.T) {
	f := newTestServer(t)

	rec := doRequest(f, http.MethodPost, "/api/v1/command",
		`{"op":"apply-profile","device_ids":["dev-1"]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeErrorBody(t, rec).Message, "/api/v1/profiles/apply")
}

func TestSettingsQueueDebouncedEdits(t *testing.T) {
	f := newTestServer(t)

	rec := doRequest(f, http.MethodPost, "/api/v1/settings",
		`{"device_id":"dev-1","camera":{"iso":800},"video":{"source_name":"Stage Left"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	f.fleet.mu.Lock()
	defer f.fleet.mu.Unlock()

	camera, ok := f.fleet.cameraEdits["dev-1"]
	require.True(t, ok)
	require.NotNil(t, camera.ISO)
	assert.Equal(t, 800, *camera.ISO)

	video, ok := f.fleet.videoEdits["dev-1"]
	require.True(t, ok)
	assert.Equal(t, "Stage Left", video.SourceName)
}

func TestSettingsRequireDeviceID(t *testing.T) {
	f := newTestServer(t)

	rec := doRequest(f, http.MethodPost, "/api/v1/settings", `{"camera":{"iso":800}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettingsRequirePayload(t *testing.T) {
	f := newTestServer(t)

	rec := doRequest(f, http.MethodPost, "/api/v1/settings", `{"device_id":"dev-1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(f, http.MethodPost, "/api/v1/settings",
		`{"device_id":"dev-1","camera":{}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfileSaveListDelete(t *testing.T) {
	f := newTestServer(t)

	rec := doRequest(f, http.MethodPost, "/api/v1/profiles",
		`{"name":"stage","stream":{"resolution":"1920x1080","framerate":30,"bitrate":8000,"codec":"h264"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(f, http.MethodGet, "/api/v1/profiles", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list []models.Profile

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "stage", list[0].Name)

	rec = doRequest(f, http.MethodPost, "/api/v1/profiles/delete", `{"name":"stage"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.profiles.List())
}

func TestProfileSaveRequiresName(t *testing.T) {
	f := newTestServer(t)

	rec := doRequest(f, http.MethodPost, "/api/v1/profiles", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApplyProfile(t *testing.T) {
	f := newTestServer(t)

	f.profiles.results = models.GroupResults{
		{DeviceID: "dev-1", Success: true},
	}

	rec := doRequest(f, http.MethodPost, "/api/v1/profiles",
		`{"name":"stage","stream":{"resolution":"1920x1080","framerate":30,"bitrate":8000,"codec":"h264"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(f, http.MethodPost, "/api/v1/profiles/apply",
		`{"name":"stage","device_ids":["dev-1"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var results models.GroupResults

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)

	f.profiles.mu.Lock()
	defer f.profiles.mu.Unlock()
	assert.Equal(t, []string{"dev-1"}, f.profiles.applied)
}

func TestApplyUnknownProfile(t *testing.T) {
	f := newTestServer(t)

	rec := doRequest(f, http.MethodPost, "/api/v1/profiles/apply",
		`{"name":"ghost","device_ids":["dev-1"]}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, models.ErrCodeNotFound, decodeErrorBody(t, rec).Code)
}

func TestUnknownRouteAnswersJSON(t *testing.T) {
	f := newTestServer(t)

	rec := doRequest(f, http.MethodGet, "/api/v1/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, models.ErrCodeNotFound, decodeErrorBody(t, rec).Code)
}
