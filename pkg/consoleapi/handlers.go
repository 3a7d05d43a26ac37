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
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/carverauto/fleetcam/pkg/models"
	"github.com/carverauto/fleetcam/pkg/profiles"
	"github.com/carverauto/fleetcam/pkg/registry"
)

// okBody is the minimal acknowledgment payload for mutation endpoints.
type okBody struct {
	Status string `json:"status"`
}

var bodyOK = okBody{Status: "ok"}

var errEmptyBody = errors.New("request body is empty")

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		body, _ := json.Marshal(models.ErrorBody{
			Code:    models.ErrCodeEncoding,
			Message: "failed to encode response",
		})

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(models.ErrCodeEncoding.HTTPStatus())
		_, _ = w.Write(body)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, code models.ErrorCode, message string) {
	writeJSON(w, code.HTTPStatus(), models.ErrorBody{Code: code, Message: message})
}

func decodeBody(r *http.Request, v interface{}) (models.ErrorCode, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return models.ErrCodeInvalidRequest, err
	}

	if len(data) == 0 {
		return models.ErrCodeMissingBody, errEmptyBody
	}

	if err := json.Unmarshal(data, v); err != nil {
		return models.ErrCodeInvalidRequest, err
	}

	return "", nil
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Devices())
}

type claimRequest struct {
	Alias string `json:"alias"`
	Host  string `json:"host"`
	Port  int    `json:"port"`
	Token string `json:"token,omitempty"`
}

func (s *Server) handleClaimDevice(w http.ResponseWriter, r *http.Request) {
	var req claimRequest

	if code, err := decodeBody(r, &req); err != nil {
		writeError(w, code, err.Error())
		return
	}

	if req.Alias == "" || req.Host == "" || req.Port <= 0 {
		writeError(w, models.ErrCodeInvalidRequest, "alias, host, and port are required")
		return
	}

	device, err := s.registry.Claim(registry.ClaimRequest{
		Alias: req.Alias,
		Host:  req.Host,
		Port:  req.Port,
		Token: req.Token,
	})
	if err != nil {
		if errors.Is(err, registry.ErrAliasClaimed) {
			writeError(w, models.ErrCodeInvalidRequest, err.Error())
			return
		}

		s.log.Error().Err(err).Str("alias", req.Alias).Msg("Claim failed")
		writeError(w, models.ErrCodeUpstream, err.Error())

		return
	}

	writeJSON(w, http.StatusOK, device)
}

type unclaimRequest struct {
	DeviceID string `json:"device_id"`
}

func (s *Server) handleUnclaimDevice(w http.ResponseWriter, r *http.Request) {
	var req unclaimRequest

	if code, err := decodeBody(r, &req); err != nil {
		writeError(w, code, err.Error())
		return
	}

	if req.DeviceID == "" {
		writeError(w, models.ErrCodeInvalidRequest, "device_id is required")
		return
	}

	if err := s.registry.Unclaim(req.DeviceID); err != nil {
		if errors.Is(err, registry.ErrDeviceNotFound) {
			writeError(w, models.ErrCodeNotFound, err.Error())
			return
		}

		s.log.Error().Err(err).Str("device_id", req.DeviceID).Msg("Unclaim failed")
		writeError(w, models.ErrCodeUpstream, err.Error())

		return
	}

	writeJSON(w, http.StatusOK, bodyOK)
}

func (s *Server) handleCandidates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.candidates.Candidates(s.registry.KnownAliases()))
}

type commandRequest struct {
	Op        models.CommandOp `json:"op"`
	DeviceIDs []string         `json:"device_ids"`
	models.CommandPayload
}

func (s *Server) handleGroupCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest

	if code, err := decodeBody(r, &req); err != nil {
		writeError(w, code, err.Error())
		return
	}

	if req.Op == "" {
		writeError(w, models.ErrCodeInvalidRequest, "op is required")
		return
	}

	if req.Op == models.OpApplyProfile {
		writeError(w, models.ErrCodeInvalidRequest, "profiles are applied via /api/v1/profiles/apply")
		return
	}

	if len(req.DeviceIDs) == 0 {
		writeError(w, models.ErrCodeInvalidRequest, "device_ids is required")
		return
	}

	results := s.fleet.ExecuteGroup(r.Context(), req.Op, req.CommandPayload, req.DeviceIDs)
	writeJSON(w, http.StatusOK, results)
}

type settingsRequest struct {
	DeviceID string                 `json:"device_id"`
	Camera   *models.CameraSettings `json:"camera,omitempty"`
	Video    *models.VideoSettings  `json:"video,omitempty"`
}

// handleSettings queues debounced settings edits; rapid repeats for the
// same device coalesce into one outbound call carrying the last value.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest

	if code, err := decodeBody(r, &req); err != nil {
		writeError(w, code, err.Error())
		return
	}

	if req.DeviceID == "" {
		writeError(w, models.ErrCodeInvalidRequest, "device_id is required")
		return
	}

	if req.Camera == nil && req.Video == nil {
		writeError(w, models.ErrCodeInvalidRequest, "camera or video settings are required")
		return
	}

	if req.Camera != nil && req.Camera.Empty() {
		writeError(w, models.ErrCodeInvalidRequest, "no camera settings provided")
		return
	}

	if req.Camera != nil {
		s.fleet.DebounceCameraSettings(req.DeviceID, *req.Camera)
	}

	if req.Video != nil {
		s.fleet.DebounceVideoSettings(req.DeviceID, *req.Video)
	}

	writeJSON(w, http.StatusAccepted, bodyOK)
}

func (s *Server) handleListProfiles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.profiles.List())
}

func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var profile models.Profile

	if code, err := decodeBody(r, &profile); err != nil {
		writeError(w, code, err.Error())
		return
	}

	if profile.Name == "" {
		writeError(w, models.ErrCodeInvalidRequest, "profile name is required")
		return
	}

	if err := s.profiles.Save(profile); err != nil {
		s.log.Error().Err(err).Str("profile", profile.Name).Msg("Profile save failed")
		writeError(w, models.ErrCodeUpstream, err.Error())

		return
	}

	writeJSON(w, http.StatusOK, bodyOK)
}

type profileNameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	var req profileNameRequest

	if code, err := decodeBody(r, &req); err != nil {
		writeError(w, code, err.Error())
		return
	}

	if req.Name == "" {
		writeError(w, models.ErrCodeInvalidRequest, "name is required")
		return
	}

	if err := s.profiles.Delete(req.Name); err != nil {
		s.log.Error().Err(err).Str("profile", req.Name).Msg("Profile delete failed")
		writeError(w, models.ErrCodeUpstream, err.Error())

		return
	}

	writeJSON(w, http.StatusOK, bodyOK)
}

type applyProfileRequest struct {
	Name      string   `json:"name"`
	DeviceIDs []string `json:"device_ids"`
}

func (s *Server) handleApplyProfile(w http.ResponseWriter, r *http.Request) {
	var req applyProfileRequest

	if code, err := decodeBody(r, &req); err != nil {
		writeError(w, code, err.Error())
		return
	}

	if req.Name == "" {
		writeError(w, models.ErrCodeInvalidRequest, "name is required")
		return
	}

	if len(req.DeviceIDs) == 0 {
		writeError(w, models.ErrCodeInvalidRequest, "device_ids is required")
		return
	}

	results, err := s.profiles.Apply(r.Context(), req.Name, req.DeviceIDs)
	if err != nil {
		if errors.Is(err, profiles.ErrProfileNotFound) {
			writeError(w, models.ErrCodeNotFound, err.Error())
			return
		}

		s.log.Error().Err(err).Str("profile", req.Name).Msg("Profile apply failed")
		writeError(w, models.ErrCodeUpstream, err.Error())

		return
	}

	writeJSON(w, http.StatusOK, results)
}
