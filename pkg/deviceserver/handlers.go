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
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/carverauto/fleetcam/pkg/models"
	"github.com/carverauto/fleetcam/pkg/pipeline"
)

// okBody is the minimal acknowledgment payload for mutation endpoints.
type okBody struct {
	Status string `json:"status"`
}

var bodyOK = okBody{Status: "ok"}

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

// decodeBody reads and unmarshals a request body. An empty body and a
// malformed one are distinct protocol errors.
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

var errEmptyBody = errors.New("request body is empty")

// writePipelineError maps a collaborator failure onto the wire
// vocabulary. Settings the device rejects are the caller's fault;
// everything else is an upstream fault.
func (s *Server) writePipelineError(w http.ResponseWriter, op string, err error) {
	s.log.Error().Err(err).Str("op", op).Msg("Pipeline operation failed")

	if errors.Is(err, pipeline.ErrInvalidSettings) || errors.Is(err, pipeline.ErrNotStreaming) {
		writeError(w, models.ErrCodeInvalidRequest, err.Error())
		return
	}

	writeError(w, models.ErrCodeUpstream, err.Error())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.pipe.Status(r.Context())
	if err != nil {
		s.writePipelineError(w, "status", err)
		return
	}

	caps, err := s.pipe.Capabilities(r.Context())
	if err != nil {
		s.writePipelineError(w, "capabilities", err)
		return
	}

	writeJSON(w, http.StatusOK, models.DeviceStatus{
		Alias:        s.config.Alias,
		NDIState:     status.NDIState,
		Current:      status.Current,
		Telemetry:    status.Telemetry,
		Capabilities: caps,
	})
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	caps, err := s.pipe.Capabilities(r.Context())
	if err != nil {
		s.writePipelineError(w, "capabilities", err)
		return
	}

	writeJSON(w, http.StatusOK, caps)
}

func (s *Server) handleStreamStart(w http.ResponseWriter, r *http.Request) {
	var settings models.StreamSettings

	if code, err := decodeBody(r, &settings); err != nil {
		writeError(w, code, err.Error())
		return
	}

	if err := s.pipe.Start(r.Context(), settings); err != nil {
		s.writePipelineError(w, "stream_start", err)
		return
	}

	s.log.Info().
		Str("resolution", settings.Resolution).
		Int("framerate", settings.Framerate).
		Str("codec", settings.Codec).
		Msg("Stream started")

	writeJSON(w, http.StatusOK, bodyOK)
}

func (s *Server) handleStreamStop(w http.ResponseWriter, r *http.Request) {
	if err := s.pipe.Stop(r.Context()); err != nil {
		s.writePipelineError(w, "stream_stop", err)
		return
	}

	s.log.Info().Msg("Stream stopped")
	writeJSON(w, http.StatusOK, bodyOK)
}

func (s *Server) handleCamera(w http.ResponseWriter, r *http.Request) {
	var settings models.CameraSettings

	if code, err := decodeBody(r, &settings); err != nil {
		writeError(w, code, err.Error())
		return
	}

	if settings.Empty() {
		writeError(w, models.ErrCodeInvalidRequest, "no camera settings provided")
		return
	}

	if err := s.applyCameraSettings(r.Context(), &settings); err != nil {
		s.writePipelineError(w, "camera", err)
		return
	}

	writeJSON(w, http.StatusOK, bodyOK)
}

// applyCameraSettings is the single application path for camera
// adjustments. Both the REST handler and the WebSocket "set" op land
// here, so validation and logging stay identical.
func (s *Server) applyCameraSettings(ctx context.Context, settings *models.CameraSettings) error {
	if err := s.pipe.UpdateCameraSettings(ctx, *settings); err != nil {
		return err
	}

	s.log.Debug().Msg("Camera settings applied")

	return nil
}

func (s *Server) handleForceKeyframe(w http.ResponseWriter, r *http.Request) {
	if err := s.pipe.ForceKeyframe(r.Context()); err != nil {
		s.writePipelineError(w, "force_keyframe", err)
		return
	}

	writeJSON(w, http.StatusOK, bodyOK)
}

func (s *Server) handleGetVideoSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.pipe.VideoSettings(r.Context())
	if err != nil {
		s.writePipelineError(w, "video_settings", err)
		return
	}

	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handlePutVideoSettings(w http.ResponseWriter, r *http.Request) {
	var settings models.VideoSettings

	if code, err := decodeBody(r, &settings); err != nil {
		writeError(w, code, err.Error())
		return
	}

	if err := s.pipe.UpdateVideoSettings(r.Context(), settings); err != nil {
		s.writePipelineError(w, "video_settings", err)
		return
	}

	writeJSON(w, http.StatusOK, bodyOK)
}

type brightnessRequest struct {
	Dimmed *bool `json:"dimmed"`
}

func (s *Server) handleScreenBrightness(w http.ResponseWriter, r *http.Request) {
	var req brightnessRequest

	if code, err := decodeBody(r, &req); err != nil {
		writeError(w, code, err.Error())
		return
	}

	if req.Dimmed == nil {
		writeError(w, models.ErrCodeInvalidRequest, "dimmed field is required")
		return
	}

	if err := s.pipe.SetScreenDimmed(r.Context(), *req.Dimmed); err != nil {
		s.writePipelineError(w, "screen_brightness", err)
		return
	}

	writeJSON(w, http.StatusOK, bodyOK)
}

const controlPage = `<!DOCTYPE html>
<html>
<head><title>fleetcam device</title></head>
<body>
<h1>fleetcam device control</h1>
<p>API at /api/v1, telemetry stream at /ws.</p>
</body>
</html>
`

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(controlPage))
}
