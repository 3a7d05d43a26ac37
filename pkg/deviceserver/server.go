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

// Package deviceserver implements the on-device control server: a REST
// surface for settings and stream control plus a WebSocket telemetry
// feed, fronted by CORS, bearer auth, and per-class rate limiting.
package deviceserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/carverauto/fleetcam/pkg/logger"
	"github.com/carverauto/fleetcam/pkg/models"
	"github.com/carverauto/fleetcam/pkg/pipeline"
	"github.com/carverauto/fleetcam/pkg/wshub"
)

const shutdownTimeout = 10 * time.Second

// Server is the device control server. It implements lifecycle.Service.
type Server struct {
	config   *Config
	log      logger.Logger
	pipe     pipeline.VideoPipeline
	hub      *wshub.Hub
	limiter  *RateLimiter
	upgrader websocket.Upgrader

	httpServer *http.Server
	stopCh     chan struct{}
}

// New builds a server around the given pipeline. The config must have
// been validated.
func New(config *Config, pipe pipeline.VideoPipeline, log logger.Logger) *Server {
	s := &Server{
		config:  config,
		log:     log,
		pipe:    pipe,
		hub:     wshub.New(log),
		limiter: NewRateLimiter(time.Duration(config.RateMinInterval)),
		upgrader: websocket.Upgrader{
			// Origin policy is enforced by the CORS layer; the upgrade
			// itself accepts any origin the browser let through.
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		stopCh: make(chan struct{}),
	}

	router := mux.NewRouter()
	router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/capabilities", s.handleCapabilities).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/stream/start", s.handleStreamStart).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/stream/stop", s.handleStreamStop).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/camera", s.handleCamera).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/encoder/force_keyframe", s.handleForceKeyframe).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/video/settings", s.handleGetVideoSettings).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/video/settings", s.handlePutVideoSettings).Methods(http.MethodPut)
	router.HandleFunc("/api/v1/screen/brightness", s.handleScreenBrightness).Methods(http.MethodPost)
	router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, models.ErrCodeNotFound, "unknown route: "+r.URL.Path)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, models.ErrCodeNotFound, "method "+r.Method+" not supported on "+r.URL.Path)
	})

	s.httpServer = &http.Server{
		Addr:              config.ListenAddr,
		Handler:           s.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler wraps the router in the middleware chain. Exposed so tests
// can drive the full chain through httptest.
func (s *Server) Handler(router http.Handler) http.Handler {
	return s.corsMiddleware(s.authMiddleware(s.rateLimitMiddleware(router)))
}

// Start runs the HTTP listener and the telemetry broadcast loop. It
// blocks until the listener stops.
func (s *Server) Start(ctx context.Context) error {
	s.log.Info().
		Str("listen_addr", s.config.ListenAddr).
		Str("alias", s.config.Alias).
		Bool("auth_enabled", s.config.AuthEnabled).
		Msg("Starting device control server")

	go s.telemetryLoop(ctx)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Stop shuts the listener down and disconnects all telemetry clients.
func (s *Server) Stop(ctx context.Context) error {
	close(s.stopCh)

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)

	s.hub.CloseAll()
	s.log.Info().Msg("Device control server stopped")

	return err
}

// telemetryLoop samples the pipeline at the configured cadence and
// broadcasts the frame to every connected client.
func (s *Server) telemetryLoop(ctx context.Context) {
	interval := time.Duration(s.config.TelemetryInterval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.broadcastTelemetry(ctx)
		}
	}
}

func (s *Server) broadcastTelemetry(ctx context.Context) {
	if s.hub.ClientCount() == 0 {
		return
	}

	frame, err := s.pipe.Telemetry(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to sample telemetry")
		return
	}

	payload, err := json.Marshal(frame)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode telemetry frame")
		return
	}

	s.hub.Broadcast(payload)
}
