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

// Package consoleapi exposes the console's fleet operations over HTTP:
// claiming devices, listing discovery candidates, issuing single and
// group commands, debounced settings edits, and profile management.
package consoleapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/carverauto/fleetcam/pkg/logger"
	"github.com/carverauto/fleetcam/pkg/models"
	"github.com/carverauto/fleetcam/pkg/registry"
)

const shutdownTimeout = 10 * time.Second

// FleetRegistry is the claimed-device surface the API serves.
type FleetRegistry interface {
	Claim(req registry.ClaimRequest) (*models.Device, error)
	Unclaim(id string) error
	Devices() []models.Device
	KnownAliases() map[string]struct{}
}

// Commander dispatches commands and debounced edits against the fleet.
// The orchestrator satisfies it.
type Commander interface {
	ExecuteGroup(ctx context.Context, op models.CommandOp, payload models.CommandPayload, deviceIDs []string) models.GroupResults
	DebounceCameraSettings(deviceID string, settings models.CameraSettings)
	DebounceVideoSettings(deviceID string, settings models.VideoSettings)
}

// ProfileStore is the named-profile surface the API serves.
type ProfileStore interface {
	Save(profile models.Profile) error
	Delete(name string) error
	List() []models.Profile
	Apply(ctx context.Context, name string, deviceIDs []string) (models.GroupResults, error)
}

// CandidateSource lists unclaimed devices seen on the network. The
// discovery browser satisfies it.
type CandidateSource interface {
	Candidates(claimed map[string]struct{}) []models.DiscoveredCandidate
}

// Config holds the console API listener settings.
type Config struct {
	ListenAddr string `json:"listen_addr"`
}

// Server is the console control API. It implements lifecycle.Service.
type Server struct {
	config     Config
	log        logger.Logger
	registry   FleetRegistry
	fleet      Commander
	profiles   ProfileStore
	candidates CandidateSource

	httpServer *http.Server
}

// New builds the console API over the given fleet components.
func New(config Config, reg FleetRegistry, fleet Commander, profiles ProfileStore, candidates CandidateSource, log logger.Logger) *Server {
	s := &Server{
		config:     config,
		log:        log,
		registry:   reg,
		fleet:      fleet,
		profiles:   profiles,
		candidates: candidates,
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/v1/devices", s.handleListDevices).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/devices", s.handleClaimDevice).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/devices/unclaim", s.handleUnclaimDevice).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/candidates", s.handleCandidates).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/command", s.handleGroupCommand).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/settings", s.handleSettings).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/profiles", s.handleListProfiles).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/profiles", s.handleSaveProfile).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/profiles/delete", s.handleDeleteProfile).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/profiles/apply", s.handleApplyProfile).Methods(http.MethodPost)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, models.ErrCodeNotFound, "unknown route: "+r.URL.Path)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, models.ErrCodeNotFound, "method "+r.Method+" not supported on "+r.URL.Path)
	})

	s.httpServer = &http.Server{
		Addr:              config.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start runs the HTTP listener. It blocks until the listener stops.
func (s *Server) Start(_ context.Context) error {
	s.log.Info().
		Str("listen_addr", s.config.ListenAddr).
		Msg("Starting console API server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Stop shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)

	s.log.Info().Msg("Console API server stopped")

	return err
}
