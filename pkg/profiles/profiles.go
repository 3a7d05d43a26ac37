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

// Package profiles persists named settings bundles and applies them to
// device groups through the orchestrator. Application has no failure
// model of its own; it returns the ordinary group result contract.
package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/carverauto/fleetcam/pkg/logger"
	"github.com/carverauto/fleetcam/pkg/models"
)

// ErrProfileNotFound reports a name with no saved profile.
var ErrProfileNotFound = errors.New("profile not found")

// Applier is the orchestrator surface profile application needs.
type Applier interface {
	ApplyProfile(ctx context.Context, profile *models.Profile, deviceIDs []string) models.GroupResults
}

// Store holds the named profiles, persisted as one JSON file.
type Store struct {
	mu       sync.RWMutex
	path     string
	profiles map[string]models.Profile
	applier  Applier
	log      logger.Logger
}

// NewStore loads the profile file, if present, and binds the applier.
func NewStore(path string, applier Applier, log logger.Logger) (*Store, error) {
	s := &Store{
		path:     path,
		profiles: make(map[string]models.Profile),
		applier:  applier,
		log:      log,
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("failed to read profiles file: %w", err)
	}

	var profiles []models.Profile

	if err := json.Unmarshal(data, &profiles); err != nil {
		return fmt.Errorf("failed to parse profiles file: %w", err)
	}

	for _, profile := range profiles {
		s.profiles[profile.Name] = profile
	}

	if len(profiles) > 0 {
		s.log.Info().Int("profiles", len(profiles)).Msg("Loaded profiles from store")
	}

	return nil
}

// Save upserts a profile by name and persists the set.
func (s *Store) Save(profile models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile.UpdatedAt = time.Now()
	previous, existed := s.profiles[profile.Name]
	s.profiles[profile.Name] = profile

	if err := s.persistLocked(); err != nil {
		if existed {
			s.profiles[profile.Name] = previous
		} else {
			delete(s.profiles, profile.Name)
		}

		return err
	}

	s.log.Info().Str("profile", profile.Name).Bool("overwrote", existed).Msg("Profile saved")

	return nil
}

// Delete removes a profile by name. Deleting an absent name is a no-op.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, existed := s.profiles[name]
	if !existed {
		return nil
	}

	delete(s.profiles, name)

	if err := s.persistLocked(); err != nil {
		s.profiles[name] = previous
		return err
	}

	s.log.Info().Str("profile", name).Msg("Profile deleted")

	return nil
}

// Get returns one profile by name.
func (s *Store) Get(name string) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}

	return &profile, nil
}

// List returns all profiles ordered by name.
func (s *Store) List() []models.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Profile, 0, len(s.profiles))

	for _, profile := range s.profiles {
		out = append(out, profile)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

// Apply loads the named bundle and pushes it to the targets as a group
// command.
func (s *Store) Apply(ctx context.Context, name string, deviceIDs []string) (models.GroupResults, error) {
	profile, err := s.Get(name)
	if err != nil {
		return nil, err
	}

	return s.applier.ApplyProfile(ctx, profile, deviceIDs), nil
}

// persistLocked writes the profile set atomically. The caller holds the
// write lock.
func (s *Store) persistLocked() error {
	profiles := make([]models.Profile, 0, len(s.profiles))

	for _, profile := range s.profiles {
		profiles = append(profiles, profile)
	}

	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })

	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode profiles: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create profiles directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".profiles-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp profiles file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to write profiles: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close profiles file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace profiles file: %w", err)
	}

	return nil
}
