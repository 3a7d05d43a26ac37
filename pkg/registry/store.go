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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/carverauto/fleetcam/pkg/models"
)

// Store persists the claimed-device list as a JSON file. Writes go
// through a temp file and an atomic rename so a crash mid-write never
// corrupts the registry.
type Store struct {
	path string
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the persisted device list. A missing file is an empty
// registry, not an error.
func (s *Store) Load() ([]models.Device, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}

	var devices []models.Device

	if err := json.Unmarshal(data, &devices); err != nil {
		return nil, fmt.Errorf("failed to parse registry file: %w", err)
	}

	// Runtime state is never trusted across restarts.
	for i := range devices {
		devices[i].Liveness = models.LivenessUnknown
		devices[i].Status = nil
	}

	return devices, nil
}

// Save writes the device list atomically.
func (s *Store) Save(devices []models.Device) error {
	// Volatile fields stay out of the file.
	persisted := make([]models.Device, len(devices))

	for i, device := range devices {
		device.Liveness = models.LivenessUnknown
		device.Status = nil
		persisted[i] = device
	}

	data, err := json.MarshalIndent(persisted, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".registry-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp registry file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to write registry: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close registry file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace registry file: %w", err)
	}

	return nil
}
