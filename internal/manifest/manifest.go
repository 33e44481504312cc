// Package manifest records the connection metadata of a running fleet.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/zorak1103/tcfleet/internal/fleet"
)

// FormatVersion is written to every manifest
const FormatVersion = "1"

// Manifest is the persisted description of a started fleet
type Manifest struct {
	Version   string              `json:"version"`
	CreatedAt time.Time           `json:"created_at"`
	Driver    string              `json:"driver"`
	Services  map[string]*Service `json:"services"`
}

// Service is the connection metadata of one started container
type Service struct {
	ID    string      `json:"id,omitempty"`
	IP    string      `json:"ip"`
	Name  string      `json:"name"`
	Ports map[int]int `json:"ports"`
}

// FromResult builds a manifest from a fleet result.
func FromResult(driver string, result fleet.FleetResult) *Manifest {
	m := &Manifest{
		Version:   FormatVersion,
		CreatedAt: time.Now().UTC(),
		Driver:    driver,
		Services:  make(map[string]*Service, len(result)),
	}

	for key, info := range result {
		if info == nil {
			continue
		}
		svc := &Service{
			IP:    info.IP,
			Name:  info.Name,
			Ports: make(map[int]int, len(info.PortMappings)),
		}
		for p, hp := range info.PortMappings {
			svc.Ports[p] = hp
		}
		if info.Handle != nil {
			svc.ID = info.Handle.ID()
		}
		m.Services[key] = svc
	}
	return m
}

// Load reads a manifest from filePath.
// A missing file yields an error matching os.ErrNotExist.
func Load(filePath string) (*Manifest, error) {
	data, err := os.ReadFile(filePath) // #nosec G304 -- filePath is controlled by application, not user input
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest from %s: %w", filePath, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", filePath, err)
	}
	if m.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported manifest version %q in %s", m.Version, filePath)
	}
	if m.Services == nil {
		m.Services = make(map[string]*Service)
	}
	return &m, nil
}

// Save writes the manifest to filePath atomically.
func (m *Manifest) Save(filePath string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest for %s: %w", filePath, err)
	}
	return writeAtomic(filePath, append(data, '\n'), "manifest-*.tmp")
}

// Keys returns the service keys in sorted order.
func (m *Manifest) Keys() []string {
	keys := make([]string, 0, len(m.Services))
	for k := range m.Services {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Delete removes the file at filePath. A missing file is not an error.
func Delete(filePath string) error {
	if err := os.Remove(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", filePath, err)
	}
	return nil
}

// writeAtomic writes data to a temp file in the target directory, syncs it
// and renames it over filePath.
func writeAtomic(filePath string, data []byte, pattern string) error {
	dir := filepath.Dir(filePath)
	tmpFile, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file in directory %s for %s: %w", dir, filePath, err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()    // Best effort cleanup
		_ = os.Remove(tmpPath) // Best effort cleanup
		return fmt.Errorf("failed to write temp file %s for %s: %w", tmpPath, filePath, err)
	}

	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()    // Best effort cleanup
		_ = os.Remove(tmpPath) // Best effort cleanup
		return fmt.Errorf("failed to sync temp file %s for %s: %w", tmpPath, filePath, err)
	}

	_ = tmpFile.Close() // Explicit ignore - we've already synced

	if err := os.Rename(tmpPath, filePath); err != nil {
		_ = os.Remove(tmpPath) // Best effort cleanup
		return fmt.Errorf("failed to rename temp file %s to %s: %w", tmpPath, filePath, err)
	}
	return nil
}
