// Package config loads the sensor manifest: the YAML file declaring
// which adapters the hub should construct and register at startup.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SensorEntry declares one sensor to register.
type SensorEntry struct {
	ID     string         `yaml:"id"`
	Kind   string         `yaml:"kind"`
	Params map[string]any `yaml:"params"`
}

// Manifest is the root of the sensor manifest file.
type Manifest struct {
	Sensors []SensorEntry `yaml:"sensors"`
}

// LoadManifest reads and validates a sensor manifest. Unknown YAML keys
// are rejected.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes and validates raw manifest YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks every entry has a unique non-empty id and a kind.
func (m *Manifest) Validate() error {
	seen := make(map[string]bool)
	for i, s := range m.Sensors {
		if s.ID == "" {
			return fmt.Errorf("sensors[%d]: id is required", i)
		}
		if s.Kind == "" {
			return fmt.Errorf("sensors[%d] (%s): kind is required", i, s.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("sensors[%d]: duplicate sensor id %q", i, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// String returns a params value as a string, or the fallback.
func (s SensorEntry) String(key, fallback string) string {
	if v, ok := s.Params[key].(string); ok {
		return v
	}
	return fallback
}

// Float returns a params value as a float64, or the fallback. YAML
// integers are accepted.
func (s SensorEntry) Float(key string, fallback float64) float64 {
	switch v := s.Params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}

// Int returns a params value as an int, or the fallback.
func (s SensorEntry) Int(key string, fallback int) int {
	switch v := s.Params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}

// Bool returns a params value as a bool, or the fallback.
func (s SensorEntry) Bool(key string, fallback bool) bool {
	if v, ok := s.Params[key].(bool); ok {
		return v
	}
	return fallback
}
