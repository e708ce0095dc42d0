package bridge

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ConfigError aggregates every validation problem found in a bridge
// configuration file. Start refuses to run while any problem exists.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return strings.Join(e.Problems, "; ")
}

// DeviceConfig is one lidar device entry in the multi-device config.
type DeviceConfig struct {
	ID            string `json:"id"`
	LidarIP       string `json:"lidar_ip"`
	HostIP        string `json:"host_ip"`
	CmdDataPort   int    `json:"cmd_data_port"`
	PointDataPort int    `json:"point_data_port"`
	IMUDataPort   int    `json:"imu_data_port"`
	NDJSONUDPPort *int   `json:"ndjson_udp_port,omitempty"`
}

// BridgeBlock is the optional top-level "bridge" object controlling the
// helper process transport.
type BridgeBlock struct {
	Stdout        *bool `json:"stdout,omitempty"`
	NDJSONUDPPort *int  `json:"ndjson_udp_port,omitempty"`
}

// Config is the validated multi-device bridge configuration.
type Config struct {
	Lidars []DeviceConfig `json:"lidars"`
	Bridge *BridgeBlock   `json:"bridge,omitempty"`
}

// LoadConfig loads and strictly validates a bridge configuration file.
// The file must have a .json extension and be under the max file size.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s", cleanPath)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig decodes and validates raw configuration JSON. Required
// fields, IPv4 formats, port ranges, id uniqueness, and unknown keys at
// every level are all checked; every violation is collected into a single
// ConfigError rather than failing on the first.
func ParseConfig(data []byte) (*Config, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	var problems []string
	cfg := &Config{}

	rawLidars, ok := top["lidars"]
	if !ok {
		problems = append(problems, "'lidars' must be a non-empty array")
	} else {
		var entries []json.RawMessage
		if err := json.Unmarshal(rawLidars, &entries); err != nil || len(entries) == 0 {
			problems = append(problems, "'lidars' must be a non-empty array")
		} else {
			seen := make(map[string]int)
			for i, raw := range entries {
				dev, devProblems := parseDevice(i, raw)
				problems = append(problems, devProblems...)
				if dev.ID != "" {
					if first, dup := seen[dev.ID]; dup {
						problems = append(problems, fmt.Sprintf("lidars[%d].id duplicates lidars[%d].id", i, first))
					} else {
						seen[dev.ID] = i
					}
				}
				cfg.Lidars = append(cfg.Lidars, dev)
			}
		}
	}

	if rawBridge, ok := top["bridge"]; ok {
		block, blockProblems := parseBridgeBlock(rawBridge)
		problems = append(problems, blockProblems...)
		cfg.Bridge = block
	}

	for key := range top {
		if key != "lidars" && key != "bridge" {
			problems = append(problems, "top-level contains unknown keys")
			break
		}
	}

	if len(problems) > 0 {
		return nil, &ConfigError{Problems: problems}
	}
	return cfg, nil
}

// deviceKeys are the only keys allowed on a lidar device entry.
var deviceKeys = map[string]bool{
	"id":              true,
	"lidar_ip":        true,
	"host_ip":         true,
	"cmd_data_port":   true,
	"point_data_port": true,
	"imu_data_port":   true,
	"ndjson_udp_port": true,
}

func parseDevice(i int, raw json.RawMessage) (DeviceConfig, []string) {
	var problems []string
	var dev DeviceConfig

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return dev, []string{fmt.Sprintf("lidars[%d] must be an object", i)}
	}

	for _, k := range []string{"id", "lidar_ip", "host_ip", "cmd_data_port", "point_data_port", "imu_data_port"} {
		if _, ok := fields[k]; !ok {
			problems = append(problems, fmt.Sprintf("lidars[%d].%s is required", i, k))
		}
	}

	if raw, ok := fields["id"]; ok {
		if err := json.Unmarshal(raw, &dev.ID); err != nil || dev.ID == "" {
			problems = append(problems, fmt.Sprintf("lidars[%d].id must be a non-empty string", i))
		}
	}

	for key, dst := range map[string]*string{"lidar_ip": &dev.LidarIP, "host_ip": &dev.HostIP} {
		if raw, ok := fields[key]; ok {
			if err := json.Unmarshal(raw, dst); err != nil || net.ParseIP(*dst) == nil || strings.Contains(*dst, ":") {
				problems = append(problems, fmt.Sprintf("lidars[%d].%s must be a valid IPv4 string", i, key))
			}
		}
	}

	for key, dst := range map[string]*int{
		"cmd_data_port":   &dev.CmdDataPort,
		"point_data_port": &dev.PointDataPort,
		"imu_data_port":   &dev.IMUDataPort,
	} {
		if raw, ok := fields[key]; ok {
			if err := json.Unmarshal(raw, dst); err != nil || *dst < 1 || *dst > 65535 {
				problems = append(problems, fmt.Sprintf("lidars[%d].%s must be integer in [1,65535]", i, key))
			}
		}
	}

	if raw, ok := fields["ndjson_udp_port"]; ok {
		var port int
		if err := json.Unmarshal(raw, &port); err != nil || port < 1 || port > 65535 {
			problems = append(problems, fmt.Sprintf("lidars[%d].ndjson_udp_port must be integer in [1,65535]", i))
		} else {
			dev.NDJSONUDPPort = &port
		}
	}

	if extra := unknownKeys(fields, deviceKeys); len(extra) > 0 {
		problems = append(problems, fmt.Sprintf("lidars[%d] contains unknown keys: %v", i, extra))
	}

	return dev, problems
}

var bridgeKeys = map[string]bool{
	"stdout":          true,
	"ndjson_udp_port": true,
}

func parseBridgeBlock(raw json.RawMessage) (*BridgeBlock, []string) {
	var problems []string

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, []string{"'bridge' must be an object"}
	}

	block := &BridgeBlock{}
	if raw, ok := fields["stdout"]; ok {
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			problems = append(problems, "bridge.stdout must be boolean")
		} else {
			block.Stdout = &v
		}
	}
	if raw, ok := fields["ndjson_udp_port"]; ok {
		var port int
		if err := json.Unmarshal(raw, &port); err != nil || port < 1 || port > 65535 {
			problems = append(problems, "bridge.ndjson_udp_port must be integer in [1,65535]")
		} else {
			block.NDJSONUDPPort = &port
		}
	}

	if extra := unknownKeys(fields, bridgeKeys); len(extra) > 0 {
		problems = append(problems, fmt.Sprintf("bridge contains unknown keys: %v", extra))
	}

	return block, problems
}

func unknownKeys(fields map[string]json.RawMessage, allowed map[string]bool) []string {
	var extra []string
	for key := range fields {
		if !allowed[key] {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	return extra
}
