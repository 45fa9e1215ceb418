package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical corridor defaults file.
// This is the single source of truth for all default timing values.
const DefaultConfigPath = "config/corridor.defaults.json"

// DefaultIntersectionCapacity is the queue capacity assumed for an
// intersection whose definition does not specify one.
const DefaultIntersectionCapacity = 12.0

// IntersectionSpec describes one junction in the corridor layout. Position
// defaults to the array index, so a simple list in driving order needs no
// explicit positions.
type IntersectionSpec struct {
	ID       string   `json:"id"`
	Position *int     `json:"position,omitempty"`
	Capacity *float64 `json:"capacity,omitempty"`
}

// GetPosition returns the corridor position or the array index fallback.
func (s IntersectionSpec) GetPosition(index int) int {
	if s.Position == nil {
		return index
	}
	return *s.Position
}

// GetCapacity returns the approach capacity or the default.
func (s IntersectionSpec) GetCapacity() float64 {
	if s.Capacity == nil {
		return DefaultIntersectionCapacity
	}
	return *s.Capacity
}

// CorridorConfig represents the root configuration for one coordinated
// corridor: the intersection layout plus the timing and incident parameters.
// The schema matches the /api/config endpoint so the same JSON works for
// startup configuration and operator inspection.
type CorridorConfig struct {
	Name          *string            `json:"name,omitempty"`
	Intersections []IntersectionSpec `json:"intersections,omitempty"`

	// Control loop params
	TickIntervalMS *int64   `json:"tick_interval_ms,omitempty"`
	SmoothingAlpha *float64 `json:"smoothing_alpha,omitempty"`
	InboxCapacity  *int     `json:"inbox_capacity,omitempty"`

	// Phase timing params
	MinGreenMS        *int64   `json:"min_green_ms,omitempty"`
	MaxGreenMS        *int64   `json:"max_green_ms,omitempty"`
	YellowMS          *int64   `json:"yellow_ms,omitempty"`
	HeadroomThreshold *float64 `json:"capacity_headroom_threshold,omitempty"`
	ApproachGainMS    *int64   `json:"approach_gain_ms,omitempty"`
	ApproachCapMS     *int64   `json:"approach_cap_ms,omitempty"`

	// Incident params
	IncidentSeverityThreshold *float64 `json:"incident_severity_threshold,omitempty"`
	IncidentTimeoutMS         *int64   `json:"incident_timeout_ms,omitempty"`

	// Controller gateway push target; empty disables the notifier
	GatewayURL *string `json:"gateway_url,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyCorridorConfig returns a CorridorConfig with all fields set to nil.
// Use LoadCorridorConfig to load actual values from a layout file.
func EmptyCorridorConfig() *CorridorConfig {
	return &CorridorConfig{}
}

// DefaultCorridorConfig returns a config populated with the stock parameter
// values. The intersection layout stays empty; there is no sensible default
// corridor.
func DefaultCorridorConfig() *CorridorConfig {
	return &CorridorConfig{
		Name:                      ptrString("corridor"),
		TickIntervalMS:            ptrInt64(1000),
		SmoothingAlpha:            ptrFloat64(0.4),
		InboxCapacity:             ptrInt(1024),
		MinGreenMS:                ptrInt64(10000),
		MaxGreenMS:                ptrInt64(45000),
		YellowMS:                  ptrInt64(3000),
		HeadroomThreshold:         ptrFloat64(2.0),
		ApproachGainMS:            ptrInt64(2000),
		ApproachCapMS:             ptrInt64(10000),
		IncidentSeverityThreshold: ptrFloat64(0.7),
		IncidentTimeoutMS:         ptrInt64(120000),
	}
}

// LoadCorridorConfig loads a CorridorConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON retain their default values,
// so partial configs are safe.
func LoadCorridorConfig(path string) (*CorridorConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyCorridorConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical corridor defaults from
// DefaultConfigPath. It searches for the file in the current directory and
// common parent directories. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *CorridorConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadCorridorConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *CorridorConfig) Validate() error {
	if c.TickIntervalMS != nil && *c.TickIntervalMS <= 0 {
		return fmt.Errorf("tick_interval_ms must be positive, got %d", *c.TickIntervalMS)
	}
	if c.SmoothingAlpha != nil {
		if *c.SmoothingAlpha < 0 || *c.SmoothingAlpha > 1 {
			return fmt.Errorf("smoothing_alpha must be between 0 and 1, got %f", *c.SmoothingAlpha)
		}
	}
	if c.MinGreenMS != nil && *c.MinGreenMS <= 0 {
		return fmt.Errorf("min_green_ms must be positive, got %d", *c.MinGreenMS)
	}
	if c.MaxGreenMS != nil && c.MinGreenMS != nil && *c.MaxGreenMS < *c.MinGreenMS {
		return fmt.Errorf("max_green_ms %d must be at least min_green_ms %d", *c.MaxGreenMS, *c.MinGreenMS)
	}
	if c.YellowMS != nil && *c.YellowMS <= 0 {
		return fmt.Errorf("yellow_ms must be positive, got %d", *c.YellowMS)
	}
	if c.HeadroomThreshold != nil && *c.HeadroomThreshold < 0 {
		return fmt.Errorf("capacity_headroom_threshold must be non-negative, got %f", *c.HeadroomThreshold)
	}
	if c.IncidentSeverityThreshold != nil && *c.IncidentSeverityThreshold < 0 {
		return fmt.Errorf("incident_severity_threshold must be non-negative, got %f", *c.IncidentSeverityThreshold)
	}
	if c.IncidentTimeoutMS != nil && *c.IncidentTimeoutMS <= 0 {
		return fmt.Errorf("incident_timeout_ms must be positive, got %d", *c.IncidentTimeoutMS)
	}
	if c.InboxCapacity != nil && *c.InboxCapacity < 0 {
		return fmt.Errorf("inbox_capacity must be non-negative, got %d", *c.InboxCapacity)
	}

	seen := make(map[string]bool, len(c.Intersections))
	for i, ix := range c.Intersections {
		if ix.ID == "" {
			return fmt.Errorf("intersections[%d] has no id", i)
		}
		if seen[ix.ID] {
			return fmt.Errorf("duplicate intersection id %q", ix.ID)
		}
		seen[ix.ID] = true
		if ix.Capacity != nil && *ix.Capacity <= 0 {
			return fmt.Errorf("intersection %q capacity must be positive, got %f", ix.ID, *ix.Capacity)
		}
	}
	return nil
}

// GetName returns the corridor name or the default.
func (c *CorridorConfig) GetName() string {
	if c.Name == nil || *c.Name == "" {
		return "corridor"
	}
	return *c.Name
}

// GetTickInterval returns the tick_interval_ms value as a duration.
func (c *CorridorConfig) GetTickInterval() time.Duration {
	if c.TickIntervalMS == nil || *c.TickIntervalMS <= 0 {
		return time.Second // default
	}
	return time.Duration(*c.TickIntervalMS) * time.Millisecond
}

// GetSmoothingAlpha returns the smoothing_alpha value or the default.
func (c *CorridorConfig) GetSmoothingAlpha() float64 {
	if c.SmoothingAlpha == nil {
		return 0.4
	}
	return *c.SmoothingAlpha
}

// GetInboxCapacity returns the inbox_capacity value or the default.
func (c *CorridorConfig) GetInboxCapacity() int {
	if c.InboxCapacity == nil || *c.InboxCapacity == 0 {
		return 1024
	}
	return *c.InboxCapacity
}

// GetMinGreen returns the min_green_ms value as a duration.
func (c *CorridorConfig) GetMinGreen() time.Duration {
	if c.MinGreenMS == nil || *c.MinGreenMS <= 0 {
		return 10 * time.Second
	}
	return time.Duration(*c.MinGreenMS) * time.Millisecond
}

// GetMaxGreen returns the max_green_ms value as a duration.
func (c *CorridorConfig) GetMaxGreen() time.Duration {
	if c.MaxGreenMS == nil || *c.MaxGreenMS <= 0 {
		return 45 * time.Second
	}
	return time.Duration(*c.MaxGreenMS) * time.Millisecond
}

// GetYellow returns the yellow_ms value as a duration.
func (c *CorridorConfig) GetYellow() time.Duration {
	if c.YellowMS == nil || *c.YellowMS <= 0 {
		return 3 * time.Second
	}
	return time.Duration(*c.YellowMS) * time.Millisecond
}

// GetHeadroomThreshold returns the capacity_headroom_threshold value or the default.
func (c *CorridorConfig) GetHeadroomThreshold() float64 {
	if c.HeadroomThreshold == nil {
		return 2.0
	}
	return *c.HeadroomThreshold
}

// GetApproachGain returns the approach_gain_ms value as a duration.
func (c *CorridorConfig) GetApproachGain() time.Duration {
	if c.ApproachGainMS == nil || *c.ApproachGainMS < 0 {
		return 2 * time.Second
	}
	return time.Duration(*c.ApproachGainMS) * time.Millisecond
}

// GetApproachCap returns the approach_cap_ms value as a duration.
func (c *CorridorConfig) GetApproachCap() time.Duration {
	if c.ApproachCapMS == nil || *c.ApproachCapMS < 0 {
		return 10 * time.Second
	}
	return time.Duration(*c.ApproachCapMS) * time.Millisecond
}

// GetIncidentSeverityThreshold returns the incident_severity_threshold value or the default.
func (c *CorridorConfig) GetIncidentSeverityThreshold() float64 {
	if c.IncidentSeverityThreshold == nil {
		return 0.7
	}
	return *c.IncidentSeverityThreshold
}

// GetIncidentTimeout returns the incident_timeout_ms value as a duration.
func (c *CorridorConfig) GetIncidentTimeout() time.Duration {
	if c.IncidentTimeoutMS == nil || *c.IncidentTimeoutMS <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(*c.IncidentTimeoutMS) * time.Millisecond
}

// GetGatewayURL returns the gateway_url value; empty means no gateway push.
func (c *CorridorConfig) GetGatewayURL() string {
	if c.GatewayURL == nil {
		return ""
	}
	return *c.GatewayURL
}
