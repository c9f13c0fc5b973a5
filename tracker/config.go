package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/milosgajdos/go-fusion/model"
)

const maxConfigSize = 1 * 1024 * 1024 // 1MB

// Config contains tracker configuration
type Config struct {
	// UseLidar enables lidar updates
	UseLidar bool `json:"use_lidar"`
	// UseRadar enables radar updates
	UseRadar bool `json:"use_radar"`
	// StdA is longitudinal acceleration noise standard deviation [m/s^2]
	StdA float64 `json:"std_a"`
	// StdYawDD is yaw acceleration noise standard deviation [rad/s^2]
	StdYawDD float64 `json:"std_yawdd"`
	// StdLaserPx is lidar x position noise standard deviation [m]
	StdLaserPx float64 `json:"std_laser_px"`
	// StdLaserPy is lidar y position noise standard deviation [m]
	StdLaserPy float64 `json:"std_laser_py"`
	// StdRadarRho is radar range noise standard deviation [m]
	StdRadarRho float64 `json:"std_radar_rho"`
	// StdRadarPhi is radar bearing noise standard deviation [rad]
	StdRadarPhi float64 `json:"std_radar_phi"`
	// StdRadarRhoDot is radar range rate noise standard deviation [m/s]
	StdRadarRhoDot float64 `json:"std_radar_rhodot"`
	// YawRateThreshold is the yaw rate [rad/s] below which CTRV motion is a straight line
	YawRateThreshold float64 `json:"yaw_rate_threshold"`
	// HeadingVxThreshold is the minimum |vx| [m/s] for deriving initial heading from radar
	HeadingVxThreshold float64 `json:"heading_vx_threshold"`
	// DefaultHeading is the initial heading [rad] used when it can not be derived
	DefaultHeading float64 `json:"default_heading"`
	// InitYawRate is the initial yaw rate [rad/s] after radar initialization
	InitYawRate float64 `json:"init_yaw_rate"`
	// Seed seeds the simulated process and measurement noise; 0 seeds from the clock.
	// The tracker only reads noise covariances, so Seed does not affect its estimates.
	Seed uint64 `json:"seed"`
}

// DefaultConfig returns default tracker configuration
func DefaultConfig() *Config {
	return &Config{
		UseLidar:           true,
		UseRadar:           true,
		StdA:               1.5,
		StdYawDD:           0.6,
		StdLaserPx:         0.15,
		StdLaserPy:         0.15,
		StdRadarRho:        0.3,
		StdRadarPhi:        0.03,
		StdRadarRhoDot:     0.3,
		YawRateThreshold:   model.DefaultYawRateThreshold,
		HeadingVxThreshold: 0.0001,
		DefaultHeading:     0.1,
		InitYawRate:        0.01,
	}
}

// LoadConfig reads JSON configuration from path and returns it.
// Fields missing from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration values are usable.
func (c *Config) Validate() error {
	stds := []struct {
		name string
		val  float64
	}{
		{"std_a", c.StdA},
		{"std_yawdd", c.StdYawDD},
		{"std_laser_px", c.StdLaserPx},
		{"std_laser_py", c.StdLaserPy},
		{"std_radar_rho", c.StdRadarRho},
		{"std_radar_phi", c.StdRadarPhi},
		{"std_radar_rhodot", c.StdRadarRhoDot},
	}

	for _, s := range stds {
		if s.val < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", s.name, s.val)
		}
	}

	if c.YawRateThreshold <= 0 {
		return fmt.Errorf("yaw_rate_threshold must be positive, got %f", c.YawRateThreshold)
	}

	if c.HeadingVxThreshold < 0 {
		return fmt.Errorf("heading_vx_threshold must be non-negative, got %f", c.HeadingVxThreshold)
	}

	return nil
}
