// Package config provides configuration loading and management for voxeltk.
// It handles loading configuration from YAML files, applies VOXELTK_*
// environment overrides and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"voxeltk/pkg/registration"
	"voxeltk/pkg/volume"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "VOXELTK_"

// Parallel configures the voxel traversal scheduler.
type Parallel struct {
	// Workers is the number of goroutines per traversal; 0 uses GOMAXPROCS
	Workers int `yaml:"workers" env:"WORKERS"`

	// Grain is the number of voxels per work unit; 0 picks one automatically
	Grain int `yaml:"grain" env:"GRAIN"`
}

// Phantom describes the synthetic input volume.
type Phantom struct {
	// Size is the extent along x, y and z in voxels
	Size []int `yaml:"size" env:"SIZE"`

	// Frames is the number of time frames
	Frames int `yaml:"frames" env:"FRAMES"`

	// Spacing is the voxel size along x, y and z in mm
	Spacing []float64 `yaml:"spacing" env:"SPACING"`

	// Motion is the phantom displacement per frame in mm along x, y and z
	Motion []float64 `yaml:"motion" env:"MOTION"`

	// Noise is the standard deviation of additive Gaussian noise
	Noise float64 `yaml:"noise" env:"NOISE"`

	Seed uint64 `yaml:"seed" env:"SEED"`
}

// Filter configures the smoothing and gradient stages.
type Filter struct {
	// Sigma is the Gaussian standard deviation in mm; 0 disables smoothing
	Sigma float64 `yaml:"sigma" env:"SIGMA"`

	// Spectral selects FFT low-pass smoothing instead of convolution
	Spectral bool `yaml:"spectral" env:"SPECTRAL"`

	// Cutoff is the spectral low-pass cutoff in cycles per voxel
	Cutoff float64 `yaml:"cutoff" env:"CUTOFF"`

	// Padding excludes voxels at or below this value from the gradient
	Padding float64 `yaml:"padding" env:"PADDING"`
}

// Registration configures the affine resampling and similarity stage.
type Registration struct {
	// Parameters are the 12 affine DOFs: tx ty tz rx ry rz sx sy sz sxy sxz syz
	Parameters []float64 `yaml:"parameters" env:"PARAMETERS"`

	// Interpolation is "linear" or "cubic"
	Interpolation string `yaml:"interpolation" env:"INTERPOLATION"`

	// Bins is the number of joint histogram bins per image
	Bins int `yaml:"bins" env:"BINS"`

	// ErrorFunction is the radial error used for landmark errors
	ErrorFunction string `yaml:"errorFunction" env:"ERROR_FUNCTION"`

	// Threshold is the error function's distance parameter
	Threshold float64 `yaml:"threshold" env:"THRESHOLD"`
}

// Output configures what is written and how much is logged.
type Output struct {
	// Dir receives all output files
	Dir string `yaml:"dir" env:"DIR"`

	// VTK writes every stage as a legacy VTK volume
	VTK bool `yaml:"vtk" env:"VTK"`

	// Slices writes TIFF slice sequences of the resampled volume
	Slices bool `yaml:"slices" env:"SLICES"`

	// SliceAxis is the axis normal to the exported slices
	SliceAxis string `yaml:"sliceAxis" env:"SLICE_AXIS"`

	// Verbose enables debug logging
	Verbose bool `yaml:"verbose" env:"VERBOSE"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	Parallel     Parallel     `yaml:"parallel" envPrefix:"PARALLEL_"`
	Phantom      Phantom      `yaml:"phantom" envPrefix:"PHANTOM_"`
	Filter       Filter       `yaml:"filter" envPrefix:"FILTER_"`
	Registration Registration `yaml:"registration" envPrefix:"REGISTRATION_"`
	Output       Output       `yaml:"output" envPrefix:"OUTPUT_"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Parallel.Workers = runtime.NumCPU()
	cfg.Parallel.Grain = 0

	cfg.Phantom.Size = []int{64, 64, 32}
	cfg.Phantom.Frames = 1
	cfg.Phantom.Spacing = []float64{1, 1, 2}
	cfg.Phantom.Motion = []float64{1, 0, 0}
	cfg.Phantom.Noise = 5
	cfg.Phantom.Seed = 1

	cfg.Filter.Sigma = 1
	cfg.Filter.Cutoff = 0.15
	cfg.Filter.Padding = -1

	cfg.Registration.Parameters = []float64{2, -1, 0, 0, 0, 5, 100, 100, 100, 0, 0, 0}
	cfg.Registration.Interpolation = "linear"
	cfg.Registration.Bins = 64
	cfg.Registration.ErrorFunction = registration.Charbonnier.String()
	cfg.Registration.Threshold = 1

	cfg.Output.Dir = "output"
	cfg.Output.VTK = true
	cfg.Output.Slices = false
	cfg.Output.SliceAxis = "z"
	cfg.Output.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file and applies environment
// overrides. If the file doesn't exist, the defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("error reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with the VOXELTK_* environment variables that are
// set, e.g. VOXELTK_PARALLEL_WORKERS or VOXELTK_PHANTOM_SIZE=32,32,16.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks the configuration for values no stage can work with.
func (c *Config) Validate() error {
	if c.Parallel.Workers < 0 || c.Parallel.Grain < 0 {
		return fmt.Errorf("config: negative workers or grain")
	}
	if len(c.Phantom.Size) != 3 || len(c.Phantom.Spacing) != 3 || len(c.Phantom.Motion) != 3 {
		return fmt.Errorf("config: phantom size, spacing and motion need 3 values")
	}
	attr := volume.Attributes{
		X: c.Phantom.Size[0], Y: c.Phantom.Size[1], Z: c.Phantom.Size[2], T: c.Phantom.Frames,
		DX: c.Phantom.Spacing[0], DY: c.Phantom.Spacing[1], DZ: c.Phantom.Spacing[2],
	}
	if err := attr.Validate(); err != nil {
		return fmt.Errorf("config: phantom: %w", err)
	}
	if c.Filter.Sigma < 0 {
		return fmt.Errorf("config: negative sigma %g", c.Filter.Sigma)
	}
	if c.Filter.Spectral && (c.Filter.Cutoff <= 0 || c.Filter.Cutoff > 0.5) {
		return fmt.Errorf("config: spectral cutoff %g outside (0, 0.5]", c.Filter.Cutoff)
	}
	if len(c.Registration.Parameters) != 12 {
		return fmt.Errorf("config: %d affine parameters, want 12", len(c.Registration.Parameters))
	}
	switch c.Registration.Interpolation {
	case "linear", "cubic":
	default:
		return fmt.Errorf("config: unknown interpolation %q", c.Registration.Interpolation)
	}
	if c.Registration.Bins < 2 {
		return fmt.Errorf("config: need at least 2 histogram bins, got %d", c.Registration.Bins)
	}
	if _, err := registration.ParseKind(c.Registration.ErrorFunction); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := volume.ParseAxis(c.Output.SliceAxis); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
