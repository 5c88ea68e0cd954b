// Package config holds the application configuration for the augmentation
// pipeline commands. Values come from an optional YAML file with flag
// overrides applied by the command layer.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Mode names for the producer pool.
const (
	ModeThreaded = "threaded"
	ModeIsolated = "isolated"
)

// Simulator shapes the synthetic data source.
type Simulator struct {
	Batches   int `yaml:"batches"`
	BatchSize int `yaml:"batch_size"`
	Width     int `yaml:"width"`
	Height    int `yaml:"height"`
	Keypoints int `yaml:"keypoints"`
}

// AppConfig is the full configuration of the augpipe pipeline.
type AppConfig struct {
	// Seed for the root random stream. Negative means entropy-seeded.
	Seed int64 `yaml:"seed"`
	// Mode selects how producer workers obtain random streams.
	Mode string `yaml:"mode"`

	LoadWorkers    int `yaml:"load_workers"`
	AugmentWorkers int `yaml:"augment_workers"`
	QueueSize      int `yaml:"queue_size"`

	// Endpoint is the ZeroMQ PULL endpoint for a remote feed. Empty runs
	// the built-in simulator instead.
	Endpoint string `yaml:"endpoint"`

	// Port of the monitoring HTTP server. Zero disables it.
	Port int `yaml:"port"`

	// FlipProbability and BrightnessMax parameterize the demo pipeline.
	FlipProbability float64 `yaml:"flip_probability"`
	BrightnessMax   int     `yaml:"brightness_max"`

	BatchLogEnabled bool   `yaml:"batch_log"`
	BatchLogDir     string `yaml:"batch_log_dir"`

	Simulator Simulator `yaml:"simulator"`
}

// Default returns the configuration used when no file or flags override it.
func Default() AppConfig {
	return AppConfig{
		Seed:            -1,
		Mode:            ModeThreaded,
		LoadWorkers:     1,
		AugmentWorkers:  0, // augmenter picks NumCPU-1
		QueueSize:       50,
		Port:            8888,
		FlipProbability: 0.5,
		BrightnessMax:   30,
		BatchLogDir:     "batchlog",
		Simulator: Simulator{
			Batches:   64,
			BatchSize: 8,
			Width:     64,
			Height:    64,
			Keypoints: 4,
		},
	}
}

// FromFile loads a YAML configuration on top of the defaults.
func FromFile(path string) (AppConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parse config")
	}
	return cfg, cfg.Validate()
}

// Validate rejects values the pipeline cannot run with.
func (c AppConfig) Validate() error {
	if c.Mode != ModeThreaded && c.Mode != ModeIsolated {
		return errors.Errorf("unknown mode %q", c.Mode)
	}
	if c.LoadWorkers < 1 {
		return errors.New("load_workers must be at least 1")
	}
	if c.AugmentWorkers < 0 {
		return errors.New("augment_workers must not be negative")
	}
	if c.FlipProbability < 0 || c.FlipProbability > 1 {
		return errors.New("flip_probability must be in [0, 1]")
	}
	if c.BrightnessMax < 0 {
		return errors.New("brightness_max must not be negative")
	}
	return nil
}
