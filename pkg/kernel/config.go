package kernel

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ha1tch/minikern/pkg/disk"
)

// Config is the host-side configuration: where the disk image lives, how
// big a fresh one should be, and the workload the scheduler demo admits.
type Config struct {
	Disk struct {
		Image      string `yaml:"image"`
		NumSectors int    `yaml:"num_sectors"`
	} `yaml:"disk"`

	Workload []WorkloadThread `yaml:"workload"`
}

// WorkloadThread describes one synthetic thread of the scheduler demo.
type WorkloadThread struct {
	Name     string  `yaml:"name"`
	Priority int     `yaml:"priority"`
	Burst    float64 `yaml:"burst"`
	Arrival  int64   `yaml:"arrival"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Disk.Image = "disk.img"
	cfg.Disk.NumSectors = disk.DefaultNumSectors
	return cfg
}

// LoadConfig reads a YAML configuration file, filling unset fields with
// defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Disk.NumSectors <= 0 {
		return nil, fmt.Errorf("config %s: num_sectors must be positive", path)
	}
	return cfg, nil
}
