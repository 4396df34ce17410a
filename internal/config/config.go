package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Logger struct {
		Verbosity string `yaml:"verbosity"`
	} `yaml:"logger"`
	Compute struct {
		Backend           string `yaml:"backend"`
		TileWidth         int    `yaml:"tileWidth"`
		DeviceMemoryBytes int64  `yaml:"deviceMemoryBytes"`
	} `yaml:"compute"`
	Metrics struct {
		ListenAddress string `yaml:"listenAddress"`
	} `yaml:"metrics"`
	Bench struct {
		Rows int `yaml:"rows"`
		Cols int `yaml:"cols"`
	} `yaml:"bench"`
}

// Default returns the configuration used when no file is given: the tiled
// backend with the tile width the original kernels were tuned for.
func Default() *Config {
	var config Config
	config.Logger.Verbosity = "info"
	config.Compute.Backend = "tiled"
	config.Compute.TileWidth = 32
	config.Bench.Rows = 4096
	config.Bench.Cols = 1024
	return &config
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := Default()
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, err
	}

	return config, nil
}
