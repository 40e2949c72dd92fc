// Package config loads the settings of a generation run.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/tckz/go-datagen/internal/logging"
	"github.com/tckz/go-datagen/internal/metrics"
	"github.com/tckz/go-datagen/internal/shard"
)

type Config struct {
	Threads int    `yaml:"threads"`
	Schema  string `yaml:"schema"`
	Seed    uint64 `yaml:"seed"`

	Output  OutputConfig   `yaml:"output"`
	Log     logging.Config `yaml:"log"`
	Metrics metrics.Config `yaml:"metrics"`
}

type OutputConfig struct {
	Sink        string `yaml:"sink"`
	Dir         string `yaml:"dir"`
	BucketURL   string `yaml:"bucket_url"`
	Prefix      string `yaml:"prefix"`
	Compression string `yaml:"compression"`
	Manifest    *bool  `yaml:"manifest"`
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	manifest := true
	return Config{
		Threads: runtime.NumCPU(),
		Output: OutputConfig{
			Sink:        shard.BackendLocal,
			Dir:         ".",
			Prefix:      "data_",
			Compression: string(shard.CompressionNone),
			Manifest:    &manifest,
		},
		Log: logging.Config{
			Format: "text",
			Level:  "info",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("os.ReadFile: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// WriteManifest tells whether the run manifest should be written.
func (c Config) WriteManifest() bool {
	return c.Output.Manifest == nil || *c.Output.Manifest
}

// SinkConfig converts the output settings for shard.NewSink.
func (c Config) SinkConfig() shard.SinkConfig {
	return shard.SinkConfig{
		Backend:   c.Output.Sink,
		LocalDir:  c.Output.Dir,
		BucketURL: c.Output.BucketURL,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Threads < 1 {
		return fmt.Errorf("threads must be at least 1: %d", c.Threads)
	}
	if c.Schema == "" {
		return errors.New("schema must be specified")
	}
	switch c.Output.Sink {
	case shard.BackendLocal:
		if c.Output.Dir == "" {
			return errors.New("output.dir must be specified for local sink")
		}
	case shard.BackendBlob:
		if c.Output.BucketURL == "" {
			return errors.New("output.bucket_url must be specified for blob sink")
		}
	default:
		return fmt.Errorf("unknown output.sink: %s", c.Output.Sink)
	}
	if _, err := shard.ParseCompression(c.Output.Compression); err != nil {
		return fmt.Errorf("output.compression: %w", err)
	}
	return nil
}
