package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds defaults read from a YAML file. Flags given on the command
// line take precedence.
type Config struct {
	Output   string `yaml:"output"`
	Workers  int    `yaml:"workers"`
	Raw      bool   `yaml:"raw"`
	Zstd     bool   `yaml:"zstd"`
	LogLevel string `yaml:"log_level"`
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// apply sets every flag in fs that the config provides a value for and
// that was not changed on the command line.
func (c *Config) apply(fs *pflag.FlagSet) error {
	values := map[string]string{}
	if c.Output != "" {
		values["output"] = c.Output
	}
	if c.Workers != 0 {
		values["workers"] = strconv.Itoa(c.Workers)
	}
	if c.Raw {
		values["raw"] = "true"
	}
	if c.Zstd {
		values["zstd"] = "true"
	}
	if c.LogLevel != "" {
		values["log-level"] = c.LogLevel
	}

	for name, value := range values {
		f := fs.Lookup(name)
		if f == nil || f.Changed {
			continue
		}
		if err := fs.Set(name, value); err != nil {
			return fmt.Errorf("config %s: %w", name, err)
		}
	}
	return nil
}
