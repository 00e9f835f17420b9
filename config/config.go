// Package config holds the settings of the bridge, read from an optional YAML file and overridden by flags.
package config

import (
	"bytes"
	"io"
	"io/ioutil"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// PidFile is written into the cache folder on startup.
const PidFile = "tmjlink.pid"

type Kernel struct {
	// kernel adapter program, speaking json packets over stdin/stdout
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type APM struct {
	// tracing is disabled if empty
	ServerURL    string        `yaml:"server_url"`
	SecretToken  string        `yaml:"secret_token"`
	ServiceName  string        `yaml:"service_name"`
	FlushTimeout time.Duration `yaml:"flush_timeout"`
}

type Config struct {
	CacheDir string `yaml:"cache_dir"`
	Listen   string `yaml:"listen"`
	// owning host process, 0 disables the liveness probe
	HostPID        int           `yaml:"host_pid"`
	AcceptTimeout  time.Duration `yaml:"accept_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	MaxConnections int           `yaml:"max_connections"`
	Kernel         Kernel        `yaml:"kernel"`
	// html template with a <%= yield %> placeholder, defaults to layout.html.erb in the cache folder
	Layout string `yaml:"layout"`
	// stderr if empty
	LogFile string `yaml:"log_file"`
	APM     APM    `yaml:"apm"`
	Verbose bool   `yaml:"verbose"`
}

func Default() Config {
	return Config{
		CacheDir:      "/tmp/tmjlink",
		Listen:        "127.0.0.1:0",
		AcceptTimeout: time.Second,
		ReadTimeout:   time.Second,
		APM: APM{
			ServiceName:  "tmjlink",
			FlushTimeout: 5 * time.Second,
		},
	}
}

// Load reads the YAML file at path over the defaults.
func Load(path string) (Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "reading config")
	}
	cfg, err := Parse(data)
	return cfg, errors.Wrapf(err, "config %s", path)
}

// Parse decodes YAML over the defaults, unknown keys are an error.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first setting that can't work.
func (c Config) Validate() error {
	switch {
	case c.CacheDir == "":
		return errors.New("cache_dir is required")
	case c.Listen == "":
		return errors.New("listen is required")
	case c.HostPID < 0:
		return errors.Errorf("invalid host_pid %d", c.HostPID)
	case c.AcceptTimeout <= 0:
		return errors.Errorf("accept_timeout must be positive, got %s", c.AcceptTimeout)
	case c.ReadTimeout <= 0:
		return errors.Errorf("read_timeout must be positive, got %s", c.ReadTimeout)
	case c.MaxConnections < 0:
		return errors.Errorf("invalid max_connections %d", c.MaxConnections)
	case c.Kernel.Command == "":
		return errors.New("kernel.command is required")
	}
	return nil
}

// LayoutPath is the layout template to render the session history with.
func (c Config) LayoutPath() string {
	if c.Layout != "" {
		return c.Layout
	}
	return filepath.Join(c.CacheDir, "layout.html.erb")
}

// PidPath is where the process id is written.
func (c Config) PidPath() string {
	return filepath.Join(c.CacheDir, PidFile)
}
