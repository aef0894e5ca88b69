// Package config loads server configuration from a YAML file.
//
// Every timing knob of the orchestration layer (poll cadence, warm-up,
// stop grace, session ceiling) lives here so operators can tune them
// without a rebuild.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can be written as Go
// duration strings ("30s", "10m").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full server configuration.
type Config struct {
	// Listen is the address the HTTP/WebSocket server binds to.
	Listen string `yaml:"listen"`

	// WorkerBin is the load-generation worker executable.
	WorkerBin string `yaml:"worker_bin"`

	// DefaultScript is the script passed to the worker when a session
	// does not supply a generated one.
	DefaultScript string `yaml:"default_script"`

	// BasePort is the first port handed out to worker instances.
	BasePort int `yaml:"base_port"`

	// PollInterval is the cadence of the stats poller.
	PollInterval Duration `yaml:"poll_interval"`

	// Warmup is how long to wait after spawning a worker before its
	// embedded stats server is assumed reachable.
	Warmup Duration `yaml:"warmup"`

	// StopGrace is how long a worker gets to exit after a graceful
	// termination request before it is killed.
	StopGrace Duration `yaml:"stop_grace"`

	// SessionTimeout is the hard ceiling on session lifetime.
	SessionTimeout Duration `yaml:"session_timeout"`

	// StatsBuffer is the capacity of the per-session stats stream.
	StatsBuffer int `yaml:"stats_buffer"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Listen:         ":8080",
		WorkerBin:      "locust",
		DefaultScript:  "locustfile.py",
		BasePort:       8090,
		PollInterval:   Duration(time.Second),
		Warmup:         Duration(2 * time.Second),
		StopGrace:      Duration(5 * time.Second),
		SessionTimeout: Duration(600 * time.Second),
		StatsBuffer:    16,
	}
}

// Load reads configuration from path. An empty path or a missing file
// yields the defaults; a file that exists but does not parse is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}
