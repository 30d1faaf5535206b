package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"

	"github.com/andywolf/mountrace/internal/device"
	"github.com/andywolf/mountrace/internal/observe"
)

// Config represents the full mountrace configuration
type Config struct {
	Server  ServerConfig       `mapstructure:"server" yaml:"server"`
	Device  device.MountParams `mapstructure:"device" yaml:"device"`
	Log     LogConfig          `mapstructure:"log" yaml:"log"`
	Search  SearchConfig       `mapstructure:"search" yaml:"search"`
	Output  OutputConfig       `mapstructure:"output" yaml:"output"`
	Logging LoggingConfig      `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig describes the lifecycle server and the mount point under test
type ServerConfig struct {
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	Username       string        `mapstructure:"username" yaml:"username"`
	Password       string        `mapstructure:"password" yaml:"password,omitempty"`
	PasswordSecret string        `mapstructure:"password_secret" yaml:"password_secret,omitempty"` // Secret Manager path, overrides Password
	Topology       string        `mapstructure:"topology" yaml:"topology"`
	NodeID         string        `mapstructure:"node_id" yaml:"node_id"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// LogConfig locates the server log and the markers recognized in it
type LogConfig struct {
	Path    string          `mapstructure:"path" yaml:"path"`
	Markers observe.Markers `mapstructure:"markers" yaml:"markers"`
}

// SearchConfig controls the delay ramp and every bounded wait
type SearchConfig struct {
	Floor              time.Duration `mapstructure:"floor" yaml:"floor"`
	Ceiling            time.Duration `mapstructure:"ceiling" yaml:"ceiling"`
	Step               time.Duration `mapstructure:"step" yaml:"step"`
	PollInterval       time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	UnmountTimeout     time.Duration `mapstructure:"unmount_timeout" yaml:"unmount_timeout"`
	HealthcheckTimeout time.Duration `mapstructure:"healthcheck_timeout" yaml:"healthcheck_timeout"`
	StatusCheck        bool          `mapstructure:"status_check" yaml:"status_check"`
	StatusMarker       string        `mapstructure:"status_marker" yaml:"status_marker"`
	CleanupUnmount     bool          `mapstructure:"cleanup_unmount" yaml:"cleanup_unmount"`
	MaxCycles          int           `mapstructure:"max_cycles" yaml:"max_cycles"` // 0 runs until stopped
}

// OutputConfig controls where probe records are written
type OutputConfig struct {
	ProbesFile string `mapstructure:"probes_file" yaml:"probes_file"` // JSONL, empty disables
}

// LoggingConfig controls local and structured logging
type LoggingConfig struct {
	Verbose      bool   `mapstructure:"verbose" yaml:"verbose"`
	Structured   bool   `mapstructure:"structured" yaml:"structured"`       // JSON entries on stdout
	CloudProject string `mapstructure:"cloud_project" yaml:"cloud_project"` // enables Cloud Logging
	LogID        string `mapstructure:"log_id" yaml:"log_id"`
}

// Default returns a configuration populated with every default value
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:        "http://localhost:8181",
			Username:       "admin",
			Password:       "admin",
			Topology:       "cli",
			NodeID:         "ME_CLI",
			RequestTimeout: 30 * time.Second,
		},
		Device: device.MountParams{
			Host:              "192.168.1.223",
			Port:              23,
			TransportType:     "telnet",
			DeviceType:        "ios xr",
			DeviceVersion:     "6.6.1",
			Username:          "cisco",
			Password:          "ciscocisco",
			Reconcile:         false,
			JournalSize:       150,
			DryRunJournalSize: 150,
			KeepaliveTimeout:  180,
		},
		Log: LogConfig{
			Path:    "data/log/karaf.log",
			Markers: observe.DefaultMarkers(),
		},
		Search: SearchConfig{
			Floor:              0,
			Ceiling:            2 * time.Second,
			Step:               10 * time.Millisecond,
			PollInterval:       observe.DefaultPollInterval,
			ConnectTimeout:     15 * time.Second,
			UnmountTimeout:     10 * time.Second,
			HealthcheckTimeout: 15 * time.Second,
			StatusMarker:       observe.DefaultMarkers().Conflict,
		},
		Output: OutputConfig{
			ProbesFile: "probes.jsonl",
		},
		Logging: LoggingConfig{
			LogID: "mountrace",
		},
	}
}

// SetDefaults registers every default with v so that environment variables
// and flags can override keys that are absent from the config file.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.base_url", d.Server.BaseURL)
	v.SetDefault("server.username", d.Server.Username)
	v.SetDefault("server.password", d.Server.Password)
	v.SetDefault("server.password_secret", "")
	v.SetDefault("server.topology", d.Server.Topology)
	v.SetDefault("server.node_id", d.Server.NodeID)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)

	v.SetDefault("device.host", d.Device.Host)
	v.SetDefault("device.port", d.Device.Port)
	v.SetDefault("device.transport_type", d.Device.TransportType)
	v.SetDefault("device.device_type", d.Device.DeviceType)
	v.SetDefault("device.device_version", d.Device.DeviceVersion)
	v.SetDefault("device.username", d.Device.Username)
	v.SetDefault("device.password", d.Device.Password)
	v.SetDefault("device.password_secret", "")
	v.SetDefault("device.reconcile", d.Device.Reconcile)
	v.SetDefault("device.journal_size", d.Device.JournalSize)
	v.SetDefault("device.dry_run_journal_size", d.Device.DryRunJournalSize)
	v.SetDefault("device.keepalive_timeout", d.Device.KeepaliveTimeout)

	v.SetDefault("log.path", d.Log.Path)
	v.SetDefault("log.markers.conflict", d.Log.Markers.Conflict)
	v.SetDefault("log.markers.mounted", d.Log.Markers.Mounted)
	v.SetDefault("log.markers.prompt", d.Log.Markers.Prompt)
	v.SetDefault("log.markers.disconnected", d.Log.Markers.Disconnected)

	v.SetDefault("search.floor", d.Search.Floor)
	v.SetDefault("search.ceiling", d.Search.Ceiling)
	v.SetDefault("search.step", d.Search.Step)
	v.SetDefault("search.poll_interval", d.Search.PollInterval)
	v.SetDefault("search.connect_timeout", d.Search.ConnectTimeout)
	v.SetDefault("search.unmount_timeout", d.Search.UnmountTimeout)
	v.SetDefault("search.healthcheck_timeout", d.Search.HealthcheckTimeout)
	v.SetDefault("search.status_check", d.Search.StatusCheck)
	v.SetDefault("search.status_marker", d.Search.StatusMarker)
	v.SetDefault("search.cleanup_unmount", d.Search.CleanupUnmount)
	v.SetDefault("search.max_cycles", d.Search.MaxCycles)

	v.SetDefault("output.probes_file", d.Output.ProbesFile)

	v.SetDefault("logging.verbose", d.Logging.Verbose)
	v.SetDefault("logging.structured", d.Logging.Structured)
	v.SetDefault("logging.cloud_project", "")
	v.SetDefault("logging.log_id", d.Logging.LogID)
}

// Load loads configuration from the global viper instance
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom loads configuration from v (file, environment and bound flags)
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults
	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills values left empty by a partial config file
func applyDefaults(cfg *Config) {
	d := Default()

	if cfg.Server.Topology == "" {
		cfg.Server.Topology = d.Server.Topology
	}

	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = d.Server.RequestTimeout
	}

	if cfg.Log.Markers.Conflict == "" {
		cfg.Log.Markers.Conflict = d.Log.Markers.Conflict
	}
	if cfg.Log.Markers.Mounted == "" {
		cfg.Log.Markers.Mounted = d.Log.Markers.Mounted
	}
	if cfg.Log.Markers.Prompt == "" {
		cfg.Log.Markers.Prompt = d.Log.Markers.Prompt
	}
	if cfg.Log.Markers.Disconnected == "" {
		cfg.Log.Markers.Disconnected = d.Log.Markers.Disconnected
	}

	if cfg.Search.PollInterval == 0 {
		cfg.Search.PollInterval = d.Search.PollInterval
	}

	if cfg.Logging.LogID == "" {
		cfg.Logging.LogID = d.Logging.LogID
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server base_url is required")
	}
	if u, err := url.Parse(c.Server.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid server base_url: %q", c.Server.BaseURL)
	}

	if c.Server.NodeID == "" {
		return fmt.Errorf("server node_id is required")
	}

	if c.Log.Path == "" {
		return fmt.Errorf("log path is required")
	}

	if err := c.Log.Markers.Validate(); err != nil {
		return fmt.Errorf("invalid log markers: %w", err)
	}

	s := c.Search
	if s.Floor < 0 {
		return fmt.Errorf("search floor must not be negative")
	}
	if s.Ceiling <= s.Floor {
		return fmt.Errorf("search ceiling (%s) must be greater than floor (%s)", s.Ceiling, s.Floor)
	}
	if s.Step <= 0 {
		return fmt.Errorf("search step must be positive")
	}
	if s.PollInterval <= 0 {
		return fmt.Errorf("search poll_interval must be positive")
	}
	if s.ConnectTimeout <= 0 || s.UnmountTimeout <= 0 || s.HealthcheckTimeout <= 0 {
		return fmt.Errorf("search timeouts must be positive")
	}
	if s.MaxCycles < 0 {
		return fmt.Errorf("search max_cycles must not be negative")
	}
	if s.StatusCheck && s.StatusMarker == "" {
		return fmt.Errorf("search status_marker is required when status_check is enabled")
	}

	if c.Device.Host == "" {
		return fmt.Errorf("device host is required")
	}
	if c.Device.Port <= 0 || c.Device.Port > 65535 {
		return fmt.Errorf("invalid device port: %d", c.Device.Port)
	}

	return nil
}
