package config

// Durations are written in their string form ("2s", "10ms") so that a file
// produced by `mountrace init` reads back through viper unchanged.

type serverYAML struct {
	BaseURL        string `yaml:"base_url"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password,omitempty"`
	PasswordSecret string `yaml:"password_secret,omitempty"`
	Topology       string `yaml:"topology"`
	NodeID         string `yaml:"node_id"`
	RequestTimeout string `yaml:"request_timeout"`
}

// MarshalYAML implements yaml.Marshaler
func (s ServerConfig) MarshalYAML() (interface{}, error) {
	return serverYAML{
		BaseURL:        s.BaseURL,
		Username:       s.Username,
		Password:       s.Password,
		PasswordSecret: s.PasswordSecret,
		Topology:       s.Topology,
		NodeID:         s.NodeID,
		RequestTimeout: s.RequestTimeout.String(),
	}, nil
}

type searchYAML struct {
	Floor              string `yaml:"floor"`
	Ceiling            string `yaml:"ceiling"`
	Step               string `yaml:"step"`
	PollInterval       string `yaml:"poll_interval"`
	ConnectTimeout     string `yaml:"connect_timeout"`
	UnmountTimeout     string `yaml:"unmount_timeout"`
	HealthcheckTimeout string `yaml:"healthcheck_timeout"`
	StatusCheck        bool   `yaml:"status_check"`
	StatusMarker       string `yaml:"status_marker"`
	CleanupUnmount     bool   `yaml:"cleanup_unmount"`
	MaxCycles          int    `yaml:"max_cycles"`
}

// MarshalYAML implements yaml.Marshaler
func (s SearchConfig) MarshalYAML() (interface{}, error) {
	return searchYAML{
		Floor:              s.Floor.String(),
		Ceiling:            s.Ceiling.String(),
		Step:               s.Step.String(),
		PollInterval:       s.PollInterval.String(),
		ConnectTimeout:     s.ConnectTimeout.String(),
		UnmountTimeout:     s.UnmountTimeout.String(),
		HealthcheckTimeout: s.HealthcheckTimeout.String(),
		StatusCheck:        s.StatusCheck,
		StatusMarker:       s.StatusMarker,
		CleanupUnmount:     s.CleanupUnmount,
		MaxCycles:          s.MaxCycles,
	}, nil
}
