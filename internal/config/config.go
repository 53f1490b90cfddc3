package config

import (
	"errors"
	"os"
	"time"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	AccessPoint AccessPointConfig `yaml:"access_point"`
	Beacon      BeaconConfig      `yaml:"beacon"`
	Protocol    ProtocolConfig    `yaml:"protocol"`
	Simulator   SimulatorConfig   `yaml:"simulator"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	SendBuffer     int           `yaml:"send_buffer"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	PongWait       time.Duration `yaml:"pong_wait"`
	WriteWait      time.Duration `yaml:"write_wait"`
	InboundRate    float64       `yaml:"inbound_rate"`
	InboundBurst   int           `yaml:"inbound_burst"`
}

type AccessPointConfig struct {
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password"` // empty means provider-generated
}

type BeaconConfig struct {
	Enabled bool `yaml:"enabled"`
}

type ProtocolConfig struct {
	EnsureModeTimeout time.Duration `yaml:"ensure_mode_timeout"`
}

type SimulatorConfig struct {
	Robots     int           `yaml:"robots"`
	ReplyDelay time.Duration `yaml:"reply_delay"`
	FlakyRate  float64       `yaml:"flaky_rate"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			SendBuffer:     64,
			MaxMessageSize: 8192,
			PingInterval:   30 * time.Second,
			PongWait:       60 * time.Second,
			WriteWait:      10 * time.Second,
			InboundRate:    50,
			InboundBurst:   100,
		},
		AccessPoint: AccessPointConfig{
			SSID: "dezibot-hub",
		},
		Beacon: BeaconConfig{
			Enabled: true,
		},
		Protocol: ProtocolConfig{
			EnsureModeTimeout: 2 * time.Second,
		},
		Simulator: SimulatorConfig{
			Robots:     0,
			ReplyDelay: 50 * time.Millisecond,
			FlakyRate:  0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults. A missing file is fine (defaults
// apply); a malformed or invalid file is a startup error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, oops.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, oops.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, oops.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return oops.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.SendBuffer <= 0 {
		return oops.Errorf("server.send_buffer must be positive")
	}
	if c.Server.PingInterval <= 0 || c.Server.PongWait <= 0 || c.Server.WriteWait <= 0 {
		return oops.Errorf("server keep-alive intervals must be positive")
	}
	if c.Server.PingInterval >= c.Server.PongWait {
		return oops.Errorf("server.ping_interval must be shorter than server.pong_wait")
	}
	if c.Protocol.EnsureModeTimeout <= 0 {
		return oops.Errorf("protocol.ensure_mode_timeout must be positive")
	}
	if c.Simulator.Robots < 0 {
		return oops.Errorf("simulator.robots must not be negative")
	}
	if c.Simulator.FlakyRate < 0 || c.Simulator.FlakyRate > 1 {
		return oops.Errorf("simulator.flaky_rate must be within [0, 1]")
	}
	return nil
}
