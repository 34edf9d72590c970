package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" or "5m"
// parse; bare numbers are taken as seconds.
type Duration struct {
	time.Duration
}

func seconds(d time.Duration) Duration { return Duration{d} }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", s, err)
		}
		d.Duration = parsed
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("config: invalid duration value: %w", err)
	}
	d.Duration = time.Duration(n) * time.Second
	return nil
}

type Config struct {
	Server Server `yaml:"server"`
	Redis  Redis  `yaml:"redis"`
	Auth   Auth   `yaml:"auth"`
	Hub    Hub    `yaml:"hub"`
	Limits Limits `yaml:"limits"`
}

type Server struct {
	Port        int    `yaml:"port"`
	Env         string `yaml:"env"`
	LogLevel    string `yaml:"log_level"`
	CORSOrigins string `yaml:"cors_origins"`
}

type Redis struct {
	URL         string   `yaml:"url"`
	SnapshotTTL Duration `yaml:"snapshot_ttl"`
}

type Auth struct {
	ServiceURL string `yaml:"service_url"`
	SecretKey  string `yaml:"secret_key"`
}

type Hub struct {
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`
	IdleTimeout       Duration `yaml:"idle_timeout"`
	SendBufferSize    int      `yaml:"send_buffer_size"`
	MaxMessageSize    int64    `yaml:"max_message_size"`
}

type Limits struct {
	API     Policy   `yaml:"api"`
	Socket  Policy   `yaml:"socket"`
	AuthTry Policy   `yaml:"auth"`
	Sweep   Duration `yaml:"sweep_interval"`
}

// Policy is one fixed-window rate-limit configuration.
type Policy struct {
	MaxRequests int      `yaml:"max_requests"`
	Window      Duration `yaml:"window"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: Server{
			Port:        8002,
			Env:         "dev",
			LogLevel:    "debug",
			CORSOrigins: "*",
		},
		Redis: Redis{
			SnapshotTTL: seconds(24 * time.Hour),
		},
		Hub: Hub{
			HeartbeatInterval: seconds(30 * time.Second),
			IdleTimeout:       seconds(5 * time.Minute),
			SendBufferSize:    256,
			MaxMessageSize:    65536,
		},
		Limits: Limits{
			API:     Policy{MaxRequests: 100, Window: seconds(time.Minute)},
			Socket:  Policy{MaxRequests: 50, Window: seconds(time.Second)},
			AuthTry: Policy{MaxRequests: 20, Window: seconds(5 * time.Minute)},
			Sweep:   seconds(time.Minute),
		},
	}

	// Load from yaml file if exists
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// Override with environment variables
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if env := os.Getenv("ENV"); env != "" {
		cfg.Server.Env = env
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.Server.CORSOrigins = origins
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
	}
	if authURL := os.Getenv("AUTH_SERVICE_URL"); authURL != "" {
		cfg.Auth.ServiceURL = authURL
	}
	if secretKey := os.Getenv("SECRET_KEY"); secretKey != "" {
		cfg.Auth.SecretKey = secretKey
	}
	if interval := os.Getenv("HEARTBEAT_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.Hub.HeartbeatInterval = Duration{d}
		}
	}
	if timeout := os.Getenv("IDLE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.Hub.IdleTimeout = Duration{d}
		}
	}

	return cfg, nil
}
