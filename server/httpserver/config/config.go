package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/THPTUHA/livelook/pkg/helper"
	"github.com/THPTUHA/livelook/server/registry"
)

var (
	DefaultFile     = "livelook.yaml"
	DefaultPort     = 10000
	DefaultLogLevel = "info"
	DefaultChannels = registry.DefaultChannels
	ShutdownTimeout = 5 * time.Second
)

var ErrInvalidConfig = errors.New("invalid config")

type Configs struct {
	HTTPServer struct {
		Port           int      `yaml:"port"`
		AllowOrigins   []string `yaml:"allow_origins"`
		TrustedProxies []string `yaml:"trusted_proxies"`
	} `yaml:"httpserver"`
	Channels []string `yaml:"channels"`
	Registry struct {
		TTL           time.Duration `yaml:"ttl"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"registry"`
	RTC struct {
		AppID          string        `yaml:"app_id"`
		AppCertificate string        `yaml:"app_certificate"`
		TokenTTL       time.Duration `yaml:"token_ttl"`
	} `yaml:"rtc"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Events struct {
		QueueSize int `yaml:"queue_size"`
	} `yaml:"events"`
	Nats struct {
		URL     string `yaml:"url"`
		Name    string `yaml:"name"`
		Subject string `yaml:"subject"`
	} `yaml:"nats"`
	Redis struct {
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		Password string `yaml:"password"`
		Channel  string `yaml:"channel"`
	} `yaml:"redis"`
	DB struct {
		Postgres struct {
			Username     string `yaml:"username"`
			Password     string `yaml:"password"`
			Port         int    `yaml:"port"`
			URI          string `yaml:"uri"`
			DatabaseName string `yaml:"databaseName"`
		} `yaml:"postgres"`
	} `yaml:"db"`
}

// Default returns the settings used when the config file leaves a key out.
func Default() *Configs {
	c := &Configs{}
	c.HTTPServer.Port = DefaultPort
	c.HTTPServer.AllowOrigins = []string{"*"}
	c.Channels = append([]string(nil), DefaultChannels...)
	c.Registry.TTL = 120 * time.Second
	c.Registry.SweepInterval = 10 * time.Second
	c.RTC.TokenTTL = 120 * time.Second
	c.Log.Level = DefaultLogLevel
	c.Nats.Name = "livelook"
	c.Nats.Subject = "livelook"
	c.Redis.Port = "6379"
	c.Redis.Channel = "livelook"
	c.DB.Postgres.Port = 5432
	return c
}

func (c *Configs) Validate() error {
	if c.HTTPServer.Port <= 0 || c.HTTPServer.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalidConfig, c.HTTPServer.Port)
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("%w: no channels", ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(c.Channels))
	for _, name := range c.Channels {
		name = strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("%w: empty channel name", ErrInvalidConfig)
		}
		if ok, whyNot := helper.IsChannelName(name); !ok {
			return fmt.Errorf("%w: channel %q contains %q", ErrInvalidConfig, name, whyNot)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("%w: duplicate channel %s", ErrInvalidConfig, name)
		}
		seen[name] = struct{}{}
	}
	if c.Registry.TTL <= 0 {
		return fmt.Errorf("%w: registry.ttl must be positive", ErrInvalidConfig)
	}
	if c.Registry.SweepInterval < time.Second {
		return fmt.Errorf("%w: registry.sweep_interval must be at least 1s", ErrInvalidConfig)
	}
	if c.RTC.TokenTTL <= 0 {
		return fmt.Errorf("%w: rtc.token_ttl must be positive", ErrInvalidConfig)
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("%w: negative rate limit", ErrInvalidConfig)
	}
	return nil
}

// PostgresDSN is empty when no database is configured.
func (c *Configs) PostgresDSN() string {
	pg := c.DB.Postgres
	if pg.URI == "" {
		return ""
	}
	if strings.HasPrefix(pg.URI, "postgres://") || strings.HasPrefix(pg.URI, "postgresql://") {
		return pg.URI
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		pg.URI,
		pg.Port,
		pg.Username,
		pg.Password,
		pg.DatabaseName,
	)
}
