package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/paisync/internal/protocol/session"
	"github.com/danmuck/paisync/internal/timesync"
)

// DefaultPath is used when no -c/--config flag is given.
const DefaultPath = "pai.toml"

var ErrInvalidConfig = errors.New("config: invalid")

type PanelConfig struct {
	Host               string
	Port               int
	Password           string
	ConnectTimeout     time.Duration
	ConnectMaxAttempts int
}

type SyncTimeConfig struct {
	// Timezone is an IANA zone name; empty keeps the system zone.
	Timezone     string
	ReplyTimeout time.Duration
}

// Config is the read-only process configuration. It is loaded once at
// startup and passed by value.
type Config struct {
	Panel           PanelConfig
	SyncTime        SyncTimeConfig
	Interfaces      []string
	MetricsTextfile string
}

type fileConfig struct {
	Panel struct {
		Host               string `toml:"host"`
		Port               int    `toml:"port"`
		Password           string `toml:"password"`
		ConnectTimeout     string `toml:"connect_timeout"`
		ConnectMaxAttempts int    `toml:"connect_max_attempts"`
	} `toml:"panel"`
	SyncTime struct {
		Timezone     string `toml:"timezone"`
		ReplyTimeout string `toml:"reply_timeout"`
	} `toml:"sync_time"`
	Interfaces struct {
		Enabled []string `toml:"enabled"`
	} `toml:"interfaces"`
	Metrics struct {
		Textfile string `toml:"textfile"`
	} `toml:"metrics"`
}

func Default() Config {
	sess := session.DefaultConfig()
	return Config{
		Panel: PanelConfig{
			Port:               10000,
			Password:           sess.Password,
			ConnectTimeout:     sess.ConnectTimeout,
			ConnectMaxAttempts: sess.MaxConnectAttempts,
		},
		SyncTime: SyncTimeConfig{
			ReplyTimeout: timesync.DefaultReplyTimeout,
		},
		Interfaces: []string{},
	}
}

// Load reads path over Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q in %s", ErrInvalidConfig, undecoded[0].String(), path)
	}

	if meta.IsDefined("panel", "host") {
		cfg.Panel.Host = strings.TrimSpace(raw.Panel.Host)
	}
	if meta.IsDefined("panel", "port") {
		cfg.Panel.Port = raw.Panel.Port
	}
	if meta.IsDefined("panel", "password") {
		cfg.Panel.Password = strings.TrimSpace(raw.Panel.Password)
	}
	if meta.IsDefined("panel", "connect_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Panel.ConnectTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse panel.connect_timeout: %w", err)
		}
		cfg.Panel.ConnectTimeout = d
	}
	if meta.IsDefined("panel", "connect_max_attempts") {
		cfg.Panel.ConnectMaxAttempts = raw.Panel.ConnectMaxAttempts
	}
	if meta.IsDefined("sync_time", "timezone") {
		cfg.SyncTime.Timezone = strings.TrimSpace(raw.SyncTime.Timezone)
	}
	if meta.IsDefined("sync_time", "reply_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.SyncTime.ReplyTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse sync_time.reply_timeout: %w", err)
		}
		cfg.SyncTime.ReplyTimeout = d
	}
	if meta.IsDefined("interfaces", "enabled") {
		cfg.Interfaces = normalizeNames(raw.Interfaces.Enabled)
	}
	if meta.IsDefined("metrics", "textfile") {
		cfg.MetricsTextfile = strings.TrimSpace(raw.Metrics.Textfile)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if cfg.Panel.Host == "" {
		return fmt.Errorf("%w: panel.host is required", ErrInvalidConfig)
	}
	if cfg.Panel.Port <= 0 || cfg.Panel.Port > 65535 {
		return fmt.Errorf("%w: panel.port %d out of range", ErrInvalidConfig, cfg.Panel.Port)
	}
	if _, err := session.ParsePassword(cfg.Panel.Password); err != nil {
		return fmt.Errorf("%w: panel.password: %v", ErrInvalidConfig, err)
	}
	if cfg.Panel.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: panel.connect_timeout must be positive", ErrInvalidConfig)
	}
	if cfg.Panel.ConnectMaxAttempts <= 0 {
		return fmt.Errorf("%w: panel.connect_max_attempts must be positive", ErrInvalidConfig)
	}
	if cfg.SyncTime.ReplyTimeout <= 0 {
		return fmt.Errorf("%w: sync_time.reply_timeout must be positive", ErrInvalidConfig)
	}
	if cfg.SyncTime.Timezone != "" {
		if _, err := time.LoadLocation(cfg.SyncTime.Timezone); err != nil {
			return fmt.Errorf("%w: sync_time.timezone %q: %v", ErrInvalidConfig, cfg.SyncTime.Timezone, err)
		}
	}
	return nil
}

// Address is the panel host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Panel.Host, strconv.Itoa(c.Panel.Port))
}

// Session derives the session settings.
func (c Config) Session() session.Config {
	cfg := session.DefaultConfig()
	cfg.Address = c.Address()
	cfg.Password = c.Panel.Password
	cfg.ConnectTimeout = c.Panel.ConnectTimeout
	cfg.MaxConnectAttempts = c.Panel.ConnectMaxAttempts
	return cfg
}

// TimeSync derives the command settings. Clock and recorder are left to
// the caller.
func (c Config) TimeSync() timesync.Config {
	return timesync.Config{
		Timezone:     c.SyncTime.Timezone,
		ReplyTimeout: c.SyncTime.ReplyTimeout,
	}
}

func normalizeNames(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, name := range in {
		v := strings.ToLower(strings.TrimSpace(name))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
