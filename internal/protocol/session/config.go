package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrAddressRequired = errors.New("session: panel address required")
	ErrInvalidPassword = errors.New("session: password must be up to 4 hex digits")
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines transport/session defaults for one panel.
type Config struct {
	Address            string
	Password           string
	ConnectTimeout     time.Duration
	HandshakeTimeout   time.Duration
	WriteTimeout       time.Duration
	MaxConnectAttempts int
	Backoff            BackoffConfig
}

// DefaultConfig returns the session defaults.
func DefaultConfig() Config {
	return Config{
		Password:           "0000",
		ConnectTimeout:     5 * time.Second,
		HandshakeTimeout:   5 * time.Second,
		WriteTimeout:       5 * time.Second,
		MaxConnectAttempts: 1,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero durations and attempts from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.MaxConnectAttempts <= 0 {
		c.MaxConnectAttempts = def.MaxConnectAttempts
	}
	if c.Backoff == (BackoffConfig{}) {
		c.Backoff = def.Backoff
	}
	if strings.TrimSpace(c.Password) == "" {
		c.Password = def.Password
	}
	return c
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		return ErrAddressRequired
	}
	if _, err := ParsePassword(c.Password); err != nil {
		return err
	}
	return nil
}

// ParsePassword converts the panel PC password (up to 4 hex digits, BCD on
// the wire) into its two-byte field value.
func ParsePassword(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > 4 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPassword, raw)
	}
	v, err := strconv.ParseUint(raw, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPassword, raw)
	}
	return int(v), nil
}
