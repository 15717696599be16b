package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

// DisconnectPolicy decides what happens to the sessions a connection owns
// when that connection closes.
type DisconnectPolicy string

const (
	// PolicyDetach clears the owner and leaves the linking attempt running so
	// a later connection can resume it.
	PolicyDetach DisconnectPolicy = "detach"
	// PolicyRemove deletes the sessions and releases their backend handles.
	PolicyRemove DisconnectPolicy = "remove"
)

func (p *DisconnectPolicy) UnmarshalText(text []byte) error {
	switch v := DisconnectPolicy(strings.ToLower(strings.TrimSpace(string(text)))); v {
	case PolicyDetach, PolicyRemove:
		*p = v
		return nil
	default:
		return fmt.Errorf("unknown disconnect policy %q (want %q or %q)", string(text), PolicyDetach, PolicyRemove)
	}
}

type Config struct {
	Port                  int              `env:"PORT" envDefault:"8080"`
	LogLevel              string           `env:"LOG_LEVEL" envDefault:"info"`
	StaticDir             string           `env:"STATIC_DIR" envDefault:"static"`
	CredentialsDir        string           `env:"CREDENTIALS_DIR" envDefault:"data/credentials"`
	CredentialsKey        string           `env:"CREDENTIALS_KEY"`
	DisconnectPolicy      DisconnectPolicy `env:"DISCONNECT_POLICY" envDefault:"detach"`
	SessionTTLSeconds     int              `env:"SESSION_TTL_SECONDS" envDefault:"3600"`
	PairingTTLSeconds     int              `env:"PAIRING_TTL_SECONDS" envDefault:"600"`
	SweepIntervalSeconds  int              `env:"SWEEP_INTERVAL_SECONDS" envDefault:"300"`
	QRRefreshSeconds      int              `env:"QR_REFRESH_SECONDS" envDefault:"20"`
	PairingAttemptsPerMin int              `env:"PAIRING_ATTEMPTS_PER_MIN" envDefault:"10"`
	ConnectionsPerMin     int              `env:"CONNECTIONS_PER_MIN" envDefault:"30"`
	RedisURL              string           `env:"REDIS_URL"`
	DatabaseURL           string           `env:"DATABASE_URL"`
	AuditRetentionHours   int              `env:"AUDIT_RETENTION_HOURS" envDefault:"168"`
	DevBackendRoutes      bool             `env:"DEV_BACKEND_ROUTES" envDefault:"false"`
	TrustProxyHeaders     bool             `env:"TRUST_PROXY_HEADERS" envDefault:"false"`
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

func (c *Config) PairingTTL() time.Duration {
	return time.Duration(c.PairingTTLSeconds) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c *Config) QRRefresh() time.Duration {
	return time.Duration(c.QRRefreshSeconds) * time.Second
}

func (c *Config) AuditRetention() time.Duration {
	return time.Duration(c.AuditRetentionHours) * time.Hour
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"SESSION_TTL_SECONDS", c.SessionTTLSeconds},
		{"PAIRING_TTL_SECONDS", c.PairingTTLSeconds},
		{"SWEEP_INTERVAL_SECONDS", c.SweepIntervalSeconds},
		{"QR_REFRESH_SECONDS", c.QRRefreshSeconds},
		{"PAIRING_ATTEMPTS_PER_MIN", c.PairingAttemptsPerMin},
		{"CONNECTIONS_PER_MIN", c.ConnectionsPerMin},
		{"AUDIT_RETENTION_HOURS", c.AuditRetentionHours},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}

	if c.DisconnectPolicy != PolicyDetach && c.DisconnectPolicy != PolicyRemove {
		return fmt.Errorf("DISCONNECT_POLICY must be %q or %q", PolicyDetach, PolicyRemove)
	}

	if c.CredentialsKey != "" && len(c.CredentialsKey) != 64 {
		return fmt.Errorf("CREDENTIALS_KEY must be 64 hex characters, got %d", len(c.CredentialsKey))
	}

	if c.PairingTTLSeconds > c.SessionTTLSeconds {
		log.Warn().
			Int("pairingTTL", c.PairingTTLSeconds).
			Int("sessionTTL", c.SessionTTLSeconds).
			Msg("PAIRING_TTL_SECONDS exceeds SESSION_TTL_SECONDS: codes may outlive their sessions")
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
