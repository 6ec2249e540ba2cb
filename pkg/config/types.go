package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Auth       AuthConfig       `yaml:"auth"`
	Security   SecurityConfig   `yaml:"security"`
	Limits     LimitsConfig     `yaml:"limits"`
	Federation FederationConfig `yaml:"federation"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds http, identity-host and storage settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	// RelayHost is this relay's federation host name. It is part of every
	// local tez address and is immutable at runtime.
	RelayHost string    `yaml:"relay_host"`
	DataDir   string    `yaml:"data_dir"`
	TLS       TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate configuration.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// AuthConfig holds bearer-token settings and the administrative user set.
type AuthConfig struct {
	JWTSecret    string   `yaml:"jwt_secret"`
	JWTIssuer    string   `yaml:"jwt_issuer"`
	AdminUserIDs []string `yaml:"admin_user_ids"`
}

// SecurityConfig holds transport-level protections.
type SecurityConfig struct {
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	IPWhitelist []string `yaml:"ip_whitelist"`
}

// LimitsConfig bounds request payloads and pagination.
type LimitsConfig struct {
	MaxTezSize      SizeBytes `yaml:"max_tez_size"`
	MaxContextItems int       `yaml:"max_context_items"`
	MaxRecipients   int       `yaml:"max_recipients"`
	MaxPageSize     int       `yaml:"max_page_size"`
	DefaultPageSize int       `yaml:"default_page_size"`
}

// MaxTezSizeBytes returns the surface-text bound, defaulting to 1 MiB.
func (l LimitsConfig) MaxTezSizeBytes() int64 {
	if l.MaxTezSize > 0 {
		return l.MaxTezSize.Int64()
	}
	return 1 << 20
}

// ContextItems returns the per-tez context bound, defaulting to 50.
func (l LimitsConfig) ContextItems() int {
	if l.MaxContextItems > 0 {
		return l.MaxContextItems
	}
	return 50
}

// Recipients returns the per-tez recipient bound, defaulting to 100.
func (l LimitsConfig) Recipients() int {
	if l.MaxRecipients > 0 {
		return l.MaxRecipients
	}
	return 100
}

// PageSize clamps a requested page size into [1, max], applying
// defaults. A request above the maximum is capped, not rejected, so
// every listing shares one tolerant reading of the limit parameter.
func (l LimitsConfig) PageSize(requested int) int {
	def := l.DefaultPageSize
	if def <= 0 {
		def = 20
	}
	max := l.MaxPageSize
	if max <= 0 {
		max = 100
	}
	if requested <= 0 {
		return def
	}
	if requested > max {
		return max
	}
	return requested
}

// FederationConfig controls peer admission and the delivery pump.
type FederationConfig struct {
	Enabled bool `yaml:"enabled"`
	// Mode is "allowlist" (new peers pending until an operator trusts
	// them) or "open" (new peers auto-trusted).
	Mode           string   `yaml:"mode"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
	RequestTimeout Duration `yaml:"request_timeout"`
	PumpInterval   Duration `yaml:"pump_interval"`
	MaxAttempts    int      `yaml:"max_attempts"`
	BackoffBase    Duration `yaml:"backoff_base"`
	BackoffCap     Duration `yaml:"backoff_cap"`
	// PurgeCron schedules removal of settled outbox rows; empty disables.
	PurgeCron string   `yaml:"purge_cron"`
	PurgeAge  Duration `yaml:"purge_age"`
}

// ModeOrDefault returns the admission mode, defaulting to allowlist.
func (f FederationConfig) ModeOrDefault() string {
	if f.Mode == "" {
		return "allowlist"
	}
	return f.Mode
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration is a wrapper around time.Duration that supports YAML parsing from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// OrDefault returns d, or def when d is zero.
func (d Duration) OrDefault(def time.Duration) time.Duration {
	if d == 0 {
		return def
	}
	return time.Duration(d)
}
