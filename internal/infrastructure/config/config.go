package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment" validate:"oneof=development staging production"`
	LogLevel    string `koanf:"log_level" validate:"oneof=debug info warn error"`

	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`

	Token     TokenConfig     `koanf:"token"`
	Risk      RiskConfig      `koanf:"risk"`
	Audit     AuditConfig     `koanf:"audit"`
	Privacy   PrivacyConfig   `koanf:"privacy"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type TelemetryConfig struct {
	Enabled       bool          `koanf:"enabled"`
	OTLPEndpoint  string        `koanf:"otlp_endpoint"`
	SamplingRate  float64       `koanf:"sampling_rate" validate:"min=0,max=1"`
	ExportTimeout time.Duration `koanf:"export_timeout"`
	BatchTimeout  time.Duration `koanf:"batch_timeout"`
}

type ServerConfig struct {
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL      string `koanf:"url"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type TokenConfig struct {
	// SigningSecret keys HMAC signing. Ignored when RSA keys are set.
	SigningSecret string        `koanf:"signing_secret"`
	Issuer        string        `koanf:"issuer" validate:"required"`
	Audience      string        `koanf:"audience" validate:"required"`
	AccessTTL     time.Duration `koanf:"access_ttl" validate:"min=1m"`
	RefreshTTL    time.Duration `koanf:"refresh_ttl" validate:"min=1h"`
	Leeway        time.Duration `koanf:"leeway"`

	// SweepInterval schedules the denylist expiry sweep.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

type RiskConfig struct {
	CheckTimeout       time.Duration   `koanf:"check_timeout" validate:"min=100ms"`
	RateCheckEnabled   bool            `koanf:"rate_check_enabled"`
	IPReputation       bool            `koanf:"ip_reputation"`
	FingerprintCheck   bool            `koanf:"fingerprint_check"`
	DeniedNetworks     []string        `koanf:"denied_networks"`
	RateLimit          RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int           `koanf:"requests_per_second" validate:"min=1"`
	BurstSize         int           `koanf:"burst_size" validate:"min=1"`
	Window            time.Duration `koanf:"window"`
}

type AuditConfig struct {
	RingSize        int           `koanf:"ring_size" validate:"min=100"`
	WriterQueueSize int           `koanf:"writer_queue_size" validate:"min=16"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	SweepSchedule   string        `koanf:"sweep_schedule"`
	FlushSchedule   string        `koanf:"flush_schedule"`
}

type PrivacyConfig struct {
	PseudonymSecret  string `koanf:"pseudonym_secret"`
	PBKDF2Iterations int    `koanf:"pbkdf2_iterations" validate:"min=100000"`
	DefaultK         int    `koanf:"default_k" validate:"min=2"`
	DefaultL         int    `koanf:"default_l" validate:"min=2"`

	// ReversalGrants lists "purpose:grant" pairs authorized to reverse
	// pseudonyms. Empty means no reversal is ever authorized.
	ReversalGrants []string `koanf:"reversal_grants"`
}

// Load builds the configuration from defaults, an optional YAML file
// and SECPIPE_-prefixed environment variables, in that precedence.
func Load() (*Config, error) {
	return LoadFrom("configs/config.yaml")
}

func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Token: TokenConfig{
			Issuer:        "secpipeline",
			Audience:      "secpipeline-api",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			Leeway:        30 * time.Second,
			SweepInterval: time.Hour,
		},
		Risk: RiskConfig{
			CheckTimeout:     2 * time.Second,
			RateCheckEnabled: true,
			IPReputation:     true,
			FingerprintCheck: true,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 100,
				BurstSize:         200,
				Window:            time.Minute,
			},
		},
		Audit: AuditConfig{
			RingSize:        50000,
			WriterQueueSize: 4096,
			WriteTimeout:    5 * time.Second,
			SweepSchedule:   "0 3 * * *",
			FlushSchedule:   "*/5 * * * *",
		},
		Privacy: PrivacyConfig{
			PBKDF2Iterations: 310000,
			DefaultK:         5,
			DefaultL:         3,
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			OTLPEndpoint:  "localhost:4317",
			SamplingRate:  1.0,
			ExportTimeout: 30 * time.Second,
			BatchTimeout:  5 * time.Second,
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Config file is optional.
	if path != "" {
		_ = k.Load(file.Provider(path), yaml.Parser())
	}

	if err := k.Load(env.Provider("SECPIPE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "SECPIPE_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Environment == "production" && len(c.Token.SigningSecret) < 32 {
		return fmt.Errorf("invalid configuration: token signing secret must be at least 32 bytes in production")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
