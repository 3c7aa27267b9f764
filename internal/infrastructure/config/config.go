package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment variables; "__" separates nested keys,
// e.g. COMPLIANCE_PROVIDERS__BLACKLIST__API_KEY.
const EnvPrefix = "COMPLIANCE_"

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Cache     CacheConfig     `koanf:"cache"`
	Storage   StorageConfig   `koanf:"storage"`
	Providers ProvidersConfig `koanf:"providers"`
	Webhook   WebhookConfig   `koanf:"webhook"`
	Engine    EngineConfig    `koanf:"engine"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
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

// CacheConfig controls the result cache in front of stateless providers.
type CacheConfig struct {
	Enabled bool          `koanf:"enabled"`
	TTL     time.Duration `koanf:"ttl"`
}

type StorageConfig struct {
	Driver string `koanf:"driver"`
}

type ProvidersConfig struct {
	Litigation    LitigationConfig  `koanf:"litigation"`
	Blacklist     APIKeyConfig      `koanf:"blacklist"`
	WebReputation APIKeyConfig      `koanf:"web_reputation"`
	Partner       PartnerConfig     `koanf:"partner"`
	InternalDNC   InternalDNCConfig `koanf:"internal_dnc"`
}

// HTTPConfig holds the transport settings shared by every provider. A zero
// Timeout leaves the request bounded only by the caller's context; a zero
// RateLimit disables client-side throttling.
type HTTPConfig struct {
	Enabled   bool          `koanf:"enabled"`
	BaseURL   string        `koanf:"base_url"`
	Timeout   time.Duration `koanf:"timeout"`
	RateLimit float64       `koanf:"rate_limit"`
	Burst     int           `koanf:"burst"`
}

type LitigationConfig struct {
	HTTP     HTTPConfig `koanf:"http"`
	Username string     `koanf:"username"`
	Password string     `koanf:"password"`
}

type APIKeyConfig struct {
	HTTP   HTTPConfig `koanf:"http"`
	APIKey string     `koanf:"api_key"`
}

type PartnerConfig struct {
	HTTP           HTTPConfig    `koanf:"http"`
	MaxAttempts    int           `koanf:"max_attempts"`
	RetryDelay     time.Duration `koanf:"retry_delay"`
	AttemptTimeout time.Duration `koanf:"attempt_timeout"`
}

type InternalDNCConfig struct {
	Enabled bool `koanf:"enabled"`
	Seed    bool `koanf:"seed"`
}

type WebhookConfig struct {
	URL     string        `koanf:"url"`
	Secret  string        `koanf:"secret"`
	Timeout time.Duration `koanf:"timeout"`
}

type EngineConfig struct {
	MaxConcurrentNumbers int `koanf:"max_concurrent_numbers"`
}

type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// Defaults returns the configuration used before any file or env override.
func Defaults() *Config {
	return &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Cache: CacheConfig{
			Enabled: false,
			TTL:     time.Hour,
		},
		Storage: StorageConfig{
			Driver: StorageDriverPostgres,
		},
		Providers: ProvidersConfig{
			Litigation: LitigationConfig{
				HTTP: HTTPConfig{Enabled: true, BaseURL: "https://api.tcpalitigatorlist.com"},
			},
			Blacklist: APIKeyConfig{
				HTTP: HTTPConfig{Enabled: true, BaseURL: "https://api.blacklistalliance.net"},
			},
			WebReputation: APIKeyConfig{
				HTTP: HTTPConfig{Enabled: true, BaseURL: "https://api.webrecon.net"},
			},
			Partner: PartnerConfig{
				HTTP:           HTTPConfig{Enabled: true, BaseURL: "https://izem71vgk8.execute-api.us-east-1.amazonaws.com/api"},
				MaxAttempts:    3,
				RetryDelay:     time.Second,
				AttemptTimeout: 10 * time.Second,
			},
			InternalDNC: InternalDNCConfig{
				Enabled: true,
				Seed:    true,
			},
		},
		Webhook: WebhookConfig{
			Timeout: 5 * time.Second,
		},
		Engine: EngineConfig{
			MaxConcurrentNumbers: 10,
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "compliance-gateway",
			SampleRate:  1.0,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// COMPLIANCE_* environment variables, in that order of precedence. An empty
// path falls back to $COMPLIANCE_CONFIG; a missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
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

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case StorageDriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres storage driver"))
		}
	case StorageDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver))
	}

	p := c.Providers
	if p.Litigation.HTTP.Enabled && (p.Litigation.Username == "" || p.Litigation.Password == "") {
		errs = append(errs, errors.New("providers.litigation.username and password are required"))
	}
	if p.Blacklist.HTTP.Enabled && p.Blacklist.APIKey == "" {
		errs = append(errs, errors.New("providers.blacklist.api_key is required"))
	}
	if p.WebReputation.HTTP.Enabled && p.WebReputation.APIKey == "" {
		errs = append(errs, errors.New("providers.web_reputation.api_key is required"))
	}
	if p.Partner.HTTP.Enabled && p.Partner.MaxAttempts < 1 {
		errs = append(errs, errors.New("providers.partner.max_attempts must be at least 1"))
	}
	for name, h := range map[string]HTTPConfig{
		"litigation":     p.Litigation.HTTP,
		"blacklist":      p.Blacklist.HTTP,
		"web_reputation": p.WebReputation.HTTP,
		"partner":        p.Partner.HTTP,
	} {
		if h.Enabled && h.BaseURL == "" {
			errs = append(errs, fmt.Errorf("providers.%s.http.base_url is required", name))
		}
	}

	if c.Cache.Enabled && c.Redis.URL == "" {
		errs = append(errs, errors.New("redis.url is required when cache.enabled is set"))
	}
	if c.Engine.MaxConcurrentNumbers < 1 {
		errs = append(errs, errors.New("engine.max_concurrent_numbers must be at least 1"))
	}

	return errors.Join(errs...)
}
