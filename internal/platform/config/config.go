package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "PORTALGUARD_"

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Upstream UpstreamConfig `koanf:"upstream"`
	Log      LogConfig      `koanf:"log"`
	Auth     AuthConfig     `koanf:"auth"`
	Redis    RedisConfig    `koanf:"redis"`
	Database DatabaseConfig `koanf:"database"`
	Audit    AuditConfig    `koanf:"audit"`
	Policy   PolicyConfig   `koanf:"policy"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	CORS     CORSConfig     `koanf:"cors"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"readtimeout"`
	WriteTimeout    time.Duration `koanf:"writetimeout"`
	ShutdownTimeout time.Duration `koanf:"shutdowntimeout"`
}

type UpstreamConfig struct {
	URL           string        `koanf:"url" validate:"required,url"`
	FlushInterval time.Duration `koanf:"flushinterval"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn warning error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

type AuthConfig struct {
	DevMode       bool             `koanf:"devmode"`
	DevRole       string           `koanf:"devrole"`
	CookieName    string           `koanf:"cookiename"`
	VerifyTimeout time.Duration    `koanf:"verifytimeout" validate:"gt=0"`
	JWT           JWTConfig        `koanf:"jwt"`
	JWKS          JWKSConfig       `koanf:"jwks"`
	Cache         CacheConfig      `koanf:"cache"`
	Revocation    RevocationConfig `koanf:"revocation"`
}

type JWTConfig struct {
	SigningKey  string `koanf:"signingkey" validate:"omitempty,min=32"`
	Issuer      string `koanf:"issuer"`
	ExpiryHours int    `koanf:"expiryhours" validate:"min=1"`
}

type JWKSConfig struct {
	URL             string        `koanf:"url" validate:"omitempty,url"`
	Issuer          string        `koanf:"issuer"`
	Audience        string        `koanf:"audience"`
	RefreshInterval time.Duration `koanf:"refreshinterval"`
}

type CacheConfig struct {
	Enabled bool          `koanf:"enabled"`
	Size    int           `koanf:"size" validate:"min=1"`
	MaxAge  time.Duration `koanf:"maxage"`
}

type RevocationConfig struct {
	Enabled bool   `koanf:"enabled"`
	Prefix  string `koanf:"prefix"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" validate:"min=0"`
	PoolSize int    `koanf:"poolsize"`
}

type DatabaseConfig struct {
	URL      string `koanf:"url"`
	MaxConns int    `koanf:"maxconns" validate:"min=1"`
	Migrate  bool   `koanf:"migrate"`
}

type AuditConfig struct {
	Enabled       bool          `koanf:"enabled"`
	BufferSize    int           `koanf:"buffersize"`
	BatchSize     int           `koanf:"batchsize"`
	FlushInterval time.Duration `koanf:"flushinterval"`
}

type PolicyConfig struct {
	// Source is where rules come from: "default", "file" or "db".
	Source           string   `koanf:"source" validate:"oneof=default file db"`
	File             string   `koanf:"file" validate:"required_if=Source file"`
	SignInPath       string   `koanf:"signinpath" validate:"startswith=/"`
	UnauthorizedPath string   `koanf:"unauthorizedpath" validate:"startswith=/"`
	Locales          []string `koanf:"locales"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path" validate:"startswith=/"`
}

type CORSConfig struct {
	Origins []string `koanf:"origins"`
}

// ErrInvalid wraps every validation failure returned by Load.
var ErrInvalid = errors.New("invalid configuration")

// list keys accept comma separated env values.
var listKeys = map[string]bool{
	"policy.locales": true,
	"cors.origins":   true,
}

func defaults() map[string]any {
	return map[string]any{
		"server.host":               "0.0.0.0",
		"server.port":               8080,
		"server.readtimeout":        "15s",
		"server.writetimeout":       "30s",
		"server.shutdowntimeout":    "10s",
		"upstream.url":              "http://localhost:3000",
		"log.level":                 "info",
		"log.format":                "json",
		"auth.devmode":              false,
		"auth.devrole":              "admin",
		"auth.cookiename":           "session",
		"auth.verifytimeout":        "2s",
		"auth.jwt.issuer":           "portalguard",
		"auth.jwt.expiryhours":      24,
		"auth.jwks.refreshinterval": "10m",
		"auth.cache.enabled":        true,
		"auth.cache.size":           10000,
		"auth.cache.maxage":         "5m",
		"auth.revocation.enabled":   false,
		"auth.revocation.prefix":    "portalguard:revoked:",
		"redis.addr":                "localhost:6379",
		"redis.db":                  0,
		"database.maxconns":         25,
		"database.migrate":          true,
		"audit.enabled":             true,
		"audit.buffersize":          4096,
		"audit.batchsize":           100,
		"audit.flushinterval":       "500ms",
		"policy.source":             "default",
		"policy.signinpath":         "/auth/signin",
		"policy.unauthorizedpath":   "/unauthorized",
		"metrics.enabled":           true,
		"metrics.path":              "/metrics",
	}
}

// Load builds the configuration from defaults, then the given YAML files
// (missing files are skipped), then PORTALGUARD_ environment variables.
// A .env file in the working directory is read first when present.
func Load(configPaths ...string) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	_ = k.Load(confmap.Provider(defaults(), "."), nil)

	for _, path := range configPaths {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			continue
		}
	}

	// PORTALGUARD_AUTH_JWT_SIGNINGKEY -> auth.jwt.signingkey
	_ = k.Load(env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, any) {
		key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, envPrefix)), "_", ".")
		if listKeys[key] {
			return key, splitList(value)
		}
		return key, value
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and the cross-field rules between the
// auth sources.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if !c.Auth.DevMode && c.Auth.JWT.SigningKey == "" && c.Auth.JWKS.URL == "" {
		return fmt.Errorf("%w: one of auth.jwt.signingkey or auth.jwks.url is required outside dev mode", ErrInvalid)
	}
	if c.Auth.Revocation.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("%w: auth.revocation requires redis.addr", ErrInvalid)
	}
	if c.Policy.Source == "db" && c.Database.URL == "" {
		return fmt.Errorf("%w: policy.source=db requires database.url", ErrInvalid)
	}
	return nil
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
