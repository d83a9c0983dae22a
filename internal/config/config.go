package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/jrschumacher/folio/internal/logger"
	"github.com/spf13/viper"
)

const (
	EnvProd = "production"
	EnvDev  = "development"
	EnvTest = "test"
)

// Config holds application configuration loaded from environment variables or config file.
type Config struct {
	AppEnv     string `mapstructure:"app_env" default:"development" validate:"required,oneof=production development test"`
	Port       string `mapstructure:"port" default:"3000" validate:"required"`
	BackendURL string `mapstructure:"backend_url" default:"http://localhost:4000" validate:"required,url"`

	// Storage
	DatabaseURL string `secret:"true" mapstructure:"database_url" default:"folio.db"`
	RedisURL    string `secret:"true" mapstructure:"redis_url"`

	// Token lifecycle
	RefreshTimeout        time.Duration `mapstructure:"refresh_timeout" default:"5s" validate:"gt=0"`
	ValidityBufferSeconds int64         `mapstructure:"validity_buffer_seconds" default:"60" validate:"gte=0"`
	RefreshSingleFlight   bool          `mapstructure:"refresh_single_flight"`
	RejectedTTL           time.Duration `mapstructure:"rejected_ttl" default:"24h" validate:"gt=0"`

	// Cookies
	AccessCookieName    string        `mapstructure:"access_cookie_name" default:"folio_access" validate:"required"`
	RenewalCookieName   string        `mapstructure:"renewal_cookie_name" default:"folio_refresh" validate:"required,nefield=AccessCookieName"`
	AccessCookieMaxAge  time.Duration `mapstructure:"access_cookie_max_age" default:"15m" validate:"gt=0"`
	RenewalCookieMaxAge time.Duration `mapstructure:"renewal_cookie_max_age" default:"336h" validate:"gt=0"`

	// Development backend
	DevSigningSecret string        `secret:"true" mapstructure:"dev_signing_secret" default:"folio-dev-secret"`
	DevAccessTTL     time.Duration `mapstructure:"dev_access_ttl" default:"5m" validate:"gt=0"`

	// Route authorization table, evaluated first match wins.
	Routes []RouteRule `mapstructure:"routes" validate:"dive"`

	// Logging
	LogLevel string `mapstructure:"log_level" default:"INFO" validate:"oneof=DEBUG INFO WARN ERROR"`
}

// RouteRule is the declarative form of a route authorization rule.
type RouteRule struct {
	PathPrefix              string   `mapstructure:"path_prefix" validate:"required,startswith=/"`
	RequireAuth             bool     `mapstructure:"require_auth"`
	AllowedRoles            []string `mapstructure:"allowed_roles" validate:"dive,required"`
	RedirectIfAuthenticated string   `mapstructure:"redirect_if_authenticated" validate:"omitempty,startswith=/"`
}

// DefaultRoutes is the rule table used when the config file does not declare one.
func DefaultRoutes() []RouteRule {
	return []RouteRule{
		{PathPrefix: "/server/admin", RequireAuth: true, AllowedRoles: []string{"admin"}},
		{PathPrefix: "/account", RequireAuth: true},
		{PathPrefix: "/bookmarks", RequireAuth: true},
		{PathPrefix: "/auth/login", RedirectIfAuthenticated: "/"},
		{PathPrefix: "/auth/register", RedirectIfAuthenticated: "/"},
	}
}

// IsDev reports whether cookies and diagnostics should use development settings.
func (c *Config) IsDev() bool {
	return c.AppEnv != EnvProd
}

// Load loads configuration from config file and environment variables using viper.
func Load() *Config {
	cfg, err := LoadFrom(viper.New(), ".", "./config")
	if err != nil {
		logger.Warn("Could not load config", "error", err)
	}
	return cfg
}

// LoadFrom reads configuration through v, searching paths for a config.yaml.
// The returned config is always usable; err reports problems that were skipped.
func LoadFrom(v *viper.Viper, paths ...string) (*Config, error) {
	cfg := Config{}

	v.AutomaticEnv()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__", "-", "__"))

	if err := defaults.Set(&cfg); err != nil {
		panic("failed to set struct defaults: " + err.Error())
	}

	// Bind env vars for each field
	typeOfCfg := reflect.TypeOf(cfg)
	for i := 0; i < typeOfCfg.NumField(); i++ {
		field := typeOfCfg.Field(i)
		key := field.Tag.Get("mapstructure")
		if key == "" {
			key = toSnakeCase(field.Name)
		}
		_ = v.BindEnv(key)
	}

	var loadErr error
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			logger.Error("Error read config file", "error", err)
			loadErr = err
		} else {
			logger.Warn("No config file found, using environment variables")
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		logger.Warn("Could not unmarshal config", "error", err)
		loadErr = errors.Join(loadErr, err)
	}

	if len(cfg.Routes) == 0 {
		cfg.Routes = DefaultRoutes()
	}

	logger.Info("Loaded config", "config", cfg.String())

	return &cfg, loadErr
}

func Validate(cfg *Config) error {
	validate := validator.New()
	return validate.Struct(cfg)
}

// String returns a string representation of the config with secret fields redacted.
func (c *Config) String() string {
	v := reflect.ValueOf(*c)
	t := reflect.TypeOf(*c)
	var sb strings.Builder
	sb.WriteString("Config{")
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		value := v.Field(i).Interface()
		if field.Tag.Get("secret") == "true" {
			value = "***REDACTED***"
		}
		sb.WriteString(field.Name + ": " + toString(value))
		if i < t.NumField()-1 {
			sb.WriteString(", ")
		}
	}
	sb.WriteString("}")
	return sb.String()
}

// toString converts interface{} to string for String
func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []RouteRule:
		return fmt.Sprintf("%d rules", len(val))
	default:
		return fmt.Sprintf("%v", val)
	}
}

// toSnakeCase converts CamelCase to snake_case
func toSnakeCase(str string) string {
	runes := []rune(str)
	var out []rune
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if !unicode.IsUpper(prev) || nextLower {
				out = append(out, '_')
			}
		}
		out = append(out, unicode.ToLower(r))
	}
	return string(out)
}
