package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server     ServerConfig
	Backend    BackendConfig
	Auth       AuthConfig
	Endpoints  EndpointsConfig
	Membership MembershipConfig
	Store      StoreConfig
	Redis      RedisConfig
	RateLimit  RateLimitConfig
	DevBackend DevBackendConfig
	LogLevel   string
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// BackendConfig describes the chat backend the client talks to.
type BackendConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	VerifyTimeout  time.Duration
	RefreshTimeout time.Duration
	// Outbound throttle; RPS <= 0 disables it.
	RPS   float64
	Burst int
}

// AuthConfig selects how the credential travels and how failures are treated.
type AuthConfig struct {
	// Mode is "token", "bearer" or "cookie".
	Mode             string
	LoginPath        string
	ForbiddenLogsOut bool
	RefreshInterval  time.Duration
}

type EndpointsConfig struct {
	Login      string
	Register   string
	Verify     string
	Refresh    string
	Logout     string
	Membership string
}

type MembershipConfig struct {
	TTL  time.Duration
	Size int
}

// StoreConfig selects the credential persistence backend: memory, file or redis.
type StoreConfig struct {
	Driver    string
	Path      string
	KeyPrefix string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// RateLimitConfig throttles inbound requests to the local surface and the
// dev backend. UseRedis switches to the fixed-window limiter shared across
// processes.
type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// DevBackendConfig enables the in-process backend stub for local runs.
type DevBackendConfig struct {
	Enabled        bool
	Secret         string
	AccessTokenTTL time.Duration
}

const (
	ModeToken  = "token"
	ModeBearer = "bearer"
	ModeCookie = "cookie"
)

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "3000")
	viper.SetDefault("SERVER_HOST", "127.0.0.1")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("BACKEND_REQUEST_TIMEOUT_SECONDS", 15)
	viper.SetDefault("BACKEND_VERIFY_TIMEOUT_SECONDS", 5)
	viper.SetDefault("BACKEND_REFRESH_TIMEOUT_SECONDS", 10)
	viper.SetDefault("BACKEND_RPS", 0)
	viper.SetDefault("BACKEND_BURST", 10)
	viper.SetDefault("AUTH_MODE", ModeToken)
	viper.SetDefault("AUTH_LOGIN_PATH", "/login")
	viper.SetDefault("AUTH_FORBIDDEN_LOGS_OUT", true)
	viper.SetDefault("AUTH_REFRESH_INTERVAL_MINUTES", 24*60)
	viper.SetDefault("ENDPOINT_LOGIN", "/api/auth/login/")
	viper.SetDefault("ENDPOINT_REGISTER", "/api/auth/register/")
	viper.SetDefault("ENDPOINT_VERIFY", "/api/auth/verify/")
	viper.SetDefault("ENDPOINT_REFRESH", "/api/token/refresh/")
	viper.SetDefault("ENDPOINT_LOGOUT", "/api/auth/logout/")
	viper.SetDefault("ENDPOINT_MEMBERSHIP", "/api/membership/")
	viper.SetDefault("MEMBERSHIP_TTL_MILLISECONDS", 5000)
	viper.SetDefault("MEMBERSHIP_CACHE_SIZE", 256)
	viper.SetDefault("STORE_DRIVER", "file")
	viper.SetDefault("STORE_KEY_PREFIX", "meowchat:client:")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("RATE_LIMIT_ENABLED", false)
	viper.SetDefault("RATE_LIMIT_RPS", 5)
	viper.SetDefault("RATE_LIMIT_BURST", 10)
	viper.SetDefault("RATE_LIMIT_USE_REDIS", false)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	viper.SetDefault("DEV_BACKEND_ENABLED", false)
	viper.SetDefault("DEV_BACKEND_ACCESS_TOKEN_TTL_MINUTES", 15)
	viper.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Backend: BackendConfig{
			BaseURL:        strings.TrimRight(viper.GetString("BACKEND_URL"), "/"),
			RequestTimeout: time.Duration(viper.GetInt("BACKEND_REQUEST_TIMEOUT_SECONDS")) * time.Second,
			VerifyTimeout:  time.Duration(viper.GetInt("BACKEND_VERIFY_TIMEOUT_SECONDS")) * time.Second,
			RefreshTimeout: time.Duration(viper.GetInt("BACKEND_REFRESH_TIMEOUT_SECONDS")) * time.Second,
			RPS:            viper.GetFloat64("BACKEND_RPS"),
			Burst:          viper.GetInt("BACKEND_BURST"),
		},
		Auth: AuthConfig{
			Mode:             strings.ToLower(strings.TrimSpace(viper.GetString("AUTH_MODE"))),
			LoginPath:        viper.GetString("AUTH_LOGIN_PATH"),
			ForbiddenLogsOut: viper.GetBool("AUTH_FORBIDDEN_LOGS_OUT"),
			RefreshInterval:  time.Duration(viper.GetInt("AUTH_REFRESH_INTERVAL_MINUTES")) * time.Minute,
		},
		Endpoints: EndpointsConfig{
			Login:      viper.GetString("ENDPOINT_LOGIN"),
			Register:   viper.GetString("ENDPOINT_REGISTER"),
			Verify:     viper.GetString("ENDPOINT_VERIFY"),
			Refresh:    viper.GetString("ENDPOINT_REFRESH"),
			Logout:     viper.GetString("ENDPOINT_LOGOUT"),
			Membership: viper.GetString("ENDPOINT_MEMBERSHIP"),
		},
		Membership: MembershipConfig{
			TTL:  time.Duration(viper.GetInt("MEMBERSHIP_TTL_MILLISECONDS")) * time.Millisecond,
			Size: viper.GetInt("MEMBERSHIP_CACHE_SIZE"),
		},
		Store: StoreConfig{
			Driver:    strings.ToLower(viper.GetString("STORE_DRIVER")),
			Path:      viper.GetString("STORE_PATH"),
			KeyPrefix: viper.GetString("STORE_KEY_PREFIX"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		DevBackend: DevBackendConfig{
			Enabled:        viper.GetBool("DEV_BACKEND_ENABLED"),
			Secret:         os.Getenv("DEV_BACKEND_SECRET"),
			AccessTokenTTL: time.Duration(viper.GetInt("DEV_BACKEND_ACCESS_TOKEN_TTL_MINUTES")) * time.Minute,
		},
		LogLevel: viper.GetString("LOG_LEVEL"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DevBackend.Enabled && cfg.DevBackend.Secret == "" {
		log.Println("WARNING: DEV_BACKEND_SECRET is not set; a random signing key will be used")
	}
	return cfg, nil
}

// Validate checks the combinations LoadConfig cannot default away.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" && !c.DevBackend.Enabled {
		return fmt.Errorf("BACKEND_URL is required unless DEV_BACKEND_ENABLED=true")
	}
	switch c.Auth.Mode {
	case ModeToken, ModeBearer, ModeCookie:
	default:
		return fmt.Errorf("unsupported AUTH_MODE %q (want token, bearer or cookie)", c.Auth.Mode)
	}
	switch c.Store.Driver {
	case "memory", "file":
	case "redis":
		if c.Redis.Host == "" {
			return fmt.Errorf("STORE_DRIVER=redis requires REDIS_HOST")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q (want memory, file or redis)", c.Store.Driver)
	}
	if c.RateLimit.UseRedis && c.Redis.Host == "" {
		return fmt.Errorf("RATE_LIMIT_USE_REDIS=true requires REDIS_HOST")
	}
	if c.Auth.RefreshInterval <= 0 {
		return fmt.Errorf("AUTH_REFRESH_INTERVAL_MINUTES must be positive")
	}
	if c.Membership.TTL <= 0 {
		return fmt.Errorf("MEMBERSHIP_TTL_MILLISECONDS must be positive")
	}
	return nil
}

// RedisAddr returns host:port for the configured Redis server.
func (c *Config) RedisAddr() string {
	return c.Redis.Host + ":" + c.Redis.Port
}
