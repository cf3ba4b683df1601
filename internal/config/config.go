package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version information - set by GoReleaser during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// GetVersionInfo returns a formatted version string
func GetVersionInfo() string {
	return fmt.Sprintf("drinklog version %s, commit %s, built at %s", version, commit, date)
}

type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Backend BackendConfig `mapstructure:"backend"`
	Session SessionConfig `mapstructure:"session"`
	Store   StoreConfig   `mapstructure:"store"`
}

type LoggingConfig struct {
	Level             string `mapstructure:"level"`
	Format            string `mapstructure:"format"`
	Color             bool   `mapstructure:"color"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
	OutputPath        string `mapstructure:"output_path"`
	AppendToFile      bool   `mapstructure:"append_to_file"`
	DisableConsole    bool   `mapstructure:"disable_console"`
}

// BackendConfig describes the REST backend the client talks to.
type BackendConfig struct {
	BaseURL        string            `json:"base_url" mapstructure:"base_url"`
	Timeout        time.Duration     `json:"timeout" mapstructure:"timeout"`
	RefreshTimeout time.Duration     `json:"refresh_timeout" mapstructure:"refresh_timeout"`
	AuthPathPrefix string            `json:"auth_path_prefix" mapstructure:"auth_path_prefix"`
	Routes         AuthRoutes        `json:"routes" mapstructure:"routes"`
	Headers        map[string]string `json:"headers" mapstructure:"headers"`
}

// AuthRoutes are the authentication subsystem paths, relative to BaseURL.
type AuthRoutes struct {
	Login       string `json:"login" mapstructure:"login"`
	Signup      string `json:"signup" mapstructure:"signup"`
	SocialLogin string `json:"social_login" mapstructure:"social_login"`
	Refresh     string `json:"refresh" mapstructure:"refresh"`
	Logout      string `json:"logout" mapstructure:"logout"`
}

type SessionConfig struct {
	// ClockSkew is subtracted from the access token expiry when deciding
	// whether hydration must refresh eagerly.
	ClockSkew time.Duration `mapstructure:"clock_skew"`
	// ReuseRefreshToken keeps the current refresh token when the backend
	// omits one from a refresh response.
	ReuseRefreshToken bool `mapstructure:"reuse_refresh_token"`
	// ClearOnTransientFailure also clears credentials when the refresh call
	// fails for network reasons. Rejections always clear.
	ClearOnTransientFailure bool `mapstructure:"clear_on_transient_failure"`
}

type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
)

type StoreConfig struct {
	Type     StoreType   `mapstructure:"type"`
	FilePath string      `mapstructure:"file_path"`
	Redis    RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.disable_stacktrace", true)

	// registered so AutomaticEnv can fill it during Unmarshal
	v.SetDefault("backend.base_url", "")
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("backend.refresh_timeout", 10*time.Second)
	v.SetDefault("backend.auth_path_prefix", "/auth")
	v.SetDefault("backend.routes.login", "/auth/login")
	v.SetDefault("backend.routes.signup", "/auth/signup")
	v.SetDefault("backend.routes.social_login", "/auth/social")
	v.SetDefault("backend.routes.refresh", "/auth/refresh")
	v.SetDefault("backend.routes.logout", "/auth/logout")

	v.SetDefault("session.clock_skew", 30*time.Second)
	v.SetDefault("session.reuse_refresh_token", true)
	v.SetDefault("session.clear_on_transient_failure", false)

	v.SetDefault("store.type", string(StoreTypeFile))
	v.SetDefault("store.file_path", "$HOME/.drinklog/credentials.yaml")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.key_prefix", "drinklog")
}

// InitFlags initializes command line flags (without parsing)
func InitFlags(fs *pflag.FlagSet) {
	fs.String("base-url", "", "Backend base URL")
	fs.String("store", "", "Credential store (memory|file|redis)")
	fs.String("log-level", "", "Log level (debug|info|warn|error)")
}

// Load reads configuration from defaults, config.yaml, .env, environment
// variables and the given flag set, in increasing priority.
func Load(configFile string, fs *pflag.FlagSet) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("DRINKLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for key, flag := range map[string]string{
			"backend.base_url": "base-url",
			"store.type":       "store",
			"logging.level":    "log-level",
		} {
			if f := fs.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.drinklog")
		v.AddConfigPath("/etc/drinklog")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// only an explicitly requested file has to exist
		if !errors.As(err, &notFound) || configFile != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the values Load cannot default.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required, please adjust the config or pass --base-url or DRINKLOG_BACKEND_BASE_URL environment variable")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid backend.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.base_url scheme must be http or https, got: %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("backend.base_url must include a host")
	}
	if c.Backend.Timeout <= 0 || c.Backend.RefreshTimeout <= 0 {
		return fmt.Errorf("backend.timeout and backend.refresh_timeout must be positive")
	}
	if c.Session.ClockSkew < 0 {
		return fmt.Errorf("session.clock_skew must not be negative")
	}

	switch c.Store.Type {
	case StoreTypeMemory, StoreTypeRedis:
	case StoreTypeFile:
		if c.Store.FilePath == "" {
			return fmt.Errorf("store.file_path is required for the file store")
		}
	default:
		return fmt.Errorf("unsupported store type: %q", c.Store.Type)
	}
	return nil
}
