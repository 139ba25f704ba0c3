// Package config resolves CLI settings from flags, the environment and a
// .env file, in that order of priority.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/focushub/spotify-cli/kv"
	"github.com/focushub/spotify-cli/spotify"
)

// Store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Defaults.
const (
	DefaultRedirectURI = "http://127.0.0.1:8888/callback"
	DefaultTokenFile   = ".focushub-tokens.json"
	DefaultTokenDB     = ".focushub-tokens.db"
	DefaultRedisAddr   = "127.0.0.1:6379"
)

// Config is the resolved configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string `validate:"required,httpurl"`

	AuthURL    string `validate:"omitempty,httpurl"`
	TokenURL   string `validate:"omitempty,httpurl"`
	APIBaseURL string `validate:"omitempty,httpurl"`

	Store         string `validate:"oneof=file sqlite redis memory"`
	TokenFile     string `validate:"required_if=Store file"`
	SQLitePath    string `validate:"required_if=Store sqlite"`
	RedisAddr     string `validate:"required_if=Store redis"`
	RedisPassword string
	RedisDB       int `validate:"gte=0"`

	MaxRetries int `validate:"gte=0,lte=10"`
	Device     string
	Debug      bool
}

// Flags carries command-line values. Empty strings and nil pointers mean
// the flag was not given.
type Flags struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Store        string
	TokenFile    string
	TokenDB      string
	RedisAddr    string
	Device       string
	MaxRetries   *int
	Debug        bool
}

var dotenvOnce sync.Once

// Load resolves the configuration. A missing .env file is not an error.
func Load(f Flags) (*Config, error) {
	dotenvOnce.Do(func() {
		_ = godotenv.Load()
	})

	cfg := &Config{
		ClientID:      getConfig(f.ClientID, "SPOTIFY_CLIENT_ID", ""),
		ClientSecret:  getConfig(f.ClientSecret, "SPOTIFY_CLIENT_SECRET", ""),
		RedirectURI:   getConfig(f.RedirectURI, "SPOTIFY_REDIRECT_URI", DefaultRedirectURI),
		AuthURL:       getEnv("SPOTIFY_AUTH_URL", ""),
		TokenURL:      getEnv("SPOTIFY_TOKEN_URL", ""),
		APIBaseURL:    getEnv("SPOTIFY_API_BASE_URL", ""),
		Store:         strings.ToLower(getConfig(f.Store, "TOKEN_STORE", StoreFile)),
		TokenFile:     getConfig(f.TokenFile, "TOKEN_FILE", DefaultTokenFile),
		SQLitePath:    getConfig(f.TokenDB, "TOKEN_DB", DefaultTokenDB),
		RedisAddr:     getConfig(f.RedisAddr, "REDIS_ADDR", DefaultRedisAddr),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		Device:        getConfig(f.Device, "SPOTIFY_DEVICE", ""),
		Debug:         f.Debug || getEnvBool("FOCUSHUB_DEBUG"),
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if f.MaxRetries != nil {
		cfg.MaxRetries = *f.MaxRetries
	} else if cfg.MaxRetries, err = getEnvInt("HTTP_MAX_RETRIES", 0); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	err := validate().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return fe.Field() + " is required"
	case "httpurl":
		return fmt.Sprintf("%s must be an http or https URL with a host, got %q", fe.Field(), fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value())
	case "gte", "lte":
		return fmt.Sprintf("%s is out of range: %v", fe.Field(), fe.Value())
	default:
		return fe.Field() + " is invalid"
	}
}

// Warnings returns non-fatal problems worth showing the user.
func (c *Config) Warnings() []string {
	var warnings []string
	if u, err := url.Parse(c.RedirectURI); err == nil && u.Scheme == "http" && !isLoopback(u.Hostname()) {
		warnings = append(warnings,
			"Redirect URI uses HTTP on a non-loopback host. Authorization codes will be transmitted in plaintext!")
	}
	return warnings
}

// Spotify returns the client configuration.
func (c *Config) Spotify() spotify.Config {
	return spotify.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURI:  c.RedirectURI,
		AuthURL:      c.AuthURL,
		TokenURL:     c.TokenURL,
		APIBaseURL:   c.APIBaseURL,
	}
}

// Namespace keys stored tokens, so several client ids can share one store.
func (c *Config) Namespace() string {
	if c.ClientID == "" {
		return "default"
	}
	return c.ClientID
}

// OpenStore opens the configured token store. Stores holding a
// connection implement io.Closer.
func (c *Config) OpenStore() (kv.Store, error) {
	switch c.Store {
	case StoreFile:
		return kv.NewFileStore(c.TokenFile, c.Namespace()), nil
	case StoreSQLite:
		s, err := kv.OpenSQLite(c.SQLitePath, c.Namespace())
		if err != nil {
			return nil, err
		}
		return s, nil
	case StoreRedis:
		s, err := kv.NewRedisStore(c.RedisAddr, c.RedisPassword, c.RedisDB, c.Namespace())
		if err != nil {
			return nil, err
		}
		return s, nil
	case StoreMemory:
		return kv.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown token store: %s", c.Store)
	}
}

// getConfig returns value with priority: flag > env > default
func getConfig(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return getEnv(envKey, defaultValue)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}

var (
	validateOnce sync.Once
	validateInst *validator.Validate
)

func validate() *validator.Validate {
	validateOnce.Do(func() {
		validateInst = validator.New()
		_ = validateInst.RegisterValidation("httpurl", func(fl validator.FieldLevel) bool {
			return validateURL(fl.Field().String()) == nil
		})
	})
	return validateInst
}

// validateURL checks that rawURL is an absolute http(s) URL.
func validateURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must include a host")
	}

	return nil
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
