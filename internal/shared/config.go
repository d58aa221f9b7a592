package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

const (
	SessionStoreCookie = "cookie"
	SessionStoreSQLite = "sqlite"
)

// TokenLifetime is how long a Spotify access token lives, in seconds. A
// session must outlive it so the refresh token is still around to use.
const TokenLifetime = 3600

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Server      ServerConfig      `toml:"server"`
	Session     SessionConfig     `toml:"session"`
	Database    DatabaseConfig    `toml:"database"`
	HTTP        HTTPConfig        `toml:"http"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host          string  `toml:"host"`
	Port          int     `toml:"port"`
	SecretKey     string  `toml:"secret_key"`
	SecureCookies bool    `toml:"secure_cookies"`
	LoginRate     float64 `toml:"login_rate"`
	LoginBurst    int     `toml:"login_burst"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SessionConfig selects where session values live.
type SessionConfig struct {
	Store  string `toml:"store"`
	MaxAge int    `toml:"max_age"` // seconds
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// HTTPConfig configures the outbound client used for provider calls.
type HTTPConfig struct {
	Timeout Duration `toml:"timeout"`
}

// Duration is a [time.Duration] that decodes from TOML strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnv reads KEY=value pairs from the given dotenv files into the process environment.
//
// Missing files are ignored. Variables already set in the environment win.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides config values with environment variables when they are set.
//
//	CLIENT_ID, CLIENT_SECRET, REDIRECT_URI, SECRET_KEY, SEEDMIX_HOST, SEEDMIX_PORT
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}

	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	set(&c.Credentials.Spotify.ClientID, "CLIENT_ID")
	set(&c.Credentials.Spotify.ClientSecret, "CLIENT_SECRET")
	set(&c.Credentials.Spotify.RedirectURI, "REDIRECT_URI")
	set(&c.Server.SecretKey, "SECRET_KEY")
	set(&c.Server.Host, "SEEDMIX_HOST")

	if v := getenv("SEEDMIX_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// Validate reports the first missing or malformed setting required to talk to Spotify and serve sessions.
func (c *Config) Validate() error {
	sp := c.Credentials.Spotify
	switch {
	case sp.ClientID == "" || sp.ClientSecret == "":
		return fmt.Errorf("%w: spotify client_id and client_secret must be set", ErrMissingCredentials)
	case sp.RedirectURI == "":
		return fmt.Errorf("%w: spotify redirect_uri must be set", ErrInvalidConfig)
	case c.Session.Store != SessionStoreCookie && c.Session.Store != SessionStoreSQLite:
		return fmt.Errorf("%w: unknown session store %q", ErrInvalidConfig, c.Session.Store)
	case c.Session.MaxAge <= TokenLifetime:
		return fmt.Errorf("%w: session max_age must exceed the access token lifetime (%ds)", ErrInvalidConfig, TokenLifetime)
	case c.Session.Store == SessionStoreSQLite && c.Database.Path == "":
		return fmt.Errorf("%w: database path required for sqlite session store", ErrInvalidConfig)
	}
	return nil
}
