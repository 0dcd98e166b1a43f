package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Security    SecurityConfig    `toml:"security"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Redis       RedisConfig       `toml:"redis"`
	Cache       CacheConfig       `toml:"cache"`
	Resilience  ResilienceConfig  `toml:"resilience"`
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

// Map converts the Spotify credentials into the map shape consumed by service constructors.
func (s SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     s.ClientID,
		"client_secret": s.ClientSecret,
		"redirect_uri":  s.RedirectURI,
	}
}

// SecurityConfig contains signing and encryption material for sessions and stored tokens.
type SecurityConfig struct {
	JWTSecret         string `toml:"jwt_secret"`
	EncryptionKey     string `toml:"encryption_key"` // base64-encoded master key, 16+ bytes
	SessionTTLSeconds int    `toml:"session_ttl_seconds"`
}

// SessionTTL returns the configured session lifetime, defaulting to one hour.
func (s SecurityConfig) SessionTTL() time.Duration {
	if s.SessionTTLSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(s.SessionTTLSeconds) * time.Second
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// RedisConfig contains cache backend connection settings.
//
// An empty Addr selects the in-memory fallback store.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// CacheConfig contains per-resource TTLs in seconds.
type CacheConfig struct {
	ProfileTTLSeconds        int `toml:"profile_ttl_seconds"`
	PlaylistTTLSeconds       int `toml:"playlist_ttl_seconds"`
	TrackTTLSeconds          int `toml:"track_ttl_seconds"`
	ArtistTTLSeconds         int `toml:"artist_ttl_seconds"`
	RecommendationTTLSeconds int `toml:"recommendation_ttl_seconds"`
}

func ttlOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func (c CacheConfig) ProfileTTL() time.Duration { return ttlOrDefault(c.ProfileTTLSeconds, 5*time.Minute) }
func (c CacheConfig) PlaylistTTL() time.Duration { return ttlOrDefault(c.PlaylistTTLSeconds, time.Minute) }
func (c CacheConfig) TrackTTL() time.Duration { return ttlOrDefault(c.TrackTTLSeconds, 10*time.Minute) }
func (c CacheConfig) ArtistTTL() time.Duration { return ttlOrDefault(c.ArtistTTLSeconds, 10*time.Minute) }
func (c CacheConfig) RecommendationTTL() time.Duration {
	return ttlOrDefault(c.RecommendationTTLSeconds, 2*time.Minute)
}

// ResilienceConfig tunes the retry and circuit breaker behavior for outbound Spotify calls.
type ResilienceConfig struct {
	MaxRetries            int     `toml:"max_retries"`
	InitialBackoffMillis  int     `toml:"initial_backoff_millis"`
	MaxBackoffMillis      int     `toml:"max_backoff_millis"`
	FailureThreshold      int     `toml:"failure_threshold"`
	CooldownSeconds       int     `toml:"cooldown_seconds"`
	RequestsPerSecond     float64 `toml:"requests_per_second"`
	RequestTimeoutSeconds int     `toml:"request_timeout_seconds"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
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

// SaveConfig writes the configuration to the specified path as TOML.
func SaveConfig(path string, config *Config) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// Validate checks that all values the service cannot run without are present.
//
// Called once at startup so missing setup surfaces immediately rather than on first use.
func (c *Config) Validate() error {
	if c.Credentials.Spotify.ClientID == "" || c.Credentials.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: credentials.spotify client_id and client_secret must be set", ErrMissingConfig)
	}
	if c.Credentials.Spotify.RedirectURI == "" {
		return fmt.Errorf("%w: credentials.spotify.redirect_uri must be set", ErrMissingConfig)
	}
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("%w: security.jwt_secret must be set", ErrMissingConfig)
	}
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("%w: security.encryption_key must be set", ErrMissingConfig)
	}
	return nil
}
