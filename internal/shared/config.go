package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Identity   IdentityConfig   `toml:"identity"`
	Spotify    SpotifyConfig    `toml:"spotify"`
	Conversion ConversionConfig `toml:"conversion"`
	HTTP       HTTPConfig       `toml:"http"`
	Database   DatabaseConfig   `toml:"database"`
	Server     ServerConfig     `toml:"server"`
}

// IdentityConfig points at the hosted identity backend.
type IdentityConfig struct {
	URL            string   `toml:"url"`
	APIKey         string   `toml:"api_key"`
	SessionTimeout Duration `toml:"session_timeout"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID          string  `toml:"client_id"`
	ClientSecret      string  `toml:"client_secret"`
	RedirectURI       string  `toml:"redirect_uri"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// Map returns the credentials in the form expected by the Spotify service constructor.
func (c SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     c.ClientID,
		"client_secret": c.ClientSecret,
		"redirect_uri":  c.RedirectURI,
	}
}

// ConversionConfig holds the recognition backend endpoint and its static service token.
type ConversionConfig struct {
	URL   string `toml:"url"`
	Token string `toml:"token"`
}

// HTTPConfig contains outbound client settings.
type HTTPConfig struct {
	Timeout Duration `toml:"timeout"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains settings for the loopback OAuth callback listener.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Duration is a [time.Duration] written as a string ("30s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, text, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
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

// SaveConfig encodes config as TOML and writes it to path, replacing any existing file.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadEnvFiles loads variables from the given .env files into the process environment.
//
// Missing files are skipped and variables already set in the environment are kept.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

// ApplyEnv overlays TRACKSHIFT_* environment variables on top of the file values.
func (c *Config) ApplyEnv() error {
	fields := map[string]*string{
		"TRACKSHIFT_IDENTITY_URL":          &c.Identity.URL,
		"TRACKSHIFT_IDENTITY_API_KEY":      &c.Identity.APIKey,
		"TRACKSHIFT_SPOTIFY_CLIENT_ID":     &c.Spotify.ClientID,
		"TRACKSHIFT_SPOTIFY_CLIENT_SECRET": &c.Spotify.ClientSecret,
		"TRACKSHIFT_SPOTIFY_REDIRECT_URI":  &c.Spotify.RedirectURI,
		"TRACKSHIFT_CONVERSION_URL":        &c.Conversion.URL,
		"TRACKSHIFT_CONVERSION_TOKEN":      &c.Conversion.Token,
		"TRACKSHIFT_DATABASE_PATH":         &c.Database.Path,
		"TRACKSHIFT_SERVER_HOST":           &c.Server.Host,
	}
	for key, field := range fields {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*field = v
		}
	}

	if v := os.Getenv("TRACKSHIFT_SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: TRACKSHIFT_SERVER_PORT=%q", ErrInvalidConfig, v)
		}
		c.Server.Port = port
	}

	if v := os.Getenv("TRACKSHIFT_HTTP_TIMEOUT"); v != "" {
		if err := c.HTTP.Timeout.UnmarshalText([]byte(v)); err != nil {
			return err
		}
	}
	return nil
}

// Validate reports which required settings are missing for the backend clients.
func (c *Config) Validate() error {
	switch {
	case c.Identity.URL == "" || c.Identity.APIKey == "":
		return fmt.Errorf("%w: identity url and api_key are required", ErrMissingConfig)
	case c.Conversion.URL == "":
		return fmt.Errorf("%w: conversion url is required", ErrMissingConfig)
	case c.Spotify.ClientID == "":
		return fmt.Errorf("%w: spotify client_id is required", ErrMissingCredentials)
	}
	return nil
}
