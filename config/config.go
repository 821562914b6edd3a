// Package config loads the YAML (or JSON) configuration of the sync tools:
// NGW connections, transport limits, fetch bounds and logging.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	syncErrors "github.com/c0deZ3R0/ngw-sync-kit/errors"
	"github.com/c0deZ3R0/ngw-sync-kit/logging"
	"github.com/c0deZ3R0/ngw-sync-kit/transport/ngw"
)

// Config is the root configuration document.
type Config struct {
	Connections []Connection   `json:"connections" yaml:"connections"`
	Transport   Transport      `json:"transport,omitempty" yaml:"transport,omitempty"`
	Sync        Sync           `json:"sync,omitempty" yaml:"sync,omitempty"`
	Logging     logging.Config `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// Connection is one NGW instance. Containers refer to it by ID.
type Connection struct {
	ID       string `json:"id" yaml:"id"`
	URL      string `json:"url" yaml:"url"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
}

// Transport bounds every request made to a server.
type Transport struct {
	Timeout              Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxBodyBytes         int64    `json:"max_body_bytes,omitempty" yaml:"max_body_bytes,omitempty"`
	MaxDecompressedBytes int64    `json:"max_decompressed_bytes,omitempty" yaml:"max_decompressed_bytes,omitempty"`
}

// Sync holds fetch settings.
type Sync struct {
	// MaxPages bounds the change pages fetched per session; 0 is unbounded.
	MaxPages int `json:"max_pages,omitempty" yaml:"max_pages,omitempty"`
}

// Duration is a time.Duration written as "30s" or "1m30s".
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Default returns a configuration without connections and with the
// transport defaults.
func Default() *Config {
	return &Config{
		Connections: []Connection{},
		Transport: Transport{
			Timeout:              Duration(ngw.DefaultTimeout),
			MaxBodyBytes:         ngw.DefaultLimits.MaxBodyBytes,
			MaxDecompressedBytes: ngw.DefaultLimits.MaxDecompressedBytes,
		},
		Logging: logging.DefaultConfig,
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	seen := make(map[string]bool, len(c.Connections))
	for i, conn := range c.Connections {
		if conn.ID == "" {
			errs = append(errs, fmt.Errorf("connections[%d]: id is required", i))
		} else if seen[conn.ID] {
			errs = append(errs, fmt.Errorf("connections[%d]: duplicate id %q", i, conn.ID))
		}
		seen[conn.ID] = true

		u, err := url.Parse(conn.URL)
		switch {
		case conn.URL == "":
			errs = append(errs, fmt.Errorf("connections[%d]: url is required", i))
		case err != nil:
			errs = append(errs, fmt.Errorf("connections[%d]: invalid url: %w", i, err))
		case u.Scheme != "http" && u.Scheme != "https":
			errs = append(errs, fmt.Errorf("connections[%d]: url scheme must be http or https, got %q", i, u.Scheme))
		}
		if conn.Password != "" && conn.Username == "" {
			errs = append(errs, fmt.Errorf("connections[%d]: password without username", i))
		}
	}

	if c.Transport.Timeout < 0 {
		errs = append(errs, errors.New("transport.timeout must not be negative"))
	}
	if c.Transport.MaxBodyBytes < 0 || c.Transport.MaxDecompressedBytes < 0 {
		errs = append(errs, errors.New("transport size limits must not be negative"))
	}
	if c.Sync.MaxPages < 0 {
		errs = append(errs, errors.New("sync.max_pages must not be negative"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return syncErrors.NewValidationError(syncErrors.OpConfig, errors.Join(errs...))
	}
	return nil
}

// Connection returns the connection with the given id.
func (c *Config) Connection(id string) (Connection, error) {
	for _, conn := range c.Connections {
		if conn.ID == id {
			return conn, nil
		}
	}
	return Connection{}, syncErrors.NewValidationError(syncErrors.OpConfig, fmt.Errorf("unknown connection %q", id))
}

// Limits returns the transport size limits.
func (c *Config) Limits() ngw.Limits {
	return ngw.Limits{
		MaxBodyBytes:         c.Transport.MaxBodyBytes,
		MaxDecompressedBytes: c.Transport.MaxDecompressedBytes,
	}
}

// Client builds an NGW client for the connection with the given id.
func (c *Config) Client(id string, logger *logging.Logger) (*ngw.Client, error) {
	conn, err := c.Connection(id)
	if err != nil {
		return nil, err
	}
	opts := []ngw.ClientOption{ngw.WithLimits(c.Limits())}
	if c.Transport.Timeout > 0 {
		opts = append(opts, ngw.WithTimeout(time.Duration(c.Transport.Timeout)))
	}
	if conn.Username != "" {
		opts = append(opts, ngw.WithCredentials(conn.Username, conn.Password))
	}
	if logger != nil {
		opts = append(opts, ngw.WithLogger(logger))
	}
	return ngw.NewClient(conn.URL, opts...)
}

// LoggingConfig returns the logging settings with environment overrides
// applied.
func (c *Config) LoggingConfig() logging.Config {
	return logging.ApplyEnv(c.Logging)
}

// LoadFromFile loads a configuration from a YAML or JSON file. Missing
// sections keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, syncErrors.NewValidationError(syncErrors.OpConfig, fmt.Errorf("failed to read config file %s: %w", path, err))
	}
	return LoadFromBytes(data, detectFormat(path))
}

// LoadFromBytes parses a configuration in the given format ("yaml", "yml"
// or "json") and validates it.
func LoadFromBytes(data []byte, format string) (*Config, error) {
	cfg := Default()

	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, syncErrors.NewValidationError(syncErrors.OpConfig, fmt.Errorf("failed to parse YAML config: %w", err))
		}
	case "json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, syncErrors.NewValidationError(syncErrors.OpConfig, fmt.Errorf("failed to parse JSON config: %w", err))
		}
	default:
		return nil, syncErrors.NewValidationError(syncErrors.OpConfig, fmt.Errorf("unsupported config format: %s", format))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveToFile writes the configuration in the format implied by the file
// extension, with mode 0600.
func (c *Config) SaveToFile(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	var data []byte
	var err error
	switch detectFormat(path) {
	case "json":
		data, err = json.MarshalIndent(c, "", "  ")
	default:
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return syncErrors.NewValidationError(syncErrors.OpConfig, fmt.Errorf("failed to encode config: %w", err))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return syncErrors.NewStorageError(syncErrors.OpConfig, fmt.Errorf("failed to create directory: %w", err))
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return syncErrors.NewStorageError(syncErrors.OpConfig, fmt.Errorf("failed to write config file %s: %w", path, err))
	}
	return nil
}

// DefaultConfigPath returns the default configuration file path
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, ".config", "ngwsync", "config.yaml"), nil
}

// LoadDefault loads the configuration from the default location, or
// returns Default when there is no file.
func LoadDefault() (*Config, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}

	return LoadFromFile(path)
}

func detectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	default:
		return "yaml"
	}
}
