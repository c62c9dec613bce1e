// Package config provides configuration loading and management for the sync service.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/syncline/syncline/internal/telemetry"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Accounts lists the connected accounts this instance syncs on behalf of
	Accounts []AccountConfig `yaml:"accounts"`

	// Families lists the data families that may be synced per account
	Families []FamilyConfig `yaml:"families"`

	Scheduler SchedulerConfig `yaml:"scheduler,omitempty"`
	Database  *DatabaseConfig `yaml:"database,omitempty"`

	// Telemetry configures the optional OpenTelemetry exporters
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// AccountConfig defines a single connected account
type AccountConfig struct {
	// ID is the external identifier of the account
	ID string `yaml:"id"`

	// Endpoint is the base URL of the remote API for this account
	Endpoint string `yaml:"endpoint"`

	// TokenEnv names the environment variable holding the account's API token.
	// An account without a resolvable token is considered unauthenticated and
	// is skipped by the scheduler.
	TokenEnv string `yaml:"tokenEnv,omitempty"`

	// Families optionally restricts which families sync for this account.
	// Empty means all configured families.
	Families []string `yaml:"families,omitempty"`
}

// FamilyConfig defines a data family (orders, transactions, ...)
type FamilyConfig struct {
	// Name is the api_family identifier
	Name string `yaml:"name"`

	// Path is the URL path of the family's list endpoint, relative to the
	// account endpoint
	Path string `yaml:"path,omitempty"`

	// PageSize is the requested page size for paginated fetches
	PageSize int `yaml:"pageSize,omitempty"`
}

// SchedulerConfig defines the orchestration knobs. All fields are optional;
// zero values fall back to the defaults below.
type SchedulerConfig struct {
	// PollInterval is the base interval between scheduler ticks (e.g. "1m")
	PollInterval string `yaml:"pollInterval,omitempty"`

	// StaleThreshold is how long a run may go without a heartbeat before a
	// later tick may reclaim its lock (e.g. "5m")
	StaleThreshold string `yaml:"staleThreshold,omitempty"`

	// HeartbeatInterval is how often a running worker refreshes its heartbeat
	HeartbeatInterval string `yaml:"heartbeatInterval,omitempty"`

	// OverlapWindow is the safety margin subtracted from the observed maximum
	// cursor at the end of a successful run (e.g. "5m")
	OverlapWindow string `yaml:"overlapWindow,omitempty"`

	// MaxConcurrentRuns bounds how many (account, family) keys run at once
	// within this process
	MaxConcurrentRuns int `yaml:"maxConcurrentRuns,omitempty"`

	// MaxPagesPerRun caps the pages fetched in a single run; 0 means
	// unbounded. A run cut short by this cap does not complete the backfill.
	MaxPagesPerRun int `yaml:"maxPagesPerRun,omitempty"`
}

// Scheduler defaults
const (
	DefaultPollInterval      = time.Minute
	DefaultStaleThreshold    = 5 * time.Minute
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultOverlapWindow     = 5 * time.Minute
	DefaultMaxConcurrentRuns = 4
)

// GetPollInterval returns the configured poll interval or the default
func (s *SchedulerConfig) GetPollInterval() time.Duration {
	return parseDurationOrDefault(s.PollInterval, DefaultPollInterval)
}

// GetStaleThreshold returns the configured stale threshold or the default
func (s *SchedulerConfig) GetStaleThreshold() time.Duration {
	return parseDurationOrDefault(s.StaleThreshold, DefaultStaleThreshold)
}

// GetHeartbeatInterval returns the configured heartbeat interval or the default
func (s *SchedulerConfig) GetHeartbeatInterval() time.Duration {
	return parseDurationOrDefault(s.HeartbeatInterval, DefaultHeartbeatInterval)
}

// GetOverlapWindow returns the configured overlap window or the default
func (s *SchedulerConfig) GetOverlapWindow() time.Duration {
	return parseDurationOrDefault(s.OverlapWindow, DefaultOverlapWindow)
}

// GetMaxConcurrentRuns returns the configured concurrency bound or the default
func (s *SchedulerConfig) GetMaxConcurrentRuns() int {
	if s.MaxConcurrentRuns <= 0 {
		return DefaultMaxConcurrentRuns
	}
	return s.MaxConcurrentRuns
}

func parseDurationOrDefault(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password.
	// This is the recommended approach for production deployments.
	// The file should contain only the password with optional trailing whitespace.
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from SYNCLINE_DATABASE_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		// Use filepath.Clean to prevent path traversal attacks
		cleanPath := filepath.Clean(d.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv("SYNCLINE_DATABASE_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or SYNCLINE_DATABASE_PASSWORD environment variable",
	)
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	escapedPassword := url.QueryEscape(password)

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User,
		escapedPassword,
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)

	return connString, nil
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// FamilyNames returns the names of all configured families
func (c *Config) FamilyNames() []string {
	names := make([]string, 0, len(c.Families))
	for _, f := range c.Families {
		names = append(names, f.Name)
	}
	return names
}

// FamiliesFor returns the family names that apply to the given account
func (c *Config) FamiliesFor(acct *AccountConfig) []string {
	if len(acct.Families) == 0 {
		return c.FamilyNames()
	}
	return acct.Families
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if len(c.Families) == 0 {
		return fmt.Errorf("at least one family must be configured")
	}

	familyNames := make(map[string]bool)
	for i, fam := range c.Families {
		if fam.Name == "" {
			return fmt.Errorf("family[%d]: name is required", i)
		}
		if familyNames[fam.Name] {
			return fmt.Errorf("family[%d]: duplicate family name '%s'", i, fam.Name)
		}
		familyNames[fam.Name] = true
	}

	accountIDs := make(map[string]bool)
	for i, acct := range c.Accounts {
		prefix := fmt.Sprintf("account[%d]", i)
		if acct.ID == "" {
			return fmt.Errorf("%s: id is required", prefix)
		}
		if accountIDs[acct.ID] {
			return fmt.Errorf("%s: duplicate account id '%s'", prefix, acct.ID)
		}
		accountIDs[acct.ID] = true

		if acct.Endpoint == "" {
			return fmt.Errorf("%s (%s): endpoint is required", prefix, acct.ID)
		}
		if _, err := url.Parse(acct.Endpoint); err != nil {
			return fmt.Errorf("%s (%s): invalid endpoint: %w", prefix, acct.ID, err)
		}

		for _, fam := range acct.Families {
			if !familyNames[fam] {
				return fmt.Errorf("%s (%s): unknown family '%s'", prefix, acct.ID, fam)
			}
		}
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	return validateSchedulerConfig(&c.Scheduler)
}

// validateSchedulerConfig rejects unparseable durations rather than silently
// using defaults at runtime
func validateSchedulerConfig(s *SchedulerConfig) error {
	for name, raw := range map[string]string{
		"pollInterval":      s.PollInterval,
		"staleThreshold":    s.StaleThreshold,
		"heartbeatInterval": s.HeartbeatInterval,
		"overlapWindow":     s.OverlapWindow,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("scheduler.%s must be a valid duration (e.g. '30s', '5m'): %w", name, err)
		}
	}
	return nil
}
