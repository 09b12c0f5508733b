package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "MRSYNC_"

// Config holds all configuration options for the merge request sync job
type Config struct {
	GitLab    GitLabConfig    `yaml:"gitlab" json:"gitlab"`
	Sync      SyncConfig      `yaml:"sync" json:"sync"`
	Squads    SquadsConfig    `yaml:"squads" json:"squads"`
	Users     UsersConfig     `yaml:"users" json:"users"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Reports   ReportsConfig   `yaml:"reports" json:"reports"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Retry     RetryConfig     `yaml:"retry" json:"retry"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// GitLabConfig holds the data source connection settings
type GitLabConfig struct {
	URL     string        `yaml:"url" json:"url"`
	Group   string        `yaml:"group" json:"group"`
	Token   string        `yaml:"token" json:"token"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// SyncConfig holds the fetch loop settings
type SyncConfig struct {
	SpanDays       int    `yaml:"span_days" json:"span_days"`
	PageSize       int    `yaml:"page_size" json:"page_size"`
	MaxItemsPerRun int    `yaml:"max_items_per_run" json:"max_items_per_run"`
	OnComplete     string `yaml:"on_complete" json:"on_complete"`
}

// SquadsConfig points at the project id to squad lookup table
type SquadsConfig struct {
	File    string            `yaml:"file" json:"file"`
	Mapping map[string]string `yaml:"mapping" json:"mapping"`
}

// UsersConfig holds the username normalization dictionary
type UsersConfig struct {
	DictionaryFile string            `yaml:"dictionary_file" json:"dictionary_file"`
	Dictionary     map[string]string `yaml:"dictionary" json:"dictionary"`
	UnknownMarker  string            `yaml:"unknown_marker" json:"unknown_marker"`
}

// StorageConfig selects where checkpoint and snapshot state live
type StorageConfig struct {
	Backend        string        `yaml:"backend" json:"backend"`
	Directory      string        `yaml:"dir" json:"dir"`
	DatabaseURL    string        `yaml:"database_url" json:"database_url"`
	LockTTL        time.Duration `yaml:"lock_ttl" json:"lock_ttl"`
	PruneSnapshots bool          `yaml:"prune_snapshots" json:"prune_snapshots"`
}

// ReportsConfig holds the report projection and sink settings
type ReportsConfig struct {
	Sink         string       `yaml:"sink" json:"sink"`
	OutputDir    string       `yaml:"output_dir" json:"output_dir"`
	DateFormat   string       `yaml:"date_format" json:"date_format"`
	ProjectLimit int          `yaml:"project_limit" json:"project_limit"`
	Tables       TablesConfig `yaml:"tables" json:"tables"`
}

// TablesConfig names the target table of each report
type TablesConfig struct {
	WIP       string `yaml:"wip" json:"wip"`
	Changelog string `yaml:"changelog" json:"changelog"`
	Projects  string `yaml:"projects" json:"projects"`
}

// RateLimitConfig paces requests to GitLab
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// RetryConfig controls in-process retries of a single page request
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" json:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff" json:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff" json:"max_backoff"`
	Multiplier     float64       `yaml:"multiplier" json:"multiplier"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	File   string `yaml:"file" json:"file"`
}

// Completion actions for SyncConfig.OnComplete
const (
	OnCompleteReports = "reports"
	OnCompleteNone    = "none"
)

// Storage backends
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Report sinks
const (
	SinkCSV      = "csv"
	SinkPostgres = "postgres"
)

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		GitLab: GitLabConfig{
			URL:     "https://gitlab.com",
			Timeout: 30 * time.Second,
		},
		Sync: SyncConfig{
			SpanDays:       90,
			PageSize:       100,
			MaxItemsPerRun: 1500,
			OnComplete:     OnCompleteReports,
		},
		Users: UsersConfig{
			UnknownMarker: "*",
		},
		Storage: StorageConfig{
			Backend:   BackendFile,
			Directory: dataDir,
			LockTTL:   30 * time.Minute,
		},
		Reports: ReportsConfig{
			Sink:         SinkCSV,
			OutputDir:    filepath.Join(dataDir, "reports"),
			DateFormat:   "02/01/2006 15:04:05",
			ProjectLimit: 500,
			Tables: TablesConfig{
				WIP:       "gitlab_wip",
				Changelog: "gitlab_changelog",
				Projects:  "gitlab_projects",
			},
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
		},
		Retry: RetryConfig{
			MaxAttempts:    1,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
			Multiplier:     2.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromEnv overrides values with MRSYNC_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString(&c.GitLab.URL, "GITLAB_URL")
	setString(&c.GitLab.Group, "GITLAB_GROUP")
	if token := os.Getenv("GITLAB_TOKEN"); token != "" {
		c.GitLab.Token = token
	}
	setString(&c.GitLab.Token, "GITLAB_TOKEN")

	errs = append(errs,
		setInt(&c.Sync.SpanDays, "SPAN_DAYS"),
		setInt(&c.Sync.PageSize, "PAGE_SIZE"),
		setInt(&c.Sync.MaxItemsPerRun, "MAX_ITEMS_PER_RUN"),
		setInt(&c.RateLimit.RequestsPerMinute, "REQUESTS_PER_MINUTE"),
		setInt(&c.Retry.MaxAttempts, "RETRY_MAX_ATTEMPTS"),
	)
	setString(&c.Sync.OnComplete, "ON_COMPLETE")

	setString(&c.Squads.File, "SQUADS_FILE")
	setString(&c.Users.DictionaryFile, "USERS_DICTIONARY_FILE")

	setString(&c.Storage.Backend, "STORAGE_BACKEND")
	setString(&c.Storage.Directory, "STORAGE_DIR")
	setString(&c.Storage.DatabaseURL, "DATABASE_URL")

	setString(&c.Reports.Sink, "REPORTS_SINK")
	setString(&c.Reports.OutputDir, "REPORTS_DIR")

	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")
	setString(&c.Logging.File, "LOG_FILE")

	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	*dst = n
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".mrsync.yaml",
		".mrsync.yml",
		filepath.Join(home, ".config", "mrsync", "config.yaml"),
		filepath.Join(home, ".config", "mrsync", "config.yml"),
		filepath.Join(home, ".mrsync.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.GitLab.URL != "" {
		if u, err := url.Parse(c.GitLab.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("gitlab url %q is not an absolute URL", c.GitLab.URL))
		}
	}
	if c.GitLab.Timeout <= 0 {
		errs = append(errs, errors.New("gitlab timeout must be positive"))
	}

	if c.Sync.SpanDays <= 0 {
		errs = append(errs, errors.New("span days must be positive"))
	}
	if c.Sync.PageSize <= 0 || c.Sync.PageSize > 100 {
		errs = append(errs, errors.New("page size must be between 1 and 100"))
	}
	if c.Sync.MaxItemsPerRun <= 0 {
		errs = append(errs, errors.New("max items per run must be positive"))
	}
	switch c.Sync.OnComplete {
	case OnCompleteReports, OnCompleteNone:
	default:
		errs = append(errs, fmt.Errorf("invalid on_complete action %q", c.Sync.OnComplete))
	}

	switch strings.ToLower(c.Storage.Backend) {
	case BackendFile:
		if c.Storage.Directory == "" {
			errs = append(errs, errors.New("storage directory is required for the file backend"))
		}
	case BackendPostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("database url is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid storage backend %q", c.Storage.Backend))
	}

	switch strings.ToLower(c.Reports.Sink) {
	case SinkCSV:
		if c.Reports.OutputDir == "" {
			errs = append(errs, errors.New("reports output directory is required for the csv sink"))
		}
	case SinkPostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("database url is required for the postgres sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid report sink %q", c.Reports.Sink))
	}
	if c.Reports.ProjectLimit <= 0 {
		errs = append(errs, errors.New("project limit must be positive"))
	}
	if c.Reports.DateFormat == "" {
		errs = append(errs, errors.New("date format is required"))
	}

	if c.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry max attempts must be at least 1"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// RequireSource checks the settings needed to talk to GitLab
func (c *Config) RequireSource() error {
	var errs []error
	if c.GitLab.URL == "" {
		errs = append(errs, errors.New("gitlab url is required"))
	}
	if c.GitLab.Group == "" {
		errs = append(errs, errors.New("gitlab group is required"))
	}
	if c.GitLab.Token == "" {
		errs = append(errs, errors.New("gitlab token is required (run 'mrsync auth login' or set MRSYNC_GITLAB_TOKEN)"))
	}
	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["gitlab-url"].(string); ok && v != "" {
		c.GitLab.URL = v
	}
	if v, ok := flags["group"].(string); ok && v != "" {
		c.GitLab.Group = v
	}
	if v, ok := flags["span-days"].(int); ok && v > 0 {
		c.Sync.SpanDays = v
	}
	if v, ok := flags["page-size"].(int); ok && v > 0 {
		c.Sync.PageSize = v
	}
	if v, ok := flags["max-items"].(int); ok && v > 0 {
		c.Sync.MaxItemsPerRun = v
	}
	if v, ok := flags["squads-file"].(string); ok && v != "" {
		c.Squads.File = v
	}
	if v, ok := flags["storage-dir"].(string); ok && v != "" {
		c.Storage.Directory = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Reports.OutputDir = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".mrsync.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// DefaultDataDir returns the platform data directory used for checkpoints and snapshots
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "mrsync")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "mrsync")
		}
		return filepath.Join(home, "mrsync")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "mrsync")
		}
		return filepath.Join(home, ".local", "share", "mrsync")
	}
}

// MaskSecret hides all but the edges of a credential for display
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
