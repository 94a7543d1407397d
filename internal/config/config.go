package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath         = "edtassist.yaml"
	DefaultListen       = "127.0.0.1:8080"
	DefaultTimezone     = "Pacific/Noumea"
	DefaultScheduleDir  = "json_schedules"
	DefaultCacheDir     = "./var/ics-cache"
	DefaultFeedURL      = "http://applis.univ-nc.nc/cgi-bin/WebObjects/EdtWeb.woa/2/wa/default?login={user}%2Fical"
	DefaultFetchTimeout = 30
	DefaultRefreshCron  = "0 */6 * * *"
	DefaultDayStart     = "08:00"
	DefaultDayEnd       = "18:00"
	DefaultLogLevel     = "info"
)

// WorkDay bounds the window used when computing free time slots.
type WorkDay struct {
	// Start / End are "HH:MM" local civil times.
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone every stored timestamp is expressed in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// ScheduleDir holds one {user}_edt.json file per user.
	ScheduleDir string `yaml:"schedule_dir" json:"schedule_dir"`

	// CacheDir holds conditional-GET metadata and the last feed body per URL.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// FeedURL is the calendar feed template; "{user}" is replaced with the
	// query-escaped user identifier.
	FeedURL string `yaml:"feed_url" json:"feed_url"`

	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds" json:"fetch_timeout_seconds"`

	// RefreshCron is a cron-style schedule string used by "serve" to
	// re-fetch the feeds of Users.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Users lists identifiers refreshed periodically by "serve".
	Users []string `yaml:"users" json:"users"`

	WorkDay WorkDay `yaml:"work_day" json:"work_day"`

	LogLevel string `yaml:"log_level" json:"log_level"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:              DefaultListen,
		Timezone:            DefaultTimezone,
		ScheduleDir:         DefaultScheduleDir,
		CacheDir:            DefaultCacheDir,
		FeedURL:             DefaultFeedURL,
		FetchTimeoutSeconds: DefaultFetchTimeout,
		RefreshCron:         DefaultRefreshCron,
		Users:               []string{},
		WorkDay:             WorkDay{Start: DefaultDayStart, End: DefaultDayEnd},
		LogLevel:            DefaultLogLevel,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		c.Timezone = DefaultTimezone
	}
	if c.ScheduleDir == "" {
		c.ScheduleDir = DefaultScheduleDir
	}
	if c.CacheDir == "" {
		c.CacheDir = DefaultCacheDir
	}
	if c.FeedURL == "" {
		c.FeedURL = DefaultFeedURL
	}
	if c.FetchTimeoutSeconds <= 0 {
		c.FetchTimeoutSeconds = DefaultFetchTimeout
	}
	if c.RefreshCron == "" {
		c.RefreshCron = DefaultRefreshCron
	}
	if c.Users == nil {
		c.Users = []string{}
	}
	if _, err := time.Parse("15:04", c.WorkDay.Start); err != nil {
		c.WorkDay.Start = DefaultDayStart
	}
	if _, err := time.Parse("15:04", c.WorkDay.End); err != nil {
		c.WorkDay.End = DefaultDayEnd
	}
	if c.WorkDay.End <= c.WorkDay.Start {
		c.WorkDay = WorkDay{Start: DefaultDayStart, End: DefaultDayEnd}
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Location resolves Timezone. Normalize guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		loc, _ = time.LoadLocation(DefaultTimezone)
	}
	return loc
}

// FetchTimeout returns FetchTimeoutSeconds as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//
// Environment overrides (see ApplyEnv) are applied last in both cases.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				cfg.ApplyEnv()
				return cfg, err
			}
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	cfg.ApplyEnv()

	return &cfg, nil
}

// LoadEnv loads a .env file from the working directory if one exists.
// A missing file is not an error.
func LoadEnv() {
	_ = godotenv.Load()
}

// ApplyEnv overrides fields from EDT_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("EDT_SCHEDULE_DIR"); v != "" {
		c.ScheduleDir = v
	}
	if v := os.Getenv("EDT_FEED_URL"); v != "" {
		c.FeedURL = v
	}
	if v := os.Getenv("EDT_TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv("EDT_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("EDT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("EDT_USERS"); v != "" {
		users := make([]string, 0)
		for _, u := range strings.Split(v, ",") {
			u = strings.TrimSpace(u)
			if u != "" {
				users = append(users, u)
			}
		}
		c.Users = users
	}
	c.Normalize()
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".edtassist-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
