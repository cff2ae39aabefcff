package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// StoreConfig selects where the pending schedule is persisted.
type StoreConfig struct {
	// Driver is "file" (single JSON array) or "sqlite".
	Driver string `yaml:"driver"`
	// Path is the schedule file or database path. A leading "~/" is
	// expanded to the user's home directory.
	Path string `yaml:"path"`
}

// CatalogConfig describes the external event-search endpoint.
type CatalogConfig struct {
	// SearchURL already carries its query string; the weekday filter is
	// appended as "&f[0]=weekday:<id>".
	SearchURL string `yaml:"search_url"`
	// WeekdayIDs maps canonical weekday names to catalog filter IDs.
	WeekdayIDs map[string]int `yaml:"weekday_ids"`
	Timeout    string         `yaml:"timeout"`
	// CacheDir keeps the last successful response per query so a flaky
	// network does not break a rearm.
	CacheDir   string  `yaml:"cache_dir"`
	RatePerSec float64 `yaml:"rate_per_sec"`
}

// ClaimConfig controls the browser-side claim action.
type ClaimConfig struct {
	Timeout         string `yaml:"timeout"`
	ButtonSelector  string `yaml:"button_selector"`
	ConfirmSelector string `yaml:"confirm_selector"`
}

// LoginConfig controls the browser login flow. The password is never
// stored here; it lives in the OS keyring under KeyringService.
type LoginConfig struct {
	URL              string `yaml:"url"`
	Username         string `yaml:"username"`
	KeyringService   string `yaml:"keyring_service"`
	UsernameSelector string `yaml:"username_selector"`
	PasswordSelector string `yaml:"password_selector"`
	SubmitSelector   string `yaml:"submit_selector"`
	ReadySelector    string `yaml:"ready_selector"`
	// Refresh is a cron spec for re-running the login while `run` idles.
	Refresh  string `yaml:"refresh"`
	Headless bool   `yaml:"headless"`
	Timeout  string `yaml:"timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Config is the top-level application configuration.
type Config struct {
	// Timezone is the IANA timezone the user's civil times refer to.
	Timezone string `yaml:"timezone"`

	Store   StoreConfig   `yaml:"store"`
	Catalog CatalogConfig `yaml:"catalog"`
	Claim   ClaimConfig   `yaml:"claim"`
	Login   LoginConfig   `yaml:"login"`
	Log     LogConfig     `yaml:"log"`
}

// DefaultWeekdayIDs are the catalog filter IDs of the ASVZ event search.
func DefaultWeekdayIDs() map[string]int {
	return map[string]int{
		"Monday":    3999,
		"Tuesday":   4006,
		"Wednesday": 4007,
		"Thursday":  4002,
		"Friday":    4008,
		"Saturday":  4003,
		"Sunday":    4000,
	}
}

const defaultSQLitePath = "~/.local/share/slotbot/schedule.db"

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timezone: "Europe/Zurich",
		Store: StoreConfig{
			Driver: DriverFile,
			Path:   "~/.local/share/slotbot/schedule.json",
		},
		Catalog: CatalogConfig{
			SearchURL:  "https://asvz.ch/asvz_api/event_search?format=json",
			WeekdayIDs: DefaultWeekdayIDs(),
			Timeout:    "15s",
			CacheDir:   "~/.cache/slotbot/catalog",
			RatePerSec: 2,
		},
		Claim: ClaimConfig{
			Timeout:         "60s",
			ButtonSelector:  "button#btnRegister",
			ConfirmSelector: ".alert-success",
		},
		Login: LoginConfig{
			URL:              "https://schalter.asvz.ch/tn/",
			KeyringService:   "slotbot",
			UsernameSelector: "#username",
			PasswordSelector: "#password",
			SubmitSelector:   `button[type="submit"]`,
			ReadySelector:    "app-root",
			Refresh:          "0 */6 * * *",
			Headless:         true,
			Timeout:          "90s",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}

	switch c.Store.Driver {
	case DriverFile, DriverSQLite:
	default:
		c.Store.Driver = DriverFile
	}
	switch {
	case c.Store.Driver == DriverSQLite && (c.Store.Path == "" || c.Store.Path == def.Store.Path):
		// A first-run config carries the JSON path; switching only the
		// driver must not point sqlite at the schedule file.
		c.Store.Path = defaultSQLitePath
	case c.Store.Path == "":
		c.Store.Path = def.Store.Path
	}

	if c.Catalog.SearchURL == "" {
		c.Catalog.SearchURL = def.Catalog.SearchURL
	}
	if len(c.Catalog.WeekdayIDs) == 0 {
		c.Catalog.WeekdayIDs = def.Catalog.WeekdayIDs
	}
	if c.Catalog.Timeout == "" {
		c.Catalog.Timeout = def.Catalog.Timeout
	}
	if c.Catalog.CacheDir == "" {
		c.Catalog.CacheDir = def.Catalog.CacheDir
	}
	if c.Catalog.RatePerSec <= 0 {
		c.Catalog.RatePerSec = def.Catalog.RatePerSec
	}

	if c.Claim.Timeout == "" {
		c.Claim.Timeout = def.Claim.Timeout
	}
	if c.Claim.ButtonSelector == "" {
		c.Claim.ButtonSelector = def.Claim.ButtonSelector
	}
	if c.Claim.ConfirmSelector == "" {
		c.Claim.ConfirmSelector = def.Claim.ConfirmSelector
	}

	if c.Login.URL == "" {
		c.Login.URL = def.Login.URL
	}
	if c.Login.KeyringService == "" {
		c.Login.KeyringService = def.Login.KeyringService
	}
	if c.Login.UsernameSelector == "" {
		c.Login.UsernameSelector = def.Login.UsernameSelector
	}
	if c.Login.PasswordSelector == "" {
		c.Login.PasswordSelector = def.Login.PasswordSelector
	}
	if c.Login.SubmitSelector == "" {
		c.Login.SubmitSelector = def.Login.SubmitSelector
	}
	if c.Login.ReadySelector == "" {
		c.Login.ReadySelector = def.Login.ReadySelector
	}
	if c.Login.Refresh == "" {
		c.Login.Refresh = def.Login.Refresh
	}
	if c.Login.Timeout == "" {
		c.Login.Timeout = def.Login.Timeout
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

// Location resolves Timezone, falling back to the local zone when the
// name is unknown to the tz database.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) CatalogTimeout() time.Duration {
	d, err := ParseDurationOrDefault("catalog.timeout", c.Catalog.Timeout, 15*time.Second)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

func (c *Config) ClaimTimeout() time.Duration {
	d, err := ParseDurationOrDefault("claim.timeout", c.Claim.Timeout, time.Minute)
	if err != nil {
		return time.Minute
	}
	return d
}

func (c *Config) LoginTimeout() time.Duration {
	d, err := ParseDurationOrDefault("login.timeout", c.Login.Timeout, 90*time.Second)
	if err != nil {
		return 90 * time.Second
	}
	return d
}

// Validate reports config values that would only fail later at runtime.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, err)
	}
	for path, raw := range map[string]string{
		"catalog.timeout": c.Catalog.Timeout,
		"claim.timeout":   c.Claim.Timeout,
		"login.timeout":   c.Login.Timeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ExpandPath replaces a leading "~/" with the user's home directory.
func ExpandPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}

// DefaultPath is where the config lives unless --config says otherwise.
func DefaultPath() string {
	return ExpandPath("~/.config/slotbot/config.yaml")
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
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
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

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return WriteFileAtomic(path, data, 0o600)
}

// WriteFileAtomic writes data to a temp file next to path, fsyncs it and
// renames it over path, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".slotbot-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
