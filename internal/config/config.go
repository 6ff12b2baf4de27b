package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the tunable policy for a phpvm work directory. Everything
// here has a sensible default; the file may be absent entirely.
type Config struct {
	Version int `yaml:"version"`

	// TagsMaxAgeHours is the staleness threshold for the cached tag catalog.
	TagsMaxAgeHours int `yaml:"tags_max_age_hours"`

	// CatalogURL is the paginated tag listing endpoint.
	CatalogURL string `yaml:"catalog_url"`

	// TarballURL is the base URL a tag name is appended to when the catalog
	// entry carries no source URL of its own.
	TarballURL string `yaml:"tarball_url"`

	// MinArchiveBytes rejects implausibly small downloads when the catalog
	// supplies no checksum. A full php-src tarball is well above this.
	MinArchiveBytes int64 `yaml:"min_archive_bytes"`

	// MakeJobs is the parallelism passed to make. Zero means NumCPU.
	MakeJobs int `yaml:"make_jobs"`

	// ConfigureFlags are passed to ./configure after --prefix.
	ConfigureFlags []string `yaml:"configure_flags"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Version:         1,
		TagsMaxAgeHours: 24,
		CatalogURL:      "https://api.github.com/repos/php/php-src/tags",
		TarballURL:      "https://api.github.com/repos/php/php-src/tarball/refs/tags/",
		MinArchiveBytes: 12 * 1024 * 1024,
		ConfigureFlags: []string{
			"--with-curl",
			"--with-openssl",
			"--with-pear",
			"--with-zip",
			"--enable-mbstring",
		},
	}
}

// Load reads the config file at path, applying defaults for anything unset.
// A missing file yields the default configuration.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.TagsMaxAgeHours < 0 {
		return fmt.Errorf("tags_max_age_hours must not be negative")
	}
	if c.MakeJobs < 0 {
		return fmt.Errorf("make_jobs must not be negative")
	}
	if c.MinArchiveBytes < 0 {
		return fmt.Errorf("min_archive_bytes must not be negative")
	}
	if c.CatalogURL == "" {
		return fmt.Errorf("catalog_url must not be empty")
	}
	return nil
}

// TagsMaxAge returns the staleness threshold as a duration.
func (c Config) TagsMaxAge() time.Duration {
	return time.Duration(c.TagsMaxAgeHours) * time.Hour
}

// Jobs returns the effective make parallelism.
func (c Config) Jobs() int {
	if c.MakeJobs > 0 {
		return c.MakeJobs
	}
	return runtime.NumCPU()
}
