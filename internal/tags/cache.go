package tags

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Cache is the persisted tag catalog. It is owned by this package and only
// ever replaced as a whole; installs and removals never touch it.
type Cache struct {
	Tags      []ReleaseTag `json:"tags"`
	FetchedAt time.Time    `json:"fetched_at"`
}

// LoadCache reads the tags.json file at path, returning an empty cache when
// the file is missing.
func LoadCache(path string) (*Cache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Cache{}, nil
		}
		return nil, fmt.Errorf("read tag cache: %w", err)
	}

	var c Cache
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode tag cache %s: %w", path, err)
	}
	return &c, nil
}

// SaveCache writes the catalog atomically so a crash mid-write leaves either
// the old file or the new one, never a truncated mix.
func SaveCache(path string, c *Cache) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure cache dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tag cache: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "tags-*.json")
	if err != nil {
		return fmt.Errorf("create temp tag cache: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp tag cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp tag cache: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace tag cache: %w", err)
	}
	return nil
}

// Stale reports whether the catalog is older than maxAge. An empty cache is
// always stale.
func (c *Cache) Stale(maxAge time.Duration) bool {
	if c == nil || c.FetchedAt.IsZero() || len(c.Tags) == 0 {
		return true
	}
	return time.Since(c.FetchedAt) > maxAge
}

// Lookup finds a tag by its normalized version.
func (c *Cache) Lookup(version string) (ReleaseTag, bool) {
	for _, t := range c.Tags {
		if t.Version == version {
			return t, true
		}
	}
	return ReleaseTag{}, false
}

// merge adds tags not yet present (by raw name) and re-sorts the catalog
// newest-first. It returns the number of tags added.
func (c *Cache) merge(incoming []ReleaseTag) int {
	known := make(map[string]struct{}, len(c.Tags))
	for _, t := range c.Tags {
		known[t.Name] = struct{}{}
	}

	added := 0
	for _, t := range incoming {
		if _, ok := known[t.Name]; ok {
			continue
		}
		known[t.Name] = struct{}{}
		c.Tags = append(c.Tags, t)
		added++
	}

	sortDescending(c.Tags)
	return added
}
