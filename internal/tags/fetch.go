package tags

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"phpvm/internal/logx"
	"phpvm/internal/transport"
)

const perPage = 100

var nowFunc = time.Now

// Service loads, refreshes and persists the tag catalog for one work
// directory.
type Service struct {
	Path       string
	Client     transport.Client
	CatalogURL string
	TarballURL string
	MaxAge     time.Duration
	Logger     logx.Logger
}

// CatalogResult carries the catalog plus refresh metadata. Warning is set
// when a refresh failed but a previously cached catalog was usable; per the
// offline policy that is not an error.
type CatalogResult struct {
	Cache     *Cache
	Refreshed bool
	Added     int
	Warning   string
}

func (s *Service) logf(format string, v ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, v...)
	}
}

// Catalog returns the tag catalog, refreshing it first when forced or when
// the cached copy is older than the staleness threshold. A refresh failure
// falls back to the stale cache with a warning so already-catalogued
// versions stay installable offline.
func (s *Service) Catalog(ctx context.Context, force bool) (CatalogResult, error) {
	cache, err := LoadCache(s.Path)
	if err != nil {
		return CatalogResult{}, err
	}

	if !force && !cache.Stale(s.MaxAge) {
		return CatalogResult{Cache: cache}, nil
	}

	added, err := s.fetchInto(ctx, cache)
	if err != nil {
		if len(cache.Tags) > 0 {
			warning := fmt.Sprintf("tag catalog refresh failed (%v); using catalog cached %s",
				err, cache.FetchedAt.Format(time.RFC3339))
			s.logf("%s", warning)
			return CatalogResult{Cache: cache, Warning: warning}, nil
		}
		return CatalogResult{}, err
	}

	cache.FetchedAt = nowFunc()
	if err := SaveCache(s.Path, cache); err != nil {
		return CatalogResult{}, err
	}

	s.logf("tag catalog refreshed: %d new tags, %d total", added, len(cache.Tags))
	return CatalogResult{Cache: cache, Refreshed: true, Added: added}, nil
}

// githubTag mirrors the fields of the upstream tag listing we consume.
type githubTag struct {
	Name       string `json:"name"`
	TarballURL string `json:"tarball_url"`
}

// fetchInto pulls catalog pages newest-first until it hits the end, a 404,
// or a page whose tags are all already known. The early stop keeps refreshes
// cheap: upstream publishes new tags at the front.
func (s *Service) fetchInto(ctx context.Context, cache *Cache) (int, error) {
	known := make(map[string]struct{}, len(cache.Tags))
	for _, t := range cache.Tags {
		known[t.Name] = struct{}{}
	}

	added := 0
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s?per_page=%d&page=%d", s.CatalogURL, perPage, page)
		body, err := s.Client.FetchText(ctx, url)
		if err != nil {
			if transport.NotFound(err) {
				break
			}
			return added, err
		}

		var raw []githubTag
		if err := json.Unmarshal([]byte(body), &raw); err != nil {
			return added, fmt.Errorf("decode tag listing page %d: %w", page, err)
		}
		if len(raw) == 0 {
			break
		}

		sawKnown := false
		var incoming []ReleaseTag
		for _, gt := range raw {
			tag, ok := ParseName(gt.Name)
			if !ok {
				continue
			}
			if _, seen := known[tag.Name]; seen {
				sawKnown = true
				continue
			}
			tag.SourceURL = gt.TarballURL
			if tag.SourceURL == "" {
				tag.SourceURL = s.TarballURL + tag.Name
			}
			incoming = append(incoming, tag)
		}

		added += cache.merge(incoming)

		if sawKnown || len(raw) < perPage {
			break
		}
	}

	return added, nil
}
