package tags

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"phpvm/internal/transport"
)

// fakeClient serves canned catalog pages keyed by URL.
type fakeClient struct {
	pages map[string]string
	calls []string
	fail  bool
}

func (f *fakeClient) FetchText(_ context.Context, url string) (string, error) {
	f.calls = append(f.calls, url)
	if f.fail {
		return "", &transport.FetchError{URL: url, Err: fmt.Errorf("connection refused")}
	}
	body, ok := f.pages[url]
	if !ok {
		return "", &transport.FetchError{URL: url, StatusCode: http.StatusNotFound}
	}
	return body, nil
}

func (f *fakeClient) FetchBytes(context.Context, string) (io.ReadCloser, int64, error) {
	return nil, 0, fmt.Errorf("not implemented")
}

func pageURL(base string, page int) string {
	return fmt.Sprintf("%s?per_page=%d&page=%d", base, perPage, page)
}

func pageBody(t *testing.T, names ...string) string {
	t.Helper()
	var raw []githubTag
	for _, n := range names {
		raw = append(raw, githubTag{Name: n, TarballURL: "https://example.test/tarball/" + n})
	}
	data, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("marshal page: %v", err)
	}
	return string(data)
}

func newService(t *testing.T, client transport.Client) *Service {
	t.Helper()
	return &Service{
		Path:       filepath.Join(t.TempDir(), "tags.json"),
		Client:     client,
		CatalogURL: "https://catalog.test/tags",
		TarballURL: "https://catalog.test/tarball/",
		MaxAge:     24 * time.Hour,
	}
}

func TestCatalogInitialFetchAndRoundTrip(t *testing.T) {
	client := &fakeClient{pages: map[string]string{
		pageURL("https://catalog.test/tags", 1): pageBody(t, "php-8.3.1", "php-8.3.0", "php-8.2.15"),
	}}
	svc := newService(t, client)

	res, err := svc.Catalog(context.Background(), false)
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if !res.Refreshed || res.Added != 3 {
		t.Fatalf("expected refreshed with 3 tags, got refreshed=%v added=%d", res.Refreshed, res.Added)
	}
	if res.Cache.Tags[0].Version != "8.3.1" {
		t.Fatalf("expected newest-first catalog, got %s", res.Cache.Tags[0].Version)
	}

	reloaded, err := LoadCache(svc.Path)
	if err != nil {
		t.Fatalf("LoadCache: %v", err)
	}
	if len(reloaded.Tags) != 3 || !reloaded.FetchedAt.Equal(res.Cache.FetchedAt) {
		t.Fatalf("persisted cache differs: %d tags, fetched %v vs %v",
			len(reloaded.Tags), reloaded.FetchedAt, res.Cache.FetchedAt)
	}
}

func TestCatalogFreshCacheSkipsFetch(t *testing.T) {
	client := &fakeClient{pages: map[string]string{
		pageURL("https://catalog.test/tags", 1): pageBody(t, "php-8.3.1"),
	}}
	svc := newService(t, client)

	if _, err := svc.Catalog(context.Background(), false); err != nil {
		t.Fatalf("first Catalog: %v", err)
	}
	calls := len(client.calls)

	if _, err := svc.Catalog(context.Background(), false); err != nil {
		t.Fatalf("second Catalog: %v", err)
	}
	if len(client.calls) != calls {
		t.Fatal("fresh cache must not trigger a fetch")
	}
}

func TestCatalogForceRefetches(t *testing.T) {
	client := &fakeClient{pages: map[string]string{
		pageURL("https://catalog.test/tags", 1): pageBody(t, "php-8.3.1"),
	}}
	svc := newService(t, client)

	if _, err := svc.Catalog(context.Background(), false); err != nil {
		t.Fatalf("first Catalog: %v", err)
	}
	calls := len(client.calls)

	res, err := svc.Catalog(context.Background(), true)
	if err != nil {
		t.Fatalf("forced Catalog: %v", err)
	}
	if len(client.calls) == calls {
		t.Fatal("force must refetch")
	}
	if res.Added != 0 {
		t.Fatalf("no new tags expected, got %d", res.Added)
	}
}

func TestCatalogFallsBackToStaleCacheOnFetchFailure(t *testing.T) {
	client := &fakeClient{pages: map[string]string{
		pageURL("https://catalog.test/tags", 1): pageBody(t, "php-8.3.1"),
	}}
	svc := newService(t, client)

	if _, err := svc.Catalog(context.Background(), false); err != nil {
		t.Fatalf("seed Catalog: %v", err)
	}

	client.fail = true
	res, err := svc.Catalog(context.Background(), true)
	if err != nil {
		t.Fatalf("expected stale fallback, got error: %v", err)
	}
	if res.Warning == "" {
		t.Fatal("expected a warning on stale fallback")
	}
	if len(res.Cache.Tags) != 1 {
		t.Fatalf("expected cached tags to survive, got %d", len(res.Cache.Tags))
	}
}

func TestCatalogFailureWithoutCacheIsError(t *testing.T) {
	svc := newService(t, &fakeClient{fail: true})
	if _, err := svc.Catalog(context.Background(), false); err == nil {
		t.Fatal("expected error when no cache exists and fetch fails")
	}
}

func TestFetchStopsAtKnownTags(t *testing.T) {
	base := "https://catalog.test/tags"
	page1 := make([]string, 0, perPage)
	page1 = append(page1, "php-8.3.2")
	for i := 0; len(page1) < perPage; i++ {
		page1 = append(page1, fmt.Sprintf("php-8.3.%d", 100+i))
	}

	client := &fakeClient{pages: map[string]string{
		pageURL(base, 1): pageBody(t, page1...),
		pageURL(base, 2): pageBody(t, "php-8.2.15"),
	}}
	svc := newService(t, client)

	// Seed the cache with a tag that appears on page 1; the refresh must not
	// request page 2.
	seed := &Cache{Tags: []ReleaseTag{mustTag(t, "php-8.3.100")}, FetchedAt: time.Now().Add(-48 * time.Hour)}
	if err := SaveCache(svc.Path, seed); err != nil {
		t.Fatalf("SaveCache: %v", err)
	}

	if _, err := svc.Catalog(context.Background(), false); err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	for _, call := range client.calls {
		if call == pageURL(base, 2) {
			t.Fatal("refresh must stop once a page contains only known tags")
		}
	}
}

func TestCacheStale(t *testing.T) {
	var c *Cache
	if !c.Stale(time.Hour) {
		t.Fatal("nil cache must be stale")
	}
	c = &Cache{Tags: []ReleaseTag{{Name: "php-8.3.0", Version: "8.3.0"}}, FetchedAt: time.Now()}
	if c.Stale(time.Hour) {
		t.Fatal("fresh cache must not be stale")
	}
	c.FetchedAt = time.Now().Add(-2 * time.Hour)
	if !c.Stale(time.Hour) {
		t.Fatal("old cache must be stale")
	}
}
