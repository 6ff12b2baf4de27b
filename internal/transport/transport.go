package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const userAgent = "phpvm/1.0"

// Client is the narrow fetch contract the core depends on. The tag catalog
// is fetched as text; source tarballs are streamed as bytes so the caller
// controls where they land on disk.
type Client interface {
	FetchText(ctx context.Context, url string) (string, error)
	FetchBytes(ctx context.Context, url string) (io.ReadCloser, int64, error)
}

// FetchError reports a transport failure with enough context to render a
// single actionable message.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NotFound reports whether err is a FetchError for an HTTP 404, which the
// paginated catalog fetch treats as end-of-pages rather than a failure.
func NotFound(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return false
	}
	return fe.StatusCode == http.StatusNotFound
}

// HTTP implements Client over net/http.
type HTTP struct {
	client *http.Client
}

// NewHTTP returns a Client with a request timeout suited to catalog calls.
// Tarball streaming relies on the caller's context for cancellation instead
// of a hard client timeout.
func NewHTTP() *HTTP {
	return &HTTP{client: &http.Client{Timeout: 0}}
}

func (h *HTTP) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/vnd.github+json, */*")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// FetchText retrieves url and returns the whole body as a string.
func (h *HTTP) FetchText(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := h.get(ctx, url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	return string(body), nil
}

// FetchBytes opens a streaming body for url. The second return value is the
// content length when the server reports one, or -1.
func (h *HTTP) FetchBytes(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	resp, err := h.get(ctx, url)
	if err != nil {
		return nil, 0, err
	}
	return resp.Body, resp.ContentLength, nil
}

var _ Client = (*HTTP)(nil)
