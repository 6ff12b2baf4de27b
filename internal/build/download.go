package build

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"phpvm/internal/tags"
)

// download streams the source tarball to a temporary path and only moves it
// into the archive tree after the integrity check passes, so a truncated
// download can never be mistaken for a complete one.
func (p *Pipeline) download(ctx context.Context, tag tags.ReleaseTag, destDir string) (string, error) {
	url := tag.SourceURL
	if url == "" {
		return "", &DownloadError{URL: url, Err: fmt.Errorf("tag %s has no source url", tag.Name)}
	}

	body, total, err := p.Client.FetchBytes(ctx, url)
	if err != nil {
		return "", &DownloadError{URL: url, Err: err}
	}
	defer body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(destDir), "phpvm-dl-*.tar.gz")
	if err != nil {
		return "", &DownloadError{URL: url, Err: fmt.Errorf("create temp file: %w", err)}
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	hash := sha256.New()
	buf := make([]byte, 128*1024)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			tmp.Close()
			return "", &DownloadError{URL: url, Err: err}
		}
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := tmp.Write(buf[:n]); err != nil {
				tmp.Close()
				return "", &DownloadError{URL: url, Err: fmt.Errorf("write temp file: %w", err)}
			}
			hash.Write(buf[:n])
			written += int64(n)
			p.report(StageDownloading, written, total)
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			tmp.Close()
			return "", &DownloadError{URL: url, Err: readErr}
		}
	}
	if err := tmp.Close(); err != nil {
		return "", &DownloadError{URL: url, Err: fmt.Errorf("close temp file: %w", err)}
	}

	if min := p.Options.MinArchiveBytes; min > 0 && written < min {
		return "", &DownloadError{URL: url, Err: fmt.Errorf("archive is %d bytes, below the %d byte minimum", written, min)}
	}
	if expected := p.Options.ExpectedSHA256; expected != "" {
		sum := hex.EncodeToString(hash.Sum(nil))
		if !strings.EqualFold(sum, expected) {
			return "", &DownloadError{URL: url, Err: fmt.Errorf("checksum mismatch: got %s, want %s", sum, expected)}
		}
	}

	dest := filepath.Join(destDir, sourceArchiveName)
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", &DownloadError{URL: url, Err: fmt.Errorf("finalize download: %w", err)}
	}
	p.logf("downloaded %s (%d bytes)", tag.Name, written)
	return dest, nil
}
