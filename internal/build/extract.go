package build

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// extract unpacks the downloaded tar.gz into destDir, stripping the
// tarball's single top-level directory (php-php-src-<sha>) so the source
// tree lands directly in the version's archive directory.
func (p *Pipeline) extract(archivePath, destDir string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return &ExtractError{Err: fmt.Errorf("open archive: %w", err)}
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return &ExtractError{Err: fmt.Errorf("gzip reader: %w", err)}
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	var count int64
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return &ExtractError{Err: fmt.Errorf("read tar header: %w", err)}
		}

		rel, ok := stripTopComponent(header.Name)
		if !ok {
			continue
		}
		target, err := securePath(destDir, rel)
		if err != nil {
			return &ExtractError{Err: err}
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(header.Mode)); err != nil {
				return &ExtractError{Err: fmt.Errorf("create dir %s: %w", target, err)}
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return &ExtractError{Err: fmt.Errorf("prepare file %s: %w", target, err)}
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return &ExtractError{Err: fmt.Errorf("create file %s: %w", target, err)}
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return &ExtractError{Err: fmt.Errorf("write file %s: %w", target, err)}
			}
			if err := out.Close(); err != nil {
				return &ExtractError{Err: fmt.Errorf("close file %s: %w", target, err)}
			}
		case tar.TypeSymlink:
			if err := secureLink(destDir, target, header.Linkname); err != nil {
				return &ExtractError{Err: err}
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return &ExtractError{Err: fmt.Errorf("prepare link %s: %w", target, err)}
			}
			_ = os.Remove(target)
			if err := os.Symlink(header.Linkname, target); err != nil {
				return &ExtractError{Err: fmt.Errorf("create link %s: %w", target, err)}
			}
		default:
			// Ignore other entry types.
		}

		count++
		p.report(StageExtracting, count, Indeterminate)
	}

	p.logf("extracted %d entries into %s", count, destDir)
	return nil
}

// stripTopComponent drops the leading path element. Entries that are the
// top-level directory itself are skipped.
func stripTopComponent(name string) (string, bool) {
	clean := path.Clean(strings.TrimPrefix(name, "./"))
	idx := strings.IndexByte(clean, '/')
	if idx < 0 {
		return "", false
	}
	rest := clean[idx+1:]
	if rest == "" || rest == "." {
		return "", false
	}
	return rest, true
}

// securePath joins rel under root, rejecting traversal outside it.
func securePath(root, rel string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(rel))
	if !strings.HasPrefix(target, filepath.Clean(root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes destination", rel)
	}
	return target, nil
}

// secureLink rejects symlink entries whose target resolves outside root;
// securePath only vets entry names, and a later file written through an
// escaping link would otherwise land outside the archive directory.
func secureLink(root, linkPath, linkname string) error {
	resolved := linkname
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(linkPath), filepath.FromSlash(linkname))
	}
	if !strings.HasPrefix(filepath.Clean(resolved), filepath.Clean(root)+string(os.PathSeparator)) {
		return fmt.Errorf("archive symlink %q -> %q escapes destination", linkPath, linkname)
	}
	return nil
}
