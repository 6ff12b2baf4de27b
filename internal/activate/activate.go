package activate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"phpvm/internal/build"
	"phpvm/internal/logx"
	"phpvm/internal/paths"
	"phpvm/internal/registry"
)

// Activator owns the <workdir>/bin symlink that exposes the active
// version's binaries. The link is always replaced in a single rename so a
// concurrently-running shell never observes an empty or half-populated bin.
type Activator struct {
	Work   paths.WorkDir
	Logger logx.Logger
}

func (a *Activator) logf(format string, v ...any) {
	if a.Logger != nil {
		a.Logger.Printf(format, v...)
	}
}

// Activate points bin at the given install's built binaries. Activating the
// already-active version is a no-op success.
func (a *Activator) Activate(entry registry.InstalledVersion) error {
	if entry.Status != registry.StatusComplete {
		return fmt.Errorf("%w: %s", registry.ErrNotInstalled, entry.Version)
	}
	target := build.DistBin(entry.InstallPath)
	if ok, err := paths.DirExists(target); err != nil {
		return fmt.Errorf("stat %s: %w", target, err)
	} else if !ok {
		return fmt.Errorf("%w: %s has no built binaries at %s", registry.ErrNotInstalled, entry.Version, target)
	}

	if current, err := os.Readlink(a.Work.BinDir); err == nil && current == target {
		return nil
	}

	// Build the new link under a temporary name, then swap it into place
	// with one rename.
	tmp := a.Work.BinDir + ".tmp"
	_ = os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("create staging link: %w", err)
	}

	if err := os.Rename(tmp, a.Work.BinDir); err != nil {
		// A stale real directory at bin cannot be renamed over; clear it
		// and retry once.
		if info, statErr := os.Lstat(a.Work.BinDir); statErr == nil && info.IsDir() && info.Mode()&os.ModeSymlink == 0 {
			if rmErr := os.RemoveAll(a.Work.BinDir); rmErr != nil {
				_ = os.Remove(tmp)
				return fmt.Errorf("replace bin directory: %w", rmErr)
			}
			if err := os.Rename(tmp, a.Work.BinDir); err != nil {
				_ = os.Remove(tmp)
				return fmt.Errorf("swap bin link: %w", err)
			}
			a.logf("activated %s", entry.Version)
			return nil
		}
		_ = os.Remove(tmp)
		return fmt.Errorf("swap bin link: %w", err)
	}

	a.logf("activated %s", entry.Version)
	return nil
}

// Deactivate removes the bin link entirely. Missing is fine.
func (a *Activator) Deactivate() error {
	if err := os.Remove(a.Work.BinDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove bin link: %w", err)
	}
	return nil
}

// Current derives the linked version from the bin symlink target, used by
// doctor to cross-check the persisted activation state. The boolean is
// false when no link exists or its target is not inside the archive tree.
func (a *Activator) Current() (string, bool) {
	target, err := os.Readlink(a.Work.BinDir)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(a.Work.ArchiveDir, target)
	if err != nil {
		return "", false
	}
	segs := strings.Split(filepath.ToSlash(rel), "/")
	if len(segs) == 0 || segs[0] == ".." || segs[0] == "." || segs[0] == "" {
		return "", false
	}
	return segs[0], true
}
