package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"

	"phpvm/internal/logx"
)

const stateVersion = 1

// BuildStatus records the outcome of the install pipeline for a version.
type BuildStatus string

const (
	StatusComplete BuildStatus = "complete"
	StatusFailed   BuildStatus = "failed"
)

var (
	// ErrDuplicateVersion is returned when recording a version that already
	// has a differing complete entry.
	ErrDuplicateVersion = errors.New("version already installed")
	// ErrNotInstalled is returned for operations on versions with no
	// complete install.
	ErrNotInstalled = errors.New("version not installed")
)

// CorruptionError indicates the state file is unreadable or internally
// inconsistent. It is fatal: the user must inspect the work directory rather
// than have phpvm silently repair over possible data loss.
type CorruptionError struct {
	Path   string
	Reason string
	Err    error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("state file %s is corrupt (%s); inspect or reset the work directory", e.Path, e.Reason)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// InstalledVersion is one completed (or failed) install. Entries are never
// mutated after creation, only deleted.
type InstalledVersion struct {
	Version     string      `json:"version"`
	InstallPath string      `json:"install_path"`
	InstalledAt time.Time   `json:"installed_at"`
	Status      BuildStatus `json:"status"`
}

type state struct {
	Version  int                         `json:"version"`
	Installs map[string]InstalledVersion `json:"installs"`
	Current  string                      `json:"current,omitempty"`
}

// Registry is the on-disk source of truth for installed versions and the
// activation state. Every mutation is persisted through a single atomic file
// replacement, so readers always observe a fully-formed file. The mutex
// serializes load-modify-save cycles when installs of different versions run
// concurrently in one process.
type Registry struct {
	Path   string
	Logger logx.Logger

	mu sync.Mutex
}

func (r *Registry) logf(format string, v ...any) {
	if r.Logger != nil {
		r.Logger.Printf(format, v...)
	}
}

func (r *Registry) load() (*state, error) {
	data, err := os.ReadFile(r.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &state{Version: stateVersion, Installs: map[string]InstalledVersion{}}, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}

	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, &CorruptionError{Path: r.Path, Reason: "not valid JSON", Err: err}
	}
	if st.Installs == nil {
		st.Installs = map[string]InstalledVersion{}
	}
	if st.Version == 0 {
		st.Version = stateVersion
	}

	if st.Current != "" {
		entry, ok := st.Installs[st.Current]
		if !ok || entry.Status != StatusComplete {
			return nil, &CorruptionError{
				Path:   r.Path,
				Reason: fmt.Sprintf("active version %s has no complete install", st.Current),
			}
		}
	}
	return &st, nil
}

// save replaces the state file atomically: write temp, fsync, rename. A
// crash between the steps leaves either the old or the new state.
func (r *Registry) save(st *state) error {
	if err := os.MkdirAll(filepath.Dir(r.Path), 0o755); err != nil {
		return fmt.Errorf("ensure state dir: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.Path), "state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state: %w", err)
	}

	if err := os.Rename(tmp.Name(), r.Path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// List returns installed versions sorted descending by version.
func (r *Registry) List() ([]InstalledVersion, error) {
	st, err := r.load()
	if err != nil {
		return nil, err
	}

	list := make([]InstalledVersion, 0, len(st.Installs))
	for _, entry := range st.Installs {
		list = append(list, entry)
	}
	sort.Slice(list, func(i, j int) bool {
		vi, errI := semver.NewVersion(list[i].Version)
		vj, errJ := semver.NewVersion(list[j].Version)
		if errI != nil || errJ != nil {
			return list[i].Version > list[j].Version
		}
		if !vi.Equal(vj) {
			return vi.GreaterThan(vj)
		}
		return list[i].Version > list[j].Version
	})
	return list, nil
}

// IsInstalled reports whether version has a complete install entry.
func (r *Registry) IsInstalled(version string) (bool, error) {
	st, err := r.load()
	if err != nil {
		return false, err
	}
	entry, ok := st.Installs[version]
	return ok && entry.Status == StatusComplete, nil
}

// Get returns the entry for version when present.
func (r *Registry) Get(version string) (InstalledVersion, bool, error) {
	st, err := r.load()
	if err != nil {
		return InstalledVersion{}, false, err
	}
	entry, ok := st.Installs[version]
	return entry, ok, nil
}

// Record persists a new install entry. Re-recording an identical complete
// entry is a no-op; recording a differing entry over a complete one fails
// with ErrDuplicateVersion. A failed entry may always be replaced.
func (r *Registry) Record(entry InstalledVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, err := r.load()
	if err != nil {
		return err
	}

	if existing, ok := st.Installs[entry.Version]; ok && existing.Status == StatusComplete {
		if existing.InstallPath == entry.InstallPath && entry.Status == StatusComplete {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrDuplicateVersion, entry.Version)
	}

	st.Installs[entry.Version] = entry
	if err := r.save(st); err != nil {
		return err
	}
	r.logf("recorded %s (%s) at %s", entry.Version, entry.Status, entry.InstallPath)
	return nil
}

// Remove deletes a version. When the version is currently active the
// activation state is cleared and persisted before removeFiles runs, so an
// interruption can never leave the active pointer dangling. removeFiles
// receives the entry's install path and may be nil.
func (r *Registry) Remove(version string, removeFiles func(installPath string) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, err := r.load()
	if err != nil {
		return err
	}

	entry, ok := st.Installs[version]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotInstalled, version)
	}

	if st.Current == version {
		st.Current = ""
		if err := r.save(st); err != nil {
			return err
		}
		r.logf("cleared active version %s before removal", version)
	}

	if removeFiles != nil {
		if err := removeFiles(entry.InstallPath); err != nil {
			return fmt.Errorf("remove files for %s: %w", version, err)
		}
	}

	delete(st.Installs, version)
	if err := r.save(st); err != nil {
		return err
	}
	r.logf("removed %s", version)
	return nil
}

// Current returns the active version, if any.
func (r *Registry) Current() (string, bool, error) {
	st, err := r.load()
	if err != nil {
		return "", false, err
	}
	return st.Current, st.Current != "", nil
}

// SetCurrent marks version as active. The version must have a complete
// install entry.
func (r *Registry) SetCurrent(version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, err := r.load()
	if err != nil {
		return err
	}
	entry, ok := st.Installs[version]
	if !ok || entry.Status != StatusComplete {
		return fmt.Errorf("%w: %s", ErrNotInstalled, version)
	}
	if st.Current == version {
		return nil
	}
	st.Current = version
	return r.save(st)
}

// ClearCurrent deactivates whatever version is active.
func (r *Registry) ClearCurrent() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, err := r.load()
	if err != nil {
		return err
	}
	if st.Current == "" {
		return nil
	}
	st.Current = ""
	return r.save(st)
}
