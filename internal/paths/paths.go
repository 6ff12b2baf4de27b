package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// WorkDir captures canonical locations inside the phpvm managed directory.
type WorkDir struct {
	Root       string
	ArchiveDir string
	BinDir     string
	LogsDir    string
	TagsFile   string
	StateFile  string
	ConfigFile string
}

// Resolve determines the managed root using the optional --workdir flag or
// ~/.phpvm when the flag is empty.
func Resolve(workdirFlag string) (WorkDir, error) {
	root := workdirFlag
	if root == "" || root == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return WorkDir{}, fmt.Errorf("detect user home: %w", err)
		}
		root = filepath.Join(home, ".phpvm")
	} else {
		abs, err := filepath.Abs(root)
		if err != nil {
			return WorkDir{}, fmt.Errorf("resolve workdir: %w", err)
		}
		root = abs
	}

	return newWorkDir(root), nil
}

func newWorkDir(root string) WorkDir {
	return WorkDir{
		Root:       root,
		ArchiveDir: filepath.Join(root, "archives"),
		BinDir:     filepath.Join(root, "bin"),
		LogsDir:    filepath.Join(root, "logs"),
		TagsFile:   filepath.Join(root, "tags.json"),
		StateFile:  filepath.Join(root, "state.json"),
		ConfigFile: filepath.Join(root, "config.yaml"),
	}
}

// ArchiveFor returns the archive directory owned by a single version.
func (w WorkDir) ArchiveFor(version string) string {
	return filepath.Join(w.ArchiveDir, version)
}

// EnsureLayout creates the directories every command relies on. The bin
// symlink is deliberately not created here; it only exists while a version
// is active.
func (w WorkDir) EnsureLayout() error {
	for _, dir := range []string{w.Root, w.ArchiveDir, w.LogsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// FileExists reports whether a path exists and is a regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// DirExists reports whether a path exists and is a directory.
func DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}
