package build

import (
	"errors"
	"fmt"
)

// ErrAlreadyInstalling means another process holds the install lock for the
// same version. The caller fails fast instead of racing two builds into the
// same destination.
var ErrAlreadyInstalling = errors.New("install already in progress")

// DownloadError reports a failed or rejected source download.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// ExtractError reports a failure while unpacking the source archive.
type ExtractError struct {
	Err error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract source archive: %v", e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// BuildError reports a failed build step with its exit code and the tail of
// the captured output, enough context for a single actionable message.
type BuildError struct {
	Step     string
	ExitCode int
	Output   string
	Err      error
}

func (e *BuildError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s failed (exit %d): %s", e.Step, e.ExitCode, e.Output)
	}
	return fmt.Sprintf("%s failed (exit %d): %v", e.Step, e.ExitCode, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }
