package tui

import (
	"phpvm/internal/build"
)

// StageReporter adapts a StatusWriter to the build pipeline's progress
// contract. Reports are fire-and-forget; the pipeline never blocks on the
// terminal.
type StageReporter struct {
	version string
	status  *StatusWriter
}

// NewStageReporter creates a reporter labelling its output with version.
func NewStageReporter(version string, status *StatusWriter) *StageReporter {
	return &StageReporter{version: version, status: status}
}

// Report implements build.Reporter.
func (r *StageReporter) Report(stage build.Stage, current, total int64) {
	if r.status == nil {
		return
	}
	switch stage {
	case build.StageDownloading:
		if total > 0 {
			r.status.Updatef("Downloading %s... %s / %s", r.version, HumanBytes(current), HumanBytes(total))
		} else {
			r.status.Updatef("Downloading %s... %s", r.version, HumanBytes(current))
		}
	case build.StageExtracting:
		r.status.Updatef("Extracting %s... %d files", r.version, current)
	case build.StageConfiguring:
		r.status.Updatef("Configuring %s...", r.version)
	case build.StageCompiling:
		r.status.Updatef("Compiling %s...", r.version)
	case build.StageInstalled:
		r.status.Updatef("Installed %s", r.version)
	case build.StageFailed:
		r.status.Updatef("Failed %s", r.version)
	default:
		r.status.Updatef("Resolving %s...", r.version)
	}
}

var _ build.Reporter = (*StageReporter)(nil)
