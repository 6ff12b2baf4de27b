package build

// Stage identifies where an install attempt is in its state machine.
type Stage int

const (
	StageResolved Stage = iota
	StageDownloading
	StageExtracting
	StageConfiguring
	StageCompiling
	StageInstalled
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageResolved:
		return "resolved"
	case StageDownloading:
		return "downloading"
	case StageExtracting:
		return "extracting"
	case StageConfiguring:
		return "configuring"
	case StageCompiling:
		return "compiling"
	case StageInstalled:
		return "installed"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Indeterminate marks a progress report with no known total.
const Indeterminate int64 = -1

// Reporter receives fire-and-forget progress ticks. Implementations must not
// block; the pipeline never reads anything back.
type Reporter interface {
	Report(stage Stage, current, total int64)
}

// NoopReporter discards all progress.
type NoopReporter struct{}

func (NoopReporter) Report(Stage, int64, int64) {}
