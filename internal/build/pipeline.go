package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"phpvm/internal/logx"
	"phpvm/internal/paths"
	"phpvm/internal/registry"
	"phpvm/internal/tags"
	"phpvm/internal/transport"
)

const (
	// CompletionMarker is written into the archive directory as the very
	// last step of a successful install. Its absence marks a directory as
	// incomplete regardless of what else it contains.
	CompletionMarker = ".complete"

	sourceArchiveName = "source.tar.gz"
	distDirName       = "dist"

	// outputTail bounds how much captured build output travels in a
	// BuildError.
	outputTail = 4096
)

// Options tunes a single install attempt.
type Options struct {
	// Force wipes any previous state for the version and rebuilds.
	Force bool
	// Dev configures a debug build and prefers php.ini-development.
	Dev bool
	// Jobs is the make parallelism.
	Jobs int
	// MinArchiveBytes rejects implausibly small downloads.
	MinArchiveBytes int64
	// ExpectedSHA256, when non-empty, must match the downloaded archive.
	ExpectedSHA256 string
	// ConfigureFlags are appended to ./configure after --prefix.
	ConfigureFlags []string
	// BuildOutput receives streamed configure/make output when set.
	BuildOutput io.Writer
}

// Pipeline turns a resolved release tag into a built install under the
// version's archive directory. It never touches the registry or activation
// state; it returns a value and the orchestrator does the recording.
type Pipeline struct {
	Client   transport.Client
	Runner   Runner
	Reporter Reporter
	Logger   logx.Logger
	Options  Options
}

func (p *Pipeline) report(stage Stage, current, total int64) {
	if p.Reporter != nil {
		p.Reporter.Report(stage, current, total)
	}
}

func (p *Pipeline) logf(format string, v ...any) {
	if p.Logger != nil {
		p.Logger.Printf(format, v...)
	}
}

func (p *Pipeline) runner() Runner {
	if p.Runner != nil {
		return p.Runner
	}
	return CmdRunner{}
}

// Completed reports whether destDir holds a finished install.
func Completed(destDir string) bool {
	info, err := os.Stat(filepath.Join(destDir, CompletionMarker))
	return err == nil && info.Mode().IsRegular()
}

// DistBin returns the built binary directory for an archive directory.
func DistBin(destDir string) string {
	return filepath.Join(destDir, distDirName, "bin")
}

// Install runs the full state machine for one version:
// Resolved -> Downloading -> Extracting -> Configuring -> Compiling -> Installed.
// Any failure removes the destination directory so a retry starts clean, and
// the returned InstalledVersion is only produced on full success.
func (p *Pipeline) Install(ctx context.Context, tag tags.ReleaseTag, destDir string) (registry.InstalledVersion, error) {
	if err := os.MkdirAll(filepath.Dir(destDir), 0o755); err != nil {
		return registry.InstalledVersion{}, fmt.Errorf("prepare archive root: %w", err)
	}

	unlock, err := acquireLock(destDir)
	if err != nil {
		return registry.InstalledVersion{}, err
	}
	defer unlock()

	p.report(StageResolved, 0, Indeterminate)

	if Completed(destDir) && !p.Options.Force {
		p.logf("%s already built at %s", tag.Version, destDir)
		p.report(StageInstalled, 0, Indeterminate)
		return p.installedEntry(tag, destDir), nil
	}

	// Retries always start from a clean destination.
	if err := os.RemoveAll(destDir); err != nil {
		return registry.InstalledVersion{}, fmt.Errorf("clear destination %s: %w", destDir, err)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return registry.InstalledVersion{}, fmt.Errorf("create destination %s: %w", destDir, err)
	}

	entry, err := p.build(ctx, tag, destDir)
	if err != nil {
		p.report(StageFailed, 0, Indeterminate)
		_ = os.RemoveAll(destDir)
		return registry.InstalledVersion{}, err
	}
	return entry, nil
}

func (p *Pipeline) build(ctx context.Context, tag tags.ReleaseTag, destDir string) (registry.InstalledVersion, error) {
	archivePath, err := p.download(ctx, tag, destDir)
	if err != nil {
		return registry.InstalledVersion{}, err
	}

	p.report(StageExtracting, 0, Indeterminate)
	if err := p.extract(archivePath, destDir); err != nil {
		return registry.InstalledVersion{}, err
	}
	_ = os.Remove(archivePath)

	if err := p.configure(ctx, destDir); err != nil {
		return registry.InstalledVersion{}, err
	}
	if err := p.compile(ctx, destDir); err != nil {
		return registry.InstalledVersion{}, err
	}
	if err := p.setupINI(destDir); err != nil {
		return registry.InstalledVersion{}, err
	}

	// Written last: everything before this line is disposable.
	marker := filepath.Join(destDir, CompletionMarker)
	if err := os.WriteFile(marker, []byte(time.Now().UTC().Format(time.RFC3339)+"\n"), 0o644); err != nil {
		return registry.InstalledVersion{}, fmt.Errorf("write completion marker: %w", err)
	}

	p.report(StageInstalled, 0, Indeterminate)
	p.logf("installed %s at %s", tag.Version, destDir)
	return p.installedEntry(tag, destDir), nil
}

func (p *Pipeline) installedEntry(tag tags.ReleaseTag, destDir string) registry.InstalledVersion {
	return registry.InstalledVersion{
		Version:     tag.Version,
		InstallPath: destDir,
		InstalledAt: time.Now().UTC(),
		Status:      registry.StatusComplete,
	}
}

func (p *Pipeline) configure(ctx context.Context, destDir string) error {
	p.report(StageConfiguring, 0, Indeterminate)

	if ok, _ := paths.FileExists(filepath.Join(destDir, "buildconf")); ok {
		if err := p.runStep(ctx, destDir, "buildconf", "sh", "buildconf", "--force"); err != nil {
			return err
		}
	}

	args := []string{"--prefix", filepath.Join(destDir, distDirName)}
	args = append(args, p.Options.ConfigureFlags...)
	if p.Options.Dev {
		args = append(args, "--enable-debug")
	}
	return p.runStep(ctx, destDir, "configure", "./configure", args...)
}

func (p *Pipeline) compile(ctx context.Context, destDir string) error {
	p.report(StageCompiling, 0, Indeterminate)

	jobs := p.Options.Jobs
	if jobs <= 0 {
		jobs = 1
	}
	return p.runStep(ctx, destDir, "make install", "make", "install", fmt.Sprintf("-j%d", jobs))
}

func (p *Pipeline) runStep(ctx context.Context, destDir, step, command string, args ...string) error {
	p.logf("running %s: %s %s", step, command, strings.Join(args, " "))

	opts := RunOptions{Dir: destDir, Stdout: p.Options.BuildOutput, Stderr: p.Options.BuildOutput}
	res, err := p.runner().Run(ctx, command, args, opts)
	if err == nil {
		return nil
	}

	exitCode := -1
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		exitCode = ee.ExitCode()
	}

	output := strings.TrimSpace(string(res.Stderr))
	if output == "" {
		output = strings.TrimSpace(string(res.Stdout))
	}
	if len(output) > outputTail {
		output = "..." + output[len(output)-outputTail:]
	}
	return &BuildError{Step: step, ExitCode: exitCode, Output: output, Err: err}
}

// setupINI copies the bundled php.ini template into the built tree. A source
// tree without templates is logged and skipped, not failed.
func (p *Pipeline) setupINI(destDir string) error {
	target := filepath.Join(destDir, distDirName, "lib", "php.ini")
	if ok, _ := paths.FileExists(target); ok {
		return nil
	}

	name := "php.ini-production"
	if p.Options.Dev {
		name = "php.ini-development"
	}
	source := filepath.Join(destDir, name)
	if ok, _ := paths.FileExists(source); !ok {
		p.logf("%s not found, skipping php.ini setup", name)
		return nil
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("prepare php.ini dir: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("write php.ini: %w", err)
	}
	return nil
}

// acquireLock takes the per-version install lock, failing fast when another
// install of the same version holds it. The lock lives next to the staging
// directory so wiping a failed destination cannot release someone else's
// lock.
func acquireLock(destDir string) (func(), error) {
	lockPath := destDir + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s (delete %s if no other install is running)",
				ErrAlreadyInstalling, filepath.Base(destDir), lockPath)
		}
		return nil, fmt.Errorf("acquire install lock: %w", err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	_ = f.Close()
	return func() { _ = os.Remove(lockPath) }, nil
}
