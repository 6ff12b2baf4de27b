package build

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"phpvm/internal/registry"
	"phpvm/internal/tags"
	"phpvm/internal/transport"
)

// tarball builds an in-memory php-src style tar.gz with a single top-level
// directory that must be stripped on extraction.
func tarball(t *testing.T, top string, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	if err := tw.WriteHeader(&tar.Header{Name: top + "/", Typeflag: tar.TypeDir, Mode: 0o755}); err != nil {
		t.Fatalf("write dir header: %v", err)
	}
	for name, body := range files {
		hdr := &tar.Header{
			Name:     top + "/" + name,
			Typeflag: tar.TypeReg,
			Mode:     0o755,
			Size:     int64(len(body)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header %s: %v", name, err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("write body %s: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

type archiveClient struct {
	payload []byte
	fail    bool
}

func (c *archiveClient) FetchText(context.Context, string) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (c *archiveClient) FetchBytes(_ context.Context, url string) (io.ReadCloser, int64, error) {
	if c.fail {
		return nil, 0, &transport.FetchError{URL: url, Err: fmt.Errorf("connection reset")}
	}
	return io.NopCloser(bytes.NewReader(c.payload)), int64(len(c.payload)), nil
}

// scriptedRunner records build commands and can fail a chosen step.
type scriptedRunner struct {
	commands []string
	failOn   string
	output   string
}

func (r *scriptedRunner) Run(_ context.Context, command string, args []string, _ RunOptions) (RunResult, error) {
	full := strings.Join(append([]string{command}, args...), " ")
	r.commands = append(r.commands, full)
	if r.failOn != "" && strings.Contains(full, r.failOn) {
		return RunResult{Stderr: []byte(r.output)}, fmt.Errorf("exit status 2")
	}
	return RunResult{}, nil
}

func sourceFiles() map[string]string {
	return map[string]string{
		"buildconf":          "#!/bin/sh\n",
		"configure":          "#!/bin/sh\n",
		"php.ini-production": "; production defaults\n",
		"Zend/zend.c":        "/* zend */\n",
	}
}

func testTag() tags.ReleaseTag {
	return tags.ReleaseTag{Name: "php-8.3.0", Version: "8.3.0", SourceURL: "https://example.test/tarball/php-8.3.0"}
}

func newPipeline(client transport.Client, runner Runner) *Pipeline {
	return &Pipeline{Client: client, Runner: runner, Reporter: NoopReporter{}}
}

func TestInstallSuccess(t *testing.T) {
	client := &archiveClient{payload: tarball(t, "php-php-src-abc123", sourceFiles())}
	runner := &scriptedRunner{}
	p := newPipeline(client, runner)
	p.Options.Jobs = 4
	p.Options.ConfigureFlags = []string{"--with-openssl"}

	dest := filepath.Join(t.TempDir(), "archives", "8.3.0")
	entry, err := p.Install(context.Background(), testTag(), dest)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	if entry.Version != "8.3.0" || entry.Status != registry.StatusComplete || entry.InstallPath != dest {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if !Completed(dest) {
		t.Fatal("completion marker missing after successful install")
	}
	// Top-level tarball directory is stripped.
	if _, err := os.Stat(filepath.Join(dest, "Zend", "zend.c")); err != nil {
		t.Fatalf("extracted tree missing: %v", err)
	}
	// php.ini lands in the built prefix.
	if _, err := os.Stat(filepath.Join(dest, "dist", "lib", "php.ini")); err != nil {
		t.Fatalf("php.ini not set up: %v", err)
	}
	// Source archive does not linger after extraction.
	if _, err := os.Stat(filepath.Join(dest, sourceArchiveName)); !os.IsNotExist(err) {
		t.Fatal("source archive must be removed after extraction")
	}
	// Lock released.
	if _, err := os.Stat(dest + ".lock"); !os.IsNotExist(err) {
		t.Fatal("install lock must be released")
	}

	wantSteps := []string{"sh buildconf --force", "./configure", "make install -j4"}
	if len(runner.commands) != len(wantSteps) {
		t.Fatalf("expected %d build steps, got %v", len(wantSteps), runner.commands)
	}
	for i, prefix := range wantSteps {
		if !strings.HasPrefix(runner.commands[i], prefix) {
			t.Fatalf("step %d = %q, want prefix %q", i, runner.commands[i], prefix)
		}
	}
	if !strings.Contains(runner.commands[1], "--with-openssl") {
		t.Fatalf("configure flags not passed: %q", runner.commands[1])
	}
}

func TestInstallIdempotentWhenCompleted(t *testing.T) {
	client := &archiveClient{payload: tarball(t, "php-php-src-abc123", sourceFiles())}
	runner := &scriptedRunner{}
	p := newPipeline(client, runner)

	dest := filepath.Join(t.TempDir(), "archives", "8.3.0")
	if _, err := p.Install(context.Background(), testTag(), dest); err != nil {
		t.Fatalf("first Install: %v", err)
	}
	steps := len(runner.commands)

	if _, err := p.Install(context.Background(), testTag(), dest); err != nil {
		t.Fatalf("second Install: %v", err)
	}
	if len(runner.commands) != steps {
		t.Fatal("completed install must not be rebuilt without force")
	}
}

func TestInstallForceRebuilds(t *testing.T) {
	client := &archiveClient{payload: tarball(t, "php-php-src-abc123", sourceFiles())}
	runner := &scriptedRunner{}
	p := newPipeline(client, runner)

	dest := filepath.Join(t.TempDir(), "archives", "8.3.0")
	if _, err := p.Install(context.Background(), testTag(), dest); err != nil {
		t.Fatalf("first Install: %v", err)
	}
	steps := len(runner.commands)

	p.Options.Force = true
	if _, err := p.Install(context.Background(), testTag(), dest); err != nil {
		t.Fatalf("forced Install: %v", err)
	}
	if len(runner.commands) <= steps {
		t.Fatal("force must rebuild")
	}
}

func TestInstallFailureMidCompileLeavesNothing(t *testing.T) {
	client := &archiveClient{payload: tarball(t, "php-php-src-abc123", sourceFiles())}
	runner := &scriptedRunner{failOn: "make install", output: "ext/openssl.c:1: error: boom"}
	p := newPipeline(client, runner)

	dest := filepath.Join(t.TempDir(), "archives", "8.3.0")
	_, err := p.Install(context.Background(), testTag(), dest)

	var be *BuildError
	if !errors.As(err, &be) {
		t.Fatalf("expected BuildError, got %v", err)
	}
	if be.Step != "make install" || !strings.Contains(be.Output, "boom") {
		t.Fatalf("unexpected BuildError: %+v", be)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatal("failed install must remove its destination")
	}
	if Completed(dest) {
		t.Fatal("no completion marker may exist after a failure")
	}
	if _, err := os.Stat(dest + ".lock"); !os.IsNotExist(err) {
		t.Fatal("lock must be released after a failure")
	}
}

func TestInstallRejectsTruncatedDownload(t *testing.T) {
	client := &archiveClient{payload: tarball(t, "php-php-src-abc123", sourceFiles())}
	p := newPipeline(client, &scriptedRunner{})
	p.Options.MinArchiveBytes = int64(len(client.payload)) + 1

	dest := filepath.Join(t.TempDir(), "archives", "8.3.0")
	_, err := p.Install(context.Background(), testTag(), dest)

	var de *DownloadError
	if !errors.As(err, &de) {
		t.Fatalf("expected DownloadError, got %v", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatal("rejected download must leave no destination")
	}
}

func TestInstallChecksumMismatch(t *testing.T) {
	client := &archiveClient{payload: tarball(t, "php-php-src-abc123", sourceFiles())}
	p := newPipeline(client, &scriptedRunner{})
	p.Options.ExpectedSHA256 = strings.Repeat("0", 64)

	dest := filepath.Join(t.TempDir(), "archives", "8.3.0")
	_, err := p.Install(context.Background(), testTag(), dest)

	var de *DownloadError
	if !errors.As(err, &de) {
		t.Fatalf("expected DownloadError, got %v", err)
	}
}

func TestInstallDownloadFailure(t *testing.T) {
	p := newPipeline(&archiveClient{fail: true}, &scriptedRunner{})

	dest := filepath.Join(t.TempDir(), "archives", "8.3.0")
	_, err := p.Install(context.Background(), testTag(), dest)

	var de *DownloadError
	if !errors.As(err, &de) {
		t.Fatalf("expected DownloadError, got %v", err)
	}
}

func TestInstallLockConflict(t *testing.T) {
	client := &archiveClient{payload: tarball(t, "php-php-src-abc123", sourceFiles())}
	p := newPipeline(client, &scriptedRunner{})

	dest := filepath.Join(t.TempDir(), "archives", "8.3.0")
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	unlock, err := acquireLock(dest)
	if err != nil {
		t.Fatalf("acquireLock: %v", err)
	}
	defer unlock()

	if _, err := p.Install(context.Background(), testTag(), dest); !errors.Is(err, ErrAlreadyInstalling) {
		t.Fatalf("expected ErrAlreadyInstalling, got %v", err)
	}
}

func TestInstallCancelledContext(t *testing.T) {
	client := &archiveClient{payload: tarball(t, "php-php-src-abc123", sourceFiles())}
	p := newPipeline(client, &scriptedRunner{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dest := filepath.Join(t.TempDir(), "archives", "8.3.0")
	_, err := p.Install(ctx, testTag(), dest)
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if Completed(dest) {
		t.Fatal("cancelled install must not look complete")
	}
}

func TestStripTopComponent(t *testing.T) {
	cases := []struct {
		in   string
		out  string
		keep bool
	}{
		{"php-php-src-abc/configure", "configure", true},
		{"php-php-src-abc/Zend/zend.c", "Zend/zend.c", true},
		{"php-php-src-abc/", "", false},
		{"php-php-src-abc", "", false},
		{"./php-php-src-abc/README.md", "README.md", true},
	}
	for _, tc := range cases {
		out, keep := stripTopComponent(tc.in)
		if keep != tc.keep || out != tc.out {
			t.Fatalf("stripTopComponent(%q) = %q, %v; want %q, %v", tc.in, out, keep, tc.out, tc.keep)
		}
	}
}

func TestSecurePathRejectsTraversal(t *testing.T) {
	if _, err := securePath("/tmp/dest", "../outside"); err == nil {
		t.Fatal("expected traversal rejection")
	}
}

// symlinkTarball builds a tar.gz whose symlink entry points at linkTarget
// and then writes a regular file through that link.
func symlinkTarball(t *testing.T, top, linkTarget string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	if err := tw.WriteHeader(&tar.Header{Name: top + "/", Typeflag: tar.TypeDir, Mode: 0o755}); err != nil {
		t.Fatalf("write dir header: %v", err)
	}
	if err := tw.WriteHeader(&tar.Header{Name: top + "/evil", Typeflag: tar.TypeSymlink, Linkname: linkTarget, Mode: 0o777}); err != nil {
		t.Fatalf("write link header: %v", err)
	}
	body := "owned\n"
	if err := tw.WriteHeader(&tar.Header{Name: top + "/evil/owned.txt", Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(body))}); err != nil {
		t.Fatalf("write file header: %v", err)
	}
	if _, err := tw.Write([]byte(body)); err != nil {
		t.Fatalf("write file body: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

func TestInstallRejectsEscapingSymlink(t *testing.T) {
	outside := t.TempDir()
	client := &archiveClient{payload: symlinkTarball(t, "php-php-src-abc123", outside)}
	p := newPipeline(client, &scriptedRunner{})

	dest := filepath.Join(t.TempDir(), "archives", "8.3.0")
	_, err := p.Install(context.Background(), testTag(), dest)

	var ee *ExtractError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExtractError, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(outside, "owned.txt")); !os.IsNotExist(statErr) {
		t.Fatal("file escaped the destination through a symlink")
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Fatal("failed install must clean the destination")
	}
}

func TestSecureLink(t *testing.T) {
	root := "/work/archives/8.3.0"
	cases := []struct {
		linkPath string
		linkname string
		ok       bool
	}{
		{root + "/ext/link", "../Zend", true},
		{root + "/sapi/cli", "./php", true},
		{root + "/evil", "../../../../etc", false},
		{root + "/evil", "/etc/passwd", false},
	}
	for _, tc := range cases {
		err := secureLink(root, tc.linkPath, tc.linkname)
		if (err == nil) != tc.ok {
			t.Fatalf("secureLink(%q -> %q): got err=%v, want ok=%v", tc.linkPath, tc.linkname, err, tc.ok)
		}
	}
}
