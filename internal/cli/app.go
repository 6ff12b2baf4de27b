package cli

import (
	"io"
	"os"
	"strings"

	"phpvm/internal/activate"
	"phpvm/internal/config"
	"phpvm/internal/logx"
	"phpvm/internal/paths"
	"phpvm/internal/registry"
	"phpvm/internal/tags"
	"phpvm/internal/transport"
	"phpvm/internal/tui"

	"github.com/spf13/cobra"
)

// app bundles the wired-up services every command needs. Construction
// resolves the work directory, ensures its layout and opens a per-command
// log file.
type app struct {
	work paths.WorkDir
	cfg  config.Config
	log  logx.Logger

	client    transport.Client
	tags      *tags.Service
	registry  *registry.Registry
	activator *activate.Activator

	logCloser io.Closer
}

func newApp(command string) (*app, error) {
	work, err := paths.Resolve(workdirFlag)
	if err != nil {
		return nil, err
	}
	if err := work.EnsureLayout(); err != nil {
		return nil, err
	}

	cfg, err := config.Load(work.ConfigFile)
	if err != nil {
		return nil, err
	}

	a := &app{work: work, cfg: cfg, log: logx.Noop{}}

	// A broken log file must not block the command itself.
	if logger, closer, err := logx.New(work, command); err == nil {
		a.log = logger
		a.logCloser = closer
	}

	client := transport.NewHTTP()
	a.client = client
	a.tags = &tags.Service{
		Path:       work.TagsFile,
		Client:     client,
		CatalogURL: cfg.CatalogURL,
		TarballURL: cfg.TarballURL,
		MaxAge:     cfg.TagsMaxAge(),
		Logger:     a.log,
	}
	a.registry = &registry.Registry{Path: work.StateFile, Logger: a.log}
	a.activator = &activate.Activator{Work: work, Logger: a.log}

	a.log.Printf("%s started (workdir %s)", command, work.Root)
	return a, nil
}

func (a *app) Close() {
	if a.logCloser != nil {
		a.logCloser.Close()
	}
}

// installedCatalog builds a resolvable tag list from registry entries so
// queries like "8.3" also work against what is already on disk.
func (a *app) installedCatalog(completeOnly bool) ([]tags.ReleaseTag, []registry.InstalledVersion, error) {
	entries, err := a.registry.List()
	if err != nil {
		return nil, nil, err
	}

	var catalog []tags.ReleaseTag
	var kept []registry.InstalledVersion
	for _, e := range entries {
		if completeOnly && e.Status != registry.StatusComplete {
			continue
		}
		catalog = append(catalog, tags.ReleaseTag{Name: e.Version, Version: e.Version})
		kept = append(kept, e)
	}
	return catalog, kept, nil
}

// newStatus returns the shared spinner, or nil when --no-progress is set.
// StatusWriter methods tolerate a nil receiver.
func newStatus(cmd *cobra.Command) *tui.StatusWriter {
	if noProgress {
		return nil
	}
	return tui.NewStatusWriter(cmd.ErrOrStderr())
}

func printWarning(cmd *cobra.Command, warning string) {
	if warning == "" {
		return
	}
	line := tui.WarnStyle.Render("warning:") + " " + warning
	cmd.ErrOrStderr().Write([]byte(line + "\n"))
}

// pathHint nudges the user when the managed bin directory is not on PATH.
func pathHint(cmd *cobra.Command, work paths.WorkDir) {
	for _, dir := range strings.Split(os.Getenv("PATH"), string(os.PathListSeparator)) {
		if dir == work.BinDir {
			return
		}
	}
	cmd.ErrOrStderr().Write([]byte(tui.DimStyle.Render(
		"hint: add "+work.BinDir+" to your PATH to use the active php") + "\n"))
}
