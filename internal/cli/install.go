package cli

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/spf13/cobra"

	"phpvm/internal/build"
	"phpvm/internal/registry"
	"phpvm/internal/tags"
	"phpvm/internal/tui"
)

var (
	installForce   bool
	installVerbose bool
	installDev     bool
	installUse     bool
)

func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install <version> [version...]",
		Short: "Download, build and register PHP versions",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runInstall,
	}

	cmd.Flags().BoolVar(&installForce, "force", false, "Rebuild even if the version is already installed")
	cmd.Flags().BoolVar(&installVerbose, "verbose", false, "Stream configure and make output")
	cmd.Flags().BoolVar(&installDev, "dev", false, "Build with debug support and the development php.ini")
	cmd.Flags().BoolVar(&installUse, "use", false, "Activate the version after installing")

	return cmd
}

func runInstall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if installUse && len(args) > 1 {
		return fmt.Errorf("--use accepts a single version, got %d", len(args))
	}

	app, err := newApp("install")
	if err != nil {
		return err
	}
	defer app.Close()

	status := newStatus(cmd)
	defer status.Stop()

	status.Update("Loading tag catalog...")
	result, err := app.tags.Catalog(ctx, false)
	if err != nil {
		return err
	}
	printWarning(cmd, result.Warning)

	resolved, err := resolveArgs(args, result.Cache.Tags)
	if err != nil {
		return err
	}

	// Skips happen up front so a multi-version install only builds what is
	// missing.
	var pending []tags.ReleaseTag
	for _, tag := range resolved {
		if !installForce {
			installed, err := app.registry.IsInstalled(tag.Version)
			if err != nil {
				return err
			}
			if installed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is already installed\n", tag.Version)
				continue
			}
		}
		pending = append(pending, tag)
	}

	group, gctx := errgroup.WithContext(ctx)
	for _, tag := range pending {
		tag := tag
		group.Go(func() error {
			return app.installOne(gctx, cmd, status, tag)
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	if installUse {
		entry, ok, err := app.registry.Get(resolved[0].Version)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", registry.ErrNotInstalled, resolved[0].Version)
		}
		if err := app.activator.Activate(entry); err != nil {
			return err
		}
		if err := app.registry.SetCurrent(entry.Version); err != nil {
			return err
		}
		status.Stop()
		fmt.Fprintf(cmd.OutOrStdout(), "now using php %s\n", entry.Version)
		pathHint(cmd, app.work)
	}

	return nil
}

func (a *app) installOne(ctx context.Context, cmd *cobra.Command, status *tui.StatusWriter, tag tags.ReleaseTag) error {
	destDir := a.work.ArchiveFor(tag.Version)

	pipe := &build.Pipeline{
		Client:   a.client,
		Reporter: tui.NewStageReporter(tag.Version, status),
		Logger:   a.log,
		Options: build.Options{
			Force:           installForce,
			Dev:             installDev,
			Jobs:            a.cfg.Jobs(),
			MinArchiveBytes: a.cfg.MinArchiveBytes,
			ConfigureFlags:  a.cfg.ConfigureFlags,
		},
	}
	if installVerbose {
		pipe.Options.BuildOutput = cmd.ErrOrStderr()
	}

	// A failed build records nothing: the pipeline has already cleaned the
	// destination, and only a version that reached Installed may appear in
	// the registry.
	entry, err := pipe.Install(ctx, tag, destDir)
	if err != nil {
		return fmt.Errorf("install %s: %w", tag.Version, err)
	}

	if err := a.registry.Record(entry); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "installed php %s\n", entry.Version)
	return nil
}

// resolveArgs maps each query to a tag and drops duplicates, keeping the
// first occurrence's order.
func resolveArgs(args []string, catalog []tags.ReleaseTag) ([]tags.ReleaseTag, error) {
	seen := make(map[string]struct{}, len(args))
	resolved := make([]tags.ReleaseTag, 0, len(args))
	for _, arg := range args {
		tag, err := tags.Resolve(arg, catalog)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[tag.Version]; ok {
			continue
		}
		seen[tag.Version] = struct{}{}
		resolved = append(resolved, tag)
	}
	return resolved, nil
}
