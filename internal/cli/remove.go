package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove [version]",
		Aliases: []string{"uninstall"},
		Short:   "Remove an installed PHP version",
		Args:    cobra.MaximumNArgs(1),
		RunE:    runRemove,
	}
}

func runRemove(cmd *cobra.Command, args []string) error {
	app, err := newApp("remove")
	if err != nil {
		return err
	}
	defer app.Close()

	// Every recorded entry is removable regardless of status.
	catalog, entries, err := app.installedCatalog(false)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("no versions installed")
	}

	version, err := chooseVersion(cmd, args, catalog, entries)
	if err != nil {
		return err
	}

	current, active, err := app.registry.Current()
	if err != nil {
		return err
	}
	wasActive := active && current == version

	// The registry clears the active pointer before this callback runs, so
	// the bin symlink is dropped only after the state file can no longer
	// reference the version.
	err = app.registry.Remove(version, func(installPath string) error {
		if wasActive {
			if err := app.activator.Deactivate(); err != nil {
				return err
			}
		}
		return os.RemoveAll(installPath)
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "removed php %s\n", version)
	if wasActive {
		fmt.Fprintln(cmd.OutOrStdout(), "no version is active now; run phpvm use to pick one")
	}
	return nil
}
