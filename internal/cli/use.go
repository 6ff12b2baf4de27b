package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"phpvm/internal/registry"
	"phpvm/internal/tags"
	"phpvm/internal/tui"
)

func newUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use [version]",
		Short: "Activate an installed PHP version",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runUse,
	}
}

func runUse(cmd *cobra.Command, args []string) error {
	app, err := newApp("use")
	if err != nil {
		return err
	}
	defer app.Close()

	catalog, entries, err := app.installedCatalog(true)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("no versions installed; run phpvm install first")
	}

	version, err := chooseVersion(cmd, args, catalog, entries)
	if err != nil {
		return err
	}

	entry, ok, err := app.registry.Get(version)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", registry.ErrNotInstalled, version)
	}

	if err := app.activator.Activate(entry); err != nil {
		return err
	}
	if err := app.registry.SetCurrent(entry.Version); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "now using php %s\n", entry.Version)
	pathHint(cmd, app.work)
	return nil
}

// chooseVersion resolves the positional query, or falls back to the fuzzy
// picker when no query was given.
func chooseVersion(cmd *cobra.Command, args []string, catalog []tags.ReleaseTag, entries []registry.InstalledVersion) (string, error) {
	if len(args) == 1 {
		tag, err := tags.Resolve(args[0], catalog)
		if err != nil {
			return "", err
		}
		return tag.Version, nil
	}

	options := make([]string, 0, len(entries))
	for _, e := range entries {
		options = append(options, e.Version)
	}
	if len(options) == 1 {
		return options[0], nil
	}

	picker := tui.FuzzyPicker{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()}
	return picker.ChooseOne("Select a PHP version", options)
}
