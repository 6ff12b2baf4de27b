package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newCurrentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Show the active PHP version",
		RunE:  runCurrent,
	}
}

func runCurrent(cmd *cobra.Command, _ []string) error {
	app, err := newApp("current")
	if err != nil {
		return err
	}
	defer app.Close()

	version, active, err := app.registry.Current()
	if err != nil {
		return err
	}

	if outputJSON {
		payload := map[string]any{"active": active}
		if active {
			payload["version"] = version
			if entry, ok, err := app.registry.Get(version); err == nil && ok {
				payload["install_path"] = entry.InstallPath
			}
		}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	if !active {
		fmt.Fprintln(cmd.OutOrStdout(), "no active version")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "php %s\n", version)
	return nil
}
