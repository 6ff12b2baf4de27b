package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"phpvm/internal/registry"
	"phpvm/internal/tags"
	"phpvm/internal/tui"
)

var (
	listInstalled bool
	listAll       bool
	listAlpha     bool
	listBeta      bool
	listRC        bool
	listFetch     bool
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalogued and installed PHP versions",
		RunE:  runList,
	}

	cmd.Flags().BoolVar(&listInstalled, "installed", false, "Only show installed versions")
	cmd.Flags().BoolVar(&listAll, "all", false, "Include alpha, beta and RC releases")
	cmd.Flags().BoolVar(&listAlpha, "alpha", false, "Include alpha releases")
	cmd.Flags().BoolVar(&listBeta, "beta", false, "Include beta releases")
	cmd.Flags().BoolVar(&listRC, "rc", false, "Include release candidates")
	cmd.Flags().BoolVar(&listFetch, "fetch", false, "Refresh the tag catalog before listing")

	return cmd
}

type listEntry struct {
	Version   string `json:"version"`
	Channel   string `json:"channel"`
	Installed bool   `json:"installed"`
	Active    bool   `json:"active"`
}

func runList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := newApp("list")
	if err != nil {
		return err
	}
	defer app.Close()

	installs, err := app.registry.List()
	if err != nil {
		return err
	}
	current, _, err := app.registry.Current()
	if err != nil {
		return err
	}

	byVersion := make(map[string]registry.InstalledVersion, len(installs))
	for _, e := range installs {
		byVersion[e.Version] = e
	}

	var rows []listEntry
	if listInstalled {
		for _, e := range installs {
			rows = append(rows, listEntry{
				Version:   e.Version,
				Channel:   channelOf(tags.ReleaseTag{Name: e.Version, Version: e.Version}),
				Installed: e.Status == registry.StatusComplete,
				Active:    e.Version == current,
			})
		}
	} else {
		result, err := app.tags.Catalog(ctx, listFetch)
		if err != nil {
			return err
		}
		printWarning(cmd, result.Warning)

		for _, tag := range result.Cache.Tags {
			if !channelWanted(tag) {
				continue
			}
			entry, installed := byVersion[tag.Version]
			rows = append(rows, listEntry{
				Version:   tag.Version,
				Channel:   channelOf(tag),
				Installed: installed && entry.Status == registry.StatusComplete,
				Active:    tag.Version == current,
			})
		}
	}

	if outputJSON {
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tCHANNEL\tINSTALLED\tACTIVE")
	for _, row := range rows {
		installed := ""
		if row.Installed {
			installed = "yes"
		}
		active := ""
		if row.Active {
			active = tui.ActiveBadgeStyle.Render("*")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", row.Version, row.Channel, installed, active)
	}
	return w.Flush()
}

// channelWanted applies the prerelease filter flags. Stable releases always
// show.
func channelWanted(tag tags.ReleaseTag) bool {
	if tag.IsStable() {
		return true
	}
	if listAll {
		return true
	}
	switch {
	case tag.IsAlpha():
		return listAlpha
	case tag.IsBeta():
		return listBeta
	case tag.IsRC():
		return listRC
	}
	return false
}

func channelOf(tag tags.ReleaseTag) string {
	switch {
	case tag.IsAlpha():
		return "alpha"
	case tag.IsBeta():
		return "beta"
	case tag.IsRC():
		return "rc"
	}
	return "stable"
}
