package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"phpvm/internal/activate"
	"phpvm/internal/build"
	"phpvm/internal/config"
	"phpvm/internal/paths"
	"phpvm/internal/registry"
	"phpvm/internal/tags"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check work directory health",
		RunE:  runDoctor,
	}
}

type healthCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warning", "error"
	Summary string `json:"summary"`
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	work, err := paths.Resolve(workdirFlag)
	if err != nil {
		return err
	}

	var checks []healthCheck

	checks = append(checks, checkWorkdir(work))

	cfg, cfgErr := config.Load(work.ConfigFile)
	checks = append(checks, checkConfig(cfg, cfgErr))
	if cfgErr != nil {
		return writeDoctorResult(cmd, work.Root, checks)
	}

	checks = append(checks, checkCatalog(work, cfg))

	reg := &registry.Registry{Path: work.StateFile}
	entries, stateErr := reg.List()
	checks = append(checks, checkState(entries, stateErr))
	if stateErr == nil {
		checks = append(checks, checkActivation(work, reg))
		checks = append(checks, checkArchives(work, entries))
	}

	return writeDoctorResult(cmd, work.Root, checks)
}

func checkWorkdir(work paths.WorkDir) healthCheck {
	exists, err := paths.DirExists(work.Root)
	if err != nil {
		return healthCheck{Name: "Workdir", Status: "error", Summary: err.Error()}
	}
	if !exists {
		return healthCheck{Name: "Workdir", Status: "warning", Summary: work.Root + " does not exist yet; any command creates it"}
	}

	for _, dir := range []string{work.ArchiveDir, work.LogsDir} {
		ok, err := paths.DirExists(dir)
		if err != nil {
			return healthCheck{Name: "Workdir", Status: "error", Summary: err.Error()}
		}
		if !ok {
			return healthCheck{Name: "Workdir", Status: "warning", Summary: "missing " + dir}
		}
	}
	return healthCheck{Name: "Workdir", Status: "ok", Summary: work.Root}
}

func checkConfig(cfg config.Config, cfgErr error) healthCheck {
	if cfgErr != nil {
		return healthCheck{Name: "Config", Status: "error", Summary: cfgErr.Error()}
	}
	return healthCheck{
		Name:   "Config",
		Status: "ok",
		Summary: fmt.Sprintf("%d configure flags, %d make jobs, catalog refresh after %s",
			len(cfg.ConfigureFlags), cfg.Jobs(), cfg.TagsMaxAge()),
	}
}

func checkCatalog(work paths.WorkDir, cfg config.Config) healthCheck {
	cache, err := tags.LoadCache(work.TagsFile)
	if err != nil {
		return healthCheck{Name: "Catalog", Status: "error", Summary: err.Error()}
	}
	if len(cache.Tags) == 0 {
		return healthCheck{Name: "Catalog", Status: "warning", Summary: "no cached tags; run phpvm list --fetch"}
	}

	age := time.Since(cache.FetchedAt).Round(time.Minute)
	summary := fmt.Sprintf("%d tags, fetched %s ago", len(cache.Tags), age)
	if cache.Stale(cfg.TagsMaxAge()) {
		return healthCheck{Name: "Catalog", Status: "warning", Summary: summary + " (stale)"}
	}
	return healthCheck{Name: "Catalog", Status: "ok", Summary: summary}
}

func checkState(entries []registry.InstalledVersion, stateErr error) healthCheck {
	if stateErr != nil {
		return healthCheck{Name: "State", Status: "error", Summary: stateErr.Error()}
	}

	var complete, failed int
	for _, e := range entries {
		switch e.Status {
		case registry.StatusComplete:
			complete++
		case registry.StatusFailed:
			failed++
		}
	}
	summary := fmt.Sprintf("%d installed", complete)
	if failed > 0 {
		summary += fmt.Sprintf(", %d failed", failed)
		return healthCheck{Name: "State", Status: "warning", Summary: summary}
	}
	return healthCheck{Name: "State", Status: "ok", Summary: summary}
}

// checkActivation cross-checks the bin symlink against the registry's
// active pointer; they are written by separate steps and can disagree after
// an interruption.
func checkActivation(work paths.WorkDir, reg *registry.Registry) healthCheck {
	recorded, active, err := reg.Current()
	if err != nil {
		return healthCheck{Name: "Activation", Status: "error", Summary: err.Error()}
	}

	act := &activate.Activator{Work: work}
	linkedVersion, linked := act.Current()

	switch {
	case !active && !linked:
		return healthCheck{Name: "Activation", Status: "ok", Summary: "no active version"}
	case active && !linked:
		return healthCheck{Name: "Activation", Status: "warning",
			Summary: fmt.Sprintf("state says %s is active but the bin link is missing; run phpvm use %s", recorded, recorded)}
	case !active && linked:
		return healthCheck{Name: "Activation", Status: "warning",
			Summary: "bin link exists but no version is recorded active; run phpvm use"}
	}

	if linkedVersion != recorded {
		return healthCheck{Name: "Activation", Status: "warning",
			Summary: fmt.Sprintf("bin link points at %s but state says %s; run phpvm use %s", linkedVersion, recorded, recorded)}
	}
	return healthCheck{Name: "Activation", Status: "ok", Summary: "php " + recorded}
}

// checkArchives looks for directories the registry does not know about,
// registered installs whose completion marker is gone, and lock files left
// behind by an interrupted install.
func checkArchives(work paths.WorkDir, entries []registry.InstalledVersion) healthCheck {
	known := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		known[e.Version] = struct{}{}
	}

	var orphans, incomplete, locks []string
	dirents, err := os.ReadDir(work.ArchiveDir)
	if err != nil && !os.IsNotExist(err) {
		return healthCheck{Name: "Archives", Status: "error", Summary: err.Error()}
	}
	for _, d := range dirents {
		if !d.IsDir() {
			if strings.HasSuffix(d.Name(), ".lock") {
				locks = append(locks, d.Name())
			}
			continue
		}
		if _, ok := known[d.Name()]; !ok {
			orphans = append(orphans, d.Name())
		}
	}
	for _, e := range entries {
		if e.Status == registry.StatusComplete && !build.Completed(e.InstallPath) {
			incomplete = append(incomplete, e.Version)
		}
	}

	if len(orphans) == 0 && len(incomplete) == 0 && len(locks) == 0 {
		return healthCheck{Name: "Archives", Status: "ok", Summary: fmt.Sprintf("%d directories", len(dirents))}
	}

	var parts []string
	if len(orphans) > 0 {
		parts = append(parts, fmt.Sprintf("%d unregistered directories (%v)", len(orphans), orphans))
	}
	if len(incomplete) > 0 {
		parts = append(parts, fmt.Sprintf("%d installs missing their completion marker (%v)", len(incomplete), incomplete))
	}
	if len(locks) > 0 {
		parts = append(parts, fmt.Sprintf("%d leftover install locks (%v); delete them if no install is running", len(locks), locks))
	}
	return healthCheck{Name: "Archives", Status: "warning", Summary: strings.Join(parts, "; ")}
}

func writeDoctorResult(cmd *cobra.Command, root string, checks []healthCheck) error {
	if outputJSON {
		data, err := json.MarshalIndent(checks, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	bold := lipgloss.NewStyle().Bold(true).Inline(true)
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Inline(true)
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Inline(true)
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Inline(true)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, bold.Render("WORKDIR HEALTH:")+" "+root)

	for _, c := range checks {
		var statusStr string
		switch c.Status {
		case "ok":
			statusStr = green.Render("OK")
		case "warning":
			statusStr = yellow.Render("WARN")
		case "error":
			statusStr = red.Render("ERROR")
		}
		fmt.Fprintf(out, "  %-12s %s    %s\n", c.Name+":", statusStr, c.Summary)
	}

	return nil
}
