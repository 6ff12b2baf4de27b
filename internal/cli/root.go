package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"phpvm/internal/tui"
)

var (
	workdirFlag string
	outputJSON  bool
	noProgress  bool
)

// Execute runs the root cobra command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", tui.ErrorStyle.Render("error:"), err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "phpvm",
		Short: "PHP version manager",
		Long:  "phpvm installs PHP versions from source and switches between them.",
	}

	cmd.PersistentFlags().StringVar(&workdirFlag, "workdir", "", "Path to the managed work directory (default ~/.phpvm)")
	cmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output machine-readable JSON")
	cmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "Disable interactive progress output")

	cmd.AddCommand(newInstallCmd())
	cmd.AddCommand(newUseCmd())
	cmd.AddCommand(newRemoveCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newCurrentCmd())
	cmd.AddCommand(newDoctorCmd())

	return cmd
}
