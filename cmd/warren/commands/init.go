package commands

import (
	"github.com/spf13/cobra"

	"github.com/warrenhq/warren/internal/printer"
	"github.com/warrenhq/warren/internal/scaffold"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new warren project",
	Long: `Initialize a new warren project in the current directory.

Creates warren.yml with a documented default configuration and the
.warren/ data directories (registry history and task boards).

Examples:
  # Initialize a new project
  warren init

  # Reinitialize, overwriting the existing warren.yml
  warren init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite existing warren.yml")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if !initForce {
		if err := scaffold.CheckExisting(); err != nil {
			return printer.Error("Initialization failed", err.Error(), nil)
		}
	}

	if err := scaffold.Initialize(initForce); err != nil {
		return printer.Error("Initialization failed", err.Error(), nil)
	}

	scaffold.PrintSuccess()
	return nil
}
