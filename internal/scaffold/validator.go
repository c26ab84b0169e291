package scaffold

import (
	"fmt"
	"os"
)

// CheckExisting checks if warren.yml already exists.
// Returns an error if it does, nil otherwise.
func CheckExisting() error {
	if _, err := os.Stat("warren.yml"); err == nil {
		return fmt.Errorf("project already initialized\n\nFound existing: warren.yml\n\nUse 'warren init --force' to reinitialize (this will overwrite existing configuration)")
	}
	return nil
}
