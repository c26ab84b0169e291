// Package scaffold creates a fresh warren project in the working directory.
package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*
var templatesFS embed.FS

// Initialize creates the warren project structure: warren.yml plus the
// .warren data directories. If force is true, an existing warren.yml is
// removed first.
func Initialize(force bool) error {
	if force {
		if err := handleForce(); err != nil {
			return err
		}
	}

	content, err := templatesFS.ReadFile("templates/warren.yml.tmpl")
	if err != nil {
		return fmt.Errorf("failed to read warren.yml template: %w", err)
	}

	dirs := []string{
		".warren",
		filepath.Join(".warren", "boards"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile("warren.yml", content, 0o644); err != nil {
		return fmt.Errorf("failed to write warren.yml: %w", err)
	}

	return validateCreatedFiles()
}

// handleForce removes existing files if --force was specified
func handleForce() error {
	if _, err := os.Stat("warren.yml"); err == nil {
		fmt.Println("⚠️  Removing existing warren.yml...")
		if err := os.Remove("warren.yml"); err != nil {
			return fmt.Errorf("failed to remove warren.yml: %w", err)
		}
	}
	return nil
}

// validateCreatedFiles checks that the written warren.yml parses as YAML.
func validateCreatedFiles() error {
	content, err := os.ReadFile("warren.yml")
	if err != nil {
		return fmt.Errorf("failed to read created warren.yml: %w", err)
	}

	var yamlData interface{}
	if err := yaml.Unmarshal(content, &yamlData); err != nil {
		return fmt.Errorf("created warren.yml is not valid YAML: %w", err)
	}

	return nil
}

// PrintSuccess prints the success message with created files
func PrintSuccess() {
	fmt.Println("\n✅ Successfully initialized warren project!")
	fmt.Println("\nCreated:")
	fmt.Println("  ✓ warren.yml")
	fmt.Println("  ✓ .warren/boards/")
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Add '.warren/' to your .gitignore file")
	fmt.Println("  2. Customize warren.yml for your fleet")
	fmt.Println("  3. Run 'warrend' to start the fleet daemon")
}
