package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/fairscan/internal/config"
	"github.com/spf13/cobra"
)

//go:embed templates/fairscan.yml
var configTemplate embed.FS

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new fairscan configuration file",
		Long: `Initialize creates a new ` + config.DefaultConfigFile + ` configuration file in the current directory.

The generated file includes:
- The analysis server URL and an optional launch command
- Commented examples for per-dataset audit profiles
- Documentation for all available options

Examples:
  # Create ` + config.DefaultConfigFile + ` in current directory
  fairscan init

  # Create config file at a specific path
  fairscan init -o myconfig.yml

  # Force overwrite existing file
  fairscan init -f`,
		Args: usageArgs(cobra.NoArgs),
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	// Check if file already exists
	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	// Read template from embedded filesystem
	content, err := configTemplate.ReadFile("templates/fairscan.yml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	// Create parent directories if needed
	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Write configuration file
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	fmt.Printf("Created configuration file: %s\n", outputPath)
	fmt.Println("\nEdit this file to configure settings such as:")
	fmt.Println("  - The analysis server URL and launch command")
	fmt.Println("  - Per-dataset label and protected columns")
	fmt.Println("  - Training epochs and the QID threshold")

	return nil
}
