package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pygate/pygate/internal/rules"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter project config in the current directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit()
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("cannot get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, rules.ProjectConfigName)

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists: %s\n", configPath)
		return nil
	}

	if err := os.WriteFile(configPath, []byte(starterConfig), 0644); err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}

	fmt.Printf("Created config: %s\n", configPath)
	return nil
}

const starterConfig = `schema: production

# Per-path schema overrides, first match wins. A null schema exempts the
# matching paths entirely.
overrides: {}
#  "tests/**": { schema: relaxed }
#  "scratch/*.py": { schema: null }

rule_overrides: {}
#  max-file-length:
#    severity: warn
#    params:
#      max_lines: 800

logging:
  enabled: false
  directory: ""
`
