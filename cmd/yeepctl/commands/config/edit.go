package config

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/marmos91/yeep/pkg/config"
)

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open configuration in editor",
	Long: `Open the configuration file in $EDITOR (then $VISUAL, then vi) and
validate it once the editor exits.

Examples:
  yeepctl config edit
  EDITOR=nano yeepctl config edit --config ./yeep.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigEdit,
}

func editor() string {
	for _, env := range []string{"EDITOR", "VISUAL"} {
		if e := os.Getenv(env); e != "" {
			return e
		}
	}
	return "vi"
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	path := configPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("configuration file not found: %s\n\nCreate it first with:\n  yeepctl config init --config %s", path, path)
	}

	run := exec.Command(editor(), path)
	run.Stdin, run.Stdout, run.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := run.Run(); err != nil {
		return fmt.Errorf("failed to run editor: %w", err)
	}

	if _, err := config.Load(path); err != nil {
		return fmt.Errorf("configuration saved but invalid: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
	return nil
}
