package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as TOML",
	Long: `Config prints the settings a run would use after applying bofpass.toml,
BOFPASS_* environment variables and command-line flags.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if cfg.Source != "" {
			fmt.Fprintf(out, "# loaded from %s\n", cfg.Source)
		} else {
			fmt.Fprintln(out, "# no bofpass.toml found; defaults")
		}
		return cfg.WriteTOML(out)
	},
}
