package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"deepresearch/internal/config"

	"github.com/spf13/cobra"
)

var setupForce bool

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Write a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.Path()
		}

		if _, err := os.Stat(path); err == nil && !setupForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}

		b, err := config.Default().Encode()
		if err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating config dir: %w", err)
		}
		if err := os.WriteFile(path, b, 0o600); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

func init() {
	setupCmd.Flags().BoolVarP(&setupForce, "force", "f", false, "overwrite an existing config file")
}
