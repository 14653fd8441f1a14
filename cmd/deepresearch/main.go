package main

import (
	"os"

	"deepresearch/internal/logger"

	"github.com/spf13/cobra"
)

var (
	configPath string
	outputMode string
)

func main() {
	logger.Init("")

	rootCmd := &cobra.Command{
		Use:          "deepresearch",
		Short:        "Research assistant backed by an LLM agent with web tools",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/deepresearch/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&outputMode, "mode", "m", "", "output mode: delimited or structured")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(historyCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
