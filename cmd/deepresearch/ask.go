package main

import (
	"context"
	"os/signal"
	"syscall"

	"deepresearch/internal/repl"
	"deepresearch/internal/research"

	"github.com/spf13/cobra"
)

var askVerbose bool

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Ask research questions interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		verbose := askVerbose || a.cfg.Agent.Verbose
		session := research.NewSession(a.researcher, a.sessionOptions()...)
		return repl.New(session, verbose).RunRW(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	askCmd.Flags().BoolVarP(&askVerbose, "verbose", "v", false, "print tool calls while the agent works")
}
