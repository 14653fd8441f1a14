package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"deepresearch/internal/gateway"

	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the research form, the SSE API and chat channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		addr := a.cfg.Gateway.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		opts := []gateway.Option{
			gateway.WithToken(a.cfg.Gateway.Token),
			gateway.WithSessionLimits(a.cfg.Gateway.MaxSessions, a.cfg.Gateway.SessionIdle.Duration),
		}
		if a.archive != nil {
			opts = append(opts, gateway.WithArchive(a.archive))
		}

		chs := a.channels()
		srv := gateway.NewServer(a.researcher, chs, opts...)
		slog.Info("starting gateway", "addr", addr, "channels", len(chs))
		return srv.ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "override gateway listen address")
}
