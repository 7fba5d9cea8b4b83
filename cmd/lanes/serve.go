package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dongho-jung/lanes/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the merge API over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp("serve")
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		svc, err := a.OpenService()
		if err != nil {
			return err
		}

		addr := serveAddr
		if addr == "" {
			addr = a.Config.ListenAddr
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return server.New(svc, a.Metrics).Run(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (defaults to listen_addr from config)")
}
