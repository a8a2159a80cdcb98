package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gnituy18/literal/internal/preview"
)

func newServeCmd() *cobra.Command {
	var docPath, addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a live document and push every render to websocket clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Serve.Addr = addr
			}
			logger, err := cfg.Logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			doc, err := openDocument(docPath)
			if err != nil {
				return err
			}

			srv, err := preview.New(doc, cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx, cfg.Serve.Addr)
		},
	}

	cmd.Flags().StringVar(&docPath, "doc", "", "HTML document")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides serve.addr)")
	_ = cmd.MarkFlagRequired("doc")

	return cmd
}
