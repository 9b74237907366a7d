package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Bhaumik-99/research-agents/config"
	srv "github.com/Bhaumik-99/research-agents/internal/server"
	"github.com/spf13/cobra"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, event streams and web UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, appOptions{storage: true})
			if err != nil {
				return err
			}
			s, err := srv.New(cfg, a.manager, a.telemetry)
			if err != nil {
				a.close(context.Background())
				return err
			}

			errc := make(chan error, 1)
			go func() { errc <- s.Start(cfg.Server.Address) }()

			select {
			case err = <-errc:
			case <-ctx.Done():
				log.Printf("shutting down")
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if serr := s.Shutdown(shutdownCtx); serr != nil && !errors.Is(serr, context.Canceled) {
				log.Printf("http shutdown: %v", serr)
			}
			a.close(shutdownCtx)
			return err
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.address)")
	return serve
}
