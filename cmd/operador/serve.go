package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"operador/internal/app"
	"operador/internal/server"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				handler, err := server.New(server.ConfigFor(rt))
				if err != nil {
					return err
				}
				if addr == "" {
					addr = rt.Config.Server.Addr
				}
				srv := &http.Server{
					Addr:              addr,
					Handler:           handler,
					ReadHeaderTimeout: 10 * time.Second,
				}

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					rt.Log.Info("listening", zap.String("addr", addr), zap.String("auth_mode", rt.Config.Auth.Mode))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
				if len(rt.Config.Webhooks) > 0 {
					d := server.NewWebhookDispatcher(rt.Repo, rt.Config.Webhooks, rt.Log.Named("webhooks"))
					g.Go(func() error { return d.Run(gctx) })
				}
				if err := g.Wait(); err != nil {
					return err
				}
				rt.Log.Info("server stopped")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	return cmd
}
