package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rand/pips/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the solve service as an HTTP API",
	Long: `Start the HTTP API. Sessions are created with POST /api/solve and
observed over GET /api/sessions/{id}/events (server-sent events);
feedback and interrupts are delivered with POST requests against the
session. Prometheus metrics are exposed on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		app, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer app.Shutdown()

		if addr == "" {
			addr = app.Config.Server.Addr
		}

		srv := server.New(app.Service, app.Options, app.Logger)
		httpSrv := &http.Server{
			Addr:        addr,
			Handler:     srv.Handler(),
			ReadTimeout: app.Config.Server.ReadTimeout,
			// WriteTimeout stays zero: the event stream holds
			// connections open for the life of a session.
			WriteTimeout: app.Config.Server.WriteTimeout,
		}

		errCh := make(chan error, 1)
		go func() {
			app.Logger.Info("http server listening", "addr", addr)
			errCh <- httpSrv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		app.Logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
