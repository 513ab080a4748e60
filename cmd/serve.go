package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/reflex-cli/internal/api"
	"github.com/sells-group/reflex-cli/internal/monitoring"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the run log and the computed index over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyFlags(cmd); err != nil {
			return err
		}
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Server.Port = port
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		l, err := openRunLogDB(ctx)
		if err != nil {
			return err
		}
		defer l.Close() //nolint:errcheck

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: api.NewRouter(api.Options{
				Runs:           l,
				IndexPath:      cfg.Reflex.OutputPath,
				AllowedOrigins: cfg.Server.AllowedOrigins,
				Registry:       monitoring.New().Registry(),
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "server port (default from config)")
	serveCmd.Flags().String("output", "", "index file to serve (default from config)")
	rootCmd.AddCommand(serveCmd)
}
