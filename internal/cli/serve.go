package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tansive/reportformatsrv/internal/reportformats/server"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the report format HTTP service",
		Long: `Run the report format HTTP service. Startup applies pending integrity
migrations, sweeps the trash and reconciles the predefined formats with the
feed before the listener is opened.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd.Context()), os.Interrupt, syscall.SIGTERM)
	defer stop()
	slog := log.With().Str("state", "init").Logger()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.startup(ctx)
	if err != nil {
		slog.Error().Err(err).Msg("startup checks failed")
		return err
	}
	if report != nil {
		slog.Info().Interface("feed", report).Msg("feed reconciled")
	}

	s, err := server.CreateNewServer(a.cfg, a.services())
	if err != nil {
		slog.Error().Err(err).Msg("Unable to create server")
		return err
	}
	s.MountHandlers()

	srv := &http.Server{
		Addr:              ":" + a.cfg.ServerPort,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		slog.Info().Str("addr", srv.Addr).Msg("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
