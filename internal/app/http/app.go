package httpapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

type App struct {
	logger  *slog.Logger
	server  *http.Server
	address string
}

func New(
	logger *slog.Logger,
	handler http.Handler,
	address string,
	timeout time.Duration,
	idleTimeout time.Duration,
) *App {
	server := &http.Server{
		Addr:         address,
		Handler:      handler,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		IdleTimeout:  idleTimeout,
	}
	return &App{
		logger:  logger,
		server:  server,
		address: address,
	}
}

func (a *App) MustRun() {
	if err := a.Run(); err != nil {
		panic(err)
	}
}

func (a *App) Run() error {
	const op = "httpapp.Run"

	log := a.logger.With(
		slog.String("op", op),
		slog.String("address", a.address),
	)

	log.Info("HTTP server is running")

	err := a.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (a *App) Stop(ctx context.Context) {
	const op = "httpapp.Stop"
	log := a.logger.With(slog.String("op", op))
	log.Info("stopping HTTP server", slog.String("address", a.address))

	if err := a.server.Shutdown(ctx); err != nil {
		log.Error("failed to shut down HTTP server gracefully")
	}
}
