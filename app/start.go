package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Black-And-White-Club/trophy-bot/app/observability/attr"
)

const shutdownTimeout = 15 * time.Second

// Start runs the trophy module and the HTTP server until ctx is canceled,
// then shuts the server down gracefully.
func (app *App) Start(ctx context.Context) error {
	logger := app.Observability.Logger

	srv := &http.Server{
		Addr:              app.Config.HTTP.ListenAddr,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	moduleCtx, cancelModule := context.WithCancel(ctx)
	defer cancelModule()

	var wg sync.WaitGroup
	wg.Add(1)
	go app.TrophyModule.Run(moduleCtx, &wg)

	errCh := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "Starting HTTP server", attr.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var err error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down application...")
	case err = <-errCh:
		logger.Error("HTTP server failed", attr.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Error("HTTP server shutdown failed", attr.Error(serr))
	}

	cancelModule()
	wg.Wait()
	return err
}
