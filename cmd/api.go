package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/catalystcommunity/app-utils-go/errorutils"
	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/felipet/lacoctelera-backend/internal/config"
	"github.com/felipet/lacoctelera-backend/internal/handlers"
	"github.com/felipet/lacoctelera-backend/internal/jobs"
	"github.com/felipet/lacoctelera-backend/internal/store"
)

const shutdownTimeout = 15 * time.Second

func Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Run migrations first (with advisory lock for concurrent safety)
	var ready func() bool
	if config.StoreType == store.PostgresdbStoreType {
		if err := RunMigrations(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		ready = migrationsAreComplete
	}

	app, cleanup, err := newApplication()
	if err != nil {
		return err
	}
	defer cleanup()

	if config.ExpiryCheckEnabled {
		expiry := jobs.NewExpiryNotifier(app.store, app.dispatcher, app.recorder,
			time.Duration(config.ExpiryWarningDays)*24*time.Hour,
			time.Duration(config.ExpiryCheckHours)*time.Hour)
		go expiry.Start(ctx)
		defer expiry.Stop()
	}

	handler := handlers.NewRouter(handlers.RouterDeps{
		Tokens:     app.service,
		Authorizer: app.validator,
		Store:      app.store,
		Ready:      ready,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logging.Log.Infof("Starting HTTP server on port %d", config.Port)
	errs := make(chan error, 1)
	go func() {
		errs <- server.ListenAndServe()
	}()

	select {
	case err = <-errs:
	case <-ctx.Done():
		logging.Log.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = server.Shutdown(shutdownCtx)
	}
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	errorutils.LogOnErr(nil, "HTTP server exited with: ", err)
	return err
}
