package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/stkpush/internal/app"
	"github.com/MrJamesThe3rd/stkpush/internal/config"
	stkHttp "github.com/MrJamesThe3rd/stkpush/internal/http"
	paymentHandler "github.com/MrJamesThe3rd/stkpush/internal/http/payment"
	txHandler "github.com/MrJamesThe3rd/stkpush/internal/http/transaction"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.App.LogLevel})).
		With("app", cfg.App.Name))

	if err := cfg.Mpesa.Validate(); err != nil {
		slog.Error("payment provider is not configured", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise services", "error", err)
		os.Exit(1)
	}

	defer func() {
		if err := a.Close(context.Background()); err != nil {
			slog.Error("failed to close connections", "error", err)
		}
	}()

	var (
		paymentH = paymentHandler.NewHandler(a.Initiator, a.Reconciler)
		txH      = txHandler.NewHandler(a.Transactions)
	)

	router := stkHttp.New(stkHttp.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		JWTSecret:      cfg.Auth.JWTSecret,
		RequestTimeout: cfg.Server.Timeout,
		Metrics:        a.Metrics,
	}, paymentH, txH)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout + 5*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)

	go func() {
		slog.Info("starting server", "addr", srv.Addr, "store", cfg.Store.Driver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shut down server", "error", err)
		}
	}
}
