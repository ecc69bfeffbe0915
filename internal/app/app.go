// Package app wires configuration into the services shared by the API and the console.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/MrJamesThe3rd/stkpush/internal/config"
	"github.com/MrJamesThe3rd/stkpush/internal/daraja"
	"github.com/MrJamesThe3rd/stkpush/internal/daraja/tokencache"
	"github.com/MrJamesThe3rd/stkpush/internal/database"
	"github.com/MrJamesThe3rd/stkpush/internal/metrics"
	"github.com/MrJamesThe3rd/stkpush/internal/payment"
	"github.com/MrJamesThe3rd/stkpush/internal/transaction"
	"github.com/MrJamesThe3rd/stkpush/internal/transaction/mongostore"
	txStore "github.com/MrJamesThe3rd/stkpush/internal/transaction/store"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

var ErrUnknownDriver = errors.New("unknown store driver")

type App struct {
	Transactions *transaction.Service
	Initiator    *payment.Initiator
	Reconciler   *payment.Reconciler
	Metrics      *metrics.Metrics

	closers []func(context.Context) error
}

// New connects to storage (and Redis when configured) and builds the payment services.
// Close must be called to release the connections.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Metrics: metrics.New()}

	repo, err := a.openRepository(ctx, cfg)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	cache, err := a.openTokenCache(ctx, cfg)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	client := daraja.NewClient(daraja.Options{
		BaseURL: cfg.Mpesa.BaseURL,
		Credentials: daraja.Credentials{
			ConsumerKey:    cfg.Mpesa.ConsumerKey,
			ConsumerSecret: cfg.Mpesa.ConsumerSecret,
		},
		HTTPClient: &http.Client{Timeout: cfg.Mpesa.HTTPTimeout},
		Cache:      cache,
	})

	settings := daraja.PushSettings{
		ShortCode:        cfg.Mpesa.ShortCode,
		Passkey:          cfg.Mpesa.Passkey,
		CallbackURL:      cfg.Mpesa.CallbackURL,
		TransactionType:  cfg.Mpesa.TransactionType,
		AccountReference: cfg.Mpesa.AccountReference,
		TransactionDesc:  cfg.Mpesa.TransactionDesc,
		CountryCode:      cfg.Mpesa.CountryCode,
		MaxAmount:        cfg.Mpesa.MaxAmount,
	}

	a.Transactions = transaction.NewService(repo)
	a.Initiator = payment.NewInitiator(client, client, a.Transactions, settings, a.Metrics)
	a.Reconciler = payment.NewReconciler(a.Transactions, a.Metrics)

	return a, nil
}

func (a *App) openRepository(ctx context.Context, cfg *config.Config) (transaction.Repository, error) {
	switch cfg.Store.Driver {
	case DriverPostgres:
		db, err := database.New(ctx, cfg.ConnectionString())
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}

		a.closers = append(a.closers, func(context.Context) error { return db.Close() })

		if err := database.Migrate(ctx, db); err != nil {
			return nil, fmt.Errorf("migrating postgres: %w", err)
		}

		a.registerDBStats(db, cfg.DB.Name)

		return txStore.New(db), nil
	case DriverMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, fmt.Errorf("connecting to mongo: %w", err)
		}

		a.closers = append(a.closers, client.Disconnect)

		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
			return nil, fmt.Errorf("pinging mongo: %w", err)
		}

		store := mongostore.New(client.Database(cfg.Mongo.Database))
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("preparing mongo collection: %w", err)
		}

		return store, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Store.Driver)
	}
}

func (a *App) registerDBStats(db *sql.DB, name string) {
	a.Metrics.Register(collectors.NewDBStatsCollector(db, name))
}

// openTokenCache returns nil when Redis is not configured; tokens are then fetched per payment.
func (a *App) openTokenCache(ctx context.Context, cfg *config.Config) (daraja.TokenCache, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	slog.Info("caching access tokens in redis", "addr", cfg.Redis.Addr)

	return tokencache.NewRedis(rdb, cfg.Mpesa.ConsumerKey), nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close(ctx context.Context) error {
	var errs []error

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	a.closers = nil

	return errors.Join(errs...)
}
