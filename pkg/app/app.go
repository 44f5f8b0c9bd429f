// Package app wires the record store, change feed, timeout scheduler and
// coordinator selected by configuration, and serves the HTTP API on top.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/chris/fuelpay/pkg/api"
	"github.com/chris/fuelpay/pkg/changefeed"
	"github.com/chris/fuelpay/pkg/config"
	"github.com/chris/fuelpay/pkg/coordinator"
	"github.com/chris/fuelpay/pkg/fanout"
	"github.com/chris/fuelpay/pkg/fuel"
	"github.com/chris/fuelpay/pkg/handlers"
	"github.com/chris/fuelpay/pkg/handlers/ledger"
	"github.com/chris/fuelpay/pkg/handlers/quotes"
	"github.com/chris/fuelpay/pkg/handlers/respond"
	"github.com/chris/fuelpay/pkg/handlers/transactions"
	"github.com/chris/fuelpay/pkg/handlers/wallets"
	"github.com/chris/fuelpay/pkg/handlers/websockets"
	"github.com/chris/fuelpay/pkg/middleware"
	"github.com/chris/fuelpay/pkg/scheduler"
	"github.com/chris/fuelpay/pkg/settlement"
	"github.com/chris/fuelpay/pkg/storage"
	"github.com/chris/fuelpay/pkg/txerrors"
	ws "github.com/chris/fuelpay/pkg/websockets"
)

const shutdownTimeout = 10 * time.Second

// App holds the dependency graph of one process.
type App struct {
	Config      config.Config
	Log         *zap.Logger
	Store       storage.Storage
	Broker      changefeed.Broker
	Scheduler   scheduler.Scheduler
	Catalog     *fuel.Catalog
	Settler     *settlement.Settler
	Coordinator *coordinator.Coordinator
	Sessions    *fanout.Session

	background []func(context.Context) error
	closers    []func() error
}

// New builds the application graph. Close must be called even when New
// fails part way.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log, Catalog: fuel.DefaultCatalog()}
	awsCfg := &awsConfig{}

	var err error
	if a.Store, err = a.buildStore(ctx, awsCfg); err != nil {
		return a, err
	}
	if a.Broker, err = a.buildBroker(); err != nil {
		return a, err
	}
	if a.Scheduler, err = a.buildScheduler(ctx, awsCfg); err != nil {
		return a, err
	}

	a.Settler = settlement.New(a.Store)
	opts := []coordinator.Option{
		coordinator.WithLogger(log),
		coordinator.WithTimeout(cfg.TransactionTimeout),
		coordinator.WithDeclineOnInsufficientFunds(cfg.DeclineOnInsufficientFunds),
		coordinator.WithHistoryLimit(cfg.HistoryLimit),
	}
	if cfg.PriceCheckEnabled {
		opts = append(opts, coordinator.WithPriceCheck(a.Catalog, cfg.PriceToleranceCents))
	}
	a.Coordinator = coordinator.New(a.Store, a.Settler, a.Scheduler, a.Broker, opts...)

	if local, ok := a.Scheduler.(*scheduler.Local); ok {
		local.SetHandler(a.Coordinator)
	}

	a.Sessions = fanout.NewSession(a.Broker, a.Coordinator, fanout.Config{
		MaxRetries: cfg.SubscriptionMaxRetries,
		Backoff:    cfg.SubscriptionBackoff,
	}, log)

	return a, nil
}

// Router mounts the API with request logging.
func (a *App) Router() http.Handler {
	txHandler := transactions.NewTransactionsHandler(a.Coordinator)
	handler := handlers.NewApiHandler(
		txHandler,
		wallets.NewWalletsHandler(a.Store, a.Settler),
		ledger.NewLedgerHandler(a.Store),
		quotes.NewQuotesHandler(a.Catalog),
		websockets.NewHandler(a.Sessions, txHandler.Present, ws.DefaultWriteTimeout, a.Log),
	)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewStructuredLogger(a.Log))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return api.HandlerWithOptions(handler, api.ChiServerOptions{
		BaseRouter: r,
		ErrorHandlerFunc: func(w http.ResponseWriter, r *http.Request, err error) {
			respond.Error(w, txerrors.Validationf("%v", err), nil)
		},
	})
}

// Run starts background workers and serves HTTP until ctx is done.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(a.background)+1)
	for _, run := range a.background {
		go func(run func(context.Context) error) {
			if err := run(ctx); err != nil {
				errCh <- err
			}
		}(run)
	}

	if _, err := a.Coordinator.ExpireOverdue(ctx); err != nil {
		a.Log.Warn("startup sweep incomplete", zap.Error(err))
	}

	srv := &http.Server{
		Addr:        ":" + a.Config.HTTPPort,
		Handler:     a.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
		// Websocket sessions end with the process context.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		a.Log.Info("starting http server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.Warn("failed to release resource", zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}
