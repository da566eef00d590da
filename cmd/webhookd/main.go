package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	stripewebhook "github.com/tpepperobubra-cell/stripe-webhook"
	"github.com/tpepperobubra-cell/stripe-webhook/checkout"
	"github.com/tpepperobubra-cell/stripe-webhook/core"
	"github.com/tpepperobubra-cell/stripe-webhook/server"
	"github.com/tpepperobubra-cell/stripe-webhook/sink"
	sqlstore "github.com/tpepperobubra-cell/stripe-webhook/store/sql"
	"github.com/tpepperobubra-cell/stripe-webhook/webhooks"
)

func main() {
	var (
		flagPort    = flag.String("port", "", "listen port, overrides PORT")
		flagDBDebug = flag.Bool("db-debug", false, "log sql statements")
	)
	flag.Parse()

	_, logger := glog.Resolve("webhookd", nil, nil)
	logger = glog.Ensure(logger)

	if err := run(context.Background(), logger, *flagPort, *flagDBDebug); err != nil {
		logger.Fatal("webhookd exited", "error", err.Error())
	}
}

func run(ctx context.Context, logger core.Logger, portOverride string, dbDebug bool) error {
	provider := core.NewCfgxConfigProvider(core.EnvRawConfigLoader{})
	loaded, err := provider.Load(ctx, core.DefaultConfig())
	if err != nil {
		return err
	}

	runtime := core.Config{}
	runtime.Server.Port = portOverride
	runtime.Persistence.Debug = dbDebug
	cfg, err := core.GoOptionsResolver{}.Resolve(core.DefaultConfig(), loaded, runtime)
	if err != nil {
		return err
	}

	metrics := server.NewPrometheusRecorder(nil)

	ledger, events, closeStores, err := buildStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	dispatcher, err := webhooks.NewDispatcher(ledger, events,
		webhooks.WithDispatcherLogger(logger),
		webhooks.WithDispatcherMetrics(metrics),
	)
	if err != nil {
		return err
	}

	deliverer, err := buildDeliverer(cfg, logger, metrics)
	if err != nil {
		return err
	}
	if deliverer != nil {
		handler, err := checkout.NewHandler(checkout.NewBuilder(cfg.Partner.CouponCode), deliverer, logger)
		if err != nil {
			return err
		}
		if err := dispatcher.Register(handler); err != nil {
			return err
		}
	} else {
		logger.Warn("no sink configured, checkout events will be acknowledged without delivery")
	}

	verifier, err := webhooks.NewSignatureVerifier(cfg.Signature.Secret, cfg.Signature.Tolerance())
	if err != nil {
		return err
	}

	srv, err := server.New(cfg.ServiceName, cfg.Server, verifier, dispatcher, ledger, events, logger)
	if err != nil {
		return err
	}

	httpServer := srv.HTTPServer()
	logger.Info("starting webhook server",
		"addr", httpServer.Addr,
		"airtable", cfg.Airtable.Enabled,
		"relay", cfg.Relay.Enabled,
		"driver", cfg.Persistence.Driver,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-signals:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// buildStores returns durable stores when a database is configured, in-memory
// ones otherwise.
func buildStores(ctx context.Context, cfg core.Config, logger core.Logger) (core.Ledger, core.EventStore, func(), error) {
	driver := strings.TrimSpace(cfg.Persistence.Driver)
	if driver == "" || strings.TrimSpace(cfg.Persistence.DSN) == "" {
		logger.Info("using in-memory ledger and event store")
		return core.NewMemoryLedger(), core.NewMemoryEventStore(), func() {}, nil
	}

	var (
		dialect      schema.Dialect
		migrationsFS = stripewebhook.GetMigrationsFS()
	)
	switch driver {
	case "postgres", "pq":
		driver = "postgres"
		dialect = pgdialect.New()
	case "sqlite", "sqlite3":
		driver = "sqlite3"
		dialect = sqlitedialect.New()
		migrationsFS = stripewebhook.GetSQLiteMigrationsFS()
	default:
		return nil, nil, nil, core.ConfigError("webhookd: unsupported database driver", map[string]any{
			"driver": driver,
		})
	}

	sqlDB, err := sql.Open(driver, cfg.Persistence.DSN)
	if err != nil {
		return nil, nil, nil, err
	}
	client, err := persistence.New(cfg.Persistence, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, nil, err
	}
	client.RegisterSQLMigrations(migrationsFS)
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, nil, nil, err
	}

	stores, err := sqlstore.NewStores(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, err
	}
	logger.Info("using sql-backed ledger and event store", "driver", driver)
	return stores.Ledger(), stores.Events(), func() { _ = client.Close() }, nil
}

// buildDeliverer assembles the enabled sinks behind the retry wrapper.
// Returns nil when no sink is enabled.
func buildDeliverer(cfg core.Config, logger core.Logger, metrics core.MetricsRecorder) (checkout.Deliverer, error) {
	httpClient := &http.Client{Timeout: cfg.Delivery.AttemptTimeout()}

	var sinks []sink.Sink
	if cfg.Airtable.Enabled {
		airtable, err := sink.NewAirtable(cfg.Airtable, httpClient)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, airtable)
	}
	if cfg.Relay.Enabled {
		relay, err := sink.NewRelay(cfg.Relay, httpClient)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, relay)
	}
	if len(sinks) == 0 {
		return nil, nil
	}

	var target sink.Sink
	if len(sinks) == 1 {
		target = sinks[0]
	} else {
		fanout, err := sink.NewFanout(sinks...)
		if err != nil {
			return nil, err
		}
		target = fanout
	}

	policy := sink.RetryPolicy{
		MaxAttempts:    cfg.Delivery.MaxAttempts,
		InitialBackoff: cfg.Delivery.InitialBackoff(),
		MaxBackoff:     cfg.Delivery.MaxBackoff(),
		AttemptTimeout: cfg.Delivery.AttemptTimeout(),
	}
	return sink.NewRetry(target, policy,
		sink.WithRetryLogger(logger),
		sink.WithRetryMetrics(metrics),
	)
}
