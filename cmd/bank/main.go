package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/terminal-bench/bankledger/internal/account"
	"github.com/terminal-bench/bankledger/internal/audit"
	"github.com/terminal-bench/bankledger/internal/cache"
	"github.com/terminal-bench/bankledger/internal/card"
	"github.com/terminal-bench/bankledger/internal/config"
	"github.com/terminal-bench/bankledger/internal/history"
	"github.com/terminal-bench/bankledger/internal/httpapi"
	"github.com/terminal-bench/bankledger/internal/ledger"
	"github.com/terminal-bench/bankledger/internal/payment"
	"github.com/terminal-bench/bankledger/internal/postgres"
	"github.com/terminal-bench/bankledger/pkg/messaging"
)

func main() {
	cfg := config.Load()

	var log *zap.Logger
	var err error
	if cfg.Env == "production" {
		log, err = zap.NewProduction()
	} else {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	var (
		accounts account.Store
		cards    card.Registry
		records  history.Store
	)

	if cfg.DatabaseURL != "" {
		db, dbErr := sql.Open("postgres", cfg.DatabaseURL)
		if dbErr != nil {
			log.Fatal("failed to open database", zap.Error(dbErr))
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		defer db.Close()

		accounts = postgres.NewAccountStore(db)
		cards = postgres.NewCardStore(db)
		records = postgres.NewRecordStore(db)
		log.Info("using postgres stores")
	} else {
		accounts = account.NewMemStore()
		cards = card.NewMemRegistry()
		records = history.NewMemStore()
		log.Info("no DATABASE_URL set, using in-memory stores")
	}

	var events ledger.Publisher
	if cfg.NatsURL != "" {
		natsClient, natsErr := messaging.NewClient(messaging.Config{
			URL:            cfg.NatsURL,
			Name:           "bank-service",
			ReconnectWait:  time.Second,
			MaxReconnects:  5,
			ConnectTimeout: 5 * time.Second,
		})
		if natsErr != nil {
			log.Fatal("failed to connect to NATS", zap.Error(natsErr))
		}
		defer natsClient.Close()
		// Drain before closing so in-flight event handlers finish.
		defer natsClient.Drain()
		events = natsClient

		auditLog := audit.NewLogger(natsClient, log)
		if err := auditLog.Start(); err != nil {
			log.Fatal("failed to start audit trail", zap.Error(err))
		}
		defer auditLog.Stop()
	}

	var accountCache *cache.AccountCache
	if cfg.RedisURL != "" {
		accountCache = cache.New(cfg.RedisURL, cfg.CacheTTL, log)
		defer accountCache.Close()
	}

	engine := ledger.NewEngine(accounts, records, events, log)
	pipeline := payment.NewPipeline(cards, accounts, engine, records, events, log)
	server := httpapi.NewServer(accounts, cards, engine, pipeline, records, accountCache, events, log)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("bank service listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("service stopped", zap.Error(err))
	}
	log.Info("service stopped")
}
