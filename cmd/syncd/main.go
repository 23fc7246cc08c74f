// Command syncd runs the cross-store synchronization engine: the poll
// scheduler, the provisioning queue processor, the compliance result
// reconciler, and the small operational HTTP surface.
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

	"concilia/internal/audit"
	auditkafka "concilia/internal/audit/kafka"
	httpapi "concilia/internal/http"
	leadstore "concilia/internal/leads/store"
	"concilia/internal/platform/config"
	"concilia/internal/platform/httpserver"
	"concilia/internal/platform/logger"
	"concilia/internal/platform/metrics"
	platformredis "concilia/internal/platform/redis"
	"concilia/internal/processedset"
	"concilia/internal/provision"
	"concilia/internal/reconcile"
	"concilia/internal/remote"
	"concilia/internal/scheduler"
	"concilia/internal/vault"
	"concilia/internal/vault/crypto"
	vaultstore "concilia/internal/vault/store"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	sealer, err := crypto.NewSealer(cfg.SecretSealKey)
	if err != nil {
		log.Error("invalid secret seal key", "error", err)
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Error("opening postgres failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Error("postgres ping failed", "error", err)
		os.Exit(1)
	}

	redisClient, err := platformredis.Dial(cfg.Redis)
	if err != nil {
		log.Error("redis setup failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Processed-set fallback: Redis when available, local file otherwise.
	var processed processedset.Set
	if redisClient != nil {
		processed = processedset.NewRedis(redisClient)
	} else {
		processed, err = processedset.NewFile(cfg.ProcessedSetFilePath)
		if err != nil {
			log.Error("processed set setup failed", "error", err)
			os.Exit(1)
		}
	}

	auditSinks := []audit.Store{audit.NewInMemoryStore()}
	kafkaSink, err := auditkafka.New(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
	if err != nil {
		log.Error("kafka audit sink setup failed", "error", err)
		os.Exit(1)
	}
	if kafkaSink != nil {
		auditSinks = append(auditSinks, kafkaSink)
	}
	auditor := audit.NewPublisher(log, auditSinks...)

	handleCache := remote.NewHandleCache(
		remote.WithCacheLogger(log),
		remote.WithCacheMetrics(m),
		remote.WithCallTimeout(cfg.RemoteCallTimeout))

	credentials := vault.New(
		vaultstore.NewPostgres(db, sealer),
		vault.Fallback{URL: cfg.MasterStoreURL, SecretKey: cfg.MasterStoreKey},
		vault.WithLogger(log),
		vault.WithMetrics(m),
		vault.WithHandleEvictor(handleCache),
		vault.WithAuditPublisher(auditor))

	leadStore := leadstore.NewPostgres(db)

	processor := provision.New(credentials,
		provision.WithLogger(log),
		provision.WithMetrics(m),
		provision.WithAuditPublisher(auditor),
		provision.WithBatchSize(cfg.BatchSize))

	reconciler := reconcile.New(leadStore, processed, sealer,
		reconcile.WithLogger(log),
		reconcile.WithMetrics(m),
		reconcile.WithAuditPublisher(auditor),
		reconcile.WithBatchSize(cfg.BatchSize))

	stateStore, err := scheduler.NewFileStateStore(cfg.StateFilePath)
	if err != nil {
		log.Error("state store setup failed", "error", err)
		os.Exit(1)
	}

	sched := scheduler.New(credentials, handleCache, processor, reconciler, stateStore,
		scheduler.WithLogger(log),
		scheduler.WithMetrics(m),
		scheduler.WithInterval(cfg.PollInterval),
		scheduler.WithInitialDelay(cfg.InitialDelay))
	sched.Start()

	handler := httpapi.NewHandler(sched, log)
	srv := httpserver.New(cfg.HTTPAddr, httpapi.NewRouter(handler))

	log.Info("starting syncd", "addr", cfg.HTTPAddr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	if kafkaSink != nil {
		if err := kafkaSink.Close(ctx); err != nil {
			log.Warn("kafka audit sink close failed", "error", err)
		}
	}
}
