package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bankbot/internal/banking"
	"bankbot/internal/common/config"
	"bankbot/internal/common/database"
	"bankbot/internal/common/logger"
	"bankbot/internal/common/observability"
	"bankbot/internal/dialogue"
	"bankbot/internal/dispatch"
	"bankbot/internal/llm"
	"bankbot/internal/nlu"
	"bankbot/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format)
	log.Info("starting dialogue server", map[string]interface{}{
		"app":         cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	})

	pg, err := retryWithBackoff("postgres", log, func() (*database.PostgresClient, error) {
		return database.NewPostgres(cfg.Database.Postgres)
	})
	if err != nil {
		log.Error("postgres connection failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer pg.Close()

	rdb, err := retryWithBackoff("redis", log, func() (*database.RedisClient, error) {
		return database.NewRedis(cfg.Database.Redis)
	})
	if err != nil {
		log.Error("redis connection failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer rdb.Close()

	nc, err := retryWithBackoff("nats", log, func() (*nats.Conn, error) {
		return nats.Connect(cfg.NATS.URL,
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
	})
	if err != nil {
		log.Error("nats connection failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer nc.Close()

	catalog, err := dialogue.LoadCatalog(cfg.Dialogue.CatalogPath)
	if err != nil {
		log.Error("catalog load failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	gate, err := nlu.NewGate(nlu.GateConfig{
		HighThreshold: cfg.Dialogue.HighThreshold,
		LowThreshold:  cfg.Dialogue.LowThreshold,
	}, catalog.IntentNames(), nlu.IntentAskGeneral)
	if err != nil {
		log.Error("gate configuration invalid", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	var responder dialogue.Responder
	if cfg.LLM.APIKey != "" {
		provider, err := llm.New(llm.Config{
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			BaseURL: cfg.LLM.BaseURL,
			Timeout: time.Duration(cfg.LLM.Timeout) * time.Millisecond,
		}, log)
		if err != nil {
			log.Error("llm provider init failed", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
		responder = provider
	} else {
		log.Warn("no llm api key configured; out-of-domain questions get a static reply", nil)
	}

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	store := dialogue.NewRedisStore(rdb.GetClient(),
		time.Duration(cfg.Dialogue.SessionTTLMinutes)*time.Minute)
	bankingSvc := banking.NewService(pg.GetDB(), log)
	pins := banking.NewPinVerifier(pg.GetDB(), log)
	nluLog := banking.NewNLULogger(pg.GetDB(), log)
	dispatcher := dispatch.NewDispatcher(bankingSvc, log)

	engine := dialogue.NewEngine(
		catalog,
		gate,
		nlu.NewKeywordClassifier(),
		nlu.NewExtractor(),
		store,
		pins,
		dispatcher,
		responder,
		nluLog,
		dialogue.EngineConfig{
			MaxReprompts:   cfg.Dialogue.MaxReprompts,
			MaxPinAttempts: cfg.Dialogue.MaxPinAttempts,
		},
		log,
	)

	server := transport.NewServer(nc, engine, cfg.NATS.TurnSubject,
		time.Duration(cfg.NATS.RequestTimeout)*time.Millisecond, obs, log)
	if err := server.Start(); err != nil {
		log.Error("transport start failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Address, Handler: mux}
		go func() {
			log.Info("metrics endpoint listening", map[string]interface{}{"address": cfg.Metrics.Address})
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", map[string]interface{}{"error": err.Error()})
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down", nil)
	server.Stop()
	if metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(ctx); err != nil {
			log.Warn("metrics server shutdown failed", map[string]interface{}{"error": err.Error()})
		}
	}
	log.Info("shutdown complete", nil)
}

// retryWithBackoff retries an infrastructure connection a few times with
// exponential backoff before giving up.
func retryWithBackoff[T any](name string, log logger.Logger, connect func() (T, error)) (T, error) {
	var zero T
	delay := time.Second
	for attempt := 1; attempt <= 5; attempt++ {
		v, err := connect()
		if err == nil {
			return v, nil
		}
		log.Warn("connection attempt failed", map[string]interface{}{
			"target":  name,
			"attempt": attempt,
			"error":   err.Error(),
		})
		if attempt == 5 {
			return zero, err
		}
		time.Sleep(delay)
		delay *= 2
	}
	return zero, fmt.Errorf("unreachable")
}
