package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"net-scout/api/internal/handlers"
	"net-scout/internal/alert"
	"net-scout/internal/config"
	"net-scout/internal/pipeline"
	"net-scout/internal/store"
	"net-scout/internal/utils"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	var (
		configFile = flag.String("config", "configs/net-scout.yaml", "Configuration file path (YAML)")
		port       = flag.String("port", "", "API server port (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.API.Port = *port
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	st, err := store.NewPostgresStore(cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatalf("Store not found: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.EnsureSchema(ctx); err != nil {
		logger.Fatalf("Migration failed: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := alert.NewMetrics(registry)

	scanner := pipeline.NewScanner(st, cfg, logger)
	scanner.SetMetrics(metrics)
	scanner.RegisterNotifier(alert.NewLogAlertNotifier(logger))
	if cfg.Alerting.Telegram.Enabled {
		scanner.RegisterNotifier(alert.NewTelegramNotifier(cfg.Alerting.Telegram, logger))
	}

	h := handlers.NewHandlers(st, scanner, cfg, logger)

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/alerts", h.GetAlerts).Methods("GET")
	api.HandleFunc("/run_scan", h.RunScan).Methods("POST")
	api.HandleFunc("/enrich_alert", h.EnrichAlert).Methods("POST")
	api.HandleFunc("/enrich_bulk", h.EnrichBulk).Methods("POST")
	api.HandleFunc("/enrichment_cache", h.GetEnrichmentCache).Methods("GET")
	api.HandleFunc("/snooze_alert", h.SnoozeAlert).Methods("POST")
	api.HandleFunc("/trace", h.GetTrace).Methods("GET")
	api.HandleFunc("/trace_run", h.TraceRun).Methods("POST")
	api.HandleFunc("/status", h.GetStatus).Methods("GET")
	api.HandleFunc("/stream/progress", h.StreamProgress).Methods("GET")

	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods("GET")
	router.HandleFunc("/health", h.Health).Methods("GET", "OPTIONS")

	addr := fmt.Sprintf(":%s", cfg.API.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
	}

	logger.Infof("API server starting on port %s", cfg.API.Port)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutting down API server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Server shutdown error: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
