package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"skywatch/alert-server/internal/config"
	"skywatch/alert-server/internal/firefeed"
	"skywatch/alert-server/internal/hub"
	"skywatch/alert-server/internal/ingest"
	"skywatch/alert-server/internal/model"
	"skywatch/alert-server/internal/observability"
	"skywatch/alert-server/internal/store"
)

// App wires together the Skywatch services and manages their lifecycle.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	store      *store.Store
	hub        *hub.Hub
	metrics    *observability.Metrics
	pipeline   *ingest.Pipeline
	subscriber *ingest.Subscriber
	poller     *firefeed.Poller
	mdns       *zeroconf.Server
}

// New constructs a new application instance.
func New(cfg config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

// Run starts all configured services and blocks until the context is
// cancelled or an error occurs. Failure to open the durable store is the only
// fatal startup condition; broker and feed outages degrade, they don't abort.
func (a *App) Run(ctx context.Context) error {
	db, err := store.Open(a.cfg.DatabasePath)
	if err != nil {
		return err
	}
	a.store = db

	if err := a.store.InitSchema(ctx); err != nil {
		return err
	}

	defer func() {
		if cerr := a.store.Close(); cerr != nil {
			a.logger.Error("close store", "error", cerr)
		}
	}()

	a.metrics = observability.NewMetrics()
	a.hub = hub.New(a.logger, a.metrics, a.cfg.AllowOrigins)
	a.pipeline = ingest.NewPipeline(a.store, a.hub, a.metrics, a.logger)

	a.subscriber = ingest.NewSubscriber(a.cfg.MQTTBroker, a.cfg.MQTTTopic, a.pipeline, a.logger)
	if err := a.subscriber.Start(); err != nil {
		return err
	}

	feedClient := firefeed.NewClient(a.cfg.FirmsURL)
	a.poller = firefeed.NewPoller(feedClient, a.pipeline, a.metrics, a.logger)
	if err := a.poller.Start(a.cfg.PollSchedule); err != nil {
		a.subscriber.Stop()
		return err
	}

	httpErrCh := make(chan error, 1)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.HTTPPort),
		Handler: a.routes(),
	}

	go func() {
		a.logger.Info("http server started", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if err := a.startMDNS(a.cfg.HTTPPort); err != nil {
		a.logger.Warn("mDNS advertisement failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			a.shutdown(httpServer)
			return nil
		case err := <-httpErrCh:
			if err != nil {
				a.shutdown(httpServer)
				return err
			}
		}
	}
}

// shutdown tears services down in dependency order: ingestion sources first,
// so no late writes hit a closed store.
func (a *App) shutdown(httpServer *http.Server) {
	a.poller.Stop()
	a.subscriber.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown", "error", err)
	}
	a.logger.Info("http server stopped")

	a.hub.Close()
	a.stopMDNS()
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.handleHealth)
	mux.HandleFunc("/alerts", a.handleRecentAlerts)
	mux.HandleFunc("/alert", a.handleSubmitAlert)
	mux.HandleFunc("/ws", a.hub.ServeWS)
	mux.Handle("/metrics", promhttp.Handler())

	return a.corsMiddleware(mux)
}

// corsMiddleware applies the configured origin allow-list to the REST
// surface, mirroring what browser-based map clients need.
func (a *App) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, allowed := range a.cfg.AllowOrigins {
			if origin == allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (a *App) handleRecentAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	alerts, err := a.store.RecentAlerts(ctx, limit)
	if err != nil {
		a.logger.Error("failed to load recent alerts", "error", err)
		http.Error(w, "failed to load alerts", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(alerts); err != nil {
		a.logger.Error("failed to encode alerts response", "error", err)
	}
}

func (a *App) handleSubmitAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	stored, err := a.pipeline.Ingest(r.Context(), ingest.SourceHTTP, raw)
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Reason)
			return
		}
		a.logger.Error("failed to persist submitted alert", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store alert")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(stored); err != nil {
		a.logger.Error("failed to encode alert response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
