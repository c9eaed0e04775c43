// Package ingest implements the shared ingestion pipeline: raw payload →
// normalization → persistence → fan-out. The MQTT subscriber, the fire-feed
// poller, and the HTTP write path all run through the same chain, so alerts
// are indistinguishable once canonicalized.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"skywatch/alert-server/internal/hub"
	"skywatch/alert-server/internal/model"
	"skywatch/alert-server/internal/normalize"
	"skywatch/alert-server/internal/observability"
	"skywatch/alert-server/internal/store"
)

// Ingestion source labels, used for metrics and ingestion-error records.
const (
	SourceMQTT  = "mqtt"
	SourceFirms = "firms"
	SourceHTTP  = "http"
)

const storeTimeout = 2 * time.Second

// Pipeline chains the normalizer, the persistence gateway, and the
// broadcaster. Broadcast happens only after persistence succeeds.
type Pipeline struct {
	logger  *slog.Logger
	store   *store.Store
	hub     *hub.Hub
	metrics *observability.Metrics
}

// NewPipeline constructs the pipeline. All collaborators are required.
func NewPipeline(st *store.Store, h *hub.Hub, metrics *observability.Metrics, logger *slog.Logger) *Pipeline {
	return &Pipeline{logger: logger, store: st, hub: h, metrics: metrics}
}

// Ingest normalizes a raw payload, persists it, and broadcasts the persisted
// record. A *model.ValidationError means the input was rejected; any other
// error is a persistence failure. Either way the alert is dropped, never
// retried.
func (p *Pipeline) Ingest(ctx context.Context, source string, raw map[string]any) (model.StoredAlert, error) {
	alert, err := normalize.Normalize(raw)
	if err != nil {
		p.metrics.AlertsDropped.WithLabelValues(source, "validation").Inc()
		return model.StoredAlert{}, err
	}

	return p.IngestAlert(ctx, source, alert)
}

// IngestAlert persists an already-canonical alert and broadcasts it. Used
// directly by the fire-feed poller, whose records skip normalization.
func (p *Pipeline) IngestAlert(ctx context.Context, source string, alert model.Alert) (model.StoredAlert, error) {
	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	stored, err := p.store.InsertAlert(storeCtx, alert)
	if err != nil {
		p.metrics.AlertsDropped.WithLabelValues(source, "persistence").Inc()
		return model.StoredAlert{}, fmt.Errorf("persist alert: %w", err)
	}

	p.hub.Broadcast(stored)
	p.metrics.BroadcastsTotal.Inc()
	p.metrics.AlertsIngested.WithLabelValues(source).Inc()

	return stored, nil
}

// RecordFailure persists a payload that could not be ingested, for later
// inspection. Failures here are logged and swallowed.
func (p *Pipeline) RecordFailure(ctx context.Context, source string, payload []byte, cause error) {
	recCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	entry := model.IngestionError{
		Source:  source,
		Payload: truncateString(string(payload), 4096),
		Error:   cause.Error(),
	}

	if err := p.store.InsertIngestionError(recCtx, entry); err != nil {
		p.logger.Error("failed to persist ingestion error", "error", err)
	}
}

func truncateString(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
