package firefeed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"skywatch/alert-server/internal/ingest"
	"skywatch/alert-server/internal/observability"
)

// Poller runs fetch-and-ingest cycles on a cron schedule. A failed fetch
// yields zero alerts for that cycle and never stops subsequent cycles.
type Poller struct {
	logger   *slog.Logger
	client   *Client
	pipeline *ingest.Pipeline
	metrics  *observability.Metrics
	cron     *cron.Cron
}

// NewPoller wires the feed client into the ingestion pipeline.
func NewPoller(client *Client, pipeline *ingest.Pipeline, metrics *observability.Metrics, logger *slog.Logger) *Poller {
	return &Poller{
		logger:   logger,
		client:   client,
		pipeline: pipeline,
		metrics:  metrics,
		cron:     cron.New(),
	}
}

// Start validates the schedule (cron spec or "@every" duration) and begins
// polling. The first cycle runs at the first scheduled tick, not immediately.
func (p *Poller) Start(schedule string) error {
	if _, err := p.cron.AddFunc(schedule, func() { p.RunCycle(context.Background()) }); err != nil {
		return fmt.Errorf("invalid poll schedule %q: %w", schedule, err)
	}
	p.cron.Start()
	p.logger.Info("fire feed poller started", "schedule", schedule)
	return nil
}

// Stop halts the schedule and waits for an in-flight cycle to finish.
func (p *Poller) Stop() {
	<-p.cron.Stop().Done()
	p.logger.Info("fire feed poller stopped")
}

// RunCycle performs one fetch-and-ingest pass. Errors are terminal for the
// individual detection or cycle only.
func (p *Poller) RunCycle(ctx context.Context) {
	start := time.Now()
	defer func() {
		p.metrics.PollDuration.Observe(time.Since(start).Seconds())
	}()

	alerts, err := p.client.FetchRecent(ctx)
	if err != nil {
		p.logger.Warn("firms fetch failed, skipping cycle", "error", err)
		return
	}

	ingested := 0
	for _, alert := range alerts {
		if _, err := p.pipeline.IngestAlert(ctx, ingest.SourceFirms, alert); err != nil {
			p.logger.Warn("firms alert dropped", "error", err)
			continue
		}
		ingested++
	}

	p.logger.Info("firms poll cycle complete", "detections", len(alerts), "ingested", ingested)
}
