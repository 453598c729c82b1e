package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mentionwatch/mentionwatch/alert"
	"github.com/mentionwatch/mentionwatch/correlate"
	"github.com/mentionwatch/mentionwatch/market"
	"github.com/mentionwatch/mentionwatch/pipeline"
	"github.com/mentionwatch/mentionwatch/scrape"
	"github.com/mentionwatch/mentionwatch/store"
	"github.com/mentionwatch/mentionwatch/ticker"
)

// stageDeps bundles everything the manual stage implementations need.
type stageDeps struct {
	store     *store.Store
	extractor *ticker.Extractor
	video     *scrape.VideoScraper
	channels  *scrape.ChannelScraper
	discovery *scrape.DiscoveryScraper
	refresher *market.Refresher
	engine    *correlate.Engine
	gate      *alert.Gate
	sink      *alert.Webhook
	limits    scrape.Limits
	terms     []string
	// runID resolves the in-flight run, late-bound to the orchestrator.
	runID  func() string
	logger *slog.Logger
}

// Stage names. The agent strategy invokes stages by these names, so
// they are part of the agent tool contract.
const (
	stageMarket    = "market_refresh"
	stageVideo     = "video_scrape"
	stageChannels  = "channel_scrape"
	stageDiscovery = "discovery"
	stageCorrelate = "correlate"
	stageAlert     = "alert"
	stageSync      = "downstream_sync"
)

func (d *stageDeps) fullStages() []pipeline.Stage {
	return []pipeline.Stage{
		{Name: stageMarket, Run: d.runMarket},
		{Name: stageVideo, Run: d.runVideo},
		{Name: stageChannels, Run: d.runChannels},
		{Name: stageDiscovery, Run: d.runDiscovery},
		{Name: stageCorrelate, Run: d.runCorrelate},
		{Name: stageAlert, Run: d.runAlert},
		{Name: stageSync, Run: d.runSync},
	}
}

func (d *stageDeps) periodicStages() []pipeline.Stage {
	return []pipeline.Stage{
		{Name: stageDiscovery, Run: d.runDiscovery},
		{Name: stageCorrelate, Run: d.runCorrelate},
		{Name: stageAlert, Run: d.runAlert},
		{Name: stageSync, Run: d.runSync},
	}
}

// testStages re-runs the analysis over whatever is already stored.
// No scraping, no market fetch, no downstream delivery.
func (d *stageDeps) testStages() []pipeline.Stage {
	return []pipeline.Stage{
		{Name: stageCorrelate, Run: d.runCorrelate},
		{Name: stageAlert, Run: d.runAlert},
	}
}

func (d *stageDeps) runMarket(ctx context.Context) error {
	_, _, err := d.refresher.Refresh(ctx)
	return err
}

func (d *stageDeps) runVideo(ctx context.Context) error {
	for _, term := range d.terms {
		records, err := d.video.Scrape(ctx, term, d.limits)
		if err != nil {
			return fmt.Errorf("term %s: %w", term, err)
		}
		if err := d.ingest(ctx, records); err != nil {
			return err
		}
	}
	return nil
}

func (d *stageDeps) runChannels(ctx context.Context) error {
	targets, err := d.channels.LoadTargets(ctx)
	if err != nil {
		return err
	}
	if err := d.channels.Validate(ctx, targets); err != nil {
		return err
	}
	records, err := d.channels.Scrape(ctx, d.limits)
	if err != nil {
		return err
	}
	return d.ingest(ctx, records)
}

func (d *stageDeps) runDiscovery(ctx context.Context) error {
	candidates, err := d.discovery.Scrape(ctx, d.limits)
	if err != nil {
		return err
	}
	targets := make([]*store.ChannelTarget, 0, len(candidates))
	records := make([]*store.SourceRecord, 0, len(candidates))
	for _, c := range candidates {
		targets = append(targets, c.Target)
		records = append(records, c.Record)
	}
	if _, err := d.channels.Discover(ctx, targets); err != nil {
		return err
	}
	return d.ingest(ctx, records)
}

func (d *stageDeps) runCorrelate(ctx context.Context) error {
	_, err := d.engine.Analyze(ctx, d.runID(), time.Now())
	return err
}

func (d *stageDeps) runAlert(ctx context.Context) error {
	results, err := d.store.ResultsForRun(ctx, d.runID())
	if err != nil {
		return err
	}
	_, err = d.gate.Evaluate(ctx, results)
	return err
}

// runSync posts the run report downstream. No sink configured means
// nothing to sync.
func (d *stageDeps) runSync(ctx context.Context) error {
	if d.sink == nil {
		return nil
	}
	run, err := d.store.GetRun(ctx, d.runID())
	if err != nil {
		return err
	}
	if run == nil {
		return nil
	}
	return d.sink.DeliverReport(ctx, run)
}

// ingest persists scraped records and their extracted mentions. All
// records of one batch share an observation time, so replaying the
// batch is idempotent.
func (d *stageDeps) ingest(ctx context.Context, records []*store.SourceRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := d.store.UpsertRecords(ctx, records); err != nil {
		return err
	}
	observedAt := time.Now().UnixMilli()
	total := 0
	for _, rec := range records {
		counts := d.extractor.Extract(rec.RawText)
		if len(counts) == 0 {
			continue
		}
		n, err := d.store.RecordMentions(ctx, rec.ExternalID, counts, observedAt)
		if err != nil {
			return err
		}
		total += n
	}
	d.logger.Info("records ingested", "records", len(records), "mentions", total)
	return nil
}
