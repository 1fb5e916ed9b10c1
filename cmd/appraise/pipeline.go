package main

import (
	"context"
	"log/slog"

	"github.com/use-agent/appraise/assembler"
	"github.com/use-agent/appraise/cache"
	"github.com/use-agent/appraise/config"
	"github.com/use-agent/appraise/engine"
	"github.com/use-agent/appraise/models"
	"github.com/use-agent/appraise/session"
	"github.com/use-agent/appraise/shot"
	"github.com/use-agent/appraise/site"
	"github.com/use-agent/appraise/storage"
	"github.com/use-agent/appraise/webhook"
)

// pipeline holds what every run shares: profiles, the record cache, the
// optional Postgres sink and webhook notifier.
type pipeline struct {
	cfg      *config.Config
	reg      *site.Registry
	cache    *cache.Cache
	db       *storage.Postgres
	notifier *webhook.Notifier
	log      *slog.Logger
}

func newPipeline(ctx context.Context, cfg *config.Config, log *slog.Logger) (*pipeline, error) {
	reg := site.Default()
	if cfg.Run.ProfilesFile != "" {
		r, err := site.LoadFile(cfg.Run.ProfilesFile, reg)
		if err != nil {
			return nil, err
		}
		reg = r
		log.Info("site profiles loaded", "file", cfg.Run.ProfilesFile, "sites", len(reg.Profiles()))
	}

	p := &pipeline{
		cfg:   cfg,
		reg:   reg,
		cache: cache.New(cfg.Run.CacheMaxEntries, cfg.Run.CacheMaxAge),
		log:   log,
	}
	if cfg.Storage.PostgresDSN != "" {
		db, err := storage.OpenPostgres(ctx, cfg.Storage.PostgresDSN, log)
		if err != nil {
			return nil, err
		}
		p.db = db
	}
	if cfg.Webhook.URL != "" {
		p.notifier = &webhook.Notifier{URL: cfg.Webhook.URL, Secret: cfg.Webhook.Secret, Log: log}
	}
	return p, nil
}

func (p *pipeline) Close() {
	if p.db != nil {
		p.db.Close()
	}
}

// runSpec describes one run through the pipeline.
type runSpec struct {
	id          string
	urls        []string
	screenshots bool
	output      *storage.JSONFile
	operator    session.Operator
	progress    assembler.Progress
}

// run processes the URLs on surface and reports completion to the webhook.
func (p *pipeline) run(ctx context.Context, surface engine.Surface, job runSpec) []*models.ListingRecord {
	log := p.log
	if job.id != "" {
		log = log.With("run_id", job.id)
	}

	ops := session.MultiOperator{session.LogOperator{Log: log}}
	if job.operator != nil {
		ops = append(ops, job.operator)
	}
	if p.notifier != nil {
		ops = append(ops, p.notifier.Operator(job.id))
	}
	ctrl := session.NewController(surface, ops, p.cfg.Session, log)

	var capturer *shot.Capturer
	if job.screenshots {
		capturer = shot.NewCapturer(p.cfg.Shots.Root)
		capturer.MinSize = p.cfg.Shots.MinSize
		capturer.TwoShotFraction = p.cfg.Shots.TwoShotFraction
		capturer.Log = log
	}
	asm := assembler.New(surface, ctrl, p.reg, capturer, p.cfg.Session, log)

	var sinks []assembler.Sink
	if job.output != nil {
		sinks = append(sinks, job.output)
	}
	if p.db != nil {
		sinks = append(sinks, p.db)
	}
	opts := []assembler.RunnerOption{assembler.WithCache(p.cache), assembler.WithSinks(sinks...)}
	if job.progress != nil {
		opts = append(opts, assembler.WithProgress(job.progress))
	}

	records := assembler.NewRunner(asm, p.cfg.Run, log, opts...).Run(ctx, job.urls)
	p.completed(ctx, job, records)
	return records
}

func (p *pipeline) completed(ctx context.Context, job runSpec, records []*models.ListingRecord) {
	if p.notifier == nil {
		return
	}
	status := models.RunCompleted
	if ctx.Err() != nil && len(records) < len(job.urls) {
		status = models.RunStopped
	}
	statuses := make(map[string]int)
	for _, rec := range records {
		statuses[string(rec.Status)]++
	}
	p.notifier.Send(&webhook.Event{
		Type:  webhook.EventRunCompleted,
		RunID: job.id,
		Data: webhook.CompletedData{
			Status:   status,
			Total:    len(job.urls),
			Records:  len(records),
			Statuses: statuses,
		},
	}, nil)
}
